package store

import (
	"sync"

	"teamreport/internal/domain"
)

// subscriber 以独立 goroutine 投递状态推送
// 通道只保留最新一次状态，慢消费者看到的总是最后一次推送
type subscriber struct {
	mu      sync.Mutex
	ch      chan []domain.ReportRecord
	done    chan struct{}
	once    sync.Once
	onState StateHandler
}

func newSubscriber(onState StateHandler) *subscriber {
	s := &subscriber{
		ch:      make(chan []domain.ReportRecord, 1),
		done:    make(chan struct{}),
		onState: onState,
	}
	go s.loop()
	return s
}

func (s *subscriber) loop() {
	for {
		select {
		case <-s.done:
			return
		case state := <-s.ch:
			s.onState(state)
		}
	}
}

// offer 投递状态，覆盖尚未消费的旧状态
func (s *subscriber) offer(state []domain.ReportRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- state:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// subscriberSet 订阅者集合
type subscriberSet struct {
	mu   sync.Mutex
	next int
	subs map[int]*subscriber
}

func newSubscriberSet() *subscriberSet {
	return &subscriberSet{subs: make(map[int]*subscriber)}
}

func (ss *subscriberSet) add(onState StateHandler) (int, *subscriber) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	id := ss.next
	ss.next++
	sub := newSubscriber(onState)
	ss.subs[id] = sub
	return id, sub
}

func (ss *subscriberSet) remove(id int) {
	ss.mu.Lock()
	sub, ok := ss.subs[id]
	delete(ss.subs, id)
	ss.mu.Unlock()
	if ok {
		sub.stop()
	}
}

// broadcast 向所有订阅者投递各自的一份拷贝
func (ss *subscriberSet) broadcast(state []domain.ReportRecord) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	for _, sub := range ss.subs {
		sub.offer(domain.CloneRecords(state))
	}
}

func (ss *subscriberSet) len() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.subs)
}

func (ss *subscriberSet) closeAll() {
	ss.mu.Lock()
	subs := ss.subs
	ss.subs = make(map[int]*subscriber)
	ss.mu.Unlock()
	for _, sub := range subs {
		sub.stop()
	}
}
