package store

import (
	"context"
	"fmt"
	"sync"

	"teamreport/internal/domain"

	"github.com/google/uuid"
)

// MemoryCollection 内存实时集合，无数据库时的兜底实现
type MemoryCollection struct {
	mu      sync.Mutex
	records []domain.ReportRecord // 最新在前
	subs    *subscriberSet
}

var (
	_ LiveBackend = (*MemoryCollection)(nil)
	_ Truncater   = (*MemoryCollection)(nil)
)

// NewMemoryCollection 创建内存集合
func NewMemoryCollection() *MemoryCollection {
	return &MemoryCollection{
		records: []domain.ReportRecord{},
		subs:    newSubscriberSet(),
	}
}

func (m *MemoryCollection) Name() string { return "memory" }

func (m *MemoryCollection) Create(ctx context.Context, rec domain.ReportRecord) (domain.ReportRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.ReportRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := rec.Clone()
	out.ID = uuid.New().String()
	if out.MatchedKeywords == nil {
		out.MatchedKeywords = []string{}
	}
	m.records = append([]domain.ReportRecord{out}, m.records...)
	m.subs.broadcast(m.records)
	return out.Clone(), nil
}

func (m *MemoryCollection) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.records {
		if r.ID == id {
			m.records = append(m.records[:i:i], m.records[i+1:]...)
			m.subs.broadcast(m.records)
			return nil
		}
	}
	return fmt.Errorf("delete %s: %w", id, domain.ErrNotFound)
}

func (m *MemoryCollection) Truncate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = []domain.ReportRecord{}
	m.subs.broadcast(m.records)
	return nil
}

// Subscribe 订阅后立即推送当前状态；推送在独立 goroutine 中执行
func (m *MemoryCollection) Subscribe(ctx context.Context, onState StateHandler, onError ErrorHandler) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	id, sub := m.subs.add(onState)
	sub.offer(domain.CloneRecords(m.records))
	m.mu.Unlock()

	return func() { m.subs.remove(id) }, nil
}

// Snapshot 当前记录拷贝
func (m *MemoryCollection) Snapshot() []domain.ReportRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.CloneRecords(m.records)
}
