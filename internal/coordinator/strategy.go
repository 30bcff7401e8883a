package coordinator

import (
	"context"
	"errors"
	"fmt"

	"teamreport/internal/domain"
	"teamreport/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// syncer 不同后端模式下的持久化策略
// 所有方法都在 Coordinator 的操作锁内调用
type syncer interface {
	mode() string
	backend() string
	// start 加载初始状态；apply 提交到本地记录集，fail 记录同步错误
	start(ctx context.Context, apply func([]domain.ReportRecord), fail func(error)) error
	stop()
	// ingest 持久化合并计划，返回新的权威记录集
	ingest(ctx context.Context, plan mergePlan) ([]domain.ReportRecord, error)
	remove(ctx context.Context, current []domain.ReportRecord, id string) ([]domain.ReportRecord, error)
	clear(ctx context.Context, current []domain.ReportRecord) error
	refresh(ctx context.Context) ([]domain.ReportRecord, error)
}

// snapshotSyncer 快照模式：整体覆盖写
type snapshotSyncer struct {
	store     store.SnapshotBackend
	softLimit int
	logger    *zap.Logger
}

func (s *snapshotSyncer) mode() string    { return "snapshot" }
func (s *snapshotSyncer) backend() string { return s.store.Name() }
func (s *snapshotSyncer) stop()           {}

func (s *snapshotSyncer) start(ctx context.Context, apply func([]domain.ReportRecord), fail func(error)) error {
	// 先用本地缓存快速加载，再以远端覆盖
	if cached, ok := s.store.(store.CachedSnapshot); ok {
		records, err := cached.ReadCached(ctx)
		if err != nil {
			s.logger.Warn("Failed to read local snapshot cache", zap.Error(err))
		} else if len(records) > 0 {
			apply(records)
		}
	}

	records, err := s.store.Read(ctx)
	if err != nil {
		// 远端不可用时保留已加载的缓存
		fail(err)
		return nil
	}
	apply(records)
	return nil
}

func (s *snapshotSyncer) refresh(ctx context.Context) ([]domain.ReportRecord, error) {
	return s.store.Read(ctx)
}

func (s *snapshotSyncer) ingest(ctx context.Context, plan mergePlan) ([]domain.ReportRecord, error) {
	// 快照模式由本端分配 ID；新建记录在 planMerge 中已清空 ID，合并记录沿用原 ID
	for i := range plan.front {
		if plan.front[i].ID == "" {
			plan.front[i].ID = uuid.New().String()
		}
	}
	next := plan.next()
	if err := s.write(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *snapshotSyncer) remove(ctx context.Context, current []domain.ReportRecord, id string) ([]domain.ReportRecord, error) {
	next, found := withoutID(current, id)
	if !found {
		return nil, fmt.Errorf("delete %s: %w", id, domain.ErrNotFound)
	}
	if err := s.write(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *snapshotSyncer) clear(ctx context.Context, _ []domain.ReportRecord) error {
	return s.store.Write(ctx, []domain.ReportRecord{})
}

// write 写入前检查软阈值
func (s *snapshotSyncer) write(ctx context.Context, records []domain.ReportRecord) error {
	size, err := store.PayloadSize(records)
	if err != nil {
		return err
	}
	if size > s.softLimit {
		return &domain.CapacityError{Size: size, Limit: s.softLimit}
	}
	return s.store.Write(ctx, records)
}

// liveSyncer 实时集合模式：逐条增删，本地是远端的镜像
type liveSyncer struct {
	store       store.LiveBackend
	unsubscribe func()
	logger      *zap.Logger
}

func (l *liveSyncer) mode() string    { return "live" }
func (l *liveSyncer) backend() string { return l.store.Name() }

func (l *liveSyncer) start(ctx context.Context, apply func([]domain.ReportRecord), fail func(error)) error {
	unsubscribe, err := l.store.Subscribe(ctx, apply, fail)
	if err != nil {
		return err
	}
	l.unsubscribe = unsubscribe
	return nil
}

func (l *liveSyncer) stop() {
	if l.unsubscribe != nil {
		l.unsubscribe()
		l.unsubscribe = nil
	}
}

// refresh 实时模式以推送为准，没有主动读取
func (l *liveSyncer) refresh(ctx context.Context) ([]domain.ReportRecord, error) {
	return nil, nil
}

// ingest 合并的记录先删旧再建新；新建按倒序提交，使远端“最新在前”的顺序与批内顺序一致
// 中途失败时已提交的部分由下一次推送同步到本地
func (l *liveSyncer) ingest(ctx context.Context, plan mergePlan) ([]domain.ReportRecord, error) {
	for _, m := range plan.merged {
		if m.previousID == "" {
			continue
		}
		if err := l.store.Delete(ctx, m.previousID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	front := make([]domain.ReportRecord, len(plan.front))
	for i := len(plan.front) - 1; i >= 0; i-- {
		created, err := l.store.Create(ctx, plan.front[i])
		if err != nil {
			return nil, err
		}
		front[i] = created
	}

	next := make([]domain.ReportRecord, 0, len(front)+len(plan.rest))
	next = append(next, front...)
	next = append(next, plan.rest...)
	return next, nil
}

func (l *liveSyncer) remove(ctx context.Context, current []domain.ReportRecord, id string) ([]domain.ReportRecord, error) {
	if err := l.store.Delete(ctx, id); err != nil {
		return nil, err
	}
	next, _ := withoutID(current, id)
	return next, nil
}

func (l *liveSyncer) clear(ctx context.Context, current []domain.ReportRecord) error {
	if t, ok := l.store.(store.Truncater); ok {
		return t.Truncate(ctx)
	}
	for _, r := range current {
		if err := l.store.Delete(ctx, r.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	return nil
}
