package store

import (
	"context"
	"errors"
	"time"

	"teamreport/internal/domain"
)

// RedisSnapshot 以单个 Redis key 保存快照文档
type RedisSnapshot struct {
	kv  KV
	key string
	now func() time.Time
}

var _ SnapshotBackend = (*RedisSnapshot)(nil)

// NewRedisSnapshot 创建 Redis 快照后端
func NewRedisSnapshot(kv KV, key string) *RedisSnapshot {
	return &RedisSnapshot{kv: kv, key: key, now: time.Now}
}

func (s *RedisSnapshot) Name() string { return "redis" }

func (s *RedisSnapshot) Read(ctx context.Context) ([]domain.ReportRecord, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return []domain.ReportRecord{}, nil
		}
		return nil, &domain.PersistenceError{Op: "read", Err: err}
	}
	records, err := DecodeDocument([]byte(raw))
	if err != nil {
		return nil, &domain.PersistenceError{Op: "read", Err: err}
	}
	return records, nil
}

func (s *RedisSnapshot) Write(ctx context.Context, records []domain.ReportRecord) error {
	data, err := EncodeDocument(records, s.now())
	if err != nil {
		return &domain.PersistenceError{Op: "write", Err: err}
	}
	// 快照不过期
	if err := s.kv.Set(ctx, s.key, string(data), 0); err != nil {
		return &domain.PersistenceError{Op: "write", Err: err}
	}
	return nil
}
