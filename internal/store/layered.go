package store

import (
	"context"

	"teamreport/internal/domain"

	"go.uber.org/zap"
)

// CachedSnapshot 带本地缓存的快照后端，可先读缓存快速加载
type CachedSnapshot interface {
	SnapshotBackend
	ReadCached(ctx context.Context) ([]domain.ReportRecord, error)
}

// Layered 远端快照 + 本地文件缓存
// 读：远端非空时以远端为准并刷新缓存，远端为空时保留缓存内容
// 写：先写远端，成功后写缓存；缓存失败只记录日志
type Layered struct {
	remote SnapshotBackend
	local  SnapshotBackend
	logger *zap.Logger
}

var _ CachedSnapshot = (*Layered)(nil)

// NewLayered 创建分层快照
func NewLayered(remote, local SnapshotBackend, logger *zap.Logger) *Layered {
	return &Layered{remote: remote, local: local, logger: logger}
}

func (l *Layered) Name() string { return l.remote.Name() + "+" + l.local.Name() }

// ReadCached 只读本地缓存
func (l *Layered) ReadCached(ctx context.Context) ([]domain.ReportRecord, error) {
	return l.local.Read(ctx)
}

func (l *Layered) Read(ctx context.Context) ([]domain.ReportRecord, error) {
	records, err := l.remote.Read(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return l.local.Read(ctx)
	}
	if err := l.local.Write(ctx, records); err != nil {
		l.logger.Warn("Failed to refresh local snapshot cache",
			zap.String("backend", l.local.Name()),
			zap.Error(err),
		)
	}
	return records, nil
}

func (l *Layered) Write(ctx context.Context, records []domain.ReportRecord) error {
	if err := l.remote.Write(ctx, records); err != nil {
		return err
	}
	if err := l.local.Write(ctx, records); err != nil {
		l.logger.Warn("Failed to write local snapshot cache",
			zap.String("backend", l.local.Name()),
			zap.Error(err),
		)
	}
	return nil
}
