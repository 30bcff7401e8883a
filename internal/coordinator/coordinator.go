// Package coordinator 持有唯一的权威记录集，并与持久化后端同步
//
// 所有变更（接入、删除、清空、推送）在操作锁内串行执行，锁覆盖后端 I/O；
// 其他组件只能拿到记录集的拷贝。
package coordinator

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"teamreport/internal/domain"
	"teamreport/internal/store"
	"teamreport/internal/validator"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options 协调器配置
type Options struct {
	SoftLimitBytes int
	HardLimitBytes int
	// 操作员口令，为空时删除和清空一律拒绝
	Passphrase string
	// 部门目录，用于校正后端加载的记录；零值使用默认目录
	Catalog domain.Catalog
}

// IngestResult 一次接入的结果
type IngestResult struct {
	Records    []domain.ReportRecord `json:"records"` // 本批新建或合并后的记录
	Created    int                   `json:"created"`
	Merged     int                   `json:"merged"`
	Duplicates int                   `json:"duplicates"`
}

// Coordinator 同步/合并协调器
type Coordinator struct {
	opMu sync.Mutex // 串行化变更，覆盖后端 I/O

	stateMu sync.RWMutex // 保护 records 和 status
	records []domain.ReportRecord
	status  Status

	strategy   syncer
	passphrase string
	repair     *validator.Validator
	now        func() time.Time
	logger     *zap.Logger
}

// NewSnapshot 创建快照模式协调器
func NewSnapshot(backend store.SnapshotBackend, opts Options, logger *zap.Logger) *Coordinator {
	return newCoordinator(&snapshotSyncer{
		store:     backend,
		softLimit: opts.SoftLimitBytes,
		logger:    logger,
	}, opts, logger)
}

// NewLive 创建实时集合模式协调器
func NewLive(backend store.LiveBackend, opts Options, logger *zap.Logger) *Coordinator {
	return newCoordinator(&liveSyncer{
		store:  backend,
		logger: logger,
	}, opts, logger)
}

func newCoordinator(strategy syncer, opts Options, logger *zap.Logger) *Coordinator {
	catalog := opts.Catalog
	if len(catalog.Departments) == 0 {
		catalog = domain.DefaultCatalog()
	}
	c := &Coordinator{
		records:    []domain.ReportRecord{},
		strategy:   strategy,
		passphrase: opts.Passphrase,
		repair:     validator.New(catalog),
		now:        time.Now,
		logger:     logger,
	}
	c.status = Status{
		State:   StateIdle,
		Mode:    strategy.mode(),
		Backend: strategy.backend(),
	}
	if strategy.mode() == "snapshot" {
		c.status.SoftLimitBytes = opts.SoftLimitBytes
		c.status.HardLimitBytes = opts.HardLimitBytes
	}
	return c
}

// Start 加载初始状态；实时模式下开始订阅推送
func (c *Coordinator) Start(ctx context.Context) error {
	c.stateMu.Lock()
	c.setState(StateSyncing, nil)
	c.stateMu.Unlock()

	c.logger.Info("Starting report coordinator",
		zap.String("mode", c.strategy.mode()),
		zap.String("backend", c.strategy.backend()),
	)

	if err := c.strategy.start(ctx, c.applyPush, c.recordSyncError); err != nil {
		c.recordSyncError(err)
		return err
	}
	return nil
}

// Stop 停止订阅
func (c *Coordinator) Stop() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.strategy.stop()
	c.logger.Info("Report coordinator stopped")
}

// Refresh 快照模式下重新读取远端
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.stateMu.Lock()
	c.setState(StateSyncing, nil)
	c.stateMu.Unlock()

	records, err := c.strategy.refresh(ctx)
	if err != nil {
		c.recordSyncError(err)
		return err
	}
	if records != nil {
		records = c.sanitize(records)
	}
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if records != nil {
		c.commitLocked(records)
	}
	c.setState(StateSynced, nil)
	return nil
}

// Records 当前记录集拷贝（最新接入在前）
func (c *Coordinator) Records() []domain.ReportRecord {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return domain.CloneRecords(c.records)
}

// Status 当前同步状态
func (c *Coordinator) Status() Status {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	s := c.status
	if s.LastSyncedAt != nil {
		t := *s.LastSyncedAt
		s.LastSyncedAt = &t
	}
	return s
}

// Ingest 把校验通过的记录合入权威记录集
// 持久化失败时本地记录集保持不变
func (c *Coordinator) Ingest(ctx context.Context, incoming []domain.ReportRecord, keywords []string) (IngestResult, error) {
	if err := ctx.Err(); err != nil {
		return IngestResult{}, err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	plan := planMerge(c.Records(), incoming, keywords)
	result := IngestResult{
		Records:    []domain.ReportRecord{},
		Created:    len(plan.created),
		Merged:     len(plan.merged),
		Duplicates: plan.duplicates,
	}
	if plan.empty() {
		return result, nil
	}

	c.beginSave()
	next, err := c.strategy.ingest(ctx, plan)
	if err != nil {
		c.failSave("ingest", err)
		return IngestResult{}, err
	}
	c.finishSave(next)

	result.Records = domain.CloneRecords(next[:len(plan.front)])
	c.logger.Info("Reports ingested",
		zap.Int("created", result.Created),
		zap.Int("merged", result.Merged),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("record_count", len(next)),
	)
	return result, nil
}

// Delete 删除单条记录，需要操作员口令
func (c *Coordinator) Delete(ctx context.Context, id, passphrase string) error {
	if err := c.authorize(passphrase); err != nil {
		return err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	current := c.Records()
	if _, found := withoutID(current, id); !found {
		return domain.ErrNotFound
	}

	c.beginSave()
	next, err := c.strategy.remove(ctx, current, id)
	if err != nil {
		c.failSave("delete", err)
		return err
	}
	c.finishSave(next)

	c.logger.Info("Report deleted", zap.String("report_id", id))
	return nil
}

// Clear 清空全部记录，需要确认和操作员口令
// 任一检查失败时记录集不变
func (c *Coordinator) Clear(ctx context.Context, confirm bool, passphrase string) error {
	if !confirm {
		return domain.ErrNotConfirmed
	}
	if err := c.authorize(passphrase); err != nil {
		return err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	current := c.Records()
	c.beginSave()
	if err := c.strategy.clear(ctx, current); err != nil {
		c.failSave("clear", err)
		return err
	}
	c.finishSave([]domain.ReportRecord{})

	c.logger.Warn("All reports cleared", zap.Int("record_count", len(current)))
	return nil
}

// authorize 口令校验
// 只是一个恒定时间比较的占位实现，生产环境需要真正的身份认证
func (c *Coordinator) authorize(passphrase string) error {
	if c.passphrase == "" {
		return domain.ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(passphrase), []byte(c.passphrase)) != 1 {
		return domain.ErrUnauthorized
	}
	return nil
}

// applyPush 应用后端推送的全量状态；在进行中的变更之后执行，最后一次推送生效
func (c *Coordinator) applyPush(records []domain.ReportRecord) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	records = c.sanitize(records)
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.commitLocked(records)
	c.setState(StateSynced, nil)
	c.logger.Debug("Applied report state", zap.Int("record_count", len(records)))
}

// sanitize 校正后端加载的记录，丢弃无法修复的记录；缺失或重复的 ID 重新分配
func (c *Coordinator) sanitize(records []domain.ReportRecord) []domain.ReportRecord {
	out := make([]domain.ReportRecord, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		fixed, err := c.repair.Repair(r)
		if err != nil {
			c.logger.Warn("Dropping unrepairable stored report",
				zap.String("report_id", r.ID),
				zap.String("date", r.Date),
				zap.Error(err),
			)
			continue
		}
		if fixed.ID == "" || seen[fixed.ID] {
			fixed.ID = uuid.New().String()
		}
		seen[fixed.ID] = true
		out = append(out, fixed)
	}
	return out
}

func (c *Coordinator) recordSyncError(err error) {
	c.logger.Error("Report sync failed", zap.Error(err))
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.setState(StateSyncError, err)
}

func (c *Coordinator) beginSave() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.setState(StateSaving, nil)
}

func (c *Coordinator) failSave(op string, err error) {
	c.logger.Error("Report save failed", zap.String("op", op), zap.Error(err))
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.setState(StateSaveFailed, err)
}

func (c *Coordinator) finishSave(next []domain.ReportRecord) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.commitLocked(next)
	c.setState(StateSaved, nil)
}

// commitLocked 替换记录集，调用方需持有 stateMu
func (c *Coordinator) commitLocked(records []domain.ReportRecord) {
	next := domain.CloneRecords(records)
	if next == nil {
		next = []domain.ReportRecord{}
	}
	c.records = next
	c.status.RecordCount = len(next)
	if size, err := store.PayloadSize(next); err == nil {
		c.status.PayloadBytes = size
	}
}
