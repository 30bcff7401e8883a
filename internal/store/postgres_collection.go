package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"teamreport/internal/domain"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const reportsSchema = `
CREATE TABLE IF NOT EXISTS daily_reports (
	seq              BIGSERIAL,
	id               TEXT PRIMARY KEY,
	employee_name    TEXT NOT NULL,
	report_date      TEXT NOT NULL,
	department       TEXT NOT NULL,
	content          TEXT NOT NULL DEFAULT '',
	next_steps       TEXT NOT NULL DEFAULT '',
	blockers         TEXT NOT NULL DEFAULT '',
	matched_keywords TEXT[] NOT NULL DEFAULT '{}',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_daily_reports_date ON daily_reports (report_date DESC);
`

// PostgresCollection 以 Postgres 表作为实时集合
// 变更通过 ChangeNotifier 广播给所有实例；未配置通知时只通知本进程订阅者，并定期轮询
type PostgresCollection struct {
	db           *sql.DB
	notifier     ChangeNotifier
	pollInterval time.Duration
	subs         *subscriberSet
	logger       *zap.Logger
}

var (
	_ LiveBackend = (*PostgresCollection)(nil)
	_ Truncater   = (*PostgresCollection)(nil)
)

// NewPostgresCollection 创建 Postgres 集合，notifier 可为 nil
func NewPostgresCollection(db *sql.DB, notifier ChangeNotifier, pollInterval time.Duration, logger *zap.Logger) *PostgresCollection {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &PostgresCollection{
		db:           db,
		notifier:     notifier,
		pollInterval: pollInterval,
		subs:         newSubscriberSet(),
		logger:       logger,
	}
}

func (p *PostgresCollection) Name() string { return "postgres" }

// EnsureSchema 建表
func (p *PostgresCollection) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, reportsSchema); err != nil {
		return fmt.Errorf("failed to ensure daily_reports schema: %w", err)
	}
	return nil
}

// List 按创建时间倒序返回全部记录
func (p *PostgresCollection) List(ctx context.Context) ([]domain.ReportRecord, error) {
	query := `
		SELECT id, employee_name, report_date, department, content, next_steps, blockers, matched_keywords
		FROM daily_reports
		ORDER BY created_at DESC, seq DESC
	`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "read", Err: err}
	}
	defer rows.Close()

	records := []domain.ReportRecord{}
	for rows.Next() {
		var r domain.ReportRecord
		var keywords pq.StringArray
		if err := rows.Scan(
			&r.ID,
			&r.EmployeeName,
			&r.Date,
			&r.Department,
			&r.Content,
			&r.NextSteps,
			&r.Blockers,
			&keywords,
		); err != nil {
			return nil, &domain.PersistenceError{Op: "read", Err: fmt.Errorf("scan report: %w", err)}
		}
		r.MatchedKeywords = []string(keywords)
		if r.MatchedKeywords == nil {
			r.MatchedKeywords = []string{}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "read", Err: err}
	}
	return records, nil
}

func (p *PostgresCollection) Create(ctx context.Context, rec domain.ReportRecord) (domain.ReportRecord, error) {
	out := rec.Clone()
	if out.MatchedKeywords == nil {
		out.MatchedKeywords = []string{}
	}

	query := `
		INSERT INTO daily_reports
			(id, employee_name, report_date, department, content, next_steps, blockers, matched_keywords)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := p.db.QueryRowContext(ctx, query,
		uuid.New().String(),
		out.EmployeeName,
		out.Date,
		out.Department,
		out.Content,
		out.NextSteps,
		out.Blockers,
		pq.Array(out.MatchedKeywords),
	).Scan(&out.ID)
	if err != nil {
		return domain.ReportRecord{}, &domain.PersistenceError{Op: "create", Err: err}
	}

	p.changed(ctx)
	return out, nil
}

func (p *PostgresCollection) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM daily_reports WHERE id = $1`, id)
	if err != nil {
		return &domain.PersistenceError{Op: "delete", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return &domain.PersistenceError{Op: "delete", Err: err}
	}
	if affected == 0 {
		return fmt.Errorf("delete %s: %w", id, domain.ErrNotFound)
	}

	p.changed(ctx)
	return nil
}

func (p *PostgresCollection) Truncate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM daily_reports`); err != nil {
		return &domain.PersistenceError{Op: "delete", Err: err}
	}
	p.changed(ctx)
	return nil
}

// Subscribe 同步推送一次当前状态，之后在变更通知或轮询时重新加载
func (p *PostgresCollection) Subscribe(ctx context.Context, onState StateHandler, onError ErrorHandler) (func(), error) {
	initial, err := p.List(ctx)
	if err != nil {
		return nil, err
	}

	var changes <-chan struct{}
	stopListen := func() {}
	if p.notifier != nil {
		ch, closeFn, err := p.notifier.Listen(ctx)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "subscribe", Err: err}
		}
		changes, stopListen = ch, closeFn
	}

	id, sub := p.subs.add(onState)
	sub.offer(initial)

	watchCtx, cancel := context.WithCancel(context.Background())
	go p.watch(watchCtx, sub, changes, onError)

	return func() {
		cancel()
		stopListen()
		p.subs.remove(id)
	}, nil
}

func (p *PostgresCollection) watch(ctx context.Context, sub *subscriber, changes <-chan struct{}, onError ErrorHandler) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			p.reload(ctx, sub, onError)
		case <-ticker.C:
			p.reload(ctx, sub, onError)
		}
	}
}

func (p *PostgresCollection) reload(ctx context.Context, sub *subscriber, onError ErrorHandler) {
	records, err := p.List(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn("Failed to reload daily reports", zap.Error(err))
		if onError != nil {
			onError(err)
		}
		return
	}
	sub.offer(records)
}

// changed 变更后通知；通知失败不影响已提交的写入
func (p *PostgresCollection) changed(ctx context.Context) {
	if p.notifier != nil {
		if err := p.notifier.Notify(ctx); err != nil {
			p.logger.Warn("Failed to publish report change", zap.Error(err))
		}
		return
	}
	if p.subs.len() == 0 {
		return
	}
	records, err := p.List(ctx)
	if err != nil {
		p.logger.Warn("Failed to reload daily reports after change", zap.Error(err))
		return
	}
	p.subs.broadcast(records)
}

// Close 停止所有订阅
func (p *PostgresCollection) Close() {
	p.subs.closeAll()
}
