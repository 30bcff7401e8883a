package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"teamreport/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stateRecorder 记录最近一次推送
type stateRecorder struct {
	mu     sync.Mutex
	states [][]domain.ReportRecord
}

func (s *stateRecorder) onState(records []domain.ReportRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, records)
}

func (s *stateRecorder) last() []domain.ReportRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.states) == 0 {
		return nil
	}
	return s.states[len(s.states)-1]
}

func (s *stateRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func TestMemoryCollection_CreateDeleteSubscribe(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCollection()
	rec := &stateRecorder{}

	unsubscribe, err := m.Subscribe(ctx, rec.onState, nil)
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool { return rec.count() >= 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.last())

	first, err := m.Create(ctx, sampleRecords()[1])
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, "r-1", first.ID, "id assigned by the collection")

	second, err := m.Create(ctx, sampleRecords()[0])
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.last()) == 2 }, time.Second, 5*time.Millisecond)
	state := rec.last()
	assert.Equal(t, second.ID, state[0].ID, "newest first")
	assert.Equal(t, sampleRecords()[0].Content, state[0].Content)

	require.NoError(t, m.Delete(ctx, first.ID))
	require.Eventually(t, func() bool { return len(rec.last()) == 1 }, time.Second, 5*time.Millisecond)

	err = m.Delete(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, m.Truncate(ctx))
	require.Eventually(t, func() bool { return len(rec.last()) == 0 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, m.Snapshot())
}

func TestMemoryCollection_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCollection()
	rec := &stateRecorder{}

	unsubscribe, err := m.Subscribe(ctx, rec.onState, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	unsubscribe()

	_, err = m.Create(ctx, sampleRecords()[0])
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

var reportColumns = []string{
	"id", "employee_name", "report_date", "department", "content", "next_steps", "blockers", "matched_keywords",
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresCollection) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewPostgresCollection(db, nil, time.Hour, zap.NewNop())
	return db, mock, repo
}

func TestPostgresCollection_List(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows(reportColumns).
		AddRow("r-2", "王强", "2024-01-06", "水产", "1. 处理客诉\n2. 盘点", "补货", "", "{客诉}").
		AddRow("r-1", "李静", "2024-01-05", "蔬果", "巡店", "", "", "{}")

	mock.ExpectQuery(`SELECT id, employee_name`).WillReturnRows(rows)

	records, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "r-2", records[0].ID)
	assert.Equal(t, "1. 处理客诉\n2. 盘点", records[0].Content)
	assert.Equal(t, []string{"客诉"}, records[0].MatchedKeywords)
	assert.Equal(t, []string{}, records[1].MatchedKeywords)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCollection_Create(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	in := sampleRecords()[0]
	mock.ExpectQuery(`INSERT INTO daily_reports`).
		WithArgs(sqlmock.AnyArg(), in.EmployeeName, in.Date, in.Department, in.Content, in.NextSteps, in.Blockers, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("db-id-1"))

	out, err := repo.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "db-id-1", out.ID)
	assert.Equal(t, in.Content, out.Content)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCollection_CreateError(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO daily_reports`).WillReturnError(errors.New("connection reset"))

	_, err := repo.Create(context.Background(), sampleRecords()[0])
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCollection_Delete(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM daily_reports WHERE id = \$1`).
		WithArgs("r-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM daily_reports WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "r-1"))
	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCollection_SubscribeAndLocalBroadcast(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()
	defer repo.Close()

	mock.ExpectQuery(`SELECT id, employee_name`).
		WillReturnRows(sqlmock.NewRows(reportColumns))
	mock.ExpectExec(`DELETE FROM daily_reports`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery(`SELECT id, employee_name`).
		WillReturnRows(sqlmock.NewRows(reportColumns).
			AddRow("r-9", "赵六", "2024-01-07", "仓库", "收货", "", "", "{}"))

	rec := &stateRecorder{}
	unsubscribe, err := repo.Subscribe(context.Background(), rec.onState, nil)
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool { return rec.count() >= 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.last())

	// 没有通知通道时，本进程写入后直接重新加载并推送
	require.NoError(t, repo.Truncate(context.Background()))
	require.Eventually(t, func() bool { return len(rec.last()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "r-9", rec.last()[0].ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisNotifier(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	n := NewRedisNotifier(client, "teamreport:reports:changed")

	changes, stop, err := n.Listen(ctx)
	require.NoError(t, err)
	defer stop()

	require.NoError(t, n.Notify(ctx))

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("expected change notification")
	}
}
