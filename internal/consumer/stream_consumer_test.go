package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	rediscommon "teamreport/common/redis"
	"teamreport/internal/config"
	"teamreport/internal/coordinator"
	"teamreport/internal/domain"
	"teamreport/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockIngester 模拟接入服务
type MockIngester struct {
	mock.Mock
}

func (m *MockIngester) IngestText(ctx context.Context, text string) (*service.IngestResponse, error) {
	args := m.Called(ctx, text)
	if v := args.Get(0); v != nil {
		return v.(*service.IngestResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIngester) IngestEntries(ctx context.Context, entries []any) (*service.IngestResponse, error) {
	args := m.Called(ctx, entries)
	if v := args.Get(0); v != nil {
		return v.(*service.IngestResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func okResponse(created int) *service.IngestResponse {
	return &service.IngestResponse{
		IngestResult: coordinator.IngestResult{Records: []domain.ReportRecord{}, Created: created},
		Rejected:     []domain.Rejection{},
	}
}

func testIngestConfig() config.IngestConfig {
	return config.IngestConfig{
		StreamEnabled: true,
		Stream:        "teamreport:ingest",
		ConsumerGroup: "teamreport-group",
		ConsumerName:  "test-consumer",
		BatchSize:     10,
	}
}

func setupConsumer(t *testing.T, ingester Ingester) (*StreamConsumer, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testIngestConfig()
	require.NoError(t, rediscommon.CreateConsumerGroup(context.Background(), client, cfg.Stream, cfg.ConsumerGroup))

	c := NewStreamConsumer(cfg, client, ingester, zap.NewNop())
	c.block = 20 * time.Millisecond
	return c, client
}

func pendingCount(t *testing.T, client *redis.Client) int64 {
	t.Helper()
	cfg := testIngestConfig()
	p, err := client.XPending(context.Background(), cfg.Stream, cfg.ConsumerGroup).Result()
	require.NoError(t, err)
	return p.Count
}

func TestConsumeOnce_TextMessageAcked(t *testing.T) {
	ingester := new(MockIngester)
	c, client := setupConsumer(t, ingester)
	ctx := context.Background()

	ingester.On("IngestText", mock.Anything, "李静：今日盘点").Return(okResponse(1), nil).Once()

	_, err := Publish(ctx, client, c.cfg.Stream, IngestMessage{Text: "李静：今日盘点", Source: "test"})
	require.NoError(t, err)

	n, err := c.consumeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(0), pendingCount(t, client))
	ingester.AssertExpectations(t)
}

func TestConsumeOnce_EntriesMessage(t *testing.T) {
	ingester := new(MockIngester)
	c, client := setupConsumer(t, ingester)
	ctx := context.Background()

	ingester.On("IngestEntries", mock.Anything, mock.MatchedBy(func(entries []any) bool {
		return len(entries) == 1
	})).Return(okResponse(1), nil).Once()

	_, err := Publish(ctx, client, c.cfg.Stream, IngestMessage{Entries: []any{
		map[string]any{"employeeName": "甲", "date": "2024-01-05", "content": "a"},
	}})
	require.NoError(t, err)

	_, err = c.consumeOnce(ctx)
	require.NoError(t, err)
	ingester.AssertExpectations(t)
}

func TestConsumeOnce_RetryableFailureStaysPending(t *testing.T) {
	ingester := new(MockIngester)
	c, client := setupConsumer(t, ingester)
	ctx := context.Background()

	ingester.On("IngestText", mock.Anything, "text").
		Return(nil, &domain.ExtractionError{Err: errors.New("quota")}).Once()

	_, err := Publish(ctx, client, c.cfg.Stream, IngestMessage{Text: "text"})
	require.NoError(t, err)

	_, err = c.consumeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pendingCount(t, client))
}

func TestConsumeOnce_PermanentFailureAcked(t *testing.T) {
	ingester := new(MockIngester)
	c, client := setupConsumer(t, ingester)
	ctx := context.Background()

	ingester.On("IngestText", mock.Anything, "too big").
		Return(nil, &domain.CapacityError{Size: 2, Limit: 1}).Once()

	_, err := Publish(ctx, client, c.cfg.Stream, IngestMessage{Text: "too big"})
	require.NoError(t, err)
	// 格式错误的消息直接丢弃
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.Stream,
		Values: map[string]interface{}{"data": "{not json"},
	}).Err())

	n, err := c.consumeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(0), pendingCount(t, client))
	ingester.AssertExpectations(t)
}

func TestConsumeOnce_Empty(t *testing.T) {
	c, _ := setupConsumer(t, new(MockIngester))
	n, err := c.consumeOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStart_StopsOnCancel(t *testing.T) {
	ingester := new(MockIngester)
	c, client := setupConsumer(t, ingester)
	called := make(chan struct{}, 1)
	ingester.On("IngestText", mock.Anything, "async").
		Run(func(mock.Arguments) { called <- struct{}{} }).
		Return(okResponse(1), nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	_, err := Publish(context.Background(), client, c.cfg.Stream, IngestMessage{Text: "async"})
	require.NoError(t, err)

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("message was not consumed")
	}
	cfg := testIngestConfig()
	assert.Eventually(t, func() bool {
		p, err := client.XPending(context.Background(), cfg.Stream, cfg.ConsumerGroup).Result()
		return err == nil && p.Count == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestPublish_Empty(t *testing.T) {
	_, client := setupConsumer(t, new(MockIngester))
	_, err := Publish(context.Background(), client, "s", IngestMessage{})
	assert.Error(t, err)
}
