package consumer

import (
	"context"
	"fmt"
	"time"

	rediscommon "teamreport/common/redis"
	"teamreport/internal/config"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamConsumer Redis Streams 接入消费者
//
// 成功或不可重试的消息会被确认；可重试的失败留在 pending 列表，
// 下次启动时先重放 pending 消息。
type StreamConsumer struct {
	cfg         config.IngestConfig
	redisClient *redis.Client
	ingester    Ingester
	block       time.Duration
	logger      *zap.Logger
}

// NewStreamConsumer 创建 Streams 消费者
func NewStreamConsumer(cfg config.IngestConfig, redisClient *redis.Client, ingester Ingester, logger *zap.Logger) *StreamConsumer {
	return &StreamConsumer{
		cfg:         cfg,
		redisClient: redisClient,
		ingester:    ingester,
		block:       2 * time.Second,
		logger:      logger,
	}
}

// Start 启动消费循环，阻塞直到 ctx 取消
func (c *StreamConsumer) Start(ctx context.Context) error {
	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, c.cfg.Stream, c.cfg.ConsumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", c.cfg.Stream, err)
	}

	c.logger.Info("Ingest stream consumer started",
		zap.String("stream", c.cfg.Stream),
		zap.String("consumer_group", c.cfg.ConsumerGroup),
		zap.String("consumer_name", c.cfg.ConsumerName),
	)

	if err := c.replayPending(ctx); err != nil {
		c.logger.Warn("Failed to replay pending ingest messages", zap.Error(err))
	}

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := c.consumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume ingest stream",
				zap.Error(err),
				zap.Duration("backoff", backoffDuration),
			)
			// 指数退避
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoffDuration):
				backoffDuration *= 2
				if backoffDuration > maxBackoff {
					backoffDuration = maxBackoff
				}
			}
			continue
		}
		backoffDuration = time.Second
	}
}

// consumeOnce 读取并处理一批新消息，返回处理条数
func (c *StreamConsumer) consumeOnce(ctx context.Context) (int, error) {
	messages, err := rediscommon.ReadFromStream(
		ctx,
		c.redisClient,
		c.cfg.Stream,
		c.cfg.ConsumerGroup,
		c.cfg.ConsumerName,
		int64(c.cfg.BatchSize),
		c.block,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to read from stream %s: %w", c.cfg.Stream, err)
	}
	for _, msg := range messages {
		c.processMessage(ctx, msg)
	}
	return len(messages), nil
}

// replayPending 重放本消费者未确认的消息
func (c *StreamConsumer) replayPending(ctx context.Context) error {
	messages, err := rediscommon.ReadPendingFromStream(
		ctx,
		c.redisClient,
		c.cfg.Stream,
		c.cfg.ConsumerGroup,
		c.cfg.ConsumerName,
		int64(c.cfg.BatchSize),
	)
	if err != nil {
		return err
	}
	if len(messages) > 0 {
		c.logger.Info("Replaying pending ingest messages", zap.Int("count", len(messages)))
	}
	for _, msg := range messages {
		c.processMessage(ctx, msg)
	}
	return nil
}

func (c *StreamConsumer) processMessage(ctx context.Context, msg rediscommon.StreamMessage) {
	ack := true
	defer func() {
		if !ack {
			return
		}
		if err := rediscommon.Ack(ctx, c.redisClient, c.cfg.Stream, c.cfg.ConsumerGroup, msg.ID); err != nil {
			c.logger.Error("Failed to ack ingest message", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}()

	im, err := decodeStreamValues(msg.Values)
	if err != nil {
		c.logger.Warn("Dropping malformed ingest message", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}

	resp, err := Dispatch(ctx, c.ingester, im)
	if err != nil {
		ack = !Retryable(err)
		c.logger.Error("Failed to ingest stream message",
			zap.String("message_id", msg.ID),
			zap.String("source", im.Source),
			zap.Bool("will_retry", !ack),
			zap.Error(err),
		)
		return
	}

	c.logger.Info("Ingested stream message",
		zap.String("message_id", msg.ID),
		zap.String("source", im.Source),
		zap.Int("created", resp.Created),
		zap.Int("merged", resp.Merged),
		zap.Int("duplicates", resp.Duplicates),
		zap.Int("rejected", len(resp.Rejected)),
	)
}

// Publish 把接入消息写入流，供 CLI 等生产者使用
func Publish(ctx context.Context, client *redis.Client, stream string, msg IngestMessage) (string, error) {
	if msg.Text == "" && len(msg.Entries) == 0 {
		return "", errEmptyMessage
	}
	return rediscommon.PublishJSONToStream(ctx, client, stream, msg)
}
