package mqtt

import (
	"context"
	"fmt"
	"time"

	mqttcommon "teamreport/common/mqtt"
	"teamreport/internal/consumer"

	"go.uber.org/zap"
)

// Subscriber MQTT 订阅能力，由 common/mqtt.Client 实现
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

var _ Subscriber = (*mqttcommon.Client)(nil)

// IngestBroker 订阅接入主题，把消息交给日报服务
// 消息体为 JSON {"text": "..."} / {"entries": [...]}，或直接是聊天原文
type IngestBroker struct {
	subscriber Subscriber
	topic      string
	qos        byte
	ingester   consumer.Ingester
	timeout    time.Duration
	logger     *zap.Logger
}

// NewIngestBroker 创建接入 Broker；timeout 限制单条消息的处理时间
func NewIngestBroker(subscriber Subscriber, topic string, qos byte, ingester consumer.Ingester, timeout time.Duration, logger *zap.Logger) *IngestBroker {
	return &IngestBroker{
		subscriber: subscriber,
		topic:      topic,
		qos:        qos,
		ingester:   ingester,
		timeout:    timeout,
		logger:     logger,
	}
}

// Start 订阅主题
func (b *IngestBroker) Start() error {
	if err := b.subscriber.Subscribe(b.topic, b.qos, b.HandleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to ingest topic: %w", err)
	}
	b.logger.Info("MQTT ingest broker started", zap.String("topic", b.topic))
	return nil
}

// Stop 取消订阅
func (b *IngestBroker) Stop() {
	if err := b.subscriber.Unsubscribe(b.topic); err != nil {
		b.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	b.logger.Info("MQTT ingest broker stopped")
}

// HandleMessage 处理单条 MQTT 消息
func (b *IngestBroker) HandleMessage(topic string, payload []byte) error {
	b.logger.Debug("Received MQTT ingest message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	msg, err := consumer.DecodeMessage(payload)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	resp, err := consumer.Dispatch(ctx, b.ingester, msg)
	if err != nil {
		return fmt.Errorf("failed to ingest mqtt message: %w", err)
	}
	b.logger.Info("Ingested MQTT message",
		zap.String("topic", topic),
		zap.String("source", msg.Source),
		zap.Int("created", resp.Created),
		zap.Int("merged", resp.Merged),
		zap.Int("rejected", len(resp.Rejected)),
	)
	return nil
}
