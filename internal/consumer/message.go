package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"teamreport/internal/domain"
	"teamreport/internal/service"
)

// Ingester 接入入口，由 service.ReportService 实现
type Ingester interface {
	IngestText(ctx context.Context, text string) (*service.IngestResponse, error)
	IngestEntries(ctx context.Context, entries []any) (*service.IngestResponse, error)
}

// IngestMessage 异步接入消息：聊天原文或已结构化的条目，二选一
type IngestMessage struct {
	Text    string `json:"text,omitempty"`
	Entries []any  `json:"entries,omitempty"`
	Source  string `json:"source,omitempty"` // 来源标识，仅用于日志
}

var errEmptyMessage = errors.New("ingest message has neither text nor entries")

// DecodeMessage 解析 JSON 消息体；非 JSON 的消息体按聊天原文处理
func DecodeMessage(payload []byte) (IngestMessage, error) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return IngestMessage{}, errEmptyMessage
	}
	if !strings.HasPrefix(trimmed, "{") {
		return IngestMessage{Text: string(payload)}, nil
	}
	var msg IngestMessage
	if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
		return IngestMessage{}, fmt.Errorf("failed to unmarshal ingest message: %w", err)
	}
	if strings.TrimSpace(msg.Text) == "" && len(msg.Entries) == 0 {
		return IngestMessage{}, errEmptyMessage
	}
	return msg, nil
}

// decodeStreamValues 流消息的 data 字段为 JSON，兼容直接携带 text 字段
func decodeStreamValues(values map[string]interface{}) (IngestMessage, error) {
	if data, ok := values["data"].(string); ok {
		return DecodeMessage([]byte(data))
	}
	if text, ok := values["text"].(string); ok && strings.TrimSpace(text) != "" {
		return IngestMessage{Text: text}, nil
	}
	return IngestMessage{}, errEmptyMessage
}

// Dispatch 按消息类型调用接入
func Dispatch(ctx context.Context, ingester Ingester, msg IngestMessage) (*service.IngestResponse, error) {
	if len(msg.Entries) > 0 {
		return ingester.IngestEntries(ctx, msg.Entries)
	}
	return ingester.IngestText(ctx, msg.Text)
}

// Retryable 失败是否值得重投；校验类错误重投也不会成功
func Retryable(err error) bool {
	switch domain.StatusOf(err) {
	case domain.StatusExtractionFailed, domain.StatusPersistenceFailed, domain.StatusCancelled:
		return true
	default:
		return false
	}
}
