// Package store 日报记录的持久化后端
//
// 两类后端：
//   - SnapshotBackend：整个记录集作为一个 blob 读写（文件 / Redis / JSONBin / GCS）
//   - LiveBackend：逐条创建删除，并通过订阅接收全量状态推送（Postgres / 内存）
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"teamreport/internal/domain"
)

// SnapshotBackend 快照型后端：写即整体覆盖，读即整体替换
type SnapshotBackend interface {
	Read(ctx context.Context) ([]domain.ReportRecord, error)
	Write(ctx context.Context, records []domain.ReportRecord) error
	Name() string
}

// StateHandler 接收全量状态推送
type StateHandler func(records []domain.ReportRecord)

// ErrorHandler 接收订阅错误
type ErrorHandler func(err error)

// LiveBackend 实时集合型后端
type LiveBackend interface {
	// Create 创建一条记录，返回带权威 ID 的记录
	Create(ctx context.Context, rec domain.ReportRecord) (domain.ReportRecord, error)
	Delete(ctx context.Context, id string) error
	// Subscribe 订阅全量状态；订阅成功后立即推送一次当前状态
	Subscribe(ctx context.Context, onState StateHandler, onError ErrorHandler) (unsubscribe func(), err error)
	Name() string
}

// Truncater 支持一次性清空的实时后端
type Truncater interface {
	Truncate(ctx context.Context) error
}

// Document 快照文档格式
type Document struct {
	Reports     []domain.ReportRecord `json:"reports"`
	LastUpdated string                `json:"lastUpdated"`
}

// EncodeDocument 编码快照文档
func EncodeDocument(records []domain.ReportRecord, now time.Time) ([]byte, error) {
	if records == nil {
		records = []domain.ReportRecord{}
	}
	data, err := json.Marshal(Document{
		Reports:     records,
		LastUpdated: now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeDocument 解码快照，同时兼容文档格式和裸数组格式
// 空内容返回空记录集
func DecodeDocument(data []byte) ([]domain.ReportRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []domain.ReportRecord{}, nil
	}

	if trimmed[0] == '[' {
		var records []domain.ReportRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot array: %w", err)
		}
		return normalizeRecords(records), nil
	}

	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot document: %w", err)
	}
	return normalizeRecords(doc.Reports), nil
}

// PayloadSize 快照文档实际写出的字节数（用于容量检查）
func PayloadSize(records []domain.ReportRecord) (int, error) {
	data, err := EncodeDocument(records, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("failed to measure snapshot: %w", err)
	}
	return len(data), nil
}

func normalizeRecords(records []domain.ReportRecord) []domain.ReportRecord {
	if records == nil {
		return []domain.ReportRecord{}
	}
	for i := range records {
		if records[i].MatchedKeywords == nil {
			records[i].MatchedKeywords = []string{}
		}
	}
	return records
}
