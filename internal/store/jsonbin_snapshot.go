package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"teamreport/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// jsonBinLatest GET /b/{binId}/latest 的响应
type jsonBinLatest struct {
	Record   json.RawMessage `json:"record"`
	Metadata struct {
		ID      string `json:"id"`
		Private bool   `json:"private"`
	} `json:"metadata"`
}

// jsonBinError JSONBin 错误响应
type jsonBinError struct {
	Message string `json:"message"`
}

// JSONBinSnapshot JSONBin v3 REST 快照后端，bin 内容为记录数组
type JSONBinSnapshot struct {
	httpClient *resty.Client
	binID      string
	logger     *zap.Logger
}

var _ SnapshotBackend = (*JSONBinSnapshot)(nil)

// NewJSONBinSnapshot 创建 JSONBin 客户端
func NewJSONBinSnapshot(baseURL, binID, apiKey string, timeout time.Duration, logger *zap.Logger) *JSONBinSnapshot {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Master-Key", apiKey)

	return &JSONBinSnapshot{
		httpClient: client,
		binID:      binID,
		logger:     logger,
	}
}

func (s *JSONBinSnapshot) Name() string { return "jsonbin" }

func (s *JSONBinSnapshot) Read(ctx context.Context) ([]domain.ReportRecord, error) {
	var latest jsonBinLatest
	var apiErr jsonBinError
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetHeader("X-Bin-Meta", "true").
		SetResult(&latest).
		SetError(&apiErr).
		Get(fmt.Sprintf("/b/%s/latest", s.binID))
	if err != nil {
		s.logger.Error("JSONBin read failed", zap.String("bin_id", s.binID), zap.Error(err))
		return nil, &domain.PersistenceError{Op: "read", Err: err}
	}
	if resp.IsError() {
		s.logger.Error("JSONBin read returned error",
			zap.String("bin_id", s.binID),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("msg", apiErr.Message),
		)
		return nil, &domain.PersistenceError{Op: "read", Err: fmt.Errorf("jsonbin status %d: %s", resp.StatusCode(), apiErr.Message)}
	}

	records, err := DecodeDocument(latest.Record)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "read", Err: err}
	}
	s.logger.Debug("JSONBin read", zap.String("bin_id", s.binID), zap.Int("record_count", len(records)))
	return records, nil
}

func (s *JSONBinSnapshot) Write(ctx context.Context, records []domain.ReportRecord) error {
	if records == nil {
		records = []domain.ReportRecord{}
	}
	var apiErr jsonBinError
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(records).
		SetError(&apiErr).
		Put(fmt.Sprintf("/b/%s", s.binID))
	if err != nil {
		s.logger.Error("JSONBin write failed", zap.String("bin_id", s.binID), zap.Error(err))
		return &domain.PersistenceError{Op: "write", Err: err}
	}
	if resp.IsError() {
		s.logger.Error("JSONBin write returned error",
			zap.String("bin_id", s.binID),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("msg", apiErr.Message),
		)
		return &domain.PersistenceError{Op: "write", Err: fmt.Errorf("jsonbin status %d: %s", resp.StatusCode(), apiErr.Message)}
	}
	return nil
}
