package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"teamreport/internal/aggregator"
	"teamreport/internal/coordinator"
	"teamreport/internal/domain"
	"teamreport/internal/export"
	"teamreport/internal/extractor"
	"teamreport/internal/query"
	"teamreport/internal/validator"

	"go.uber.org/zap"
)

// Coordinator 记录集的唯一持有者（见 coordinator 包）
type Coordinator interface {
	Records() []domain.ReportRecord
	Status() coordinator.Status
	Ingest(ctx context.Context, incoming []domain.ReportRecord, keywords []string) (coordinator.IngestResult, error)
	Delete(ctx context.Context, id, passphrase string) error
	Clear(ctx context.Context, confirm bool, passphrase string) error
	Refresh(ctx context.Context) error
}

var _ Coordinator = (*coordinator.Coordinator)(nil)

// ReportService 日报服务接口
type ReportService interface {
	// IngestText 抽取 → 校验 → 合并
	IngestText(ctx context.Context, text string) (*IngestResponse, error)
	// IngestEntries 跳过抽取，直接校验并合并结构化条目
	IngestEntries(ctx context.Context, entries []any) (*IngestResponse, error)
	List(criteria query.Criteria) []domain.ReportRecord
	Matrix(criteria query.Criteria) aggregator.Matrix
	Stats(criteria query.Criteria) aggregator.Stats
	Export(criteria query.Criteria, format export.Format, layout export.Layout) (export.File, error)
	Delete(ctx context.Context, req DeleteReportRequest) error
	Clear(ctx context.Context, req ClearReportsRequest) error
	Refresh(ctx context.Context) error
	Status() coordinator.Status

	Keywords() []string
	AddKeyword(keyword string) (bool, error)
	RemoveKeyword(keyword string) bool
	Departments() []string
}

// IngestResponse 接入结果
type IngestResponse struct {
	coordinator.IngestResult
	Rejected []domain.Rejection `json:"rejected"`
}

// DeleteReportRequest 删除单条日报请求
type DeleteReportRequest struct {
	ID         string
	Passphrase string
}

// ClearReportsRequest 清空请求
type ClearReportsRequest struct {
	Confirm    bool   `json:"confirm"`
	Passphrase string `json:"passphrase"`
}

// reportService 实现
type reportService struct {
	coord     Coordinator
	extractor extractor.Extractor // 可为 nil，此时只能接入结构化条目
	validator *validator.Validator
	keywords  *KeywordSet
	now       func() time.Time
	logger    *zap.Logger
}

// NewReportService 创建 ReportService 实例
func NewReportService(coord Coordinator, ext extractor.Extractor, v *validator.Validator, keywords *KeywordSet, logger *zap.Logger) ReportService {
	return &reportService{
		coord:     coord,
		extractor: ext,
		validator: v,
		keywords:  keywords,
		now:       time.Now,
		logger:    logger,
	}
}

func (s *reportService) IngestText(ctx context.Context, text string) (*IngestResponse, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyInput
	}
	if s.extractor == nil {
		return nil, fmt.Errorf("extractor not configured: %w", domain.ErrExtraction)
	}

	keywords := s.keywords.List()
	raw, err := s.extractor.Extract(ctx, text, keywords)
	if err != nil {
		s.logger.Warn("Report extraction failed", zap.Int("text_length", len(text)), zap.Error(err))
		return nil, err
	}
	// 抽取完成后再检查一次，取消的请求不落库
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.ingest(ctx, raw, keywords)
}

func (s *reportService) IngestEntries(ctx context.Context, entries []any) (*IngestResponse, error) {
	if len(entries) == 0 {
		return nil, domain.ErrEmptyInput
	}
	return s.ingest(ctx, entries, s.keywords.List())
}

func (s *reportService) ingest(ctx context.Context, raw []any, keywords []string) (*IngestResponse, error) {
	result := s.validator.Validate(raw, keywords)
	for _, rej := range result.Rejected {
		s.logger.Info("Report entry rejected", zap.Int("index", rej.Index), zap.String("reason", rej.Reason))
	}

	resp := &IngestResponse{
		IngestResult: coordinator.IngestResult{Records: []domain.ReportRecord{}},
		Rejected:     result.Rejected,
	}
	if resp.Rejected == nil {
		resp.Rejected = []domain.Rejection{}
	}
	if len(result.Valid) == 0 {
		return resp, nil
	}

	merged, err := s.coord.Ingest(ctx, result.Valid, keywords)
	if err != nil {
		return nil, err
	}
	resp.IngestResult = merged
	return resp, nil
}

// view 当前记录集的过滤视图，按日期降序
func (s *reportService) view(criteria query.Criteria) []domain.ReportRecord {
	return query.SortByDateDesc(query.Filter(s.coord.Records(), criteria))
}

func (s *reportService) List(criteria query.Criteria) []domain.ReportRecord {
	return s.view(criteria)
}

func (s *reportService) Matrix(criteria query.Criteria) aggregator.Matrix {
	return aggregator.BuildMatrix(s.view(criteria), s.validator.Catalog())
}

func (s *reportService) Stats(criteria query.Criteria) aggregator.Stats {
	return aggregator.BuildStats(s.view(criteria), s.validator.Catalog())
}

func (s *reportService) Export(criteria query.Criteria, format export.Format, layout export.Layout) (export.File, error) {
	records := s.view(criteria)
	file, err := export.Build(records, s.validator.Catalog(), criteria, format, layout, s.now())
	if err != nil {
		return export.File{}, err
	}
	s.logger.Info("Reports exported",
		zap.String("file_name", file.Name),
		zap.Int("record_count", len(records)),
		zap.Int("bytes", len(file.Data)),
	)
	return file, nil
}

func (s *reportService) Delete(ctx context.Context, req DeleteReportRequest) error {
	if req.ID == "" {
		return fmt.Errorf("report id is required: %w", domain.ErrEmptyInput)
	}
	return s.coord.Delete(ctx, req.ID, req.Passphrase)
}

func (s *reportService) Clear(ctx context.Context, req ClearReportsRequest) error {
	return s.coord.Clear(ctx, req.Confirm, req.Passphrase)
}

func (s *reportService) Refresh(ctx context.Context) error {
	return s.coord.Refresh(ctx)
}

func (s *reportService) Status() coordinator.Status {
	return s.coord.Status()
}

func (s *reportService) Keywords() []string {
	return s.keywords.List()
}

func (s *reportService) AddKeyword(keyword string) (bool, error) {
	added, err := s.keywords.Add(keyword)
	if err != nil {
		return false, err
	}
	if added {
		s.logger.Info("Keyword added", zap.String("keyword", strings.TrimSpace(keyword)))
	}
	return added, nil
}

func (s *reportService) RemoveKeyword(keyword string) bool {
	removed := s.keywords.Remove(keyword)
	if removed {
		s.logger.Info("Keyword removed", zap.String("keyword", strings.TrimSpace(keyword)))
	}
	return removed
}

func (s *reportService) Departments() []string {
	return append([]string{}, s.validator.Catalog().Departments...)
}
