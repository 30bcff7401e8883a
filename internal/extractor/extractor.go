// Package extractor 调用大模型把聊天记录拆分为逐人逐日的原始条目
// 返回的条目不可信，必须经过 validator 校验
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"teamreport/internal/domain"

	"go.uber.org/zap"
)

// Extractor 抽取接口
type Extractor interface {
	Extract(ctx context.Context, rawText string, keywords []string) ([]any, error)
}

// Prompt 一次抽取请求
type Prompt struct {
	System string
	User   string
}

// Generator 模型调用，返回 JSON 文本
type Generator interface {
	GenerateJSON(ctx context.Context, prompt Prompt) (string, error)
}

// LLMExtractor 基于 Generator 的抽取实现
type LLMExtractor struct {
	generator Generator
	catalog   domain.Catalog
	timeout   time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

var _ Extractor = (*LLMExtractor)(nil)

// NewLLMExtractor 创建抽取器
func NewLLMExtractor(generator Generator, catalog domain.Catalog, timeout time.Duration, logger *zap.Logger) *LLMExtractor {
	return &LLMExtractor{
		generator: generator,
		catalog:   catalog,
		timeout:   timeout,
		now:       time.Now,
		logger:    logger,
	}
}

// Extract 调用模型并解析为原始条目数组
// 模型失败或返回非法 JSON 时返回 *domain.ExtractionError
func (e *LLMExtractor) Extract(ctx context.Context, rawText string, keywords []string) ([]any, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, domain.ErrEmptyInput
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	prompt := Prompt{
		System: SystemInstruction(e.catalog),
		User:   UserPrompt(rawText, keywords, e.now()),
	}

	start := time.Now()
	text, err := e.generator.GenerateJSON(ctx, prompt)
	if err != nil {
		// 取消不算抽取失败
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		e.logger.Error("Extraction call failed", zap.Error(err))
		return nil, &domain.ExtractionError{Err: err}
	}

	entries, err := DecodeEntries(text)
	if err != nil {
		e.logger.Error("Extraction returned invalid JSON",
			zap.Int("response_bytes", len(text)),
			zap.Error(err),
		)
		return nil, &domain.ExtractionError{Err: err}
	}

	e.logger.Info("Extraction completed",
		zap.Int("entry_count", len(entries)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return entries, nil
}

// DecodeEntries 解析模型输出
// 接受 JSON 数组或 {"reports": [...]}，容忍 ```json 代码块包裹；空输出视为没有条目
func DecodeEntries(text string) ([]any, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if s == "" {
		return []any{}, nil
	}

	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}

	switch t := v.(type) {
	case []any:
		return t, nil
	case map[string]any:
		if reports, ok := t["reports"].([]any); ok {
			return reports, nil
		}
		// 单个对象当作一条
		return []any{t}, nil
	case nil:
		return []any{}, nil
	default:
		return nil, fmt.Errorf("response is %T, want array", v)
	}
}

// SystemInstruction 系统提示词
func SystemInstruction(catalog domain.Catalog) string {
	var b strings.Builder
	b.WriteString("You are an administrative assistant for a retail supermarket team.\n")
	b.WriteString("Split the pasted chat log into one entry per employee per day and return a JSON array.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("1. Do not translate. Copy text in its original language.\n")
	b.WriteString("2. Preserve every line break, blank line, indentation, numbering and bullet exactly as written.\n")
	b.WriteString("3. Classify each entry into exactly one department: ")
	b.WriteString(strings.Join(catalog.Departments, ", "))
	b.WriteString(fmt.Sprintf(". If it cannot be inferred, use %s.\n", catalog.Default))
	b.WriteString("4. reportDate is the date the report covers; write it as YYYY-MM-DD when the year is known.\n")
	b.WriteString("5. contentSummary is today's work, nextSteps is tomorrow's plan, blockers are problems.\n")
	b.WriteString("6. matchedKeywords lists the given keywords that appear in the entry.\n")
	return b.String()
}

// UserPrompt 用户提示词
func UserPrompt(rawText string, keywords []string, now time.Time) string {
	return fmt.Sprintf("Today: %s\nTarget keywords: [%s]\n\nRaw chat log:\n%s",
		now.Format("2006-01-02"),
		strings.Join(keywords, ", "),
		rawText,
	)
}
