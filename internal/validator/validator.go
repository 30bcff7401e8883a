package validator

import (
	"fmt"
	"strings"
	"time"

	"teamreport/internal/domain"
)

// Result 校验结果：合法记录 + 拒绝明细
type Result struct {
	Valid    []domain.ReportRecord `json:"valid"`
	Rejected []domain.Rejection    `json:"rejected"`
}

// Validator 将抽取服务返回的原始条目校验并规范化为 ReportRecord
// 不修改任何外部状态，单条失败不影响其他条目
type Validator struct {
	catalog domain.Catalog
	now     func() time.Time
}

// Option 校验器选项
type Option func(*Validator)

// WithClock 注入时钟（用于补全缺失年份）
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// New 创建校验器
func New(catalog domain.Catalog, opts ...Option) *Validator {
	v := &Validator{
		catalog: catalog,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Catalog 当前部门目录
func (v *Validator) Catalog() domain.Catalog {
	return v.catalog
}

// Validate 校验一批原始条目
// keywords 为当前配置的关键词（顺序即输出顺序）
func (v *Validator) Validate(raw []any, keywords []string) Result {
	res := Result{
		Valid:    make([]domain.ReportRecord, 0, len(raw)),
		Rejected: []domain.Rejection{},
	}
	now := v.now()
	for i, entry := range raw {
		rec, err := v.validateOne(entry, keywords, now)
		if err != nil {
			res.Rejected = append(res.Rejected, domain.Rejection{
				Index:  i,
				Entry:  entry,
				Reason: err.Error(),
			})
			continue
		}
		res.Valid = append(res.Valid, rec)
	}
	return res
}

func (v *Validator) validateOne(entry any, keywords []string, now time.Time) (domain.ReportRecord, error) {
	fields, err := asObject(entry)
	if err != nil {
		return domain.ReportRecord{}, err
	}

	name, err := stringField(fields, "employeeName", "name")
	if err != nil {
		return domain.ReportRecord{}, err
	}
	if strings.TrimSpace(name) == "" {
		return domain.ReportRecord{}, fmt.Errorf("employeeName is required")
	}

	rawDate, err := stringField(fields, "date", "reportDate")
	if err != nil {
		return domain.ReportRecord{}, err
	}
	date, err := ParseDate(rawDate, now)
	if err != nil {
		return domain.ReportRecord{}, err
	}

	// 部门无法识别不是致命错误，回落到默认部门
	dept, _ := stringField(fields, "department")
	department := v.catalog.Normalize(dept)

	// 文本字段原样透传，不做 trim
	content, err := stringField(fields, "content", "contentSummary")
	if err != nil {
		return domain.ReportRecord{}, err
	}
	nextSteps, err := stringField(fields, "nextSteps")
	if err != nil {
		return domain.ReportRecord{}, err
	}
	blockers, err := stringField(fields, "blockers")
	if err != nil {
		return domain.ReportRecord{}, err
	}

	// 条目中的 id 不可信，ID 由存储分配
	return domain.ReportRecord{
		EmployeeName:    name,
		Date:            date,
		Department:      department,
		Content:         content,
		NextSteps:       nextSteps,
		Blockers:        blockers,
		MatchedKeywords: MatchKeywords(keywords, content, nextSteps, blockers),
	}, nil
}

// Repair 校正从后端加载的记录（旧版快照、外部写入）：日期转为 YYYY-MM-DD，部门映射到枚举
// 姓名为空或日期无法解析时返回错误，调用方应丢弃该记录；文本字段和关键词不变
func (v *Validator) Repair(r domain.ReportRecord) (domain.ReportRecord, error) {
	out := r.Clone()
	if strings.TrimSpace(out.EmployeeName) == "" {
		return out, fmt.Errorf("employeeName is required")
	}
	if !IsCanonicalDate(out.Date) {
		date, err := ParseDate(out.Date, v.now())
		if err != nil {
			return out, err
		}
		out.Date = date
	}
	out.Department = v.catalog.Normalize(out.Department)
	if out.MatchedKeywords == nil {
		out.MatchedKeywords = []string{}
	}
	return out, nil
}

// MatchKeywords 按配置顺序返回在文本中出现的关键词（区分大小写的子串匹配）
// 抽取服务给出的关键词不被信任，始终以扫描结果为准
func MatchKeywords(keywords []string, texts ...string) []string {
	haystack := strings.Join(texts, "\n")
	matched := []string{}
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		if strings.Contains(haystack, kw) {
			seen[kw] = struct{}{}
			matched = append(matched, kw)
		}
	}
	return matched
}

func asObject(entry any) (map[string]any, error) {
	switch e := entry.(type) {
	case map[string]any:
		return e, nil
	case map[string]string:
		out := make(map[string]any, len(e))
		for k, val := range e {
			out[k] = val
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("entry is null")
	default:
		return nil, fmt.Errorf("entry is not an object (%T)", entry)
	}
}

// stringField 依次查找 keys，返回第一个存在的字段
// 字段缺失或为 null 视为空串；非字符串类型返回错误
func stringField(fields map[string]any, keys ...string) (string, error) {
	for _, key := range keys {
		val, ok := fields[key]
		if !ok || val == nil {
			continue
		}
		s, ok := val.(string)
		if !ok {
			return "", fmt.Errorf("field %s must be a string, got %T", key, val)
		}
		return s, nil
	}
	return "", nil
}
