// Package query 在记录快照上做日期区间、关键词、部门和文本过滤
package query

import (
	"sort"
	"strings"

	"teamreport/internal/domain"
)

// Criteria 过滤条件，零值字段表示不过滤；各条件之间为 AND
type Criteria struct {
	DateStart           string   `json:"dateStart,omitempty"` // 含当天
	DateEnd             string   `json:"dateEnd,omitempty"`   // 含当天
	OnlyMatchedKeywords bool     `json:"onlyMatchedKeywords,omitempty"`
	Departments         []string `json:"departments,omitempty"`
	Text                string   `json:"text,omitempty"` // 姓名或正文子串
}

// IsZero 是否未设置任何条件
func (c Criteria) IsZero() bool {
	return c.DateStart == "" && c.DateEnd == "" && !c.OnlyMatchedKeywords &&
		len(c.Departments) == 0 && c.Text == ""
}

// Match 单条记录是否满足条件
func (c Criteria) Match(r domain.ReportRecord) bool {
	// 日期为 YYYY-MM-DD，字符串比较即可
	if c.DateStart != "" && r.Date < c.DateStart {
		return false
	}
	if c.DateEnd != "" && r.Date > c.DateEnd {
		return false
	}
	if c.OnlyMatchedKeywords && !r.HasKeywords() {
		return false
	}
	if len(c.Departments) > 0 && !containsString(c.Departments, r.Department) {
		return false
	}
	if c.Text != "" {
		if !strings.Contains(r.EmployeeName, c.Text) &&
			!strings.Contains(r.Content, c.Text) &&
			!strings.Contains(r.NextSteps, c.Text) &&
			!strings.Contains(r.Blockers, c.Text) {
			return false
		}
	}
	return true
}

// Filter 返回满足条件的新切片，保持输入的相对顺序，不修改输入
func Filter(records []domain.ReportRecord, c Criteria) []domain.ReportRecord {
	out := make([]domain.ReportRecord, 0, len(records))
	for _, r := range records {
		if c.Match(r) {
			out = append(out, r.Clone())
		}
	}
	return out
}

// SortByDateDesc 按日期降序稳定排序（同日保持插入顺序），返回新切片
func SortByDateDesc(records []domain.ReportRecord) []domain.ReportRecord {
	out := domain.CloneRecords(records)
	if out == nil {
		out = []domain.ReportRecord{}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
