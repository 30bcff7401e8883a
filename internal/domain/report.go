package domain

// ReportRecord 单人单日的日报记录（权威记录集中的最小单元）
// Content / NextSteps / Blockers 必须逐字保留原始换行、编号和空白
type ReportRecord struct {
	ID              string   `json:"id"`              // 由权威存储分配；持久化前可为临时 ID
	EmployeeName    string   `json:"employeeName"`    // 抽取得到的原始姓名
	Date            string   `json:"date"`            // YYYY-MM-DD
	Department      string   `json:"department"`      // 部门枚举值
	Content         string   `json:"content"`         // 今日工作
	NextSteps       string   `json:"nextSteps,omitempty"`
	Blockers        string   `json:"blockers,omitempty"`
	MatchedKeywords []string `json:"matchedKeywords"` // 命中的关键词（按配置顺序去重）
}

// Clone 深拷贝，避免切片在快照之间共享
func (r ReportRecord) Clone() ReportRecord {
	out := r
	if r.MatchedKeywords != nil {
		out.MatchedKeywords = make([]string, len(r.MatchedKeywords))
		copy(out.MatchedKeywords, r.MatchedKeywords)
	}
	return out
}

// HasKeywords 是否命中任意关键词
func (r ReportRecord) HasKeywords() bool {
	return len(r.MatchedKeywords) > 0
}

// CloneRecords 拷贝整个记录集
func CloneRecords(records []ReportRecord) []ReportRecord {
	if records == nil {
		return nil
	}
	out := make([]ReportRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// Rejection 校验未通过的抽取条目
type Rejection struct {
	Index  int    `json:"index"`  // 在抽取结果中的位置
	Entry  any    `json:"entry"`  // 原始条目
	Reason string `json:"reason"` // 拒绝原因
}
