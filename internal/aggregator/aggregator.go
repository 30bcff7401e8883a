// Package aggregator 从记录快照推导矩阵、部门分布和人员工作量视图
// 所有函数都是纯函数，不修改输入
package aggregator

import (
	"sort"

	"teamreport/internal/domain"
	"teamreport/internal/identity"
)

// Entry 矩阵单元格中的一条日报
type Entry struct {
	ReportID    string `json:"reportId"`
	DisplayName string `json:"displayName"`
	Content     string `json:"content"`
	NextSteps   string `json:"nextSteps,omitempty"`
	Blockers    string `json:"blockers,omitempty"`
}

// Cell 某日某部门的单元格；Missing 为 true 表示当天该部门无人提交
type Cell struct {
	Department string  `json:"department"`
	Missing    bool    `json:"missing"`
	Entries    []Entry `json:"entries"`
}

// Row 某一天的矩阵行，Cells 与部门枚举一一对应
type Row struct {
	Date  string `json:"date"`
	Cells []Cell `json:"cells"`
}

// Matrix 日期 × 部门矩阵
type Matrix struct {
	Departments []string `json:"departments"`
	Rows        []Row    `json:"rows"`
}

// DepartmentCount 部门分布
type DepartmentCount struct {
	Department string `json:"department"`
	Count      int    `json:"count"`
}

// PersonCount 人员工作量
type PersonCount struct {
	Key         string `json:"key"`
	DisplayName string `json:"displayName"`
	Count       int    `json:"count"`
}

// Stats 仪表盘统计
type Stats struct {
	Total       int               `json:"total"`
	Matched     int               `json:"matched"`
	Departments []DepartmentCount `json:"departments"`
	Workload    []PersonCount     `json:"workload"`
	Dates       int               `json:"dates"`
	People      int               `json:"people"`
}

// BuildMatrix 构建矩阵：行按日期降序，列按部门声明顺序
// 不在枚举中的部门归入默认部门
func BuildMatrix(records []domain.ReportRecord, catalog domain.Catalog) Matrix {
	resolver := identity.NewResolver()
	for _, r := range records {
		resolver.Observe(r.EmployeeName)
	}

	byDate := make(map[string][][]Entry)
	dates := make([]string, 0)
	for _, r := range records {
		cells, ok := byDate[r.Date]
		if !ok {
			cells = make([][]Entry, len(catalog.Departments))
			byDate[r.Date] = cells
			dates = append(dates, r.Date)
		}
		idx := catalog.Index(catalog.Normalize(r.Department))
		if idx < 0 {
			continue
		}
		cells[idx] = append(cells[idx], Entry{
			ReportID:    r.ID,
			DisplayName: resolver.DisplayName(identity.CanonicalKey(r.EmployeeName)),
			Content:     r.Content,
			NextSteps:   r.NextSteps,
			Blockers:    r.Blockers,
		})
	}

	// YYYY-MM-DD 的字符串序即时间序
	sort.SliceStable(dates, func(i, j int) bool { return dates[i] > dates[j] })

	m := Matrix{
		Departments: append([]string(nil), catalog.Departments...),
		Rows:        make([]Row, 0, len(dates)),
	}
	for _, d := range dates {
		cells := byDate[d]
		row := Row{Date: d, Cells: make([]Cell, len(catalog.Departments))}
		for i, dept := range catalog.Departments {
			row.Cells[i] = Cell{
				Department: dept,
				Missing:    len(cells[i]) == 0,
				Entries:    cells[i],
			}
			if row.Cells[i].Entries == nil {
				row.Cells[i].Entries = []Entry{}
			}
		}
		m.Rows = append(m.Rows, row)
	}
	return m
}

// EntryCount 矩阵中的条目总数
func (m Matrix) EntryCount() int {
	n := 0
	for _, row := range m.Rows {
		for _, c := range row.Cells {
			n += len(c.Entries)
		}
	}
	return n
}

// DepartmentDistribution 各部门记录数，降序；同数按枚举顺序
// 只返回出现过的部门
func DepartmentDistribution(records []domain.ReportRecord, catalog domain.Catalog) []DepartmentCount {
	counts := make([]int, len(catalog.Departments))
	for _, r := range records {
		if idx := catalog.Index(catalog.Normalize(r.Department)); idx >= 0 {
			counts[idx]++
		}
	}

	out := make([]DepartmentCount, 0, len(counts))
	for i, dept := range catalog.Departments {
		if counts[i] > 0 {
			out = append(out, DepartmentCount{Department: dept, Count: counts[i]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// Workload 每个归并身份的记录数，降序；同数按首次出现顺序
func Workload(records []domain.ReportRecord) []PersonCount {
	resolver := identity.NewResolver()
	counts := make(map[string]int)
	for _, r := range records {
		counts[resolver.Observe(r.EmployeeName)]++
	}

	ids := resolver.Identities()
	out := make([]PersonCount, 0, len(ids))
	for _, id := range ids {
		out = append(out, PersonCount{
			Key:         id.Key,
			DisplayName: id.DisplayName,
			Count:       counts[id.Key],
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// BuildStats 汇总仪表盘统计
func BuildStats(records []domain.ReportRecord, catalog domain.Catalog) Stats {
	dates := make(map[string]struct{})
	matched := 0
	for _, r := range records {
		dates[r.Date] = struct{}{}
		if r.HasKeywords() {
			matched++
		}
	}
	workload := Workload(records)
	return Stats{
		Total:       len(records),
		Matched:     matched,
		Departments: DepartmentDistribution(records, catalog),
		Workload:    workload,
		Dates:       len(dates),
		People:      len(workload),
	}
}
