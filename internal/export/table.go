// Package export 把记录集渲染为 XLSX / CSV 文件
//
// 两种版式：matrix（每天一行、每个部门一列，无人提交的单元格标记“缺”）
// 和 flat（每条记录一行）。正文原样写出，不做任何改写。
package export

import (
	"fmt"
	"strings"

	"teamreport/internal/aggregator"
	"teamreport/internal/domain"
)

// Format 文件格式
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// Layout 表格版式
type Layout string

const (
	LayoutMatrix Layout = "matrix"
	LayoutFlat   Layout = "flat"
)

const (
	// MissingMarker 当天该部门无人提交
	MissingMarker = "缺"
	// EntrySeparator 同一单元格内多人日报之间的分隔
	EntrySeparator = "\n\n-------------------\n\n"

	dateHeader = "日期"
)

// FlatHeader flat 版式表头
var FlatHeader = []string{
	"Department",
	"Employee Name",
	"Date",
	"Content",
	"Next Steps",
	"Blockers",
	"Keywords",
}

// ParseFormat 解析文件格式，空值为 xlsx
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ParseLayout 解析版式，空值为 matrix
func ParseLayout(s string) (Layout, error) {
	switch Layout(strings.ToLower(strings.TrimSpace(s))) {
	case "", LayoutMatrix:
		return LayoutMatrix, nil
	case LayoutFlat:
		return LayoutFlat, nil
	default:
		return "", fmt.Errorf("unsupported export layout %q", s)
	}
}

// ContentType HTTP 响应类型
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// table 与格式无关的二维表
type table struct {
	sheet   string
	headers []string
	rows    [][]string
	widths  []float64
}

// matrixTable 日期 × 部门
func matrixTable(m aggregator.Matrix) table {
	t := table{
		sheet:   "Daily Summary",
		headers: append([]string{dateHeader}, m.Departments...),
		rows:    make([][]string, 0, len(m.Rows)),
		widths:  []float64{15},
	}
	for range m.Departments {
		t.widths = append(t.widths, 30)
	}
	for _, row := range m.Rows {
		line := make([]string, 0, len(row.Cells)+1)
		line = append(line, row.Date)
		for _, cell := range row.Cells {
			line = append(line, cellText(cell))
		}
		t.rows = append(t.rows, line)
	}
	return t
}

func cellText(cell aggregator.Cell) string {
	if cell.Missing {
		return MissingMarker
	}
	parts := make([]string, 0, len(cell.Entries))
	for _, e := range cell.Entries {
		parts = append(parts, "【"+e.DisplayName+"】\n"+e.Content)
	}
	return strings.Join(parts, EntrySeparator)
}

// flatTable 每条记录一行
func flatTable(records []domain.ReportRecord) table {
	t := table{
		sheet:   "Reports",
		headers: FlatHeader,
		rows:    make([][]string, 0, len(records)),
		widths:  []float64{12, 15, 12, 50, 30, 30, 20},
	}
	for _, r := range records {
		t.rows = append(t.rows, []string{
			r.Department,
			r.EmployeeName,
			r.Date,
			r.Content,
			r.NextSteps,
			r.Blockers,
			strings.Join(r.MatchedKeywords, "; "),
		})
	}
	return t
}
