package export

import (
	"fmt"
	"time"

	"teamreport/internal/aggregator"
	"teamreport/internal/domain"
	"teamreport/internal/query"
)

const fileNamePrefix = "dingtalk_reports"

// File 导出结果
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Render 渲染记录集；records 应为已过滤的视图
func Render(records []domain.ReportRecord, catalog domain.Catalog, format Format, layout Layout) ([]byte, error) {
	var t table
	switch layout {
	case LayoutMatrix:
		t = matrixTable(aggregator.BuildMatrix(records, catalog))
	case LayoutFlat:
		t = flatTable(query.SortByDateDesc(records))
	default:
		return nil, fmt.Errorf("unsupported export layout %q", layout)
	}

	switch format {
	case FormatXLSX:
		return writeXLSX(t)
	case FormatCSV:
		return writeCSV(t)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// Build 渲染并生成文件名
func Build(records []domain.ReportRecord, catalog domain.Catalog, criteria query.Criteria, format Format, layout Layout, now time.Time) (File, error) {
	data, err := Render(records, catalog, format, layout)
	if err != nil {
		return File{}, err
	}
	return File{
		Name:        FileName(criteria, format, layout, now),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

// FileName 文件名包含当前的日期过滤条件，未过滤时使用导出当天日期
//
//	dingtalk_reports_2024-01-01_2024-01-31.xlsx
//	dingtalk_reports_from_2024-01-01.csv
//	dingtalk_reports_until_2024-01-31_flat.csv
func FileName(c query.Criteria, format Format, layout Layout, now time.Time) string {
	var span string
	switch {
	case c.DateStart != "" && c.DateEnd != "":
		span = c.DateStart + "_" + c.DateEnd
	case c.DateStart != "":
		span = "from_" + c.DateStart
	case c.DateEnd != "":
		span = "until_" + c.DateEnd
	default:
		span = now.Format("2006-01-02")
	}
	name := fileNamePrefix + "_" + span
	if layout == LayoutFlat {
		name += "_flat"
	}
	return name + "." + string(format)
}
