package aggregator

import (
	"testing"

	"teamreport/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id, name, date, dept, content string) domain.ReportRecord {
	return domain.ReportRecord{
		ID:              id,
		EmployeeName:    name,
		Date:            date,
		Department:      dept,
		Content:         content,
		MatchedKeywords: []string{},
	}
}

func sampleRecords() []domain.ReportRecord {
	return []domain.ReportRecord{
		rec("1", "李静", "2024-01-05", "蔬果", "a"),
		rec("2", "王强", "2024-01-06", "水产", "b"),
		rec("3", "李静 Lijing", "2024-01-06", "蔬果", "c"),
		rec("4", "赵六", "2024-01-05", "仓库", "d"),
		rec("5", "孙七", "2024-01-05", "市场部", "e"),
	}
}

func TestBuildMatrix_OrderingAndMissing(t *testing.T) {
	catalog := domain.DefaultCatalog()
	m := BuildMatrix(sampleRecords(), catalog)

	require.Len(t, m.Rows, 2)
	assert.Equal(t, "2024-01-06", m.Rows[0].Date)
	assert.Equal(t, "2024-01-05", m.Rows[1].Date)
	assert.Equal(t, catalog.Departments, m.Departments)

	for _, row := range m.Rows {
		require.Len(t, row.Cells, len(catalog.Departments))
		for i, cell := range row.Cells {
			assert.Equal(t, catalog.Departments[i], cell.Department)
		}
	}

	// 2024-01-05 无水产记录，必须显式标记为缺
	shuichan := m.Rows[1].Cells[catalog.Index("水产")]
	assert.True(t, shuichan.Missing)
	assert.Empty(t, shuichan.Entries)

	// 未知部门落入默认部门
	houqin := m.Rows[1].Cells[catalog.Index(domain.DefaultDepartment)]
	require.Len(t, houqin.Entries, 1)
	assert.Equal(t, "5", houqin.Entries[0].ReportID)

	// 展示名取最长变体
	shuguo := m.Rows[1].Cells[catalog.Index("蔬果")]
	require.Len(t, shuguo.Entries, 1)
	assert.Equal(t, "李静 Lijing", shuguo.Entries[0].DisplayName)
}

func TestBuildMatrix_MultipleEntriesPerCell(t *testing.T) {
	catalog := domain.DefaultCatalog()
	records := []domain.ReportRecord{
		rec("1", "甲", "2024-01-05", "熟食", "x"),
		rec("2", "乙", "2024-01-05", "熟食", "y"),
	}
	m := BuildMatrix(records, catalog)
	require.Len(t, m.Rows, 1)
	cell := m.Rows[0].Cells[catalog.Index("熟食")]
	assert.False(t, cell.Missing)
	require.Len(t, cell.Entries, 2)
	assert.Equal(t, "1", cell.Entries[0].ReportID)
	assert.Equal(t, "2", cell.Entries[1].ReportID)
}

func TestBuildMatrix_Empty(t *testing.T) {
	m := BuildMatrix(nil, domain.DefaultCatalog())
	assert.Empty(t, m.Rows)
	assert.Equal(t, 0, m.EntryCount())
}

func TestDepartmentDistribution(t *testing.T) {
	catalog := domain.DefaultCatalog()
	records := append(sampleRecords(), rec("6", "周八", "2024-01-07", "仓库", "f"))
	dist := DepartmentDistribution(records, catalog)

	// 蔬果 2、仓库 2（枚举顺序蔬果在前），水产 1、后勤 1（水产在前）
	assert.Equal(t, []DepartmentCount{
		{Department: "蔬果", Count: 2},
		{Department: "仓库", Count: 2},
		{Department: "水产", Count: 1},
		{Department: "后勤", Count: 1},
	}, dist)
}

func TestWorkload(t *testing.T) {
	records := []domain.ReportRecord{
		rec("1", "王强", "2024-01-04", "水产", "a"),
		rec("2", "李静", "2024-01-05", "蔬果", "b"),
		rec("3", "李静 Lijing", "2024-01-06", "蔬果", "c"),
		rec("4", "赵六", "2024-01-06", "仓库", "d"),
		rec("5", "王强", "2024-01-06", "水产", "e"),
	}
	w := Workload(records)
	require.Len(t, w, 3)
	// 王强与李静都是 2 条，王强先出现
	assert.Equal(t, PersonCount{Key: "王强", DisplayName: "王强", Count: 2}, w[0])
	assert.Equal(t, PersonCount{Key: "李静", DisplayName: "李静 Lijing", Count: 2}, w[1])
	assert.Equal(t, PersonCount{Key: "赵六", DisplayName: "赵六", Count: 1}, w[2])
}

func TestViews_SumInvariant(t *testing.T) {
	catalog := domain.DefaultCatalog()
	records := sampleRecords()
	records = append(records,
		rec("6", "Tom", "2023-12-31", "", "g"),
		rec("7", "李静", "2024-01-05", "水产肉品", "h"),
	)

	m := BuildMatrix(records, catalog)
	dist := DepartmentDistribution(records, catalog)
	w := Workload(records)

	sumDist := 0
	for _, d := range dist {
		sumDist += d.Count
	}
	sumWork := 0
	for _, p := range w {
		sumWork += p.Count
	}

	assert.Equal(t, len(records), m.EntryCount())
	assert.Equal(t, len(records), sumDist)
	assert.Equal(t, len(records), sumWork)
}

func TestBuildMatrix_DoesNotMutateInput(t *testing.T) {
	records := sampleRecords()
	before := domain.CloneRecords(records)
	_ = BuildMatrix(records, domain.DefaultCatalog())
	_ = BuildStats(records, domain.DefaultCatalog())
	assert.Equal(t, before, records)
}

func TestBuildStats(t *testing.T) {
	records := sampleRecords()
	records[0].MatchedKeywords = []string{"客诉"}
	s := BuildStats(records, domain.DefaultCatalog())
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 1, s.Matched)
	assert.Equal(t, 2, s.Dates)
	assert.Equal(t, 4, s.People)
}
