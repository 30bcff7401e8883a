package query

import (
	"testing"

	"teamreport/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func records() []domain.ReportRecord {
	return []domain.ReportRecord{
		{ID: "1", EmployeeName: "李静", Date: "2024-01-05", Department: "蔬果", Content: "盘点", MatchedKeywords: []string{}},
		{ID: "2", EmployeeName: "王强", Date: "2024-01-06", Department: "水产", Content: "处理客诉", MatchedKeywords: []string{"客诉"}},
		{ID: "3", EmployeeName: "赵六", Date: "2024-01-07", Department: "仓库", Content: "收货", Blockers: "叉车故障", MatchedKeywords: []string{}},
		{ID: "4", EmployeeName: "孙七", Date: "2024-01-06", Department: "蔬果", Content: "补货", MatchedKeywords: []string{"补货"}},
	}
}

func ids(rs []domain.ReportRecord) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestFilter_InclusiveBounds(t *testing.T) {
	got := Filter(records(), Criteria{DateStart: "2024-01-06", DateEnd: "2024-01-06"})
	assert.Equal(t, []string{"2", "4"}, ids(got))

	got = Filter(records(), Criteria{DateStart: "2024-01-06"})
	assert.Equal(t, []string{"2", "3", "4"}, ids(got))

	got = Filter(records(), Criteria{DateEnd: "2024-01-05"})
	assert.Equal(t, []string{"1"}, ids(got))
}

func TestFilter_ZeroCriteriaReturnsAll(t *testing.T) {
	c := Criteria{}
	assert.True(t, c.IsZero())
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(Filter(records(), c)))
}

func TestFilter_Composition(t *testing.T) {
	got := Filter(records(), Criteria{OnlyMatchedKeywords: true})
	assert.Equal(t, []string{"2", "4"}, ids(got))

	got = Filter(records(), Criteria{OnlyMatchedKeywords: true, Departments: []string{"蔬果"}})
	assert.Equal(t, []string{"4"}, ids(got))

	got = Filter(records(), Criteria{Text: "叉车"})
	assert.Equal(t, []string{"3"}, ids(got))

	got = Filter(records(), Criteria{Text: "李静", DateStart: "2024-01-06"})
	assert.Empty(t, got)
}

func TestFilter_Idempotent(t *testing.T) {
	c := Criteria{DateStart: "2024-01-05", DateEnd: "2024-01-06", Departments: []string{"蔬果", "水产"}}
	once := Filter(records(), c)
	twice := Filter(once, c)
	assert.Equal(t, once, twice)
}

func TestFilter_DoesNotMutateSource(t *testing.T) {
	src := records()
	got := Filter(src, Criteria{OnlyMatchedKeywords: true})
	require.NotEmpty(t, got)
	got[0].MatchedKeywords[0] = "changed"
	got[0].Content = "changed"
	assert.Equal(t, records(), src)
}

func TestSortByDateDesc_Stable(t *testing.T) {
	got := SortByDateDesc(records())
	assert.Equal(t, []string{"3", "2", "4", "1"}, ids(got))
	assert.Empty(t, SortByDateDesc(nil))
}
