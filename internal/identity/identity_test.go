package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalKey(t *testing.T) {
	cases := map[string]string{
		"李静":           "李静",
		"李静 Lijing":    "李静",
		" 李静（水产） ":     "李静水产",
		"Lijing":       "Lijing",
		"  Tom Smith ": "Tom Smith",
		"":             "",
	}
	for in, want := range cases {
		assert.Equal(t, want, CanonicalKey(in), in)
	}
}

func TestMergeDisplayName_LongestWins(t *testing.T) {
	assert.Equal(t, "李静 Lijing", MergeDisplayName("李静", "李静 Lijing"))
	assert.Equal(t, "李静 Lijing", MergeDisplayName("李静 Lijing", "李静"))
	// 等长保留先出现者
	assert.Equal(t, "李静", MergeDisplayName("李静", "李靜"))
	// 按 trim 后长度比较
	assert.Equal(t, "李静", MergeDisplayName("李静", "  李  "))
	assert.Equal(t, "王强", MergeDisplayName("", " 王强 "))
}

func TestResolver_GroupsVariants(t *testing.T) {
	r := NewResolver()
	k1 := r.Observe("李静")
	k2 := r.Observe("李静 Lijing")
	k3 := r.Observe("王强")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Equal(t, "李静 Lijing", r.DisplayName(k1))

	ids := r.Identities()
	require.Len(t, ids, 2)
	assert.Equal(t, "李静", ids[0].Key)
	assert.Equal(t, 0, ids[0].FirstSeen)
	assert.Equal(t, "王强", ids[1].Key)
	assert.Equal(t, 1, ids[1].FirstSeen)
}

// 已知的误合并：不同的人汉字姓名相同时会被归为同一身份
func TestResolver_FalseMergeOnSameHanName(t *testing.T) {
	r := NewResolver()
	a := r.Observe("张伟 (蔬果)")
	b := r.Observe("张伟 (仓库)")

	assert.Equal(t, "张伟蔬果", a)
	assert.Equal(t, "张伟仓库", b)

	c := r.Observe("张伟 Wei A")
	d := r.Observe("张伟 Wei B")
	assert.Equal(t, c, d, "same Han name collapses into one identity")
	assert.Equal(t, 3, r.Len())
}

func TestResolver_UnknownKey(t *testing.T) {
	r := NewResolver()
	assert.Equal(t, "nobody", r.DisplayName("nobody"))
}
