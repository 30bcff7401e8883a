package domain

import "strings"

// DefaultDepartments 默认部门枚举（声明顺序即展示顺序）
var DefaultDepartments = []string{"蔬果", "水产", "肉品冻品", "熟食", "烘焙", "食百", "后勤", "仓库"}

// DefaultDepartment 无法分类时的兜底部门
const DefaultDepartment = "后勤"

// DefaultAliases 旧版分类到当前枚举的映射
var DefaultAliases = map[string]string{
	"水产肉品": "水产",
	"熟食冻品": "熟食",
}

// Catalog 部门枚举配置
type Catalog struct {
	Departments []string
	Default     string
	Aliases     map[string]string
}

// NewCatalog 创建部门目录，default 不在枚举中时追加到末尾
func NewCatalog(departments []string, def string, aliases map[string]string) Catalog {
	c := Catalog{
		Departments: append([]string(nil), departments...),
		Default:     def,
		Aliases:     aliases,
	}
	if c.Default != "" && c.Index(c.Default) < 0 {
		c.Departments = append(c.Departments, c.Default)
	}
	return c
}

// DefaultCatalog 默认部门目录
func DefaultCatalog() Catalog {
	return NewCatalog(DefaultDepartments, DefaultDepartment, DefaultAliases)
}

// Index 部门在枚举中的位置，不存在返回 -1
func (c Catalog) Index(dept string) int {
	for i, d := range c.Departments {
		if d == dept {
			return i
		}
	}
	return -1
}

// Contains 是否为合法枚举值
func (c Catalog) Contains(dept string) bool {
	return c.Index(dept) >= 0
}

// Resolve 将任意分类文本映射到枚举值
// 返回 false 表示未识别，已回落到默认部门
func (c Catalog) Resolve(dept string) (string, bool) {
	d := strings.TrimSpace(dept)
	if c.Contains(d) {
		return d, true
	}
	if alias, ok := c.Aliases[d]; ok && c.Contains(alias) {
		return alias, true
	}
	return c.Default, false
}

// Normalize 只返回映射后的部门
func (c Catalog) Normalize(dept string) string {
	d, _ := c.Resolve(dept)
	return d
}
