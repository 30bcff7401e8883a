// Package identity 员工身份归并
//
// 同一个人在不同日报里的署名可能是 "李静"、"李静 Lijing"、"李静（水产）"。
// 这里用姓名中的汉字子序列作为归并键，属于启发式规则：
// 两个不同的人如果汉字姓名完全相同会被错误合并。
package identity

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CanonicalKey 计算归并键：姓名中所有汉字按原顺序拼接
// 不含汉字时回落为去掉首尾空白的完整姓名
func CanonicalKey(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.Is(unicode.Han, r) {
			b.WriteRune(r)
		}
	}
	if b.Len() > 0 {
		return b.String()
	}
	return strings.TrimSpace(name)
}

// MergeDisplayName 在已有展示名和新观察到的变体之间选择更长的一个
// 长度按 trim 后的字符数计算，等长时保留已有的（先出现者）
func MergeDisplayName(existing, candidate string) string {
	e := strings.TrimSpace(existing)
	c := strings.TrimSpace(candidate)
	if e == "" {
		return c
	}
	if utf8.RuneCountInString(c) > utf8.RuneCountInString(e) {
		return c
	}
	return e
}

// Identity 归并后的身份
type Identity struct {
	Key         string // 归并键
	DisplayName string // 观察到的最长变体
	FirstSeen   int    // 首次出现的序号
}

// Resolver 单次聚合过程中的身份表，不跨快照缓存
type Resolver struct {
	byKey map[string]*Identity
	order []string
}

// NewResolver 创建空身份表
func NewResolver() *Resolver {
	return &Resolver{byKey: make(map[string]*Identity)}
}

// Observe 记录一次姓名出现，返回归并键
func (r *Resolver) Observe(name string) string {
	key := CanonicalKey(name)
	if id, ok := r.byKey[key]; ok {
		id.DisplayName = MergeDisplayName(id.DisplayName, name)
		return key
	}
	r.byKey[key] = &Identity{
		Key:         key,
		DisplayName: strings.TrimSpace(name),
		FirstSeen:   len(r.order),
	}
	r.order = append(r.order, key)
	return key
}

// DisplayName 返回归并键对应的展示名，未知键原样返回
func (r *Resolver) DisplayName(key string) string {
	if id, ok := r.byKey[key]; ok {
		return id.DisplayName
	}
	return key
}

// Identities 按首次出现顺序返回所有身份
func (r *Resolver) Identities() []Identity {
	out := make([]Identity, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, *r.byKey[key])
	}
	return out
}

// Len 身份数量
func (r *Resolver) Len() int {
	return len(r.order)
}
