package service

import (
	"fmt"
	"strings"
	"sync"

	"teamreport/internal/domain"
)

// KeywordSet 运行时可修改的关注关键词，保持添加顺序
type KeywordSet struct {
	mu    sync.RWMutex
	items []string
}

// NewKeywordSet 以配置的关键词初始化，忽略空值和重复项
func NewKeywordSet(initial []string) *KeywordSet {
	k := &KeywordSet{items: []string{}}
	for _, kw := range initial {
		_, _ = k.Add(kw)
	}
	return k
}

// List 当前关键词拷贝
func (k *KeywordSet) List() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return append([]string{}, k.items...)
}

// Add 添加关键词（去除首尾空白）；已存在时返回 false
func (k *KeywordSet) Add(keyword string) (bool, error) {
	kw := strings.TrimSpace(keyword)
	if kw == "" {
		return false, fmt.Errorf("keyword is empty: %w", domain.ErrEmptyInput)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, existing := range k.items {
		if existing == kw {
			return false, nil
		}
	}
	k.items = append(k.items, kw)
	return true, nil
}

// Remove 删除关键词；不存在时返回 false
func (k *KeywordSet) Remove(keyword string) bool {
	kw := strings.TrimSpace(keyword)
	k.mu.Lock()
	defer k.mu.Unlock()
	for i, existing := range k.items {
		if existing == kw {
			k.items = append(k.items[:i:i], k.items[i+1:]...)
			return true
		}
	}
	return false
}
