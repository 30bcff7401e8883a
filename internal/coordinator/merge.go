package coordinator

import (
	"strings"

	"teamreport/internal/domain"
	"teamreport/internal/identity"
)

// mergeKey 同一人同一天
type mergeKey struct {
	person string
	date   string
}

func keyOf(r domain.ReportRecord) mergeKey {
	return mergeKey{person: identity.CanonicalKey(r.EmployeeName), date: r.Date}
}

// mergedRecord 与已有记录合并后的结果
type mergedRecord struct {
	previousID string
	record     domain.ReportRecord
}

// mergePlan 一次接入对记录集的变更
type mergePlan struct {
	created    []domain.ReportRecord // 全新记录（批内顺序）
	merged     []mergedRecord        // 追加到已有记录（批内顺序）
	front      []domain.ReportRecord // 本批结果，按批内顺序置于最前
	rest       []domain.ReportRecord // 未受影响的已有记录，保持原顺序
	duplicates int                   // 重复粘贴被丢弃的条目数
}

// next 合并后的完整记录集
func (p mergePlan) next() []domain.ReportRecord {
	out := make([]domain.ReportRecord, 0, len(p.front)+len(p.rest))
	out = append(out, p.front...)
	out = append(out, p.rest...)
	return out
}

func (p mergePlan) empty() bool {
	return len(p.front) == 0
}

// planMerge 计算 incoming 合入 current 的结果
// 批内同人同日先折叠；与已有记录同人同日时，内容重复则视为重复粘贴，否则追加到已有记录
// 新建记录不带 ID，由持久化策略分配
func planMerge(current, incoming []domain.ReportRecord, keywords []string) mergePlan {
	plan := mergePlan{}

	// 批内折叠
	folded := make([]domain.ReportRecord, 0, len(incoming))
	foldIdx := make(map[mergeKey]int, len(incoming))
	for _, r := range incoming {
		k := keyOf(r)
		if i, ok := foldIdx[k]; ok {
			if repeatsText(folded[i], r) {
				plan.duplicates++
				continue
			}
			folded[i] = appendWithin(folded[i], r, keywords)
			continue
		}
		foldIdx[k] = len(folded)
		fresh := r.Clone()
		fresh.ID = ""
		folded = append(folded, fresh)
	}

	existingIdx := make(map[mergeKey]int, len(current))
	for i, r := range current {
		k := keyOf(r)
		if _, ok := existingIdx[k]; !ok {
			existingIdx[k] = i
		}
	}

	replaced := make(map[int]bool)
	for _, r := range folded {
		i, ok := existingIdx[keyOf(r)]
		if !ok {
			plan.created = append(plan.created, r)
			plan.front = append(plan.front, r)
			continue
		}
		if repeatsText(current[i], r) {
			plan.duplicates++
			continue
		}
		merged := appendWithin(current[i], r, keywords)
		replaced[i] = true
		plan.merged = append(plan.merged, mergedRecord{previousID: current[i].ID, record: merged})
		plan.front = append(plan.front, merged)
	}

	plan.rest = make([]domain.ReportRecord, 0, len(current))
	for i, r := range current {
		if !replaced[i] {
			plan.rest = append(plan.rest, r.Clone())
		}
	}
	return plan
}

// paragraphSep 合并追加时的段落分隔
const paragraphSep = "\n\n"

// repeatsText add 的每个文本字段都与 base 对应字段相同，或与之前合并进来的某一段相同
func repeatsText(base, add domain.ReportRecord) bool {
	return repeatsField(base.Content, add.Content) &&
		repeatsField(base.NextSteps, add.NextSteps) &&
		repeatsField(base.Blockers, add.Blockers)
}

// repeatsField 整体相等或等于以空行分隔的某一段；子串不算重复
func repeatsField(base, add string) bool {
	if add == "" || add == base {
		return true
	}
	for _, seg := range strings.Split(base, paragraphSep) {
		if seg == add {
			return true
		}
	}
	return false
}

// appendWithin 把 add 的文本追加到 base 之后（空行分隔），保留 base 的 ID 和部门
func appendWithin(base, add domain.ReportRecord, keywords []string) domain.ReportRecord {
	out := base.Clone()
	out.EmployeeName = identity.MergeDisplayName(base.EmployeeName, add.EmployeeName)
	out.Content = joinText(base.Content, add.Content)
	out.NextSteps = joinText(base.NextSteps, add.NextSteps)
	out.Blockers = joinText(base.Blockers, add.Blockers)
	out.MatchedKeywords = unionKeywords(keywords, base.MatchedKeywords, add.MatchedKeywords)
	return out
}

func joinText(base, add string) string {
	switch {
	case repeatsField(base, add):
		return base
	case base == "":
		return add
	default:
		return base + paragraphSep + add
	}
}

// unionKeywords 按配置顺序合并；不在当前配置中的旧关键词按首次出现顺序排在后面
func unionKeywords(order []string, lists ...[]string) []string {
	present := make(map[string]bool)
	var firstSeen []string
	for _, list := range lists {
		for _, kw := range list {
			if !present[kw] {
				present[kw] = true
				firstSeen = append(firstSeen, kw)
			}
		}
	}

	out := make([]string, 0, len(firstSeen))
	emitted := make(map[string]bool, len(firstSeen))
	for _, kw := range order {
		if present[kw] && !emitted[kw] {
			emitted[kw] = true
			out = append(out, kw)
		}
	}
	for _, kw := range firstSeen {
		if !emitted[kw] {
			emitted[kw] = true
			out = append(out, kw)
		}
	}
	return out
}

func withoutID(records []domain.ReportRecord, id string) ([]domain.ReportRecord, bool) {
	out := make([]domain.ReportRecord, 0, len(records))
	found := false
	for _, r := range records {
		if r.ID == id {
			found = true
			continue
		}
		out = append(out, r.Clone())
	}
	return out, found
}
