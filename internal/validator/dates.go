package validator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout 规范日期格式
const DateLayout = "2006-01-02"

var (
	// 2024-01-05 / 2024/1/5 / 2024.01.05 / 2024年1月5日，允许带时间后缀
	fullDateRe = regexp.MustCompile(`^(\d{4})\s*[-/.年]\s*(\d{1,2})\s*[-/.月]\s*(\d{1,2})\s*日?(?:[T\s].*)?$`)
	// 20240105
	compactDateRe = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
	// 1-5 / 1/5 / 1.5 / 1月5日（缺年份）
	shortDateRe = regexp.MustCompile(`^(\d{1,2})\s*[-/.月]\s*(\d{1,2})\s*日?$`)
)

// ParseDate 将抽取得到的日期文本解析为 YYYY-MM-DD
// 缺少年份时使用 now 所在年份；非法日历日期（如 2024-02-30）返回错误
func ParseDate(raw string, now time.Time) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("date is empty")
	}

	var year, month, day string
	if m := fullDateRe.FindStringSubmatch(s); m != nil {
		year, month, day = m[1], m[2], m[3]
	} else if m := compactDateRe.FindStringSubmatch(s); m != nil {
		year, month, day = m[1], m[2], m[3]
	} else if m := shortDateRe.FindStringSubmatch(s); m != nil {
		year, month, day = strconv.Itoa(now.Year()), m[1], m[2]
	} else {
		return "", fmt.Errorf("unrecognized date %q", raw)
	}

	y, _ := strconv.Atoi(year)
	mo, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)

	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	// time.Date 会把 2 月 30 日归一化为 3 月 1 日，需要回查
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
		return "", fmt.Errorf("invalid calendar date %q", raw)
	}
	return t.Format(DateLayout), nil
}

// IsCanonicalDate 是否已是合法的 YYYY-MM-DD
func IsCanonicalDate(s string) bool {
	t, err := time.Parse(DateLayout, s)
	return err == nil && t.Format(DateLayout) == s
}
