// Package textutil 是关键词、id 与标题文本的小工具。
package textutil

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var (
	objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
	chinesePattern  = regexp.MustCompile(`[\x{4e00}-\x{9fff}]`)
	newlinePattern  = regexp.MustCompile(`\n+`)
	blankPattern    = regexp.MustCompile(`\s{2,}`)
)

// IsObjectID 判断是否为 24 位十六进制的文档 id。
func IsObjectID(s string) bool {
	return objectIDPattern.MatchString(s)
}

// IsChinese 文本中是否包含汉字。
func IsChinese(s string) bool {
	return chinesePattern.MatchString(s)
}

// RemoveDuplicateBlanks 把换行与连续空白折叠为单个空格并去掉首尾空白。
func RemoveDuplicateBlanks(s string) string {
	s = newlinePattern.ReplaceAllString(s, " ")
	s = blankPattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// KeywordTokens 小写后按空格切分，去空、排序。
func KeywordTokens(keyword string) []string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(keyword)))
	sort.Strings(fields)
	return fields
}

// KeywordHash 对关键词做顺序无关的 md5，"Deep Learning" 与 "learning deep" 相同。
func KeywordHash(keyword string) string {
	sum := md5.Sum([]byte(strings.Join(KeywordTokens(keyword), "_")))
	return hex.EncodeToString(sum[:])
}

// QuoteKeyword 对关键词做 URL 转义，保留 "/"。
func QuoteKeyword(keyword string) string {
	return strings.ReplaceAll(url.PathEscape(keyword), "%2F", "/")
}

// Dedup 去重并保持首次出现的顺序，跳过空白字符串。
func Dedup(xs []string) []string {
	seen := make(map[string]struct{}, len(xs))
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	return out
}
