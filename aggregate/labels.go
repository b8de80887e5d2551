package aggregate

import (
	"strings"
	"time"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/conv"
)

// 论文标签
const (
	LabelNew           = "New"
	LabelArxiv         = "Arxiv"
	LabelHighCitation  = "High Citation"
	LabelTopConference = "Top Conference"
	LabelTopAuthor     = "Top Author"
	LabelHotPaper      = "Hot Paper"
)

// 标签阈值
const (
	highCitationThreshold = 200
	topVenueHIndex        = 50
	topAuthorHIndex       = 50
	hotPaperViews         = 300

	arxivNewWindow    = 90 * 24 * time.Hour
	quartileNewWindow = 365 * 24 * time.Hour
)

// LabelInput 是打标签所需的外部信息。
type LabelInput struct {
	Now         time.Time
	VenueHIndex float64
}

// labelRule 是一条标签规则：命中即追加，规则之间互不影响。
type labelRule struct {
	en, zh string
	match  func(r Record, in LabelInput) bool
}

var labelRules = []labelRule{
	{LabelNew, "新论文", func(r Record, in LabelInput) bool { return IsNewly(r, in.Now) }},
	{LabelArxiv, "Arxiv", func(r Record, _ LabelInput) bool { return IsArxiv(r) }},
	{LabelHighCitation, "高引论文", func(r Record, _ LabelInput) bool { return IsHighCitation(r) }},
	{LabelTopConference, "顶刊", func(_ Record, in LabelInput) bool { return in.VenueHIndex > topVenueHIndex }},
	{LabelTopAuthor, "大牛作者", func(r Record, _ LabelInput) bool { return HasTopAuthor(r) }},
	{LabelHotPaper, "热门论文", func(r Record, _ LabelInput) bool { return IsHotPaper(r) }},
}

// GenerateLabels 按固定顺序计算论文的中英文标签。
func GenerateLabels(r Record, in LabelInput) (labels, labelsZh []string) {
	labels = []string{}
	labelsZh = []string{}
	for _, rule := range labelRules {
		if rule.match(r, in) {
			labels = append(labels, rule.en)
			labelsZh = append(labelsZh, rule.zh)
		}
	}
	return labels, labelsZh
}

// IsArxiv 任一收录版本来自 arxiv。
func IsArxiv(r Record) bool {
	for _, v := range r.Versions() {
		if strings.EqualFold(conv.String(v, "l"), "arxiv") {
			return true
		}
	}
	return false
}

// IsSCIQ1 期刊为 CJCR 1 区。
func IsSCIQ1(r Record) bool {
	return quartileContains(r.SCIQ(), core.SCISource, core.SCIQuartile)
}

// IsCCFA 期刊为 CCF A 类。
func IsCCFA(r Record) bool {
	return quartileContains(r.SCIQ(), core.CCFSource, core.CCFQuartile)
}

// IsNewly 新论文：当年及以后发表，且 arxiv 论文入库不超过 90 天，
// 或 CCF A / CJCR 1 区论文入库不超过 365 天。
func IsNewly(r Record, now time.Time) bool {
	if year := r.Year(); year > 0 && year < now.Year() {
		return false
	}
	ts, ok := r.TS()
	if !ok {
		return false
	}
	switch {
	case IsArxiv(r) && ts.After(now.Add(-arxivNewWindow)):
		return true
	case (IsCCFA(r) || IsSCIQ1(r)) && ts.After(now.Add(-quartileNewWindow)):
		return true
	default:
		return false
	}
}

// IsHighCitation 引用数超过 200。
func IsHighCitation(r Record) bool { return r.NumCitation() > highCitationThreshold }

// HasTopAuthor 任一作者 h-index 超过 50。
func HasTopAuthor(r Record) bool {
	for _, a := range r.Authors() {
		if conv.Float(a, "h_index") > topAuthorHIndex {
			return true
		}
	}
	return false
}

// IsHotPaper 累计浏览不少于 300。
func IsHotPaper(r Record) bool { return r.NumViewed() >= hotPaperViews }

// quartileContains 分区值可能是字符串（"1区"、"Q1/1区"）或字符串数组。
func quartileContains(sciq map[string]any, source, quartile string) bool {
	if sciq == nil {
		return false
	}
	switch v := sciq[source].(type) {
	case string:
		return strings.Contains(v, quartile)
	case []any, []string:
		for _, s := range conv.SliceAnyToString(v) {
			if s == quartile {
				return true
			}
		}
	}
	return false
}
