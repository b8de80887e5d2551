// Package orchestrator 负责推荐集合的离线训练、在线增量更新与关键词推荐。
//
// 一个 Strategy 是一组召回源加一个缓存命名空间；Registry 在启动时构建，
// 按请求的 alg_flag 选择 Strategy。
package orchestrator

import (
	"fmt"
	"sort"
	"time"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/textutil"
	"github.com/louhangyu/zhipu/recall"
)

// 内置策略
const (
	FlagNative   = "native"
	FlagPush     = "push"
	FlagShenzhen = "shenzhen"

	NameNative   = "native_mr"
	NamePush     = "push"
	NameShenzhen = "shenzhen"
)

// 缓存时间
const (
	UserTTL           = 24 * time.Hour
	ColdTTL           = 7 * 24 * time.Hour
	UpdateTTL         = 7 * 24 * time.Hour
	KeywordTTL        = 7 * 24 * time.Hour
	KeywordThrottle   = time.Hour
	PushColdTTL       = 24 * time.Hour
	defaultKeywordNum = 100
)

// DefaultServeRule 丢弃物化记录中标题为空的论文；未命中缓存的论文没有 extra.title，保留。
const DefaultServeRule = `item.type == "pub" && has(item.extra.title) && item.extra.title == ""`

// KeywordMode 决定关键词推荐的来源。
type KeywordMode int

const (
	// KeywordSearch：订阅新论文 → 用户关键词缓存 → 公共关键词缓存 → 同步预加载
	KeywordSearch KeywordMode = iota
	// KeywordNewlyOnly：只使用订阅新论文，没有时返回空
	KeywordNewlyOnly
)

// Strategy 是一种推荐算法。
//
// 约定：
//   - Name 是缓存命名空间，非关键词推荐集合的 key 以它开头
//   - 关键词推荐缓存不区分策略
//   - ColdSources 的输出就是冷启动用户的推荐集合
//   - UpdateSources 是增量更新时重新召回的源，其余召回类型保留旧结果
type Strategy struct {
	Flag          string
	Name          string
	Sources       []recall.Source
	ColdSources   []recall.Source
	UpdateSources []recall.Source
	UserTTL       time.Duration
	ColdTTL       time.Duration
	Keyword       KeywordMode

	// PrependTop 为 true 时下发前插入运营置顶
	PrependTop bool

	// ServeRule 是下发时的 CEL 表达式，补全展示字段后命中的候选被丢弃，为空时不过滤
	ServeRule string
}

func (s *Strategy) userTTL() time.Duration {
	if s.UserTTL > 0 {
		return s.UserTTL
	}
	return UserTTL
}

func (s *Strategy) coldTTL() time.Duration {
	if s.ColdTTL > 0 {
		return s.ColdTTL
	}
	return ColdTTL
}

// NonKeywordKey 返回用户非关键词推荐集合的 key，没有身份时为冷启动 key。
func (s *Strategy) NonKeywordKey(id core.Identity) string {
	switch {
	case id.UID != "":
		return fmt.Sprintf("%s_non_keyword_rec_uid_%s", s.Name, id.UID)
	case id.UD != "":
		return fmt.Sprintf("%s_non_keyword_rec_ud_%s", s.Name, id.UD)
	default:
		return s.Name + "_non_keyword_rec_cold"
	}
}

// KeywordUpdateKey 返回关键词刷新节流的 key，没有身份时返回空字符串。
func (s *Strategy) KeywordUpdateKey(id core.Identity, keyword string) string {
	kw := textutil.QuoteKeyword(keyword)
	switch {
	case id.UID != "":
		return fmt.Sprintf("%s_uid_keyword_last_update_%s_%s", s.Name, id.UID, kw)
	case id.UD != "":
		return fmt.Sprintf("%s_ud_keyword_last_update_%s_%s", s.Name, id.UD, kw)
	default:
		return ""
	}
}

// KeywordKey 返回关键词推荐的缓存 key；关键词与词序、大小写无关，没有身份时为公共 key。
func KeywordKey(keyword string, id core.Identity) string {
	h := textutil.KeywordHash(keyword)
	switch {
	case id.UID != "":
		return fmt.Sprintf("keyword_rec_uid_%s_%s", id.UID, h)
	case id.UD != "":
		return fmt.Sprintf("keyword_rec_ud_%s_%s", id.UD, h)
	default:
		return "keyword_rec_" + h
	}
}

// Registry 是启动时构建的策略表，按 alg_flag 查找。
type Registry struct {
	strategies map[string]*Strategy
	fallback   *Strategy
}

// NewRegistry 创建策略表，fallback 用于空或未知的 alg_flag。
func NewRegistry(fallback *Strategy, others ...*Strategy) *Registry {
	r := &Registry{strategies: make(map[string]*Strategy, len(others)+1), fallback: fallback}
	r.strategies[fallback.Flag] = fallback
	for _, s := range others {
		r.strategies[s.Flag] = s
	}
	return r
}

// Get 返回 flag 对应的策略。
func (r *Registry) Get(flag string) *Strategy {
	if s, ok := r.strategies[flag]; ok {
		return s
	}
	return r.fallback
}

// Lookup 按 flag 精确查找。
func (r *Registry) Lookup(flag string) (*Strategy, bool) {
	s, ok := r.strategies[flag]
	return s, ok
}

// All 按 flag 排序返回全部策略。
func (r *Registry) All() []*Strategy {
	out := make([]*Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Flag < out[j].Flag })
	return out
}
