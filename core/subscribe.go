package core

import "context"

// NewlyExample 是订阅关键词命中的一篇新论文。
type NewlyExample struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Title string  `json:"title"`
}

// KeywordNewly 是一个订阅关键词的新论文统计。
// TS 为统计窗口起点（unix 秒），下次统计从这里继续。
type KeywordNewly struct {
	OriginalCount int            `json:"original_count"`
	Count         int            `json:"count"`
	Example       []NewlyExample `json:"example"`
	TS            float64        `json:"ts"`
}

// NewlyStats 按用户统计订阅关键词的新论文。
//
// 实现：
//   - orchestrator.SubscribeStat（subscribe_stat_{uid}，缓存 24 小时）
type NewlyStats interface {
	// Newly 只读缓存，过期的关键词被丢弃
	Newly(ctx context.Context, uid string) (map[string]KeywordNewly, error)

	// Train 重新统计；save 为 true 时写回缓存
	Train(ctx context.Context, uid string, save bool) (map[string]KeywordNewly, error)
}
