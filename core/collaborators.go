package core

import "context"

// Document 是记录库中的一条原始文档（论文、学者、专题、榜单、用户）。
type Document map[string]any

// AsMap 返回底层 map。
func (d Document) AsMap() map[string]any { return d }

// 记录库集合名称。
const (
	CollectionPub      = "publication"
	CollectionPerson   = "person"
	CollectionPubTopic = "pub_topic"
	CollectionChannel  = "must_reading_channel"
	CollectionAI2K     = "recommend_record"
	CollectionReport   = "report"
	CollectionUser     = "usr"
	CollectionCategory = "publication_category"
	CollectionVenue    = "venue"
	CollectionVenueHHB = "venue_hhb"
	CollectionPDFInfo  = "publication_pdf_info"
	CollectionSubject  = "high_quality_paper"
)

// RecordStore 是事实数据源（论文、学者等原始文档）的领域接口。
//
// 设计原则：
//   - 只读，按 id 查询
//   - 找不到时返回 ErrStoreNotFound，而不是空文档
//
// 实现：
//   - datasource.SQLRecordStore（MySQL / SQLite 文档表）
type RecordStore interface {
	// FindByID 按 id 读取一条文档
	FindByID(ctx context.Context, collection, id string) (Document, error)

	// FindByIDs 批量读取，缺失的 id 直接跳过
	FindByIDs(ctx context.Context, collection string, ids []string) ([]Document, error)

	// FindAll 读取集合中的全部文档，limit <= 0 表示不限制
	FindAll(ctx context.Context, collection string, limit int) ([]Document, error)
}

// SearchHit 是检索服务返回的一条命中。
type SearchHit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Title string  `json:"title"`
}

// SearchService 是论文检索（全文 / 向量索引）的领域接口。
//
// 使用场景：
//   - 订阅关键词召回、学科召回、搜索历史召回
//   - 关键词推荐预加载
//
// 实现：
//   - service.SearchClient（HTTP）
type SearchService interface {
	Search(ctx context.Context, query string, k int) ([]SearchHit, error)
}

// EmbeddingService 是文本向量化的领域接口。
//
// 注意：
//   - EmbedBatch 不接受空白字符串，调用方需要先过滤
//   - 返回向量的顺序与输入一致
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Translator 把中文关键词翻译为目标语言。
type Translator interface {
	Translate(ctx context.Context, text, lang string) (string, error)
}

// VenueService 查询期刊简称与分区，两个查询相互独立，各自可失败。
type VenueService interface {
	// ShortName 返回期刊简称，查不到时返回空字符串
	ShortName(ctx context.Context, alias, venueID string) (string, error)

	// Quartile 返回论文所在期刊的分区，key 为来源（CJCR / CCF），value 为分区描述
	Quartile(ctx context.Context, paperID string) (map[string]any, error)
}

// Job 是投递到后台队列的一条任务，Payload 为 JSON。
type Job struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Payload []byte `json:"payload"`
}

// 后台任务名称。
const (
	JobRefreshUser       = "refresh_user"
	JobPreloadLostItems  = "preload_lost_items"
	JobPingbackShow      = "pingback_show"
	JobPingbackClick     = "pingback_click"
	JobSubscribeChanged  = "subscribe_changed"
	JobMakeTop           = "make_top"
	JobPreloadCandidates = "preload_candidates"
)

// JobQueue 是后台任务队列，Enqueue 只负责投递，不等待执行结果。
type JobQueue interface {
	Enqueue(ctx context.Context, job Job) error
}
