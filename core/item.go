package core

import "time"

// ItemType 是推荐物品的类型。
type ItemType string

const (
	ItemPub      ItemType = "pub"       // 论文
	ItemPubTopic ItemType = "pub_topic" // 必读专题
	ItemPerson   ItemType = "person"    // 学者
	ItemAI2K     ItemType = "ai2k"      // AI 2000 学者榜单
	ItemReport   ItemType = "report"    // 报道
)

// ValidItemTypes 是写入推荐集合时允许的物品类型，顺序即拼接顺序。
var ValidItemTypes = []ItemType{ItemPub, ItemPubTopic, ItemPerson, ItemAI2K}

// IsValid 判断物品类型是否可以进入推荐集合。
func (t ItemType) IsValid() bool {
	for _, v := range ValidItemTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Reason 是双语推荐理由。
type Reason struct {
	Zh string `json:"zh"`
	En string `json:"en"`
}

// IsZero 理由为空。
func (r Reason) IsZero() bool { return r.Zh == "" && r.En == "" }

// Item 是推荐链路中的统一承载结构：召回、合并、重排、缓存与下发都使用它。
// Score 用于排序决策，RecallType 用于去重优先级与多样性打散。
type Item struct {
	ID            string     `json:"item"`
	Type          ItemType   `json:"type"`
	Score         float64    `json:"score"`
	RecallType    RecallType `json:"recall_type"`
	RecallReason  Reason     `json:"recall_reason"`
	RecallSource  string     `json:"recall_source,omitempty"`
	RecallTime    string     `json:"recall_time,omitempty"`
	RecallKeyword string     `json:"recall_keyword,omitempty"`

	// Extra 保存物化后的展示字段（title、authors、venue 等），原样透传给调用方。
	Extra map[string]any `json:"extra,omitempty"`
}

// NewItem 创建一个候选物品，RecallTime 取当前时间。
func NewItem(id string, typ ItemType, score float64, rt RecallType) *Item {
	return &Item{
		ID:         id,
		Type:       typ,
		Score:      score,
		RecallType: rt,
		RecallTime: time.Now().Format(DateTimeLayout),
	}
}

// Key 返回 (id, type) 二元组，一个候选集合内唯一。
func (it *Item) Key() ItemKey { return ItemKey{ID: it.ID, Type: it.Type} }

// Clone 浅拷贝 Item，Extra 单独复制一层。
func (it *Item) Clone() *Item {
	cp := *it
	if it.Extra != nil {
		cp.Extra = make(map[string]any, len(it.Extra))
		for k, v := range it.Extra {
			cp.Extra[k] = v
		}
	}
	return &cp
}

// PutExtra 写入展示字段。
func (it *Item) PutExtra(key string, value any) {
	if it.Extra == nil {
		it.Extra = make(map[string]any)
	}
	it.Extra[key] = value
}

// ItemKey 是物品的唯一标识。
type ItemKey struct {
	ID   string   `json:"id"`
	Type ItemType `json:"type"`
}

// ItemsByType 是召回源的输出：按物品类型分组的候选列表。
type ItemsByType map[ItemType][]*Item

// Len 返回所有类型的候选总数。
func (m ItemsByType) Len() int {
	n := 0
	for _, items := range m {
		n += len(items)
	}
	return n
}

// Add 追加候选。
func (m ItemsByType) Add(typ ItemType, items ...*Item) {
	if len(items) == 0 {
		return
	}
	m[typ] = append(m[typ], items...)
}

// Flatten 按 ValidItemTypes 的顺序拼接，非法类型被丢弃。
func (m ItemsByType) Flatten() []*Item {
	out := make([]*Item, 0, m.Len())
	for _, typ := range ValidItemTypes {
		out = append(out, m[typ]...)
	}
	return out
}

// RecommendationSet 是每个用户缓存的推荐集合。
type RecommendationSet struct {
	User     string   `json:"user"`
	UserType UserType `json:"user_type"`
	Rec      []*Item  `json:"rec"`
}

// DateTimeLayout 是缓存记录中时间字段的格式。
const DateTimeLayout = "2006-01-02 15:04:05"

// DateLayout 是每日数据文件名中的日期格式。
const DateLayout = "2006-01-02"
