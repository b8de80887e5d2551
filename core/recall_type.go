package core

import "time"

// RecallType 标记候选物品由哪个召回策略产生，用于去重优先级与多样性打散。
type RecallType string

const (
	RecallFollow           RecallType = "follow"          // 关注学者动态
	RecallSubscribe        RecallType = "subscribe"       // 订阅关键词精准检索
	RecallSubscribeOAG     RecallType = "subscribe_oag"   // 订阅关键词语义召回
	RecallSubscribeKG      RecallType = "subscribe_kg"    // 订阅关键词知识图谱召回
	RecallBehavior         RecallType = "behavior"        // 基于行为
	RecallBehaviorPerson   RecallType = "behavior_person" // 基于行为的学者推荐
	RecallAI2K             RecallType = "ai2k"            // AI 2000 学者榜单
	RecallSubject          RecallType = "subject"         // 订阅学科
	RecallEditorHot        RecallType = "editor_hot"      // 运营热点
	RecallHot              RecallType = "hot"             // 全站热门
	RecallTopicHot         RecallType = "topic_hot"       // 热门专题
	RecallSearch           RecallType = "search"          // 搜索历史
	RecallRandomPerson     RecallType = "random_person"   // 活跃学者池
	RecallPushHot          RecallType = "push_hot"        // 推送：每日热点
	RecallPushNew          RecallType = "push_new"        // 推送：订阅新论文
	RecallPushWeek         RecallType = "push_week"       // 推送：每周热点
	RecallPushFollow       RecallType = "push_follow"     // 推送：关注学者新论文
	RecallShenzhenNewly    RecallType = "shenzhen_newly"  // 领域新论文
	RecallCold             RecallType = "cold"            // 冷启动
	RecallColdSubscribeOAG RecallType = "cold_subscribe_oag"
	RecallColdSubscribe    RecallType = "cold_subscribe"
	RecallColdAI2K         RecallType = "cold_ai2k"
	RecallColdTop          RecallType = "cold_top"
	RecallTop              RecallType = "top" // 运营置顶
)

// RecallTypes 是参与偏好模型的全部召回类型，下标即模型中的 recall_type_id。
var RecallTypes = []RecallType{
	RecallFollow,
	RecallSubscribe,
	RecallSubscribeOAG,
	RecallSubscribeKG,
	RecallBehavior,
	RecallBehaviorPerson,
	RecallAI2K,
	RecallSubject,
	RecallEditorHot,
	RecallHot,
	RecallTopicHot,
	RecallSearch,
	RecallRandomPerson,
	RecallPushNew,
	RecallPushWeek,
	RecallShenzhenNewly,
	RecallCold,
	RecallColdSubscribeOAG,
	RecallColdSubscribe,
	RecallColdAI2K,
	RecallColdTop,
	RecallTop,
}

// RecallTypeID 返回召回类型在 RecallTypes 中的下标，未知类型返回 -1。
func RecallTypeID(rt RecallType) int {
	for i, v := range RecallTypes {
		if v == rt {
			return i
		}
	}
	return -1
}

// 期刊分区常量。
const (
	SCISource   = "CJCR"
	SCIQuartile = "1区"
	CCFSource   = "CCF"
	CCFQuartile = "A"
)

// 缓存时长。
const (
	PubCacheTTL            = 7 * 24 * time.Hour
	PersonCacheTTL         = 7 * 24 * time.Hour
	TopicCacheTTL          = 30 * 24 * time.Hour
	RecommendationCacheTTL = 7 * 24 * time.Hour
	KeywordRecCacheTTL     = 7 * 24 * time.Hour
	RecallFavoriteCacheTTL = 30 * 24 * time.Hour
	QualityCacheTTL        = 7 * 24 * time.Hour
	KeywordUpdateInterval  = time.Hour
)

// MaxNumShow 是曝光/点击历史读取的上限。
const MaxNumShow = 2000
