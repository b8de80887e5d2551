package core

import (
	"context"
	"strings"
	"time"
)

// 行为类型，与行为日志表中的 action 字段一致。
const (
	ActionShow             = 1
	ActionClick            = 2
	ActionSubscribeKeyword = 3
	ActionSubscribeSubject = 4
	ActionFavorite         = 5
	ActionCopyTitle        = 6
	ActionSearch           = 7
)

// 行为日志中的物品类型编码。
const (
	LogTypePub      = 1
	LogTypePubTopic = 2
	LogTypeReport   = 3
	LogTypeProfile  = 4
	LogTypeAI2K     = 6
)

// LogTypeOf 把物品类型转为行为日志编码，未知类型返回 0。
func LogTypeOf(t ItemType) int {
	switch t {
	case ItemPub:
		return LogTypePub
	case ItemPubTopic:
		return LogTypePubTopic
	case ItemReport:
		return LogTypeReport
	case ItemAI2K:
		return LogTypeAI2K
	case "profile":
		return LogTypeProfile
	default:
		return 0
	}
}

// ItemTypeOfLog 是 LogTypeOf 的逆映射，未知编码返回空字符串。
func ItemTypeOfLog(code int) ItemType {
	switch code {
	case LogTypePub:
		return ItemPub
	case LogTypePubTopic:
		return ItemPubTopic
	case LogTypeReport:
		return ItemReport
	case LogTypeAI2K:
		return ItemAI2K
	default:
		return ""
	}
}

// Action 是一条用户行为（曝光、点击、搜索…）。
type Action struct {
	ID         int64
	UID        string
	UD         string
	ItemID     string
	Keywords   string
	Action     int
	Type       int
	ABFlag     string
	Device     string
	IP         string
	RecallType RecallType
	Query      string
	FirstReach *time.Time
	CreatedAt  time.Time
}

// ItemCount 是物品及其计数。
type ItemCount struct {
	ID    string
	Count int64
}

// ItemStat 是一段时间内物品的曝光/点击汇总，用于论文质量分。
type ItemStat struct {
	Type   int
	ItemID string
	UDs    int64
	UIDs   int64
	Clicks int64
	Shows  int64
}

// QueryLog 是一条搜索记录。
type QueryLog struct {
	Query     string
	CreatedAt time.Time
}

// EditorPick 是运营配置的热点 / 置顶条目。
type EditorPick struct {
	ID              int64
	Category        string // pub / topic / ai2k
	PubID           string
	PubTopicID      string
	AI2KID          string
	AI2KTitle       string
	AI2KDescription string
	AI2KAuthors     string
	Interpret       string
	InterpretAuthor string
	VideoURL        string
	ReportID        string
	ReportTitle     string
	ReportFrom      string
	ReportDate      *time.Time
	IsTop           bool
	TopStartAt      *time.Time
	TopEndAt        *time.Time
	TopReasonZh     string
	TopReasonEn     string
	CreatedAt       time.Time
}

// AI2KAuthor 是榜单条目里配置的一位作者。
type AI2KAuthor struct {
	ID     string `json:"id"`
	Org    string `json:"org"`
	Name   string `json:"name"`
	NameZh string `json:"name_zh"`
}

// AI2KAuthorList 解析 AI2KAuthors：一行一个作者，字段以 "||" 分隔，
// 依次为中文名、英文名、机构、学者 ID。格式不完整的行跳过。
func (p *EditorPick) AI2KAuthorList() []AI2KAuthor {
	if strings.TrimSpace(p.AI2KAuthors) == "" {
		return nil
	}
	var authors []AI2KAuthor
	for _, line := range strings.Split(p.AI2KAuthors, "\n") {
		parts := strings.Split(line, "||")
		if len(parts) < 4 {
			continue
		}
		authors = append(authors, AI2KAuthor{
			NameZh: strings.TrimSpace(parts[0]),
			Name:   strings.TrimSpace(parts[1]),
			Org:    strings.TrimSpace(parts[2]),
			ID:     strings.TrimSpace(parts[3]),
		})
	}
	return authors
}

// ItemRef 返回条目对应的推荐物品 id 与类型。
func (p *EditorPick) ItemRef() (string, ItemType) {
	switch p.Category {
	case PickCategoryTopic:
		return p.PubTopicID, ItemPubTopic
	case PickCategoryAI2K:
		return p.AI2KID, ItemAI2K
	default:
		return p.PubID, ItemPub
	}
}

// 运营条目类别。
const (
	PickCategoryPub   = "pub"
	PickCategoryTopic = "topic"
	PickCategoryAI2K  = "ai2k"
)

// Activity 是学者的一条动态（发表新论文等）。
type Activity struct {
	PersonID  string
	PubID     string
	EventTime time.Time
}

// NewlyPaper 是近期入库的高质量论文，用于订阅新论文统计。
type NewlyPaper struct {
	PaperID string
	Title   string
	TS      time.Time
}

// ActionLog 是行为日志与运营数据的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（datasource）实现
//   - 只暴露召回/编排需要的聚合查询，不暴露表结构
//
// 使用场景：
//   - 活跃用户发现：训练任务的用户集合
//   - 热门召回：近 30 天点击汇总
//   - 搜索召回：最近的搜索词
//   - 论文质量分：曝光/点击汇总
//   - 运营热点与置顶
//
// 实现：
//   - datasource.SQLActionLog（MySQL / SQLite）
type ActionLog interface {
	// Record 写入一条行为
	Record(ctx context.Context, a *Action) (int64, error)

	// ActiveUIDs 返回 since 之后有行为的登录用户
	ActiveUIDs(ctx context.Context, since time.Time) ([]string, error)

	// ActiveUDs 返回 since 之后未登录、且活跃天数大于 minDays 的设备
	ActiveUDs(ctx context.Context, since time.Time, minDays int) ([]string, error)

	// ClickCounts 按物品汇总 since 之后的点击数，降序
	ClickCounts(ctx context.Context, logType int, since time.Time) ([]ItemCount, error)

	// ItemStats 按 (type, item) 汇总 since 之后的曝光/点击
	ItemStats(ctx context.Context, since time.Time) ([]ItemStat, error)

	// RecentQueries 返回用户最近的搜索记录，新的在前
	RecentQueries(ctx context.Context, id Identity, limit int) ([]QueryLog, error)

	// EditorPicks 返回 since 之后创建、置顶标记为 top 的运营条目
	EditorPicks(ctx context.Context, since time.Time, top bool) ([]EditorPick, error)

	// TopPicks 返回当前生效（或最近的 limit 条）置顶条目
	TopPicks(ctx context.Context, now time.Time, limit int) ([]EditorPick, error)

	// ActivePersons 返回 since 之后有动态的学者
	ActivePersons(ctx context.Context, since time.Time) ([]string, error)

	// PersonActivities 返回学者们 since 之后的动态，新的在前
	PersonActivities(ctx context.Context, personIDs []string, since time.Time, limit int) ([]Activity, error)

	// SubjectKeywords 返回学科（小写）到关键词列表的映射
	SubjectKeywords(ctx context.Context) (map[string][]string, error)

	// NewlyPapers 返回标题包含 keyword、ts 晚于 since 且年份不早于 year 的论文
	NewlyPapers(ctx context.Context, keyword string, since time.Time, year, limit int) ([]NewlyPaper, error)
}
