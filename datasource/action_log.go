package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/textutil"
)

// SQLActionLog 在 SQL 数据库上实现 core.ActionLog。
type SQLActionLog struct {
	db *DB
}

// NewSQLActionLog 创建行为日志仓库
func NewSQLActionLog(db *DB) *SQLActionLog {
	return &SQLActionLog{db: db}
}

// Record 写入一条行为，返回自增 id。
func (l *SQLActionLog) Record(ctx context.Context, a *core.Action) (int64, error) {
	if a == nil || a.Action == 0 {
		return 0, core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, "datasource: action is empty")
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO action_log (uid, ud, item_id, keywords, action, type, ab_flag, device, ip, recall_type, query, first_reach, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UID, a.UD, a.ItemID, a.Keywords, a.Action, a.Type, a.ABFlag, a.Device, a.IP,
		string(a.RecallType), a.Query, unixOrNil(a.FirstReach), created.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("datasource: record action: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("datasource: record action id: %w", err)
	}
	a.ID = id
	a.CreatedAt = created
	return id, nil
}

// RecordSearch 写入一条独立的搜索日志。
func (l *SQLActionLog) RecordSearch(ctx context.Context, id core.Identity, query string, at time.Time) error {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	if at.IsZero() {
		at = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO search_log (uid, ud, query, created_at) VALUES (?, ?, ?, ?)`,
		id.UID, id.UD, query, at.Unix(),
	)
	if err != nil {
		return fmt.Errorf("datasource: record search: %w", err)
	}
	return nil
}

// ActiveUIDs 返回 since 之后有行为、且 uid 为合法对象 id 的登录用户。
func (l *SQLActionLog) ActiveUIDs(ctx context.Context, since time.Time) ([]string, error) {
	uids, err := l.queryStrings(ctx,
		`SELECT DISTINCT uid FROM action_log WHERE created_at >= ? AND uid != ''`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("datasource: active uids: %w", err)
	}
	out := uids[:0]
	for _, uid := range uids {
		if textutil.IsObjectID(uid) {
			out = append(out, uid)
		}
	}
	return out, nil
}

// ActiveUDs 返回 since 之后未登录、活跃天数大于 minDays 的设备。
func (l *SQLActionLog) ActiveUDs(ctx context.Context, since time.Time, minDays int) ([]string, error) {
	q := fmt.Sprintf(
		`SELECT ud FROM action_log WHERE created_at >= ? AND uid = '' AND ud != ''
		 GROUP BY ud HAVING COUNT(DISTINCT %s) > ?`, l.db.dayExpr("created_at"))
	uds, err := l.queryStrings(ctx, q, since.Unix(), minDays)
	if err != nil {
		return nil, fmt.Errorf("datasource: active uds: %w", err)
	}
	return uds, nil
}

// ClickCounts 按物品汇总 since 之后的点击数，降序。
func (l *SQLActionLog) ClickCounts(ctx context.Context, logType int, since time.Time) ([]core.ItemCount, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT item_id, COUNT(*) AS n FROM action_log
		 WHERE created_at >= ? AND action = ? AND type = ? AND item_id != ''
		 GROUP BY item_id ORDER BY n DESC, item_id`,
		since.Unix(), core.ActionClick, logType)
	if err != nil {
		return nil, fmt.Errorf("datasource: click counts: %w", err)
	}
	defer rows.Close()

	var out []core.ItemCount
	for rows.Next() {
		var c core.ItemCount
		if err := rows.Scan(&c.ID, &c.Count); err != nil {
			return nil, fmt.Errorf("datasource: scan click count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ItemStats 按 (type, item) 汇总 since 之后的曝光与点击。
func (l *SQLActionLog) ItemStats(ctx context.Context, since time.Time) ([]core.ItemStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT type, item_id,
		        COUNT(DISTINCT ud),
		        COUNT(DISTINCT CASE WHEN uid != '' THEN uid END),
		        SUM(CASE WHEN action = ? THEN 1 ELSE 0 END),
		        SUM(CASE WHEN action = ? THEN 1 ELSE 0 END)
		 FROM action_log
		 WHERE created_at >= ? AND item_id != '' AND action IN (?, ?)
		 GROUP BY type, item_id`,
		core.ActionClick, core.ActionShow, since.Unix(), core.ActionShow, core.ActionClick)
	if err != nil {
		return nil, fmt.Errorf("datasource: item stats: %w", err)
	}
	defer rows.Close()

	var out []core.ItemStat
	for rows.Next() {
		var s core.ItemStat
		if err := rows.Scan(&s.Type, &s.ItemID, &s.UDs, &s.UIDs, &s.Clicks, &s.Shows); err != nil {
			return nil, fmt.Errorf("datasource: scan item stat: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecentQueries 合并行为日志与搜索日志中的搜索记录，按时间倒序取 limit 条。
func (l *SQLActionLog) RecentQueries(ctx context.Context, id core.Identity, limit int) ([]core.QueryLog, error) {
	if id.IsCold() || limit <= 0 {
		return nil, nil
	}
	col, val := "uid", id.UID
	if id.UID == "" {
		col, val = "ud", id.UD
	}

	queries := []struct {
		sql  string
		args []any
	}{
		{
			sql:  fmt.Sprintf(`SELECT query, created_at FROM action_log WHERE %s = ? AND action = ? AND query != '' ORDER BY id DESC LIMIT ?`, col),
			args: []any{val, core.ActionSearch, limit},
		},
		{
			sql:  fmt.Sprintf(`SELECT query, created_at FROM search_log WHERE %s = ? AND query != '' ORDER BY id DESC LIMIT ?`, col),
			args: []any{val, limit},
		},
	}

	var out []core.QueryLog
	for _, q := range queries {
		rows, err := l.db.QueryContext(ctx, q.sql, q.args...)
		if err != nil {
			return nil, fmt.Errorf("datasource: recent queries: %w", err)
		}
		for rows.Next() {
			var (
				text string
				ts   int64
			)
			if err := rows.Scan(&text, &ts); err != nil {
				rows.Close()
				return nil, fmt.Errorf("datasource: scan query: %w", err)
			}
			out = append(out, core.QueryLog{Query: text, CreatedAt: time.Unix(ts, 0)})
		}
		rows.Close()
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

const editorPickColumns = `id, category, pub_id, pub_topic_id, ai2k_id, ai2k_title,
	COALESCE(ai2k_description, ''), COALESCE(ai2k_authors, ''), COALESCE(interpret, ''), interpret_author,
	COALESCE(video_url, ''), report_id, report_title, report_from, report_date, is_top,
	top_start_at, top_end_at, top_reason_zh, top_reason_en, created_at`

// EditorPicks 返回 since 之后创建、置顶标记与 top 一致的运营条目，新的在前。
func (l *SQLActionLog) EditorPicks(ctx context.Context, since time.Time, top bool) ([]core.EditorPick, error) {
	return l.queryPicks(ctx,
		`SELECT `+editorPickColumns+` FROM editor_pick WHERE created_at >= ? AND is_top = ? ORDER BY id DESC`,
		since.Unix(), boolInt(top))
}

// TopPicks 返回在 now 时刻生效的置顶条目；now 为零值时返回最近 limit 条置顶条目。
func (l *SQLActionLog) TopPicks(ctx context.Context, now time.Time, limit int) ([]core.EditorPick, error) {
	if limit <= 0 {
		limit = 200
	}
	if now.IsZero() {
		return l.queryPicks(ctx,
			`SELECT `+editorPickColumns+` FROM editor_pick WHERE is_top = 1 ORDER BY id DESC LIMIT ?`, limit)
	}
	return l.queryPicks(ctx,
		`SELECT `+editorPickColumns+` FROM editor_pick
		 WHERE is_top = 1 AND top_start_at <= ? AND top_end_at >= ? ORDER BY id DESC LIMIT ?`,
		now.Unix(), now.Unix(), limit)
}

// SavePick 写入一条运营条目，返回自增 id。
func (l *SQLActionLog) SavePick(ctx context.Context, p *core.EditorPick) (int64, error) {
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	category := p.Category
	if category == "" {
		category = core.PickCategoryPub
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO editor_pick (category, pub_id, pub_topic_id, ai2k_id, ai2k_title, ai2k_description, ai2k_authors,
		 interpret, interpret_author, video_url, report_id, report_title, report_from, report_date, is_top,
		 top_start_at, top_end_at, top_reason_zh, top_reason_en, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		category, p.PubID, p.PubTopicID, p.AI2KID, p.AI2KTitle, p.AI2KDescription, p.AI2KAuthors,
		p.Interpret, p.InterpretAuthor, p.VideoURL, p.ReportID, p.ReportTitle, p.ReportFrom,
		unixOrNil(p.ReportDate), boolInt(p.IsTop), unixOrNil(p.TopStartAt), unixOrNil(p.TopEndAt),
		p.TopReasonZh, p.TopReasonEn, created.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("datasource: save pick: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("datasource: save pick id: %w", err)
	}
	p.ID = id
	p.CreatedAt = created
	return id, nil
}

func (l *SQLActionLog) queryPicks(ctx context.Context, q string, args ...any) ([]core.EditorPick, error) {
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("datasource: editor picks: %w", err)
	}
	defer rows.Close()

	var out []core.EditorPick
	for rows.Next() {
		var (
			p                      core.EditorPick
			reportDate, start, end sql.NullInt64
			isTop                  int
			created                int64
		)
		if err := rows.Scan(&p.ID, &p.Category, &p.PubID, &p.PubTopicID, &p.AI2KID, &p.AI2KTitle,
			&p.AI2KDescription, &p.AI2KAuthors, &p.Interpret, &p.InterpretAuthor,
			&p.VideoURL, &p.ReportID, &p.ReportTitle, &p.ReportFrom, &reportDate, &isTop,
			&start, &end, &p.TopReasonZh, &p.TopReasonEn, &created); err != nil {
			return nil, fmt.Errorf("datasource: scan editor pick: %w", err)
		}
		p.ReportDate = timeOf(reportDate)
		p.TopStartAt = timeOf(start)
		p.TopEndAt = timeOf(end)
		p.IsTop = isTop != 0
		p.CreatedAt = time.Unix(created, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ActivePersons 返回 since 之后有动态的学者。
func (l *SQLActionLog) ActivePersons(ctx context.Context, since time.Time) ([]string, error) {
	ids, err := l.queryStrings(ctx,
		`SELECT DISTINCT person_id FROM person_activity WHERE event_time >= ?`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("datasource: active persons: %w", err)
	}
	return ids, nil
}

// PersonActivities 返回学者们 since 之后的动态，新的在前。
func (l *SQLActionLog) PersonActivities(ctx context.Context, personIDs []string, since time.Time, limit int) ([]core.Activity, error) {
	if len(personIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	args := make([]any, 0, len(personIDs)+2)
	for _, id := range personIDs {
		args = append(args, id)
	}
	args = append(args, since.Unix(), limit)

	rows, err := l.db.QueryContext(ctx,
		`SELECT person_id, pub_id, event_time FROM person_activity
		 WHERE person_id IN (`+placeholders(len(personIDs))+`) AND event_time >= ?
		 ORDER BY event_time DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("datasource: person activities: %w", err)
	}
	defer rows.Close()

	var out []core.Activity
	for rows.Next() {
		var (
			a  core.Activity
			ts int64
		)
		if err := rows.Scan(&a.PersonID, &a.PubID, &ts); err != nil {
			return nil, fmt.Errorf("datasource: scan activity: %w", err)
		}
		a.EventTime = time.Unix(ts, 0)
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecordActivity 写入一条学者动态。
func (l *SQLActionLog) RecordActivity(ctx context.Context, a core.Activity) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO person_activity (person_id, pub_id, event_time) VALUES (?, ?, ?)`,
		a.PersonID, a.PubID, a.EventTime.Unix())
	if err != nil {
		return fmt.Errorf("datasource: record activity: %w", err)
	}
	return nil
}

// SubjectKeywords 返回学科（小写）到关键词列表的映射，关键词以逗号分隔存储。
func (l *SQLActionLog) SubjectKeywords(ctx context.Context) (map[string][]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT title, COALESCE(keywords, '') FROM subject`)
	if err != nil {
		return nil, fmt.Errorf("datasource: subjects: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var title, words string
		if err := rows.Scan(&title, &words); err != nil {
			return nil, fmt.Errorf("datasource: scan subject: %w", err)
		}
		var list []string
		seen := make(map[string]struct{})
		for _, w := range strings.Split(strings.ToLower(words), ",") {
			w = strings.TrimSpace(w)
			if w == "" {
				continue
			}
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			list = append(list, w)
		}
		out[strings.ToLower(strings.TrimSpace(title))] = list
	}
	return out, rows.Err()
}

// SaveSubject 写入学科及其关键词。
func (l *SQLActionLog) SaveSubject(ctx context.Context, title string, keywords []string) error {
	_, err := l.db.ExecContext(ctx,
		l.db.upsertVerb()+` subject (title, keywords) VALUES (?, ?)`,
		title, strings.Join(keywords, ","))
	if err != nil {
		return fmt.Errorf("datasource: save subject: %w", err)
	}
	return nil
}

// NewlyPapers 返回标题包含 keyword、ts 晚于 since 且年份不早于 year 的论文，新的在前。
func (l *SQLActionLog) NewlyPapers(ctx context.Context, keyword string, since time.Time, year, limit int) ([]core.NewlyPaper, error) {
	keyword = strings.TrimSpace(strings.ToLower(keyword))
	if keyword == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT paper_id, title, ts FROM newly_paper
		 WHERE LOWER(title) LIKE ? AND ts > ? AND year >= ?
		 ORDER BY ts DESC LIMIT ?`,
		"%"+keyword+"%", since.Unix(), year, limit)
	if err != nil {
		return nil, fmt.Errorf("datasource: newly papers: %w", err)
	}
	defer rows.Close()

	var out []core.NewlyPaper
	for rows.Next() {
		var (
			p  core.NewlyPaper
			ts int64
		)
		if err := rows.Scan(&p.PaperID, &p.Title, &ts); err != nil {
			return nil, fmt.Errorf("datasource: scan newly paper: %w", err)
		}
		p.TS = time.Unix(ts, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveNewlyPaper 写入一篇新论文。
func (l *SQLActionLog) SaveNewlyPaper(ctx context.Context, p core.NewlyPaper, year int) error {
	_, err := l.db.ExecContext(ctx,
		l.db.upsertVerb()+` newly_paper (paper_id, title, year, ts) VALUES (?, ?, ?, ?)`,
		p.PaperID, p.Title, year, p.TS.Unix())
	if err != nil {
		return fmt.Errorf("datasource: save newly paper: %w", err)
	}
	return nil
}

func (l *SQLActionLog) queryStrings(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if s := strings.TrimSpace(v.String); v.Valid && s != "" {
			out = append(out, s)
		}
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ core.ActionLog = (*SQLActionLog)(nil)
