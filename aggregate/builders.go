package aggregate

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/conv"
	"github.com/louhangyu/zhipu/pkg/textutil"
)

const (
	ai2kMaxPersons     = 10
	ai2kMaxActivities  = 5
	ai2kActivityWindow = 7 * 24 * time.Hour

	topicMaxPapers  = 4
	topicMaxAuthors = 6

	reportDateLayout = "2006-01-02"
)

// venueNames 是论文的期刊全称与简称。
type venueNames struct {
	Name  string `json:"name"`
	Short string `json:"short"`
}

func (m *Materializer) buildPub(ctx context.Context, id string, useCache bool) (Record, error) {
	pub, err := m.findDocument(ctx, core.CollectionPub, id)
	if err != nil || pub == nil {
		return nil, err
	}

	var (
		authors []map[string]any
		venue   venueNames
		sciq    map[string]any
		pdf     core.Document
		subject core.Document
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		authors = m.enrichAuthors(gctx, conv.Maps(pub["authors"]))
		return nil
	})
	g.Go(func() error {
		venue = m.venueInfo(gctx, pub)
		return nil
	})
	g.Go(func() error {
		sciq = m.quartile(gctx, id)
		return nil
	})
	g.Go(func() error {
		pdf = m.optionalDocument(gctx, core.CollectionPDFInfo, id)
		subject = m.optionalDocument(gctx, core.CollectionSubject, id)
		return nil
	})
	_ = g.Wait()

	versions := make([]map[string]any, 0)
	for _, v := range conv.Maps(pub["versions"]) {
		cp := make(map[string]any, len(v))
		for k, val := range v {
			if k != "i" {
				cp[k] = val
			}
		}
		versions = append(versions, cp)
	}

	rec := Record{
		"id":           id,
		"type":         string(core.ItemPub),
		"authors":      authors,
		"doi":          pub["doi"],
		"num_citation": conv.Float(pub, "n_citation"),
		"num_viewed":   0,
		"pages": map[string]any{
			"start": pub["page_start"],
			"end":   pub["page_end"],
		},
		"pdf":   pub["pdf"],
		"title": textutil.RemoveDuplicateBlanks(conv.String(pub, "title")),
		"urls":  pub["url"],
		"venue": map[string]any{
			"info":         venue,
			"venue_hhb_id": conv.String(pub, "venue_hhb_id"),
		},
		"year":          pub["year"],
		"summary":       pdf["headline"],
		"abstract":      conv.String(pub, "abstract"),
		"keywords":      keywordsOf(pub, pdf),
		"data2videoUrl": pdf["data2videoUrl"],
		"figureUrls":    conv.Map(pdf, "metadata")["figure_urls"],
		"sciq":          sciq,
		"versions":      versions,
		"ts":            "",
		"subject_en":    conv.String(subject, "subject_en"),
		"subject_zh":    conv.String(subject, "subject_zh"),
		"category":      categoriesOf(pub),
		"preload_ts":    m.now().Format(core.DateTimeLayout),
	}
	if ts, ok := conv.Time(pub, "ts"); ok {
		rec["ts"] = ts.Local().Format(core.DateTimeLayout)
	}
	if n := m.fetchViews(ctx, core.ItemPub, id, useCache); n >= 0 {
		rec["num_viewed"] = n
	}

	labels, labelsZh := GenerateLabels(rec, LabelInput{
		Now:         m.now(),
		VenueHIndex: m.venueHIndex(ctx, pub),
	})
	rec["labels"] = labels
	rec["labels_zh"] = labelsZh
	return rec, nil
}

// enrichAuthors 用学者文档补充作者的头像、机构与 h-index。
func (m *Materializer) enrichAuthors(ctx context.Context, raw []map[string]any) []map[string]any {
	authors := make([]map[string]any, 0, len(raw))
	var ids []string
	for _, a := range raw {
		cp := make(map[string]any, len(a)+4)
		for k, v := range a {
			cp[k] = v
		}
		if aid := authorID(a); aid != "" {
			cp["id"] = aid
			ids = append(ids, aid)
		}
		delete(cp, "_id")
		authors = append(authors, cp)
	}
	if len(ids) == 0 {
		return authors
	}

	persons, err := m.records.FindByIDs(ctx, core.CollectionPerson, ids)
	if err != nil {
		m.log(ctx).Warn().Err(err).Int("authors", len(ids)).Msg("fetch authors failed")
		return authors
	}
	byID := make(map[string]core.Document, len(persons))
	for _, p := range persons {
		byID[conv.String(p, "id")] = p
	}
	for _, a := range authors {
		p, ok := byID[conv.String(a, "id")]
		if !ok {
			continue
		}
		a["avatar"] = p["avatar"]
		a["name"] = p["name"]
		a["org"] = conv.Map(p, "contact")["affiliation"]
		a["h_index"] = p["h_index"]
	}
	return authors
}

func authorID(a map[string]any) string {
	if id := conv.String(a, "_id"); id != "" {
		return id
	}
	return conv.String(a, "id")
}

// venueInfo 期刊名取 venue.raw，简称取 venue_hhb 文档，缺失时查询期刊服务；
// 没有 venue.raw 时按收录版本推断。
func (m *Materializer) venueInfo(ctx context.Context, pub core.Document) venueNames {
	hhbID := conv.String(pub, "venue_hhb_id")
	short := func(alias string) string {
		if hhbID != "" {
			if doc := m.optionalDocument(ctx, core.CollectionVenueHHB, hhbID); doc != nil {
				if s := conv.String(doc, "short_name"); s != "" {
					return s
				}
			}
		}
		if m.venue == nil {
			return ""
		}
		s, err := m.venue.ShortName(ctx, alias, hhbID)
		if err != nil {
			m.log(ctx).Warn().Err(err).Str("venue", alias).Msg("venue short name failed")
			return ""
		}
		return s
	}

	if raw := conv.String(conv.Map(pub, "venue"), "raw"); raw != "" {
		return venueNames{Name: raw, Short: short(raw)}
	}
	versions := conv.Maps(pub["versions"])
	if len(versions) == 0 {
		return venueNames{}
	}
	if strings.EqualFold(conv.String(versions[0], "l"), "arxiv") {
		return venueNames{Name: "Arxiv", Short: "Arxiv"}
	}
	for _, v := range versions {
		if vname := conv.String(v, "vname"); vname != "" {
			if s := short(vname); s != "" {
				return venueNames{Name: vname, Short: s}
			}
			return venueNames{}
		}
	}
	return venueNames{}
}

// quartile 查询论文分区，失败时为空。
func (m *Materializer) quartile(ctx context.Context, id string) map[string]any {
	if m.venue == nil {
		return map[string]any{}
	}
	q, err := m.venue.Quartile(ctx, id)
	if err != nil {
		m.log(ctx).Warn().Err(err).Str("id", id).Msg("venue quartile failed")
		return map[string]any{}
	}
	if q == nil {
		q = map[string]any{}
	}
	return q
}

// venueHIndex 读取 venue._id 对应期刊的 h-index。
func (m *Materializer) venueHIndex(ctx context.Context, pub core.Document) float64 {
	vid := conv.String(conv.Map(pub, "venue"), "_id")
	if vid == "" {
		return 0
	}
	return conv.Float(m.optionalDocument(ctx, core.CollectionVenue, vid), "h_index")
}

// optionalDocument 读取辅助文档，不存在或失败时返回 nil。
func (m *Materializer) optionalDocument(ctx context.Context, collection, id string) core.Document {
	doc, err := m.findDocument(ctx, collection, id)
	if err != nil {
		m.log(ctx).Warn().Err(err).Str("collection", collection).Str("id", id).Msg("read document failed")
		return nil
	}
	return doc
}

// keywordsOf 优先使用全文解析出的关键词。
func keywordsOf(pub, pdf core.Document) []string {
	if kws := conv.Strings(pdf, "keywords"); len(kws) > 0 {
		return kws
	}
	return conv.Strings(pub, "keywords")
}

// categoriesOf 把 "一级-二级" 形式的分类截为二级分类。
func categoriesOf(pub core.Document) []string {
	cats := conv.Strings(pub, "category")
	out := make([]string, 0, len(cats))
	for _, c := range cats {
		if parts := strings.Split(c, "-"); len(parts) == 2 {
			c = strings.TrimSpace(parts[1])
		}
		out = append(out, c)
	}
	return out
}

func (m *Materializer) buildPerson(ctx context.Context, id string, useCache bool) (Record, error) {
	person, err := m.findDocument(ctx, core.CollectionPerson, id)
	if err != nil || person == nil {
		return nil, err
	}
	interests := make([]map[string]any, 0)
	for _, in := range conv.Maps(person["interests"]) {
		interests = append(interests, map[string]any{"t": conv.String(in, "t")})
	}
	contact := conv.Map(person, "contact")
	rec := Record{
		"type":   string(core.ItemPerson),
		"id":     id,
		"ts":     "",
		"avatar": person["avatar"],
		"name":   person["name"],
		"indices": map[string]any{
			"pubs":      person["n_pubs"],
			"hindex":    person["h_index"],
			"citations": person["n_citation"],
		},
		"interests": interests,
		"contact": map[string]any{
			"address":        contact["address"],
			"affiliation":    contact["affiliation"],
			"affiliation_zh": contact["affiliation_zh"],
			"position":       contact["position"],
			"position_zh":    contact["position_zh"],
		},
		"num_viewed": 0,
	}
	if ts, ok := conv.Time(person, "na_ts"); ok {
		rec["ts"] = ts.Local().Format(core.DateTimeLayout)
	}
	if n := m.fetchViews(ctx, core.ItemPerson, id, useCache); n >= 0 {
		rec["num_viewed"] = n
	}
	return rec, nil
}

func (m *Materializer) buildPubTopic(ctx context.Context, id string) (Record, error) {
	topic, err := m.findDocument(ctx, core.CollectionPubTopic, id)
	if err != nil || topic == nil {
		return nil, err
	}

	labels, labelsZh := []string{}, []string{}
	if channelIDs := conv.Strings(topic, "channel"); len(channelIDs) > 0 {
		channels, err := m.records.FindByIDs(ctx, core.CollectionChannel, channelIDs)
		if err != nil {
			m.log(ctx).Warn().Err(err).Str("topic", id).Msg("fetch channels failed")
		}
		for _, c := range channels {
			labels = append(labels, conv.String(c, "name"))
			labelsZh = append(labelsZh, conv.String(c, "name_zh"))
		}
	}

	type authorCount struct {
		author map[string]any
		count  int
		order  int
	}
	var (
		first  Record
		papers = make([]Record, 0, topicMaxPapers)
		counts = make(map[string]*authorCount)
	)
	for idx, p := range conv.Maps(topic["must_reading"]) {
		pid := conv.String(p, "pid")
		if pid == "" {
			continue
		}
		paper, err := m.Materialize(ctx, pid, core.ItemPub, true)
		if err != nil {
			m.log(ctx).Warn().Err(err).Str("topic", id).Str("pid", pid).Msg("materialize must-reading paper failed")
			continue
		}
		if first.IsEmpty() {
			first = paper
		}
		if idx < topicMaxPapers {
			papers = append(papers, paper)
		}
		for _, a := range paper.Authors() {
			aid := conv.String(a, "id")
			if c, ok := counts[aid]; ok {
				c.count++
				continue
			}
			counts[aid] = &authorCount{author: a, count: 1, order: len(counts)}
		}
	}

	ranked := make([]*authorCount, 0, len(counts))
	for _, c := range counts {
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].order < ranked[j].order
	})
	if len(ranked) > topicMaxAuthors {
		ranked = ranked[:topicMaxAuthors]
	}
	authors := make([]map[string]any, 0, len(ranked))
	for _, c := range ranked {
		a := make(map[string]any, len(c.author)+1)
		for k, v := range c.author {
			a[k] = v
		}
		a["count"] = c.count
		authors = append(authors, a)
	}
	if first == nil {
		first = Record{}
	}

	rec := Record{
		"id":                  id,
		"type":                string(core.ItemPubTopic),
		"title":               conv.String(topic, "name"),
		"title_zh":            conv.String(topic, "name_zh"),
		"content":             conv.String(topic, "def"),
		"content_zh":          conv.String(topic, "def_zh"),
		"abstract":            "",
		"nodeNum":             conv.Int(topic, "must_reading_count"),
		"authors":             authors,
		"must_reading_paper":  first,
		"must_reading_papers": papers,
		"labels":              labels,
		"labels_zh":           labelsZh,
		"ts":                  "",
	}
	if ts, ok := conv.Time(topic, "created_time"); ok {
		rec["ts"] = ts.Local().Format(core.DateTimeLayout)
	}
	return rec, nil
}

func (m *Materializer) buildAI2K(ctx context.Context, id string) (Record, error) {
	doc, err := m.findDocument(ctx, core.CollectionAI2K, id)
	if err != nil || doc == nil {
		return nil, err
	}
	personIDs := conv.Strings(doc, "person_ids")
	top := personIDs
	if len(top) > ai2kMaxPersons {
		top = top[:ai2kMaxPersons]
	}

	persons := make([]map[string]any, 0, len(top))
	docs, err := m.records.FindByIDs(ctx, core.CollectionPerson, top)
	if err != nil {
		m.log(ctx).Warn().Err(err).Str("ai2k", id).Msg("fetch ai2k persons failed")
	}
	for _, p := range docs {
		persons = append(persons, map[string]any{
			"person_id": conv.String(p, "id"),
			"avatar":    p["avatar"],
			"name":      p["name"],
			"name_zh":   p["name_zh"],
		})
	}

	activities := make([]map[string]any, 0)
	if m.actions != nil && len(personIDs) > 0 {
		acts, err := m.actions.PersonActivities(ctx, personIDs, m.now().Add(-ai2kActivityWindow), ai2kMaxActivities)
		if err != nil {
			m.log(ctx).Warn().Err(err).Str("ai2k", id).Msg("fetch ai2k activities failed")
		}
		for _, a := range acts {
			pub := m.optionalDocument(ctx, core.CollectionPub, a.PubID)
			if pub == nil {
				continue
			}
			person := m.optionalDocument(ctx, core.CollectionPerson, a.PersonID)
			if person == nil {
				continue
			}
			activities = append(activities, map[string]any{
				"pub_id":         a.PubID,
				"venue":          map[string]any{"info": m.venueInfo(ctx, pub)},
				"year":           pub["year"],
				"title":          conv.String(pub, "title"),
				"event_time":     a.EventTime.Local().Format(core.DateTimeLayout),
				"person_id":      a.PersonID,
				"person_name":    conv.String(person, "name"),
				"person_name_zh": conv.String(person, "name_zh"),
			})
		}
	}

	return Record{
		"id":         id,
		"type":       string(core.ItemAI2K),
		"persons":    persons,
		"activities": activities,
	}, nil
}

func (m *Materializer) buildReport(ctx context.Context, id string) (Record, error) {
	report, err := m.findDocument(ctx, core.CollectionReport, id)
	if err != nil || report == nil {
		return nil, err
	}
	rec := Record{
		"id":           id,
		"type":         string(core.ItemReport),
		"title":        conv.String(report, "title"),
		"content":      "",
		"abstract":     conv.String(report, "abstract"),
		"venue":        report["author"],
		"nodeNum":      report["like"],
		"authors":      []any{},
		"figureUrls":   []any{report["image"]},
		"created_time": "",
	}
	if t, ok := conv.Time(report, "created_time"); ok {
		rec["created_time"] = t.Local().Format(reportDateLayout)
	}
	return rec, nil
}
