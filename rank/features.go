// Package rank 是 Stage A 排序：按物品属性、用户兴趣与点击率先验为候选重新打分。
package rank

import (
	"context"
	"strings"
	"time"

	"github.com/louhangyu/zhipu/aggregate"
	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/conv"
	"github.com/louhangyu/zhipu/pkg/logging"
)

// 期刊分区对应的 district 值
const (
	districtSCIQ1 = 1
	districtCCFA  = 10
)

// RecordLoader 读取物品的物化记录。
type RecordLoader interface {
	Materialize(ctx context.Context, id string, typ core.ItemType, useCache bool) (aggregate.Record, error)
}

// Feature 是 Stage A 使用的物品特征。
type Feature struct {
	Key      core.ItemKey
	TS       time.Time // 零值表示没有入库时间，不做时间衰减
	Citation float64
	Views    float64
	District float64
	Text     string // 标题 + "\n" + 摘要，用于兴趣相似度
}

// BuildFeatures 为论文、专题与学者构建特征；其他类型、物化失败或没有文本的物品不出现在结果中。
// 返回的 keys 保持 items 中首次出现的顺序。
func BuildFeatures(ctx context.Context, records RecordLoader, items []*core.Item) ([]Feature, map[core.ItemKey]Feature) {
	byKey := make(map[core.ItemKey]Feature, len(items))
	ordered := make([]Feature, 0, len(items))
	for _, it := range items {
		key := it.Key()
		if _, ok := byKey[key]; ok {
			continue
		}
		f, ok := buildFeature(ctx, records, key)
		if !ok {
			continue
		}
		byKey[key] = f
		ordered = append(ordered, f)
	}
	return ordered, byKey
}

func buildFeature(ctx context.Context, records RecordLoader, key core.ItemKey) (Feature, bool) {
	switch key.Type {
	case core.ItemPub, core.ItemPubTopic, core.ItemPerson:
	default:
		return Feature{}, false
	}
	rec, err := records.Materialize(ctx, key.ID, key.Type, true)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("component", "rank").
			Str("id", key.ID).Str("type", string(key.Type)).Msg("materialize failed")
		return Feature{}, false
	}
	if rec.IsEmpty() {
		return Feature{}, false
	}

	f := Feature{Key: key}
	if ts, ok := rec.TS(); ok {
		f.TS = ts
	}
	var title, abstract string
	switch key.Type {
	case core.ItemPub:
		f.Citation = rec.NumCitation()
		f.Views = rec.NumViewed()
		f.District = district(rec)
		title = orElse(rec.Title(), conv.String(rec, "title_zh"))
		abstract = orElse(rec.Abstract(), conv.String(rec, "abstract_zh"))
	case core.ItemPubTopic:
		f.Citation = conv.Float(rec, "num_like")
		f.Views = rec.NumViewed()
		title = orElse(rec.Title(), conv.String(rec, "title_zh"))
		abstract = orElse(conv.String(rec, "content"), conv.String(rec, "content_zh"))
	case core.ItemPerson:
		_, pubs, citations := rec.Indices()
		f.Citation = citations
		f.Views = pubs
		title = conv.String(rec, "name")
		var interests []string
		for _, in := range conv.Maps(rec["interests"]) {
			if t := conv.String(in, "t"); t != "" {
				interests = append(interests, t)
			}
		}
		abstract = strings.Join(interests, " ")
	}
	if title == "" && abstract == "" {
		return Feature{}, false
	}
	f.Text = title + "\n" + abstract
	return f, true
}

// district 把期刊分区映射为数值：CJCR 1 区为 1，CCF A 为 10，其他为 0。
func district(rec aggregate.Record) float64 {
	switch {
	case aggregate.IsSCIQ1(rec):
		return districtSCIQ1
	case aggregate.IsCCFA(rec):
		return districtCCFA
	default:
		return 0
	}
}

func orElse(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
