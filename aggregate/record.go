// Package aggregate 把 (id, type) 物品引用物化为可缓存的展示记录。
//
// 物化记录以 gzip JSON 写入缓存：论文、学者、榜单缓存 7 天，专题与报道缓存 30 天。
// 缓存缺失时从记录库重新计算，计算失败只记录日志，不向调用方传播。
package aggregate

import (
	"strings"
	"time"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/conv"
)

// Record 是物化后的物品记录，字段与下发给前端的结构一致。
type Record map[string]any

// IsEmpty 记录为空（物品不存在或 id 非法）。
func (r Record) IsEmpty() bool { return len(r) == 0 }

// AsMap 返回底层 map。
func (r Record) AsMap() map[string]any { return r }

func (r Record) ID() string { return conv.String(r, "id") }

func (r Record) Type() core.ItemType { return core.ItemType(conv.String(r, "type")) }

func (r Record) Title() string { return conv.String(r, "title") }

func (r Record) Abstract() string { return conv.String(r, "abstract") }

func (r Record) Year() int { return conv.Int(r, "year") }

func (r Record) NumCitation() float64 { return conv.Float(r, "num_citation") }

func (r Record) NumViewed() float64 { return conv.Float(r, "num_viewed") }

// TS 是论文入库时间，缺失或格式错误时返回 false。
func (r Record) TS() (time.Time, bool) {
	ts := conv.String(r, "ts")
	if ts == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(core.DateTimeLayout, ts, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Labels 返回英文标签。
func (r Record) Labels() []string { return conv.Strings(r, "labels") }

// LabelsZh 返回中文标签。
func (r Record) LabelsZh() []string { return conv.Strings(r, "labels_zh") }

// HasLabel 英文标签中是否包含 label。
func (r Record) HasLabel(label string) bool {
	for _, l := range r.Labels() {
		if l == label {
			return true
		}
	}
	return false
}

// SCIQ 返回期刊分区，key 为来源（CJCR / CCF）。
func (r Record) SCIQ() map[string]any { return conv.Map(r, "sciq") }

// Authors 返回作者列表。
func (r Record) Authors() []map[string]any { return conv.Maps(r["authors"]) }

// Versions 返回论文的收录版本。
func (r Record) Versions() []map[string]any { return conv.Maps(r["versions"]) }

// Text 是用于计算兴趣相似度的文本：标题与摘要以换行拼接。
func (r Record) Text() string {
	return strings.TrimSpace(r.Title() + "\n" + r.Abstract())
}

// Indices 返回学者的 h-index、论文数与引用数。
func (r Record) Indices() (hindex, pubs, citations float64) {
	idx := conv.Map(r, "indices")
	return conv.Float(idx, "hindex"), conv.Float(idx, "pubs"), conv.Float(idx, "citations")
}

// clone 复制一层，嵌套结构共享。
func (r Record) clone() Record {
	cp := make(Record, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}
