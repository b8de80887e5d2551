package recall

import (
	"context"
	"fmt"
	"strings"

	"github.com/louhangyu/zhipu/aggregate"
	"github.com/louhangyu/zhipu/core"
)

// 召回理由
var (
	reasonBehavior     = core.Reason{Zh: "根据浏览兴趣为你推荐", En: "According to your actions"}
	reasonEditorHot    = core.Reason{Zh: "AI预测高引论文", En: "AI predicts highly cited papers"}
	reasonSearch       = core.Reason{Zh: "你可能想找这篇文章", En: "Papers you maybe interested in"}
	reasonRandomPerson = core.Reason{Zh: "该学者最近有新动态", En: "Maybe the scholar have new updates"}
)

// ReasonSubscribed 是订阅统计新论文的理由。
var ReasonSubscribed = core.Reason{Zh: "包含订阅词", En: "Subscribed"}

// paperFlag 按论文标签返回理由中的论文描述：新论文优先，其次高引。
func paperFlag(rec aggregate.Record) (en, zh string) {
	switch {
	case rec.HasLabel(aggregate.LabelNew):
		return "New", "最新论文"
	case rec.HasLabel(aggregate.LabelHighCitation):
		return "High Citation", "高引论文"
	default:
		return "", "论文"
	}
}

// keywordReason 生成订阅类召回理由，related 为 true 时是关联领域（知识图谱、推送）。
func keywordReason(rec aggregate.Record, keyword string, related bool) core.Reason {
	en, zh := paperFlag(rec)
	kw := fmt.Sprintf("「%s」", keyword)
	if related {
		return core.Reason{
			Zh: kw + "相关联领域的" + zh,
			En: strings.TrimSpace(en + " Paper in related " + kw),
		}
	}
	return core.Reason{
		Zh: kw + "领域的" + zh,
		En: strings.TrimSpace(en + " Paper in " + kw),
	}
}

// pubReason 物化论文后生成订阅理由，物化失败时按普通论文处理。
func pubReason(ctx context.Context, records RecordLoader, pubID, keyword string, related bool) core.Reason {
	var rec aggregate.Record
	if records != nil {
		r, err := records.Materialize(ctx, pubID, core.ItemPub, true)
		if err != nil {
			sourceLog(ctx, "reason").Warn().Err(err).Str("id", pubID).Msg("materialize pub failed")
		}
		rec = r
	}
	return keywordReason(rec, keyword, related)
}
