package rank

import (
	"context"
	"strings"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/logging"
	"github.com/louhangyu/zhipu/pkg/score"
	"github.com/louhangyu/zhipu/pkg/textutil"
)

// MinSimilarity 是没有兴趣向量时的兴趣分
const MinSimilarity = 0.001

// Interest 计算用户兴趣向量与物品文本向量的余弦相似度。
type Interest struct {
	profiles core.ProfileStore
	embed    core.EmbeddingService
}

func NewInterest(profiles core.ProfileStore, embed core.EmbeddingService) *Interest {
	return &Interest{profiles: profiles, embed: embed}
}

// Similarities 返回与 texts 一一对应的相似度。
//
// 规则：
//   - 只有合法 uid 才有兴趣向量，其他情况全部为 MinSimilarity
//   - 空白文本为 MinSimilarity
//   - 文本向量化失败时为 0
func (in *Interest) Similarities(ctx context.Context, id core.Identity, texts []string) []float64 {
	out := make([]float64, len(texts))
	for i := range out {
		out[i] = MinSimilarity
	}
	if in == nil || in.profiles == nil || in.embed == nil || !textutil.IsObjectID(id.UID) {
		return out
	}
	p, err := in.profiles.Profile(ctx, id.UID)
	if err != nil || !p.HasVector() {
		return out
	}

	idx := make([]int, 0, len(texts))
	batch := make([]string, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		idx = append(idx, i)
		batch = append(batch, t)
	}
	if len(batch) == 0 {
		return out
	}
	vectors, err := in.embed.EmbedBatch(ctx, batch)
	if err != nil || len(vectors) != len(batch) {
		logging.Ctx(ctx).Warn().Err(err).Str("component", "rank").Str("uid", id.UID).Msg("embed texts failed")
		for _, i := range idx {
			out[i] = 0
		}
		return out
	}
	for j, i := range idx {
		out[i] = score.Cosine(p.Vector, vectors[j])
	}
	return out
}
