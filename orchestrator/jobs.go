package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/model"
	"github.com/louhangyu/zhipu/pkg/textutil"
	"github.com/louhangyu/zhipu/rank"
	"github.com/louhangyu/zhipu/rerank"
)

// 统计窗口
const (
	qualityWindow  = 60 * 24 * time.Hour
	affinityWindow = 90 * 24 * time.Hour
)

// ItemStatLog 汇总物品的曝光 / 点击。
type ItemStatLog interface {
	ItemStats(ctx context.Context, since time.Time) ([]core.ItemStat, error)
}

// QualityJob 计算最近 60 天每个物品的质量分并写入缓存。
type QualityJob struct {
	stats ItemStatLog
	store *rank.QualityStore
	now   func() time.Time
}

func NewQualityJob(stats ItemStatLog, store *rank.QualityStore) *QualityJob {
	return &QualityJob{stats: stats, store: store, now: time.Now}
}

// Run 返回写入的物品数；未知类型与空 id 跳过。
func (j *QualityJob) Run(ctx context.Context) (int, error) {
	stats, err := j.stats.ItemStats(ctx, j.now().Add(-qualityWindow))
	if err != nil {
		return 0, fmt.Errorf("orchestrator: item stats: %w", err)
	}
	n := 0
	for _, st := range stats {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		typ := core.ItemTypeOfLog(st.Type)
		if typ == "" || st.ItemID == "" {
			continue
		}
		if err := j.store.Save(ctx, rank.NewQuality(typ, st)); err != nil {
			logger(ctx, "quality").Warn().Err(err).Str("item", st.ItemID).Msg("save quality failed")
			continue
		}
		n++
	}
	logger(ctx, "quality").Info().Int("stats", len(stats)).Int("saved", n).Msg("quality job done")
	return n, nil
}

// AffinityJob 用离线训练好的逻辑回归为最近 90 天活跃的 uid 计算每个召回类型的点击概率。
//
// 特征：
//
//	gender_{i}      性别 one-hot（类别按取值排序）
//	cluster_{j}     聚类 one-hot
//	recall_type_id  召回类型在 core.RecallTypes 中的下标
type AffinityJob struct {
	users    UserLog
	profiles core.ProfileStore
	model    model.RankModel
	affinity *rerank.Affinity
	now      func() time.Time
}

func NewAffinityJob(users UserLog, profiles core.ProfileStore, m model.RankModel, affinity *rerank.Affinity) *AffinityJob {
	return &AffinityJob{users: users, profiles: profiles, model: m, affinity: affinity, now: time.Now}
}

// Run 返回写入偏好的用户数。
func (j *AffinityJob) Run(ctx context.Context) (int, error) {
	uids, err := j.users.ActiveUIDs(ctx, j.now().Add(-affinityWindow))
	if err != nil {
		return 0, fmt.Errorf("orchestrator: active uids: %w", err)
	}
	valid := uids[:0:0]
	for _, uid := range uids {
		if textutil.IsObjectID(uid) {
			valid = append(valid, uid)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}
	profiles, err := j.profiles.Profiles(ctx, valid)
	if err != nil {
		return 0, fmt.Errorf("orchestrator: profiles: %w", err)
	}

	genders := oneHotIndex(profiles, func(p *core.UserProfile) int { return p.Gender })
	clusters := oneHotIndex(profiles, func(p *core.UserProfile) int { return p.Cluster })

	n := 0
	for _, p := range profiles {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		probs, err := j.predict(p, genders, clusters)
		if err != nil {
			logger(ctx, "affinity").Warn().Err(err).Str("uid", p.UID).Msg("predict affinity failed")
			continue
		}
		if err := j.affinity.Save(ctx, p.UID, probs); err != nil {
			logger(ctx, "affinity").Warn().Err(err).Str("uid", p.UID).Msg("save affinity failed")
			continue
		}
		n++
	}
	logger(ctx, "affinity").Info().Int("users", len(profiles)).Int("saved", n).Msg("affinity job done")
	return n, nil
}

func (j *AffinityJob) predict(p *core.UserProfile, genders, clusters map[int]int) (map[core.RecallType]float64, error) {
	base := make(map[string]float64, len(genders)+len(clusters)+1)
	for v, i := range genders {
		base["gender_"+strconv.Itoa(i)] = boolFloat(v == p.Gender)
	}
	for v, i := range clusters {
		base["cluster_"+strconv.Itoa(i)] = boolFloat(v == p.Cluster)
	}
	probs := make(map[core.RecallType]float64, len(core.RecallTypes))
	for i, rt := range core.RecallTypes {
		base["recall_type_id"] = float64(i)
		prob, err := j.model.Predict(base)
		if err != nil {
			return nil, err
		}
		probs[rt] = prob
	}
	return probs, nil
}

// oneHotIndex 把取值排序后映射为 one-hot 下标。
func oneHotIndex(profiles []*core.UserProfile, value func(*core.UserProfile) int) map[int]int {
	var values []int
	seen := make(map[int]struct{})
	for _, p := range profiles {
		v := value(p)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	sort.Ints(values)
	out := make(map[int]int, len(values))
	for i, v := range values {
		out[v] = i
	}
	return out
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
