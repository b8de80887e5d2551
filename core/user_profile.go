package core

import (
	"context"
	"time"
)

// UserProfile 是推荐链路使用的用户画像。
//
// 一句话定义：用户画像 = 召回的"订阅信号" + 排序的"兴趣向量" + 偏好模型的"人口特征"
//
// 设计要点：
//
//	维度          作用
//	订阅关键词    订阅召回 / 关键词推荐 / 订阅新论文统计
//	订阅学科      学科召回
//	兴趣向量      Stage A 兴趣相似度
//	性别 / 聚类   召回类型偏好模型的 one-hot 特征
type UserProfile struct {
	UID string

	// 订阅信号
	Keywords []string
	Subject  string

	// 兴趣向量，为空时兴趣分退化为最小相似度
	Vector []float64

	// 偏好模型特征，缺失时为 -1
	Gender  int
	Cluster int

	UpdateTime time.Time
}

// NewUserProfile 创建一个空画像。
func NewUserProfile(uid string) *UserProfile {
	return &UserProfile{
		UID:        uid,
		Gender:     -1,
		Cluster:    -1,
		UpdateTime: time.Now(),
	}
}

// HasVector 是否有可用的兴趣向量。
func (p *UserProfile) HasVector() bool {
	return p != nil && len(p.Vector) > 0
}

// ProfileStore 读取用户画像。
//
// 实现：
//   - datasource.ProfileStore（usr 文档 + user_vector 表）
type ProfileStore interface {
	// Profile 读取画像，不存在时返回空画像而不是错误
	Profile(ctx context.Context, uid string) (*UserProfile, error)

	// Profiles 批量读取，用于偏好模型打分
	Profiles(ctx context.Context, uids []string) ([]*UserProfile, error)
}
