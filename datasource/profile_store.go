package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/conv"
)

// ProfileStore 组合用户文档（订阅关键词、学科）与 user_vector 表（兴趣向量、人口特征）。
type ProfileStore struct {
	db      *DB
	records core.RecordStore
}

// NewProfileStore 创建画像仓库，records 为空时只读取 user_vector 表。
func NewProfileStore(db *DB, records core.RecordStore) *ProfileStore {
	return &ProfileStore{db: db, records: records}
}

// Profile 读取画像，用户不存在时返回空画像。
func (s *ProfileStore) Profile(ctx context.Context, uid string) (*core.UserProfile, error) {
	p := core.NewUserProfile(uid)
	if uid == "" {
		return p, nil
	}

	if s.records != nil {
		doc, err := s.records.FindByID(ctx, core.CollectionUser, uid)
		switch {
		case err == nil:
			applyUserDocument(p, doc)
		case !core.IsStoreNotFound(err):
			return p, fmt.Errorf("datasource: profile %s: %w", uid, err)
		}
	}

	var (
		vector          sql.NullString
		gender, cluster int
		updated         int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT vector, gender, cluster, updated_at FROM user_vector WHERE uid = ?`, uid).
		Scan(&vector, &gender, &cluster, &updated)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return p, nil
	case err != nil:
		return p, fmt.Errorf("datasource: user vector %s: %w", uid, err)
	}
	if vector.Valid && vector.String != "" {
		if err := json.Unmarshal([]byte(vector.String), &p.Vector); err != nil {
			p.Vector = nil
		}
	}
	if gender >= 0 {
		p.Gender = gender
	}
	p.Cluster = cluster
	p.UpdateTime = time.Unix(updated, 0)
	return p, nil
}

// Profiles 批量读取画像，单个用户失败时保留空画像。
func (s *ProfileStore) Profiles(ctx context.Context, uids []string) ([]*core.UserProfile, error) {
	out := make([]*core.UserProfile, 0, len(uids))
	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		p, err := s.Profile(ctx, uid)
		if err != nil {
			p = core.NewUserProfile(uid)
		}
		out = append(out, p)
	}
	return out, nil
}

// SaveVector 写入用户兴趣向量与人口特征。
func (s *ProfileStore) SaveVector(ctx context.Context, p *core.UserProfile) error {
	data, err := json.Marshal(p.Vector)
	if err != nil {
		return fmt.Errorf("datasource: marshal vector: %w", err)
	}
	updated := p.UpdateTime
	if updated.IsZero() {
		updated = time.Now()
	}
	if _, err := s.db.ExecContext(ctx,
		s.db.upsertVerb()+` user_vector (uid, vector, gender, cluster, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.UID, string(data), p.Gender, p.Cluster, updated.Unix()); err != nil {
		return fmt.Errorf("datasource: save vector %s: %w", p.UID, err)
	}
	return nil
}

// applyUserDocument 从用户文档提取订阅：experts_topic[].input_name 与 subject。
func applyUserDocument(p *core.UserProfile, doc core.Document) {
	seen := make(map[string]struct{})
	for _, topic := range conv.Maps(doc["experts_topic"]) {
		name := strings.TrimSpace(conv.String(topic, "input_name"))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		p.Keywords = append(p.Keywords, name)
	}
	p.Subject = strings.TrimSpace(conv.String(doc, "subject"))
	if g, ok := doc["gender"]; ok {
		if v, ok := conv.ToInt(g); ok {
			p.Gender = v
		}
	}
}

var _ core.ProfileStore = (*ProfileStore)(nil)
