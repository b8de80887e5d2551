package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLTranslationStore 把中译英结果保存在 chinese_english 表，实现 service.TranslationStore。
type SQLTranslationStore struct {
	db *DB
}

// NewSQLTranslationStore 创建翻译缓存
func NewSQLTranslationStore(db *DB) *SQLTranslationStore {
	return &SQLTranslationStore{db: db}
}

// Lookup 查找已有译文
func (s *SQLTranslationStore) Lookup(ctx context.Context, text string) (string, bool, error) {
	var english string
	err := s.db.QueryRowContext(ctx,
		`SELECT english FROM chinese_english WHERE chinese = ?`, strings.TrimSpace(text)).Scan(&english)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("datasource: lookup translation: %w", err)
	}
	return english, english != "", nil
}

// Save 保存译文，同一原文以最后一次为准。
func (s *SQLTranslationStore) Save(ctx context.Context, text, translated, translator string) error {
	if _, err := s.db.ExecContext(ctx,
		s.db.upsertVerb()+` chinese_english (chinese, english, translator, created_at) VALUES (?, ?, ?, ?)`,
		strings.TrimSpace(text), translated, translator, time.Now().Unix()); err != nil {
		return fmt.Errorf("datasource: save translation: %w", err)
	}
	return nil
}
