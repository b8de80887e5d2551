package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/logging"
)

// SQLRecordStore 在 documents 表上实现 core.RecordStore，文档以 JSON 存储。
type SQLRecordStore struct {
	db *DB
}

// NewSQLRecordStore 创建文档仓库
func NewSQLRecordStore(db *DB) *SQLRecordStore {
	return &SQLRecordStore{db: db}
}

// FindByID 按 id 读取一条文档，不存在时返回 core.ErrStoreNotFound。
func (s *SQLRecordStore) FindByID(ctx context.Context, collection, id string) (core.Document, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrStoreNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("datasource: find %s/%s: %w", collection, id, err)
	}
	return decodeDocument(collection, id, body)
}

// FindByIDs 批量读取，结果按 ids 顺序排列，缺失或损坏的文档跳过。
func (s *SQLRecordStore) FindByIDs(ctx context.Context, collection string, ids []string) ([]core.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, collection)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, body FROM documents WHERE collection = ? AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("datasource: find %s batch: %w", collection, err)
	}
	defer rows.Close()

	found := make(map[string]core.Document, len(ids))
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("datasource: scan document: %w", err)
		}
		doc, err := decodeDocument(collection, id, body)
		if err != nil {
			logging.Warn().Err(err).Str("collection", collection).Str("id", id).Msg("skip corrupt document")
			continue
		}
		found[id] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]core.Document, 0, len(found))
	for _, id := range ids {
		if doc, ok := found[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

// FindAll 读取集合全部文档，limit <= 0 表示不限制。
func (s *SQLRecordStore) FindAll(ctx context.Context, collection string, limit int) ([]core.Document, error) {
	q := `SELECT id, body FROM documents WHERE collection = ? ORDER BY id`
	args := []any{collection}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("datasource: find all %s: %w", collection, err)
	}
	defer rows.Close()

	var out []core.Document
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("datasource: scan document: %w", err)
		}
		doc, err := decodeDocument(collection, id, body)
		if err != nil {
			logging.Warn().Err(err).Str("collection", collection).Str("id", id).Msg("skip corrupt document")
			continue
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Put 写入或覆盖一条文档，文档中的 id 字段总是与 id 一致。
func (s *SQLRecordStore) Put(ctx context.Context, collection, id string, doc core.Document) error {
	if id == "" {
		return core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, "datasource: document id is empty")
	}
	body := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		body[k] = v
	}
	body["id"] = id
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("datasource: marshal %s/%s: %w", collection, id, err)
	}
	if _, err := s.db.ExecContext(ctx,
		s.db.upsertVerb()+` documents (collection, id, body) VALUES (?, ?, ?)`,
		collection, id, string(data)); err != nil {
		return fmt.Errorf("datasource: put %s/%s: %w", collection, id, err)
	}
	return nil
}

func decodeDocument(collection, id, body string) (core.Document, error) {
	var doc core.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeDataIntegrity,
			fmt.Sprintf("datasource: decode %s/%s", collection, id), err)
	}
	if doc == nil {
		doc = core.Document{}
	}
	if _, ok := doc["id"]; !ok {
		doc["id"] = id
	}
	return doc, nil
}

var _ core.RecordStore = (*SQLRecordStore)(nil)
