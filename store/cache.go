package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/metrics"
)

// Cache 在 core.Store 之上提供 JSON + gzip 编码的读写。
//
// 约定：
//   - 值先用 JSON 编码，再 gzip 压缩
//   - 解码失败（截断、非 gzip、非法 JSON）按未命中处理，返回 DATA_INTEGRITY
//   - 写入总是带 TTL，后写覆盖先写
type Cache struct {
	store core.Store
}

func NewCache(s core.Store) *Cache {
	return &Cache{store: s}
}

// Store 返回底层存储。
func (c *Cache) Store() core.Store { return c.store }

// KV 返回底层存储的 KeyValueStore 视图，不支持时返回 nil。
func (c *Cache) KV() core.KeyValueStore {
	kv, _ := c.store.(core.KeyValueStore)
	return kv
}

// Get 读取并解码到 v，不存在时返回 core.ErrStoreNotFound。
func (c *Cache) Get(ctx context.Context, key string, v any) error {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return err
	}
	return Decode(raw, v)
}

// GetRaw 读取并解压，返回 JSON 字节。
func (c *Cache) GetRaw(ctx context.Context, key string) ([]byte, error) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return gunzip(raw)
}

// SetEX 编码 v 并以 ttl 写入。
func (c *Cache) SetEX(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, key, data, ttlSeconds(ttl))
}

// MultiGet 一次读取多个 key，返回解压后的 JSON；缺失与损坏的 key 不出现在结果中。
func (c *Cache) MultiGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	raws, err := c.store.BatchGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(raws))
	for k, raw := range raws {
		data, err := gunzip(raw)
		if err != nil {
			metrics.CacheCorrupt.Inc()
			continue
		}
		out[k] = data
	}
	return out, nil
}

// Delete 删除 key。
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// GetString 读取未编码的原始值（时间戳等）。
func (c *Cache) GetString(ctx context.Context, key string) (string, error) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// SetString 写入未编码的原始值。
func (c *Cache) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.store.Set(ctx, key, []byte(value), ttlSeconds(ttl))
}

// Encode 把 v 编码为 gzip 压缩的 JSON。
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode cache value: %w", err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("gzip cache value: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip cache value: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode 是 Encode 的逆操作，损坏的内容返回 DATA_INTEGRITY 错误。
func Decode(raw []byte, v any) error {
	data, err := gunzip(raw)
	if err != nil {
		metrics.CacheCorrupt.Inc()
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		metrics.CacheCorrupt.Inc()
		return core.WrapDomainError(core.ModuleStore, core.ErrorCodeDataIntegrity, "store: bad cache payload", err)
	}
	return nil
}

func gunzip(raw []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeDataIntegrity, "store: bad gzip header", err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeDataIntegrity, "store: truncated gzip payload", err)
	}
	return data, nil
}

func ttlSeconds(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	sec := int(ttl / time.Second)
	if sec == 0 {
		sec = 1
	}
	return sec
}
