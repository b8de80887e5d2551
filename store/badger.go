package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/louhangyu/zhipu/core"
)

// key 前缀，把有序集合与哈希和普通 key 隔开
const (
	badgerZSetPrefix = "zset:"
	badgerHashPrefix = "hash:"
)

// BadgerStore 是 BadgerDB 实现的 KeyValueStore，单机部署时的持久化缓存。
// 有序集合整体以 JSON 存放在一个 key 下，适合曝光/点击这类上限 2000 的小集合。
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore 在 dir 下打开（或创建）数据库。
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore 复用已打开的数据库。
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (b *BadgerStore) Name() string { return "badger" }

func (b *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		v, err := getValue(txn, key)
		out = v
		return err
	})
	return out, err
}

func (b *BadgerStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(newEntry(key, value, ttl))
	})
}

func (b *BadgerStore) Delete(ctx context.Context, key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, k := range []string{key, badgerZSetPrefix + key} {
			if err := txn.Delete([]byte(k)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("delete %s: %w", k, err)
			}
		}
		return nil
	})
}

func (b *BadgerStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	err := b.db.View(func(txn *badger.Txn) error {
		for _, k := range keys {
			v, err := getValue(txn, k)
			if core.IsStoreNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			result[k] = v
		}
		return nil
	})
	return result, err
}

func (b *BadgerStore) BatchSet(ctx context.Context, kvs map[string][]byte, ttl ...int) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for k, v := range kvs {
		if err := wb.SetEntry(newEntry(k, v, ttl)); err != nil {
			return fmt.Errorf("batch set %s: %w", k, err)
		}
	}
	return wb.Flush()
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func getValue(txn *badger.Txn, key string) ([]byte, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, core.ErrStoreNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return item.ValueCopy(nil)
}

func newEntry(key string, value []byte, ttl []int) *badger.Entry {
	e := badger.NewEntry([]byte(key), value)
	if len(ttl) > 0 && ttl[0] > 0 {
		e = e.WithTTL(time.Duration(ttl[0]) * time.Second)
	}
	return e
}

var _ core.KeyValueStore = (*BadgerStore)(nil)

// updateZSet 在一个事务内读出、修改并写回有序集合。
func (b *BadgerStore) updateZSet(key string, fn func(zset map[string]float64)) error {
	zkey := badgerZSetPrefix + key
	return b.db.Update(func(txn *badger.Txn) error {
		zset, err := loadZSet(txn, zkey)
		if err != nil {
			return err
		}
		fn(zset)
		data, err := json.Marshal(zset)
		if err != nil {
			return fmt.Errorf("marshal zset %s: %w", key, err)
		}
		return txn.Set([]byte(zkey), data)
	})
}

func (b *BadgerStore) viewZSet(key string) (map[string]float64, error) {
	var zset map[string]float64
	err := b.db.View(func(txn *badger.Txn) error {
		z, err := loadZSet(txn, badgerZSetPrefix+key)
		zset = z
		return err
	})
	return zset, err
}

func loadZSet(txn *badger.Txn, zkey string) (map[string]float64, error) {
	zset := make(map[string]float64)
	raw, err := getValue(txn, zkey)
	if core.IsStoreNotFound(err) {
		return zset, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &zset); err != nil {
		return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeDataIntegrity, "store: corrupt zset "+zkey, err)
	}
	return zset, nil
}

func (b *BadgerStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return b.updateZSet(key, func(zset map[string]float64) {
		zset[member] = score
	})
}

func (b *BadgerStore) ZIncrBy(ctx context.Context, key string, incr float64, member string) (float64, error) {
	var score float64
	err := b.updateZSet(key, func(zset map[string]float64) {
		zset[member] += incr
		score = zset[member]
	})
	return score, err
}

func (b *BadgerStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	pairs, err := b.ZRangeWithScores(ctx, key, start, stop)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, p.Member)
	}
	return out, nil
}

func (b *BadgerStore) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]core.ZMember, error) {
	zset, err := b.viewZSet(key)
	if err != nil {
		return nil, err
	}
	pairs := sortedMembers(zset, true)
	lo, hi, ok := clampRange(start, stop, len(pairs))
	if !ok {
		return nil, nil
	}
	return pairs[lo : hi+1], nil
}

func (b *BadgerStore) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error {
	return b.updateZSet(key, func(zset map[string]float64) {
		pairs := sortedMembers(zset, false)
		lo, hi, ok := clampRange(start, stop, len(pairs))
		if !ok {
			return
		}
		for _, p := range pairs[lo : hi+1] {
			delete(zset, p.Member)
		}
	})
}

func (b *BadgerStore) ZScore(ctx context.Context, key string, member string) (float64, error) {
	zset, err := b.viewZSet(key)
	if err != nil {
		return 0, err
	}
	score, ok := zset[member]
	if !ok {
		return 0, core.ErrStoreNotFound
	}
	return score, nil
}

func hashKey(key, field string) string {
	return badgerHashPrefix + key + ":" + field
}

func (b *BadgerStore) HGet(ctx context.Context, key, field string) ([]byte, error) {
	return b.Get(ctx, hashKey(key, field))
}

func (b *BadgerStore) HSet(ctx context.Context, key, field string, value []byte) error {
	return b.Set(ctx, hashKey(key, field), value)
}

func (b *BadgerStore) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	prefix := []byte(badgerHashPrefix + key + ":")
	result := make(map[string][]byte)
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result[strings.TrimPrefix(string(item.Key()), string(prefix))] = v
		}
		return nil
	})
	return result, err
}
