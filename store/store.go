// Package store 提供 core.Store / core.KeyValueStore 的实现与 gzip JSON 缓存。
//
// 注意：此包只包含实现，接口定义在 core 包。
//
// 示例：
//
//	var kv core.KeyValueStore = store.NewMemoryStore()
//	cache := store.NewCache(kv)
package store

import (
	"fmt"

	"github.com/louhangyu/zhipu/core"
)

// 存储后端名称
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

// Options 选择并配置存储后端。
type Options struct {
	Backend   string
	Redis     RedisOptions
	BadgerDir string
}

// Open 按 Options.Backend 打开存储，空值使用内存实现。
func Open(opts Options) (core.KeyValueStore, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		return NewRedisStore(opts.Redis)
	case BackendBadger:
		return OpenBadgerStore(opts.BadgerDir)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

// 曝光 / 点击历史有序集合上限
const HistoryLimit = core.MaxNumShow

// ShowHistoryKey 返回曝光历史有序集合的 key，冷启动用户返回空字符串。
func ShowHistoryKey(id core.Identity) string {
	switch {
	case id.UID != "":
		return "uid_show1_" + id.UID
	case id.UD != "":
		return "ud_show1_" + core.CleanUD(id.UD)
	default:
		return ""
	}
}

// ClickHistoryKey 返回点击历史有序集合的 key，冷启动用户返回空字符串。
func ClickHistoryKey(id core.Identity) string {
	switch {
	case id.UID != "":
		return "uid_click_" + id.UID
	case id.UD != "":
		return "ud_click_" + core.CleanUD(id.UD)
	default:
		return ""
	}
}
