// Package conv 提供类型转换与文档字段读取的泛型工具。
//
// 记录库文档、缓存记录和 YAML 配置解码后都是 map[string]any，数字可能是
// int、int64、float64 或 json.Number，这里统一处理。
package conv

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ToFloat64 将 any 转为 float64。
// 支持各种数字类型与 json.Number；bool 视为 1.0/0.0；数字字符串会被解析。
func ToFloat64(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	case bool:
		if val {
			return 1.0, true
		}
		return 0.0, true
	default:
		return 0, false
	}
}

// ToInt 将 any 转为 int，浮点数向零截断。
func ToInt(v any) (int, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case int32:
		return int(val), true
	default:
		f, ok := ToFloat64(v)
		return int(f), ok
	}
}

// ToString 将 any 转为 string。
// 仅支持 string 类型，否则返回 ("", false)。
func ToString(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// TypeAssert 对 v 做类型断言为 T，等价于 v.(T) 的 (val, ok) 形式。
func TypeAssert[T any](v any) (T, bool) {
	t, ok := v.(T)
	return t, ok
}

// ConvertSlice 将 []T 按 convert 转为 []U，convert 返回 false 的元素被跳过。
func ConvertSlice[T, U any](s []T, convert func(T) (U, bool)) []U {
	if s == nil {
		return nil
	}
	out := make([]U, 0, len(s))
	for _, v := range s {
		if u, ok := convert(v); ok {
			out = append(out, u)
		}
	}
	return out
}

// SliceAnyToString 将 []any 或 []string 转为 []string。
// 元素为 string 直接保留，为数字时格式化为 "%.0f"。
func SliceAnyToString(v any) []string {
	switch raw := v.(type) {
	case []string:
		return raw
	case []any:
		return ConvertSlice(raw, func(e any) (string, bool) {
			if s, ok := e.(string); ok {
				return s, true
			}
			if f, ok := ToFloat64(e); ok {
				return fmt.Sprintf("%.0f", f), true
			}
			return "", false
		})
	default:
		return nil
	}
}

// Maps 将 []any 中的 map 元素取出，其他元素跳过。
func Maps(v any) []map[string]any {
	switch raw := v.(type) {
	case []map[string]any:
		return raw
	case []any:
		return ConvertSlice(raw, func(e any) (map[string]any, bool) {
			return AsMap(e)
		})
	default:
		return nil
	}
}

// AsMap 把 map[string]any 及其具名类型（如 core.Document）统一为 map[string]any。
func AsMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case interface{ AsMap() map[string]any }:
		return m.AsMap(), true
	default:
		return nil, false
	}
}

// String 读取文档中的字符串字段，缺失时返回空字符串。
func String(m map[string]any, key string) string {
	s, _ := ToString(m[key])
	return s
}

// Float 读取文档中的数字字段，缺失时返回 0。
func Float(m map[string]any, key string) float64 {
	f, _ := ToFloat64(m[key])
	return f
}

// Int 读取文档中的整数字段，缺失时返回 0。
func Int(m map[string]any, key string) int {
	i, _ := ToInt(m[key])
	return i
}

// Bool 读取布尔字段。
func Bool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

// Map 读取嵌套文档，缺失时返回 nil。
func Map(m map[string]any, key string) map[string]any {
	sub, _ := AsMap(m[key])
	return sub
}

// Strings 读取字符串数组字段。
func Strings(m map[string]any, key string) []string {
	return SliceAnyToString(m[key])
}

// Time 读取时间字段：time.Time、RFC3339 / "2006-01-02 15:04:05" 字符串或 unix 秒。
func Time(m map[string]any, key string) (time.Time, bool) {
	switch v := m[key].(type) {
	case time.Time:
		return v, !v.IsZero()
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	default:
		if sec, ok := ToFloat64(v); ok && sec > 0 {
			return time.Unix(int64(sec), 0), true
		}
		return time.Time{}, false
	}
}

// ConfigGet 从 map[string]any（如 YAML/JSON 解析结果）按 key 取 T，取不到或类型不符时返回 defaultVal。
func ConfigGet[T any](m map[string]any, key string, defaultVal T) T {
	if m == nil {
		return defaultVal
	}
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	t, ok := v.(T)
	if !ok {
		return defaultVal
	}
	return t
}

// ConfigGetFloat64 从 config 取 float64。YAML 常把 1 解析为 int，此处兼容。
func ConfigGetFloat64(m map[string]any, key string, defaultVal float64) float64 {
	if f, ok := ToFloat64(m[key]); ok {
		return f
	}
	return defaultVal
}

// ConfigGetInt64 从 config 取 int64。YAML/JSON 常得到 int 或 float64，此处兼容并统一为 int64。
func ConfigGetInt64(m map[string]any, key string, defaultVal int64) int64 {
	if i, ok := ToInt(m[key]); ok {
		return int64(i)
	}
	return defaultVal
}
