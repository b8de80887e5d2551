// Package dsl 是候选物品的规则表达式，使用 CEL (Common Expression Language) 实现。
package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/louhangyu/zhipu/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once

	// programs 缓存编译后的表达式
	programs sync.Map // expr -> cel.Program
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("item", cel.DynType),
			cel.Variable("rctx", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// Compile 编译表达式并缓存，重复的表达式只编译一次。
func Compile(expr string) (cel.Program, error) {
	if prg, ok := programs.Load(expr); ok {
		return prg.(cel.Program), nil
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	programs.Store(expr, prg)
	return prg, nil
}

// Eval 是候选物品的规则解释器。
//
// 表达式语法（CEL 标准语法）：
//   - 召回类型：item.recall_type == "editor_hot"
//   - 数值：item.score > 0.7
//   - 展示字段：item.extra.year >= 2023 / "New" in item.extra.labels
//   - 用户：rctx.user_type == "cold" / rctx.ab_flag == "b"
//   - 逻辑：item.type == "pub" && item.score > 0.5
//
// 注意：访问不存在的 key 会报错，使用 has(item.extra.year) 检查存在性。
type Eval struct {
	item *core.Item
	rctx *core.RecommendContext
}

// NewEval 绑定一个候选和请求上下文，rctx 可以为 nil。
func NewEval(item *core.Item, rctx *core.RecommendContext) *Eval {
	return &Eval{item: item, rctx: rctx}
}

// Evaluate 执行表达式，空表达式恒为 true。
func (e *Eval) Evaluate(expr string) (bool, error) {
	if expr == "" {
		return true, nil
	}
	prg, err := Compile(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(e.buildInput())
	if err != nil {
		return false, fmt.Errorf("eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

func (e *Eval) buildInput() map[string]any {
	extra := e.item.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	item := map[string]any{
		"id":             e.item.ID,
		"type":           string(e.item.Type),
		"score":          e.item.Score,
		"recall_type":    string(e.item.RecallType),
		"recall_source":  e.item.RecallSource,
		"recall_keyword": e.item.RecallKeyword,
		"extra":          extra,
	}

	rctx := map[string]any{
		"uid":       "",
		"ud":        "",
		"user_type": string(core.UserCold),
		"keyword":   "",
		"count":     0,
		"ab_flag":   "",
		"params":    map[string]any{},
	}
	if e.rctx != nil {
		rctx["uid"] = e.rctx.UID
		rctx["ud"] = e.rctx.UD
		rctx["user_type"] = string(e.rctx.Type())
		rctx["keyword"] = e.rctx.Keyword
		rctx["count"] = e.rctx.Count
		rctx["ab_flag"] = e.rctx.ABFlag
		if e.rctx.Params != nil {
			rctx["params"] = e.rctx.Params
		}
	}

	return map[string]any{
		"item": item,
		"rctx": rctx,
	}
}
