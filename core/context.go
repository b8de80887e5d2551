package core

// RecommendContext 承载用户身份、召回数量、关键词与请求参数，贯穿召回、排序与下发。
type RecommendContext struct {
	Identity

	// Keyword 非空时走关键词召回路径。
	Keyword string

	// Count 是期望的候选数量，召回源按需均分给各个关键词。
	Count int

	// ABFlag 是实验分组（a / b）。
	ABFlag string

	// Params 请求级参数：first_reach、user_agent 等。
	Params map[string]any
}

// NewRecommendContext 创建上下文，count <= 0 时使用 100。
func NewRecommendContext(id Identity, keyword string, count int) *RecommendContext {
	if count <= 0 {
		count = 100
	}
	return &RecommendContext{
		Identity: id,
		Keyword:  keyword,
		Count:    count,
		Params:   make(map[string]any),
	}
}

// Param 读取请求参数。
func (rctx *RecommendContext) Param(key string) (any, bool) {
	if rctx.Params == nil {
		return nil, false
	}
	v, ok := rctx.Params[key]
	return v, ok
}

// WithCount 复制上下文并替换 Count。
func (rctx *RecommendContext) WithCount(count int) *RecommendContext {
	cp := *rctx
	cp.Count = count
	return &cp
}

// WithKeyword 复制上下文并替换 Keyword。
func (rctx *RecommendContext) WithKeyword(keyword string) *RecommendContext {
	cp := *rctx
	cp.Keyword = keyword
	return &cp
}
