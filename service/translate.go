package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/logging"
	"github.com/louhangyu/zhipu/pkg/textutil"
)

// 目标语言
const (
	LangEnglish = "en"
	LangChinese = "zh-CHS"
)

// TranslateClient 是签名式翻译接口（有道 v3 签名）的客户端。
//
// 签名：sha256(appKey + input + salt + curtime + appSecret)，
// input 为 q 本身（不超过 20 字符）或 q[:10] + len(q) + q[-10:]。
type TranslateClient struct {
	http      *httpClient
	appID     string
	appSecret string
	now       func() time.Time
}

// NewTranslateClient 创建翻译客户端，默认超时 3s。
func NewTranslateClient(endpoint, appID, appSecret string, opts ...ClientOption) *TranslateClient {
	return &TranslateClient{
		http:      newHTTPClient("translate", endpoint, 3*time.Second, opts...),
		appID:     appID,
		appSecret: appSecret,
		now:       time.Now,
	}
}

// Translate 实现 core.Translator。目标为英文且原文不含汉字时原样返回。
func (c *TranslateClient) Translate(ctx context.Context, text, lang string) (string, error) {
	if lang == LangEnglish && !textutil.IsChinese(text) {
		return text, nil
	}
	salt := uuid.NewString()
	curtime := strconv.FormatInt(c.now().Unix(), 10)

	params := url.Values{}
	params.Set("q", text)
	params.Set("from", "auto")
	params.Set("to", lang)
	params.Set("appKey", c.appID)
	params.Set("salt", salt)
	params.Set("curtime", curtime)
	params.Set("signType", "v3")
	params.Set("sign", c.sign(text, salt, curtime))

	var resp struct {
		ErrorCode   string   `json:"errorCode"`
		Translation []string `json:"translation"`
	}
	if err := c.http.getJSON(ctx, "", params, &resp); err != nil {
		return text, err
	}
	if len(resp.Translation) == 0 {
		return text, c.http.unavailable(fmt.Sprintf("no translation, errorCode=%s", resp.ErrorCode), nil)
	}
	return strings.Join(resp.Translation, "\n"), nil
}

func (c *TranslateClient) sign(q, salt, curtime string) string {
	sum := sha256.Sum256([]byte(c.appID + signInput(q) + salt + curtime + c.appSecret))
	return hex.EncodeToString(sum[:])
}

func signInput(q string) string {
	runes := []rune(q)
	if len(runes) <= 20 {
		return q
	}
	return string(runes[:10]) + strconv.Itoa(len(runes)) + string(runes[len(runes)-10:])
}

// TranslationStore 是翻译结果的持久化缓存。
//
// 实现：
//   - datasource.SQLTranslationStore（chinese_english 表）
type TranslationStore interface {
	// Lookup 查找已有译文，找不到返回 ("", false, nil)
	Lookup(ctx context.Context, text string) (string, bool, error)
	// Save 保存译文
	Save(ctx context.Context, text, translated, translator string) error
}

// CachedTranslator 先查持久化缓存，未命中再调用翻译接口并回写。
// 只缓存中译英，其他方向直接透传。
type CachedTranslator struct {
	next  core.Translator
	store TranslationStore
	name  string
}

func NewCachedTranslator(next core.Translator, store TranslationStore, name string) *CachedTranslator {
	return &CachedTranslator{next: next, store: store, name: name}
}

// Translate 实现 core.Translator
func (t *CachedTranslator) Translate(ctx context.Context, text, lang string) (string, error) {
	if lang != LangEnglish || t.store == nil {
		return t.next.Translate(ctx, text, lang)
	}
	if !textutil.IsChinese(text) {
		return text, nil
	}
	if cached, ok, err := t.store.Lookup(ctx, text); err == nil && ok {
		return cached, nil
	}
	out, err := t.next.Translate(ctx, text, lang)
	if err != nil {
		return text, err
	}
	if out != "" && out != text {
		if err := t.store.Save(ctx, text, out, t.name); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("text", text).Msg("save translation failed")
		}
	}
	return out, nil
}

var (
	_ core.Translator = (*TranslateClient)(nil)
	_ core.Translator = (*CachedTranslator)(nil)
)
