package datasource

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/logging"
)

// 数据集文件名中的日期格式
const (
	behaviorDateLayout = "2006_01_02"
	pushDateLayout     = "2006-01-02"
)

// 数据集在远端的目录
const (
	pathSubscribeOAG = "meta/subscribe_oag/"
	pathSubscribeKG  = "meta/subscribe_children_kg/subscribe_children_kg.json"
	pathFollow       = "meta/follow_recall/"
	pathCold         = "meta/cold/cold.json"
	pathPushKeyword  = "meta/miniprogram/"
	pathPushFollow   = "meta/email_follow_new/"
	pathWordAI2K     = "meta/word_ai2k.json"
)

// DatasetOptions 是离线数据集的下载配置。
type DatasetOptions struct {
	// BaseURL 为空时只读取本地缓存目录
	BaseURL string `koanf:"base_url"`
	// BehaviorURL 是协同过滤结果（cf_*.json.gz）的下载地址，默认与 BaseURL 相同
	BehaviorURL string        `koanf:"behavior_url"`
	CacheDir    string        `koanf:"cache_dir"`
	Timeout     time.Duration `koanf:"timeout"`
	// Refresh 为 true 时总是重新下载
	Refresh bool `koanf:"refresh"`
}

// Dataset 读取离线任务每天产出的召回数据：先查本地缓存，缺失（或要求刷新）时从远端下载。
type Dataset struct {
	opts   DatasetOptions
	client *http.Client
	now    func() time.Time
}

// NewDataset 创建数据集读取器
func NewDataset(opts DatasetOptions) *Dataset {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.BehaviorURL == "" {
		opts.BehaviorURL = opts.BaseURL
	}
	if opts.CacheDir == "" {
		opts.CacheDir = os.TempDir()
	}
	return &Dataset{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		now:    time.Now,
	}
}

// BehaviorRec 是协同过滤结果中的一条推荐。
type BehaviorRec struct {
	Item     string  `json:"item"`
	Score    float64 `json:"score"`
	Type     string  `json:"type"`
	ReasonZh string  `json:"reason_zh"`
	ReasonEn string  `json:"reason_en"`
}

// BehaviorLine 是协同过滤结果文件中的一行。
type BehaviorLine struct {
	UserType string        `json:"user_type"`
	User     string        `json:"user"`
	Rec      []BehaviorRec `json:"rec"`
}

// BehaviorFilename 返回物品类型对应的协同过滤结果文件名。
func BehaviorFilename(t core.ItemType, date time.Time) (string, error) {
	d := date.Format(behaviorDateLayout)
	switch t {
	case core.ItemPub:
		return "cf_" + d + ".json.gz", nil
	case core.ItemPubTopic:
		return "cf_topic_" + d + ".json.gz", nil
	case core.ItemReport:
		return "cf_report_" + d + ".json.gz", nil
	case core.ItemPerson:
		return "cf_person_" + d + ".json.gz", nil
	default:
		return "", core.NewDomainError(core.ModuleRecall, core.ErrorCodeNotSupported, "datasource: no behavior dataset for "+string(t))
	}
}

// Behavior 读取某类物品当天的协同过滤结果，按用户分组。
func (d *Dataset) Behavior(ctx context.Context, t core.ItemType) (map[core.Identity][]BehaviorRec, string, error) {
	name, err := BehaviorFilename(t, d.now())
	if err != nil {
		return nil, "", err
	}
	out := make(map[core.Identity][]BehaviorRec)
	err = d.eachLine(ctx, d.opts.BehaviorURL, name, name, func(line []byte) error {
		var l BehaviorLine
		if err := json.Unmarshal(line, &l); err != nil {
			return err
		}
		id := core.IdentityOf(core.UserType(l.UserType), l.User)
		if id.IsCold() {
			return nil
		}
		out[id] = append(out[id], l.Rec...)
		return nil
	})
	return out, name, err
}

// OAGPaper 是语义召回中关键词对应的一篇论文。
type OAGPaper struct {
	PaperID  string  `json:"paper_id"`
	Distance float64 `json:"distance"`
}

// SubscribeOAG 读取当天的关键词语义召回表，key 为小写英文关键词。
func (d *Dataset) SubscribeOAG(ctx context.Context) (map[string][]OAGPaper, string, error) {
	name := "subscribe_oag-" + d.now().Format(behaviorDateLayout) + ".json"
	out := make(map[string][]OAGPaper)
	err := d.eachLine(ctx, d.opts.BaseURL, pathSubscribeOAG+name, name, func(line []byte) error {
		var m map[string][]OAGPaper
		if err := json.Unmarshal(line, &m); err != nil {
			return err
		}
		for k, v := range m {
			out[strings.ToLower(k)] = v
		}
		return nil
	})
	return out, name, err
}

// SubscribeKG 读取知识图谱关键词到论文 id 的映射。
func (d *Dataset) SubscribeKG(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string)
	err := d.eachLine(ctx, d.opts.BaseURL, pathSubscribeKG, filepath.Base(pathSubscribeKG), func(line []byte) error {
		var m map[string][]string
		if err := json.Unmarshal(line, &m); err != nil {
			return err
		}
		for k, v := range m {
			out[k] = v
		}
		return nil
	})
	return out, err
}

// FollowPaper 是关注学者召回中的一篇论文。
type FollowPaper struct {
	PaperID      string  `json:"paper_id"`
	Distance     float64 `json:"distance"`
	Label        string  `json:"label"`
	AuthorNameEn string  `json:"author_name_en"`
	AuthorNameZh string  `json:"author_name_zh"`
}

// FollowedAuthor 是用户关注的一位学者及其相关论文，Papers 的 key 为标签
// （highly_cited_papers 或 new_papers）。
type FollowedAuthor struct {
	Name   string                   `json:"name_of_followed_author"`
	NameZh string                   `json:"chinese_name_of_followed_author"`
	Papers map[string][]FollowPaper `json:"papers"`
}

// Follow 读取当天的关注学者召回结果，key 为 uid。
func (d *Dataset) Follow(ctx context.Context) (map[string][]FollowedAuthor, string, error) {
	name := "followed_scholar_recall-" + d.now().Format(behaviorDateLayout) + ".json"
	out := make(map[string][]FollowedAuthor)
	err := d.eachLine(ctx, d.opts.BaseURL, pathFollow+name, name, func(line []byte) error {
		var m map[string][]FollowedAuthor
		if err := json.Unmarshal(line, &m); err != nil {
			return err
		}
		for uid, follows := range m {
			out[uid] = append(out[uid], follows...)
		}
		return nil
	})
	return out, name, err
}

// ColdRec 是冷启动数据集中的一条推荐。
type ColdRec struct {
	Item         string          `json:"item"`
	Type         core.ItemType   `json:"type"`
	RecallType   core.RecallType `json:"recall_type"`
	RecallReason core.Reason     `json:"recall_reason"`
}

// Cold 读取冷启动数据集（单个 JSON 对象 {"rec": [...]}）。
func (d *Dataset) Cold(ctx context.Context) ([]ColdRec, string, error) {
	name := filepath.Base(pathCold)
	data, err := d.read(ctx, d.opts.BaseURL, pathCold, name)
	if err != nil {
		return nil, name, err
	}
	var body struct {
		Rec []ColdRec `json:"rec"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, name, core.WrapDomainError(core.ModuleRecall, core.ErrorCodeDataIntegrity, "datasource: decode "+name, err)
	}
	return body.Rec, name, nil
}

// PushPaper 是推送数据集中关键词对应的一篇论文。
type PushPaper struct {
	PID        string  `json:"pid"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
}

// PushPeriod 是推送数据集的周期
type PushPeriod string

const (
	PushDaily  PushPeriod = "daily"
	PushWeekly PushPeriod = "weekly"
)

// PushKeywords 读取日 / 周推送数据集，key 为小写关键词。
func (d *Dataset) PushKeywords(ctx context.Context, period PushPeriod) (map[string][]PushPaper, string, error) {
	name := string(period) + "-" + d.now().Format(pushDateLayout) + ".json"
	out := make(map[string][]PushPaper)
	err := d.eachLine(ctx, d.opts.BaseURL, pathPushKeyword+name, name, func(line []byte) error {
		var m map[string][]PushPaper
		if err := json.Unmarshal(line, &m); err != nil {
			return err
		}
		for k, v := range m {
			out[strings.ToLower(strings.TrimSpace(k))] = v
		}
		return nil
	})
	return out, name, err
}

// FollowPushPaper 是邮件推送中关注学者的一篇新论文。
type FollowPushPaper struct {
	PaperID      string `json:"paper_id"`
	AuthorID     string `json:"id_of_followed_author"`
	AuthorName   string `json:"name_of_followed_author"`
	AuthorNameZh string `json:"chinese_name_of_followed_author"`
}

// PushFollow 读取关注学者新论文推送数据集，key 为 uid。
func (d *Dataset) PushFollow(ctx context.Context) (map[string][]FollowPushPaper, string, error) {
	name := "email-follow-" + d.now().Format(pushDateLayout) + ".json"
	out := make(map[string][]FollowPushPaper)
	err := d.eachLine(ctx, d.opts.BaseURL, pathPushFollow+name, name, func(line []byte) error {
		var l struct {
			UID    string            `json:"uid"`
			Papers []FollowPushPaper `json:"papers"`
		}
		if err := json.Unmarshal(line, &l); err != nil {
			return err
		}
		if l.UID != "" {
			out[l.UID] = l.Papers
		}
		return nil
	})
	return out, name, err
}

// WordAI2K 读取关键词到榜单 id 的映射，key 为小写关键词。
func (d *Dataset) WordAI2K(ctx context.Context) (map[string][]string, error) {
	name := filepath.Base(pathWordAI2K)
	data, err := d.read(ctx, d.opts.BaseURL, pathWordAI2K, name)
	if err != nil {
		return nil, err
	}
	var m map[string][]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, core.WrapDomainError(core.ModuleRecall, core.ErrorCodeDataIntegrity, "datasource: decode "+name, err)
	}
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out, nil
}

// eachLine 逐行回调 JSONL 数据集，空行跳过，格式错误的行记录后跳过。
func (d *Dataset) eachLine(ctx context.Context, baseURL, remote, name string, fn func([]byte) error) error {
	data, err := d.read(ctx, baseURL, remote, name)
	if err != nil {
		return err
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 1<<20), 256<<20)
	bad := 0
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			bad++
			continue
		}
	}
	if bad > 0 {
		logging.Warn().Str("dataset", name).Int("bad_lines", bad).Msg("skip invalid dataset lines")
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("datasource: scan %s: %w", name, err)
	}
	return nil
}

// read 返回数据集内容（.gz 自动解压）。
func (d *Dataset) read(ctx context.Context, baseURL, remote, name string) ([]byte, error) {
	local := filepath.Join(d.opts.CacheDir, name)
	if _, err := os.Stat(local); err != nil || (d.opts.Refresh && baseURL != "") {
		if baseURL == "" {
			return nil, core.NewDomainError(core.ModuleRecall, core.ErrorCodeNotFound, "datasource: dataset "+name+" not found")
		}
		if err := d.download(ctx, strings.TrimRight(baseURL, "/")+"/"+remote, local); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(local)
	if err != nil {
		return nil, fmt.Errorf("datasource: open %s: %w", local, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(name, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, core.WrapDomainError(core.ModuleRecall, core.ErrorCodeDataIntegrity, "datasource: gunzip "+name, err)
		}
		defer gz.Close()
		r = gz
	}
	return io.ReadAll(r)
}

func (d *Dataset) download(ctx context.Context, url, local string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("datasource: create request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return core.WrapDomainError(core.ModuleRecall, core.ErrorCodeUnavailable, "datasource: download "+url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return core.NewDomainError(core.ModuleRecall, core.ErrorCodeNotFound, "datasource: dataset "+url+" not found")
	}
	if resp.StatusCode != http.StatusOK {
		return core.NewDomainError(core.ModuleRecall, core.ErrorCodeUnavailable, fmt.Sprintf("datasource: download %s: status %d", url, resp.StatusCode))
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return fmt.Errorf("datasource: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(local), filepath.Base(local)+".*")
	if err != nil {
		return fmt.Errorf("datasource: create temp: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return core.WrapDomainError(core.ModuleRecall, core.ErrorCodeUnavailable, "datasource: download "+url, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("datasource: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("datasource: rename: %w", err)
	}
	logging.Info().Str("url", url).Str("path", local).Msg("dataset downloaded")
	return nil
}
