package main

import (
	"context"
	"fmt"

	"github.com/louhangyu/zhipu/aggregate"
	"github.com/louhangyu/zhipu/config"
	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/datasource"
	"github.com/louhangyu/zhipu/jobs"
	"github.com/louhangyu/zhipu/model"
	"github.com/louhangyu/zhipu/orchestrator"
	"github.com/louhangyu/zhipu/pipeline"
	"github.com/louhangyu/zhipu/pkg/logging"
	"github.com/louhangyu/zhipu/pkg/randutil"
	"github.com/louhangyu/zhipu/rank"
	"github.com/louhangyu/zhipu/recall"
	"github.com/louhangyu/zhipu/rerank"
	"github.com/louhangyu/zhipu/service"
	"github.com/louhangyu/zhipu/store"

	_ "github.com/louhangyu/zhipu/config/builders"
)

// app 是组装好的进程依赖。
type app struct {
	cfg      *config.Config
	db       *datasource.DB
	kv       core.KeyValueStore
	actions  *datasource.SQLActionLog
	profiles *datasource.ProfileStore
	items    *aggregate.Materializer
	stat     *orchestrator.SubscribeStat
	top      *orchestrator.MakeTop
	quality  *rank.QualityStore
	deps     *orchestrator.Deps
	registry *orchestrator.Registry
	serve    *pipeline.Pipeline
	queue    *jobs.Queue
	affinity model.RankModel
}

// collaborators 是可选的外部 HTTP 服务，未配置的为 nil。
type collaborators struct {
	search     core.SearchService
	embedding  core.EmbeddingService
	translator core.Translator
	venue      core.VenueService
}

// newApp 组装全部依赖；withQueue 为 false 时物化任务同步执行（离线命令使用）。
func newApp(ctx context.Context, cfg *config.Config, withQueue bool) (*app, error) {
	log := logging.WithComponent("main")

	db, err := datasource.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	kv, err := store.Open(store.Options{
		Backend: cfg.Store.Backend,
		Redis: store.RedisOptions{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			PoolSize: cfg.Store.Redis.PoolSize,
		},
		BadgerDir: cfg.Store.BadgerDir,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{cfg: cfg, db: db, kv: kv}
	cache := store.NewCache(kv)
	records := datasource.NewSQLRecordStore(db)
	a.actions = datasource.NewSQLActionLog(db)
	a.profiles = datasource.NewProfileStore(db, records)
	svc := newCollaborators(cfg, datasource.NewSQLTranslationStore(db))

	var queue core.JobQueue
	if withQueue {
		a.queue = jobs.NewQueue(0)
		queue = a.queue
	}

	matOpts := []aggregate.Option{
		aggregate.WithActionLog(a.actions),
		aggregate.WithViewCounter(aggregate.NewStoreViewCounter(kv)),
	}
	if svc.venue != nil {
		matOpts = append(matOpts, aggregate.WithVenueService(svc.venue))
	}
	if queue != nil {
		matOpts = append(matOpts, aggregate.WithJobQueue(queue))
	}
	a.items = aggregate.NewMaterializer(records, cache, matOpts...)

	var neighbours recall.Neighbours
	if path := cfg.Recall.NeighboursPath; path != "" {
		if neighbours, err = recall.LoadNeighbours(path); err != nil {
			a.Close()
			return nil, fmt.Errorf("load neighbours: %w", err)
		}
	}

	a.quality = rank.NewQualityStore(cache)
	hybrid := &rank.HybridRank{
		Quality:  a.quality,
		Interest: rank.NewInterest(a.profiles, svc.embedding),
	}
	if path := cfg.Model.PriorLRPath; path != "" {
		m, err := model.LoadLRModel(path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load prior model: %w", err)
		}
		hybrid.Prior = &rank.ModelPrior{Model: m, History: kv}
	}
	if path := cfg.Model.AffinityLRPath; path != "" {
		m, err := model.LoadLRModel(path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load affinity model: %w", err)
		}
		a.affinity = m
	}

	rnd := randutil.NewTimeSeeded()
	discount := rerank.NewDiscount(kv)
	affinity := rerank.NewAffinity(kv, rnd)
	resorter := rank.NewResorter(a.items, hybrid)
	a.stat = orchestrator.NewSubscribeStat(cache, a.profiles, a.actions, svc.translator, svc.embedding)
	a.top = orchestrator.NewMakeTop(a.actions, cache, a.items)

	a.deps = &orchestrator.Deps{
		Cache:      cache,
		Records:    records,
		Search:     svc.search,
		Embedding:  svc.embedding,
		Translator: svc.translator,
		Neighbours: neighbours,
		Newly:      a.stat,
		Profiles:   a.profiles,
		Users:      a.actions,
		StageB:     &rerank.StageB{Discount: discount, Affinity: affinity, Rand: rnd},
		Resorter:   resorter,
		Affinity:   affinity,
		Preloader:  a.items,
		Queue:      queue,
	}

	sources := a.sources(svc, neighbours, discount, rnd)
	a.registry = a.strategies(sources)

	nodeDeps := &config.Deps{
		Discount: discount,
		Affinity: affinity,
		Resorter: resorter,
		Top:      a.top,
		Rand:     rnd,
		Sources:  sources,
	}
	if a.deps.Refine, err = loadPipeline(cfg.Pipelines.TrainPath, config.DefaultTrainPipeline(), nodeDeps); err != nil {
		a.Close()
		return nil, err
	}
	if a.serve, err = loadPipeline(cfg.Pipelines.ServePath, config.DefaultServePipeline(), nodeDeps); err != nil {
		a.Close()
		return nil, err
	}

	log.Info().
		Str("store", kv.Name()).
		Str("database", db.Driver()).
		Bool("search", svc.search != nil).
		Bool("embedding", svc.embedding != nil).
		Bool("translate", svc.translator != nil).
		Bool("venue", svc.venue != nil).
		Int("sources", len(sources)).
		Msg("app assembled")
	return a, nil
}

func newCollaborators(cfg *config.Config, translations service.TranslationStore) collaborators {
	log := logging.WithComponent("main")
	var out collaborators
	s := cfg.Services
	if s.Search.Endpoint != "" {
		if c, err := service.NewSearchService(&s.Search); err == nil {
			out.search = c
		} else {
			log.Warn().Err(err).Msg("search service disabled")
		}
	}
	if s.Embedding.Endpoint != "" {
		if c, err := service.NewEmbeddingService(&s.Embedding); err == nil {
			out.embedding = c
		} else {
			log.Warn().Err(err).Msg("embedding service disabled")
		}
	}
	if s.Translate.Endpoint != "" {
		if c, err := service.NewTranslator(&s.Translate, translations); err == nil {
			out.translator = c
		} else {
			log.Warn().Err(err).Msg("translate service disabled")
		}
	}
	if s.Venue.Endpoint != "" {
		if c, err := service.NewVenueService(&s.Venue, s.QuartileTimeout); err == nil {
			out.venue = c
		} else {
			log.Warn().Err(err).Msg("venue service disabled")
		}
	}
	return out
}

// sources 构建全部召回源，按名称索引；依赖检索服务的源在未配置检索时不创建。
func (a *app) sources(svc collaborators, neighbours recall.Neighbours, discount *rerank.Discount, rnd randutil.Rand) map[string]recall.Source {
	dataset := datasource.NewDataset(a.cfg.Dataset)
	opt := recall.WithRand(rnd)
	all := []recall.Source{
		recall.NewSubscribeKG(a.profiles, svc.translator, dataset, a.items, opt),
		recall.NewSubscribeOAG(a.profiles, svc.translator, dataset, a.items, opt),
		recall.NewBehavior(dataset, opt),
		recall.NewBehaviorPerson(dataset, opt),
		recall.NewEditorHot(a.actions, aggregate.NewStoreViewCounter(a.kv), opt),
		recall.NewHot(a.actions, opt),
		recall.NewAI2K(a.profiles, dataset, a.deps.Records, a.actions, opt),
		recall.NewFollow(dataset, opt),
		recall.NewRandomPerson(a.actions, a.items, opt),
		recall.NewColdTop(a.actions, opt),
		recall.NewColdAI2K(dataset, opt),
		recall.NewColdSubscribe(dataset, opt),
		recall.NewColdSubscribeOAG(dataset, opt),
		recall.NewPushDaily(a.profiles, dataset, a.items, opt),
		recall.NewPushWeekly(a.profiles, dataset, a.items, opt),
		recall.NewPushNew(a.stat, discount, opt),
		recall.NewPushFollow(dataset, opt),
	}
	if svc.search != nil {
		all = append(all,
			recall.NewSubscribe(a.profiles, svc.search, svc.translator, neighbours, a.items, opt),
			recall.NewSearch(a.actions, svc.search, svc.translator, opt),
			recall.NewSubject(a.profiles, a.actions, svc.search, opt),
			recall.NewShenzhenNewly(svc.search, a.cfg.Recall.ShenzhenDomains, opt),
		)
	}
	out := make(map[string]recall.Source, len(all))
	for _, s := range all {
		out[s.Name()] = s
	}
	return out
}

// strategies 按召回类型挑选各策略的召回源，缺失的源被跳过。
func (a *app) strategies(sources map[string]recall.Source) *orchestrator.Registry {
	byType := make(map[core.RecallType]recall.Source, len(sources))
	for _, s := range sources {
		byType[s.RecallType()] = s
	}
	pick := func(types ...core.RecallType) []recall.Source {
		out := make([]recall.Source, 0, len(types))
		for _, rt := range types {
			if s, ok := byType[rt]; ok {
				out = append(out, s)
			}
		}
		return out
	}

	native := &orchestrator.Strategy{
		Flag: orchestrator.FlagNative,
		Name: orchestrator.NameNative,
		Sources: pick(
			core.RecallAI2K, core.RecallBehavior, core.RecallBehaviorPerson, core.RecallEditorHot,
			core.RecallFollow, core.RecallSubscribeKG, core.RecallSubscribe, core.RecallSubscribeOAG,
			core.RecallSearch, core.RecallHot,
		),
		ColdSources: pick(core.RecallColdTop),
		UpdateSources: pick(
			core.RecallEditorHot, core.RecallSubscribe, core.RecallSearch,
			core.RecallSubscribeOAG, core.RecallSubscribeKG,
		),
		PrependTop: true,
		ServeRule:  orchestrator.DefaultServeRule,
	}
	push := &orchestrator.Strategy{
		Flag:      orchestrator.FlagPush,
		Name:      orchestrator.NamePush,
		Sources:   pick(core.RecallPushHot, core.RecallPushWeek, core.RecallPushNew, core.RecallPushFollow),
		ColdTTL:   orchestrator.PushColdTTL,
		Keyword:   orchestrator.KeywordNewlyOnly,
		ServeRule: orchestrator.DefaultServeRule,
	}
	shenzhen := &orchestrator.Strategy{
		Flag:        orchestrator.FlagShenzhen,
		Name:        orchestrator.NameShenzhen,
		Sources:     pick(core.RecallShenzhenNewly),
		ColdSources: pick(core.RecallShenzhenNewly),
		ServeRule:   orchestrator.DefaultServeRule,
	}
	return orchestrator.NewRegistry(native, push, shenzhen)
}

// loadPipeline 读取 YAML 链路，path 为空时使用内置链路。
func loadPipeline(path string, fallback *pipeline.Config, deps *config.Deps) (*pipeline.Pipeline, error) {
	cfg := fallback
	if path != "" {
		var err error
		if cfg, err = pipeline.LoadFromYAML(path); err != nil {
			return nil, fmt.Errorf("load pipeline %s: %w", path, err)
		}
	}
	p, err := config.BuildPipeline(cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("build pipeline %s: %w", cfg.Pipeline.Name, err)
	}
	return p, nil
}

func (a *app) trainOptions() orchestrator.TrainOptions {
	t := a.cfg.Train
	return orchestrator.TrainOptions{
		Workers:       t.Workers,
		JobTimeout:    t.JobTimeout,
		RecallTimeout: a.cfg.Recall.Timeout,
		ActiveDays:    t.ActiveDays,
		UDActiveDays:  t.UDActiveDays,
		UDMinDays:     t.UDMinDays,
		UseItemCache:  true,
	}
}

// Close 释放存储与数据库连接。
func (a *app) Close() {
	if a.queue != nil {
		a.queue.Close()
	}
	if c, ok := a.kv.(interface{ Close() error }); ok {
		c.Close()
	}
	a.db.Close()
}
