// rms 是论文推荐服务的入口：
//
//	rms serve                      HTTP 服务 + 后台任务 + 定时训练
//	rms train [-strategy native]   离线训练推荐集合
//	rms train-keyword              预加载活跃用户订阅关键词的推荐
//	rms update -uid <uid>          增量更新一个用户的推荐集合
//	rms quality                    计算论文质量分
//	rms favorite                   计算用户召回类型偏好
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/louhangyu/zhipu/config"
	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/jobs"
	"github.com/louhangyu/zhipu/orchestrator"
	"github.com/louhangyu/zhipu/pkg/logging"
	"github.com/louhangyu/zhipu/rerank"
	"github.com/louhangyu/zhipu/serving"
)

// 定时任务名
const (
	taskTrain        = "train"
	taskTrainKeyword = "train_keyword"
	taskQuality      = "quality"
	taskFavorite     = "favorite"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		logging.Error().Err(err).Msg("rms failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: rms [-config file] <serve|train|train-keyword|update|quality|favorite> [flags]")
}

func run(args []string) error {
	// .env 不存在时只使用进程环境变量
	_ = godotenv.Load()

	fs := flag.NewFlagSet("rms", flag.ContinueOnError)
	fs.Usage = usage
	path := fs.String("config", os.Getenv("RMS_CONFIG"), "YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*path)
	if err != nil {
		return err
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "serve":
		return serve(ctx, cfg)
	case "train", "train-keyword", "update", "quality", "favorite":
		return offline(ctx, cfg, cmd, rest)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// serve 在一个 suture 监管树下运行 HTTP 服务、任务消费与定时任务。
func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	handlers := jobs.NewHandlers(a.registry, a.deps, a.items, a.stat, a.top)
	worker := jobs.NewWorker(a.queue, handlers, jobs.DefaultWorkerConfig())

	scheduler := jobs.NewScheduler(nil)
	if err := a.schedule(scheduler); err != nil {
		return err
	}

	facade := serving.NewFacade(a.registry, a.deps, a.serve,
		serving.WithJobQueue(a.queue),
		serving.WithNewlyStats(a.stat),
		serving.WithEnricher(a.items),
	)
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      serving.NewHandler(facade).Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sup := jobs.NewSupervisor("rms", cfg.Server.ShutdownTimeout)
	sup.Add(worker)
	sup.Add(scheduler)
	sup.Add(jobs.NewHTTPService(server, cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", cfg.Server.Addr).Int("schedules", scheduler.Entries()).Msg("rms serving")
	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("rms stopped")
	return nil
}

// schedule 注册全部离线任务；cron 表达式为空的任务只注册不调度。
func (a *app) schedule(s *jobs.Scheduler) error {
	sc := a.cfg.Schedule
	tasks := []struct {
		name string
		spec string
		fn   jobs.TaskFunc
	}{
		{taskTrain, sc.Train, a.trainAll},
		{taskTrainKeyword, sc.TrainKeyword, a.trainKeyword},
		{taskQuality, sc.Quality, a.runQuality},
		{taskFavorite, sc.Affinity, a.runFavorite},
	}
	for _, t := range tasks {
		if t.name == taskFavorite && a.affinity == nil {
			continue
		}
		if err := s.Add(t.name, t.spec, t.fn); err != nil {
			return err
		}
	}
	return nil
}

// offline 执行一次离线命令，物化同步完成。
func offline(ctx context.Context, cfg *config.Config, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	strategy := fs.String("strategy", "", "strategy flag (native | push | shenzhen), empty for all")
	uid := fs.String("uid", "", "user id for update")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd {
	case "train":
		if *strategy == "" {
			return a.trainAll(ctx)
		}
		s, ok := a.registry.Lookup(*strategy)
		if !ok {
			return fmt.Errorf("unknown strategy %q", *strategy)
		}
		return a.train(ctx, s)
	case "train-keyword":
		return a.trainKeyword(ctx)
	case "update":
		if *uid == "" {
			return errors.New("update: -uid is required")
		}
		n, err := orchestrator.NewUpdater(a.registry.Get(*strategy), a.deps).UpdateNonKeyword(ctx, core.Identity{UID: *uid})
		if err != nil {
			return err
		}
		logging.Info().Str("uid", *uid).Int("fresh", n).Msg("update finished")
		return nil
	case "quality":
		return a.runQuality(ctx)
	default:
		return a.runFavorite(ctx)
	}
}

// trainAll 依次训练全部策略，并刷新运营置顶。
func (a *app) trainAll(ctx context.Context) error {
	var errs []error
	for _, s := range a.registry.All() {
		if err := a.train(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := a.top.Train(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *app) train(ctx context.Context, s *orchestrator.Strategy) error {
	stats, err := orchestrator.NewTrainer(s, a.deps, a.trainOptions()).Train(ctx)
	if err != nil {
		return fmt.Errorf("train %s: %w", s.Name, err)
	}
	logging.Info().Str("strategy", s.Name).Int("users", stats.Users).Int("written", stats.Written).
		Int("failed", stats.Failed).Int("candidates", stats.Candidates).Msg("train finished")
	return nil
}

func (a *app) trainKeyword(ctx context.Context) error {
	stats, err := orchestrator.NewTrainer(a.registry.Get(""), a.deps, a.trainOptions()).TrainKeyword(ctx)
	if err != nil {
		return fmt.Errorf("train keyword: %w", err)
	}
	logging.Info().Int("users", stats.Users).Int("written", stats.Written).Msg("train keyword finished")
	return nil
}

func (a *app) runQuality(ctx context.Context) error {
	n, err := orchestrator.NewQualityJob(a.actions, a.quality).Run(ctx)
	if err != nil {
		return err
	}
	logging.Info().Int("items", n).Msg("quality finished")
	return nil
}

func (a *app) runFavorite(ctx context.Context) error {
	if a.affinity == nil {
		return errors.New("favorite: model.affinity_lr_path is not configured")
	}
	job := orchestrator.NewAffinityJob(a.actions, a.profiles, a.affinity, rerank.NewAffinity(a.kv, nil))
	n, err := job.Run(ctx)
	if err != nil {
		return err
	}
	logging.Info().Int("users", n).Msg("favorite finished")
	return nil
}
