package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/logging"
	"github.com/louhangyu/zhipu/pkg/metrics"
)

// TaskFunc 是一个定时任务。
type TaskFunc func(ctx context.Context) error

// Scheduler 按 cron 表达式执行离线任务，是一个 suture 服务。
//
// 约定：
//   - 同一任务上一次未结束时跳过本次
//   - 任务在 Serve 的 ctx 下执行，停止时等待正在执行的任务结束
type Scheduler struct {
	cron  *cron.Cron
	mu    sync.Mutex
	tasks map[string]TaskFunc
	ctx   context.Context
}

func NewScheduler(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{l: logging.WithComponent("jobs.scheduler")}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		tasks: make(map[string]TaskFunc),
		ctx:   context.Background(),
	}
}

// Add 注册任务，spec 为空时只注册不调度（仍可通过 Run 执行）。
func (s *Scheduler) Add(name, spec string, fn TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; ok {
		return core.NewDomainError(core.ModuleJobs, core.ErrorCodeInvalidInput, "jobs: duplicate task "+name)
	}
	if spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { _ = s.Run(s.context(), name) }); err != nil {
			return core.WrapDomainError(core.ModuleJobs, core.ErrorCodeInvalidInput, fmt.Sprintf("jobs: bad schedule %q for %s", spec, name), err)
		}
	}
	s.tasks[name] = fn
	return nil
}

// Run 立即执行一个已注册的任务。
func (s *Scheduler) Run(ctx context.Context, name string) error {
	s.mu.Lock()
	fn, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return core.NewDomainError(core.ModuleJobs, core.ErrorCodeNotFound, "jobs: unknown task "+name)
	}

	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx).With().Str("component", "jobs.scheduler").Str("task", name).Logger()
	log.Info().Msg("task started")
	start := time.Now()
	err := fn(ctx)
	metrics.RecordJob(name, time.Since(start), err)
	if err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("task failed")
		return fmt.Errorf("jobs: task %s: %w", name, err)
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("task finished")
	return nil
}

// Entries 返回已调度的任务数。
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

// Serve 实现 suture.Service。
func (s *Scheduler) Serve(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return ctx.Err()
}

func (s *Scheduler) String() string { return "jobs-scheduler" }

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// cronLogger 把 cron 日志写入 zerolog。
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
