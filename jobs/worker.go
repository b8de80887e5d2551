package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/logging"
)

// WorkerConfig 是任务消费的重试参数。
type WorkerConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	CloseTimeout    time.Duration
}

// DefaultWorkerConfig 返回默认配置。
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		MaxRetries:      2,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		CloseTimeout:    10 * time.Second,
	}
}

// Worker 消费队列中的任务，是一个 suture 服务。
//
// 流程：
//   - 每次 Serve 新建 watermill Router，为每种任务注册一个处理器
//   - 处理失败按指数退避重试，重试耗尽后丢弃并记录日志
//   - ctx 取消时关闭 Router 并返回
type Worker struct {
	queue    *Queue
	handlers *Handlers
	cfg      WorkerConfig
	logger   watermill.LoggerAdapter

	once    sync.Once
	running chan struct{}
}

func NewWorker(queue *Queue, handlers *Handlers, cfg WorkerConfig) *Worker {
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultWorkerConfig().CloseTimeout
	}
	return &Worker{
		queue:    queue,
		handlers: handlers,
		cfg:      cfg,
		logger:   NewLogAdapter(logging.WithComponent("jobs.worker")),
		running:  make(chan struct{}),
	}
}

// Running 在第一次订阅完成后关闭。
func (w *Worker) Running() <-chan struct{} { return w.running }

// Serve 实现 suture.Service。
func (w *Worker) Serve(ctx context.Context) error {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: w.cfg.CloseTimeout}, w.logger)
	if err != nil {
		return fmt.Errorf("jobs: create router: %w", err)
	}
	router.AddMiddleware(w.ackFailed, middleware.Recoverer)
	if w.cfg.MaxRetries > 0 {
		retry := middleware.Retry{
			MaxRetries:      w.cfg.MaxRetries,
			InitialInterval: w.cfg.InitialInterval,
			MaxInterval:     w.cfg.MaxInterval,
			Multiplier:      2,
			Logger:          w.logger,
		}
		router.AddMiddleware(retry.Middleware)
	}
	for _, name := range w.handlers.Names() {
		router.AddNoPublisherHandler(name, Topic(name), w.queue.Subscriber(), w.consume(name))
	}

	go func() {
		select {
		case <-router.Running():
			w.once.Do(func() { close(w.running) })
		case <-ctx.Done():
		}
	}()

	if err := router.Run(ctx); err != nil {
		return fmt.Errorf("jobs: run router: %w", err)
	}
	return ctx.Err()
}

// consume 把消息还原为任务。
func (w *Worker) consume(name string) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		ctx := msg.Context()
		if cid := msg.Metadata.Get(metaCorrelation); cid != "" {
			ctx = logging.ContextWithCorrelationID(ctx, cid)
		}
		return w.handlers.Handle(ctx, core.Job{ID: msg.UUID, Name: name, Payload: msg.Payload})
	}
}

// ackFailed 确认重试耗尽的消息，gochannel 对 Nack 的消息会无限重投。
func (w *Worker) ackFailed(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		out, err := h(msg)
		if err != nil {
			logging.Ctx(msg.Context()).Error().Err(err).
				Str("job", msg.Metadata.Get(metaJobName)).Str("id", msg.UUID).Msg("job failed, dropped")
			return nil, nil
		}
		return out, nil
	}
}

func (w *Worker) String() string { return "jobs-worker" }
