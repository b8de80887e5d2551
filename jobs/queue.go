// Package jobs 是后台任务：进程内队列（watermill gochannel）、任务处理、定时调度与进程监管。
package jobs

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/logging"
)

// 消息元数据
const (
	topicPrefix      = "rms.jobs."
	metaJobName      = "job"
	metaCorrelation  = "correlation_id"
	defaultQueueSize = 4096
)

// Topic 返回任务对应的 topic。
func Topic(job string) string { return topicPrefix + job }

// Queue 是进程内任务队列，每种任务一个 topic。
//
// 约定：
//   - 没有订阅者时投递的任务被丢弃，Worker 需先于投递方启动
//   - Enqueue 不等待任务执行
type Queue struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// NewQueue 创建队列，size 是每个订阅者的缓冲长度。
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	logger := NewLogAdapter(logging.WithComponent("jobs"))
	return &Queue{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: int64(size)}, logger),
		logger: logger,
	}
}

// Enqueue 投递一个任务。
func (q *Queue) Enqueue(ctx context.Context, job core.Job) error {
	if job.Name == "" {
		return core.NewDomainError(core.ModuleJobs, core.ErrorCodeInvalidInput, "jobs: empty job name")
	}
	id := job.ID
	if id == "" {
		id = uuid.NewString()
	}
	msg := message.NewMessage(id, job.Payload)
	msg.Metadata.Set(metaJobName, job.Name)
	if cid := logging.CorrelationIDFromContext(ctx); cid != "" {
		msg.Metadata.Set(metaCorrelation, cid)
	}
	if err := q.pubsub.Publish(Topic(job.Name), msg); err != nil {
		return fmt.Errorf("jobs: publish %s: %w", job.Name, err)
	}
	return nil
}

// Subscriber 返回队列的订阅端。
func (q *Queue) Subscriber() message.Subscriber { return q.pubsub }

// Close 关闭队列。
func (q *Queue) Close() error { return q.pubsub.Close() }

var _ core.JobQueue = (*Queue)(nil)

// logAdapter 把 watermill 日志写入 zerolog。
type logAdapter struct {
	l zerolog.Logger
}

// NewLogAdapter 返回写入 l 的 watermill.LoggerAdapter。
func NewLogAdapter(l zerolog.Logger) watermill.LoggerAdapter {
	return &logAdapter{l: l}
}

func (a *logAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.l.Error().Err(err).Fields(map[string]any(fields)).Msg(msg)
}

func (a *logAdapter) Info(msg string, fields watermill.LogFields) {
	a.l.Info().Fields(map[string]any(fields)).Msg(msg)
}

func (a *logAdapter) Debug(msg string, fields watermill.LogFields) {
	a.l.Debug().Fields(map[string]any(fields)).Msg(msg)
}

func (a *logAdapter) Trace(msg string, fields watermill.LogFields) {
	a.l.Trace().Fields(map[string]any(fields)).Msg(msg)
}

func (a *logAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &logAdapter{l: a.l.With().Fields(map[string]any(fields)).Logger()}
}
