package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/louhangyu/zhipu/pkg/logging"
)

const defaultShutdownTimeout = 10 * time.Second

// NewSupervisor 创建根监管者，服务事件写入 zerolog。
func NewSupervisor(name string, shutdownTimeout time.Duration) *suture.Supervisor {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	log := logging.WithComponent("supervisor")
	return suture.New(name, suture.Spec{
		EventHook: eventHook(log),
		Timeout:   shutdownTimeout,
	})
}

func eventHook(l zerolog.Logger) suture.EventHook {
	return func(e suture.Event) {
		ev := l.Warn()
		if e.Type() == suture.EventTypeServicePanic {
			ev = l.Error()
		}
		ev.Fields(e.Map()).Msg(e.String())
	}
}

// HTTPServer 是 *http.Server 的生命周期方法。
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService 把 HTTP 服务包装为 suture 服务，ctx 取消时优雅关闭。
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve 实现 suture.Service。
func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("jobs: http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("jobs: http shutdown: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPService) String() string { return "http-server" }
