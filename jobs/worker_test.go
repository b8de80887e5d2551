package jobs

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/store"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func TestQueue_EmptyName(t *testing.T) {
	q := NewQueue(0)
	defer q.Close()
	if err := q.Enqueue(context.Background(), core.Job{}); !core.IsInvalidInput(err) {
		t.Errorf("err = %v, want invalid input", err)
	}
}

func TestWorker_ConsumesQueue(t *testing.T) {
	fx := newHandlerFixture()
	q := NewQueue(16)
	defer q.Close()
	w := NewWorker(q, fx.h, WorkerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx) }()

	select {
	case <-w.Running():
	case <-time.After(3 * time.Second):
		t.Fatal("worker not running")
	}

	// 处理失败的任务被确认，不阻塞后续任务
	fx.top.err = errors.New("db down")
	if err := q.Enqueue(ctx, core.Job{Name: core.JobMakeTop}); err != nil {
		t.Fatal(err)
	}
	show := job(t, core.JobPingbackShow, PingbackPayload{UID: testUID, ItemID: "p9"})
	if err := q.Enqueue(ctx, show); err != nil {
		t.Fatal(err)
	}

	key := store.ShowHistoryKey(core.Identity{UID: testUID})
	waitFor(t, func() bool {
		_, err := fx.deps.Cache.KV().ZScore(context.Background(), key, "p9")
		return err == nil
	})

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestScheduler(t *testing.T) {
	s := NewScheduler(time.UTC)
	var runs atomic.Int32
	task := func(context.Context) error {
		runs.Add(1)
		return nil
	}

	tests := []struct {
		name    string
		task    string
		spec    string
		wantErr bool
	}{
		{"scheduled", "train", "0 2 * * *", false},
		{"manual only", "quality", "", false},
		{"bad spec", "broken", "not a cron", true},
		{"duplicate", "train", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Add(tt.task, tt.spec, task)
			if (err != nil) != tt.wantErr {
				t.Errorf("Add() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
	if s.Entries() != 1 {
		t.Errorf("entries = %d, want 1", s.Entries())
	}

	ctx := context.Background()
	if err := s.Run(ctx, "quality"); err != nil {
		t.Fatal(err)
	}
	if err := s.Run(ctx, "broken"); err == nil {
		t.Error("unregistered task should fail")
	}
	if runs.Load() != 1 {
		t.Errorf("runs = %d, want 1", runs.Load())
	}

	failing := errors.New("boom")
	if err := s.Add("fail", "", func(context.Context) error { return failing }); err != nil {
		t.Fatal(err)
	}
	if err := s.Run(ctx, "fail"); !errors.Is(err, failing) {
		t.Errorf("Run() = %v, want wrapped boom", err)
	}
}

func TestScheduler_Serve(t *testing.T) {
	s := NewScheduler(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

type fakeServer struct {
	stop     chan struct{}
	startErr error
	started  atomic.Bool
	shutdown atomic.Bool
}

func (f *fakeServer) ListenAndServe() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started.Store(true)
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.shutdown.Store(true)
	close(f.stop)
	return nil
}

func TestHTTPService(t *testing.T) {
	t.Run("graceful shutdown", func(t *testing.T) {
		srv := &fakeServer{stop: make(chan struct{})}
		svc := NewHTTPService(srv, time.Second)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()
		waitFor(t, srv.started.Load)
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v", err)
		}
		if !srv.shutdown.Load() {
			t.Error("server not shut down")
		}
	})

	t.Run("listen failure", func(t *testing.T) {
		srv := &fakeServer{startErr: errors.New("address in use")}
		if err := NewHTTPService(srv, 0).Serve(context.Background()); err == nil {
			t.Error("want error")
		}
	})
}

func TestSupervisor(t *testing.T) {
	sup := NewSupervisor("test", time.Second)
	srv := &fakeServer{stop: make(chan struct{})}
	sup.Add(NewHTTPService(srv, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)
	waitFor(t, srv.started.Load)
	cancel()
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	if !srv.shutdown.Load() {
		t.Error("service not shut down")
	}
}
