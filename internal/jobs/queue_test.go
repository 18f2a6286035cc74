package jobs

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"log/slog"
)

type noopProcessor struct {
	count int32
	fail  bool
	hold  chan struct{}
}

func (p *noopProcessor) Process(ctx context.Context, item WorkItem) error {
	if p.hold != nil {
		<-p.hold
	}
	atomic.AddInt32(&p.count, 1)
	if p.fail {
		return errors.New("fail")
	}
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func item(i int) WorkItem {
	return WorkItem{Index: i, Request: testRequest{kind: KindContent, text: "t"}}
}

func TestQueue_StartEnqueueShutdown(t *testing.T) {
	q := NewQueue(quietLogger(), 2, 1)
	p := &noopProcessor{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := q.Start(ctx, p); err != nil {
		t.Fatalf("queue start: %v", err)
	}

	if err := q.Enqueue(ctx, item(0)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// allow worker to process
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&p.count) < 1 {
		t.Fatalf("expected processor to be called at least once")
	}

	// shutdown should complete promptly
	q.Shutdown(2 * time.Second)
	if err := q.Enqueue(ctx, item(1)); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("enqueue after shutdown: %v", err)
	}
}

func TestQueue_EnqueueBeforeStartFails(t *testing.T) {
	q := NewQueue(quietLogger(), 1, 1)
	if err := q.Enqueue(context.Background(), item(0)); !errors.Is(err, ErrQueueNotStarted) {
		t.Fatalf("enqueue before start: %v", err)
	}
}

func TestQueue_DrainProcessesEverything(t *testing.T) {
	q := NewQueue(quietLogger(), 1, 2)
	p := &noopProcessor{fail: true}
	ctx := context.Background()
	if err := q.Start(ctx, p); err != nil {
		t.Fatalf("queue start: %v", err)
	}
	// capacity 1 forces Enqueue to wait for the workers
	for i := 0; i < 10; i++ {
		if err := q.Enqueue(ctx, item(i)); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	q.Drain()
	if got := atomic.LoadInt32(&p.count); got != 10 {
		t.Fatalf("processed %d items, want 10", got)
	}
}

func TestQueue_EnqueueHonorsContext(t *testing.T) {
	q := NewQueue(quietLogger(), 1, 1)
	p := &noopProcessor{hold: make(chan struct{})}
	if err := q.Start(context.Background(), p); err != nil {
		t.Fatalf("queue start: %v", err)
	}
	var once sync.Once
	defer once.Do(func() { close(p.hold) })

	// one item held by the worker, one buffered
	_ = q.Enqueue(context.Background(), item(0))
	time.Sleep(10 * time.Millisecond)
	_ = q.Enqueue(context.Background(), item(1))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := q.Enqueue(ctx, item(2)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("enqueue on full queue: %v", err)
	}
	once.Do(func() { close(p.hold) })
	q.Drain()
}

func TestQueue_BlockedEnqueueReleasedByClose(t *testing.T) {
	for name, stop := range map[string]func(q *Queue){
		"drain":    func(q *Queue) { q.Drain() },
		"shutdown": func(q *Queue) { q.Shutdown(time.Second) },
	} {
		t.Run(name, func(t *testing.T) {
			q := NewQueue(quietLogger(), 1, 1)
			p := &noopProcessor{hold: make(chan struct{})}
			if err := q.Start(context.Background(), p); err != nil {
				t.Fatalf("queue start: %v", err)
			}
			_ = q.Enqueue(context.Background(), item(0))
			time.Sleep(10 * time.Millisecond)
			_ = q.Enqueue(context.Background(), item(1))

			errCh := make(chan error, 1)
			go func() { errCh <- q.Enqueue(context.Background(), item(2)) }()
			time.Sleep(20 * time.Millisecond)

			stopped := make(chan struct{})
			go func() {
				defer close(stopped)
				stop(q)
			}()
			select {
			case err := <-errCh:
				if !errors.Is(err, ErrQueueClosed) {
					t.Fatalf("blocked enqueue: %v", err)
				}
			case <-time.After(time.Second):
				t.Fatal("blocked enqueue was not released")
			}
			close(p.hold)
			<-stopped
		})
	}
}
