package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jo-hoe/studio/internal/common"
)

// WorkItem is one request of a batch waiting for a worker.
type WorkItem struct {
	Index    int    // position in the batch file
	Name     string // optional label, used for logging and output file names
	Download bool   // fetch the media of a completed job
	Request  Request
}

// Processor defines how to process a WorkItem.
type Processor interface {
	Process(ctx context.Context, item WorkItem) error
}

var (
	ErrQueueNotStarted = errors.New("queue not started")
	ErrQueueClosed     = errors.New("queue closed")
)

// Queue is a bounded in-memory queue of WorkItems served by a worker pool.
type Queue struct {
	log        *slog.Logger
	ch         chan WorkItem
	workers    int
	wg         sync.WaitGroup
	cancelOnce sync.Once
	cancel     context.CancelFunc
	started    bool
	mu         sync.Mutex

	// closing is closed first so blocked senders return; sendMu then keeps
	// close(ch) from racing a send.
	closing   chan struct{}
	closeOnce sync.Once
	sendMu    sync.RWMutex
}

// NewQueue creates a new Queue with the given capacity and worker count.
func NewQueue(logger *slog.Logger, capacity int, workers int) *Queue {
	if capacity <= 0 {
		capacity = common.DefaultQueueCapacity
	}
	if workers <= 0 {
		workers = common.DefaultWorkerCount
	}
	return &Queue{
		log:     logger,
		ch:      make(chan WorkItem, capacity),
		workers: workers,
		closing: make(chan struct{}),
	}
}

// Start launches the workers. Each one processes items with p until the
// queue is drained or ctx is cancelled.
func (q *Queue) Start(ctx context.Context, p Processor) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return errors.New("queue already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, p, i)
	}
	q.started = true
	return nil
}

func (q *Queue) worker(ctx context.Context, p Processor, idx int) {
	defer q.wg.Done()
	log := q.log.With("worker", idx)
	for {
		select {
		case <-ctx.Done():
			log.Debug("worker stopping due to context cancellation")
			return
		case item, ok := <-q.ch:
			if !ok {
				log.Debug("queue drained, worker exiting")
				return
			}
			itemLog := log.With("item", item.Index, "kind", item.Request.Kind())
			if item.Name != "" {
				itemLog = itemLog.With("name", item.Name)
			}
			itemLog.Info("processing item")
			start := time.Now()
			if err := p.Process(ctx, item); err != nil {
				itemLog.Error("item processing failed", "err", err, "duration", time.Since(start))
			} else {
				itemLog.Info("item processed", "duration", time.Since(start))
			}
		}
	}
}

// Enqueue adds an item, waiting for free capacity until ctx is done or the
// queue is closed.
func (q *Queue) Enqueue(ctx context.Context, item WorkItem) error {
	q.mu.Lock()
	started := q.started
	q.mu.Unlock()
	if !started {
		return ErrQueueNotStarted
	}

	q.sendMu.RLock()
	defer q.sendMu.RUnlock()
	select {
	case <-q.closing:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closing:
		return ErrQueueClosed
	}
}

func (q *Queue) closeInput() {
	q.closeOnce.Do(func() {
		close(q.closing)
		q.sendMu.Lock()
		close(q.ch)
		q.sendMu.Unlock()
	})
}

// Drain stops accepting items and waits until every queued item is processed.
func (q *Queue) Drain() {
	q.closeInput()
	q.wg.Wait()
}

// Shutdown cancels in-flight work and waits for the workers up to deadline.
func (q *Queue) Shutdown(deadline time.Duration) {
	q.cancelOnce.Do(func() {
		if q.cancel != nil {
			q.cancel()
		}
		q.closeInput()

		done := make(chan struct{})
		go func() {
			defer close(done)
			q.wg.Wait()
		}()

		if deadline <= 0 {
			<-done
			return
		}

		timer := time.NewTimer(deadline)
		defer timer.Stop()
		select {
		case <-done:
			return
		case <-timer.C:
			q.log.Warn("queue shutdown deadline reached; workers may still be running")
		}
	})
}
