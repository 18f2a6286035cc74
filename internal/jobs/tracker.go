package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jo-hoe/studio/internal/util"
)

// ErrTrackerClosed is returned by Start after Close.
var ErrTrackerClosed = errors.New("tracker closed")

// Tracker tracks at most one job of a single kind at a time. Starting a new
// job cancels the polling loop of the previous one; updates of a superseded
// or closed run are never applied.
type Tracker struct {
	kind    Kind
	backend Backend
	poller  Poller
	log     *slog.Logger
	now     func() time.Time

	// notifyMu serializes publishing so observers never see a stale run's
	// update after a newer one.
	notifyMu sync.Mutex

	mu        sync.Mutex
	gen       uint64
	cancel    context.CancelFunc
	done      chan struct{}
	job       Job
	closed    bool
	observers []func(Job)
}

// NewTracker creates an idle tracker for kind.
func NewTracker(logger *slog.Logger, kind Kind, backend Backend, poller Poller) *Tracker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if poller.Log == nil {
		poller.Log = logger
	}
	now := poller.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		kind:    kind,
		backend: backend,
		poller:  poller,
		log:     logger.With("kind", kind),
		now:     now,
		job:     Job{Kind: kind, Status: StatusIdle},
	}
}

// Kind returns the job kind handled by the tracker.
func (t *Tracker) Kind() Kind {
	return t.kind
}

// OnChange registers fn to receive every applied state. fn runs on the
// tracker's goroutines and must not call Start, Reset or Close.
func (t *Tracker) OnChange(fn func(Job)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, fn)
}

// Start validates req, cancels any outstanding job and submits req. On a
// validation error nothing is sent and the current state is left alone. On a
// submission error the new job is failed and no polling starts. Otherwise
// polling continues in the background; use Wait or OnChange to follow it.
func (t *Tracker) Start(ctx context.Context, req Request) (Job, error) {
	if req == nil || req.Kind() != t.kind {
		return t.Snapshot(), ErrKindMismatch
	}
	if err := req.Validate(); err != nil {
		return t.Snapshot(), err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return t.Snapshot(), ErrTrackerClosed
	}
	t.stopLocked()
	t.gen++
	gen := t.gen
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	done := make(chan struct{})
	t.done = done
	now := t.now()
	job := Job{
		LocalID:   util.NewID(),
		Kind:      t.kind,
		Status:    StatusSubmitting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.mu.Unlock()
	t.publish(gen, job)

	log := t.log.With("local_id", job.LocalID)
	sub, err := t.backend.Submit(runCtx, req)
	if err == nil && sub.JobID == "" {
		err = errors.New("service returned no job id")
	}
	if err != nil {
		defer close(done)
		if runCtx.Err() != nil {
			log.Debug("submission abandoned", "err", err)
			return job, err
		}
		log.Warn("submission failed", "err", err)
		job = Fail(job, err.Error(), t.now())
		t.publish(gen, job)
		return job, err
	}

	job.JobID = sub.JobID
	job.Status = StatusPending
	if sub.Status == StatusProcessing {
		job.Status = StatusProcessing
	}
	job.UpdatedAt = t.now()
	log = log.With("job_id", job.JobID)
	log.Info("job submitted")
	t.publish(gen, job)

	go func() {
		defer close(done)
		final, err := t.poller.Run(runCtx, job, t.backend.Check, func(j Job) { t.publish(gen, j) })
		if err != nil {
			log.Debug("polling stopped", "err", err, "attempts", final.Attempts)
		}
	}()
	return job, nil
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job
}

// Wait blocks until the current run stops polling or ctx is done and returns
// the state at that point.
func (t *Tracker) Wait(ctx context.Context) (Job, error) {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done == nil {
		return t.Snapshot(), nil
	}
	select {
	case <-done:
		return t.Snapshot(), nil
	case <-ctx.Done():
		return t.Snapshot(), ctx.Err()
	}
}

// Reset cancels any outstanding job and returns the tracker to idle.
func (t *Tracker) Reset() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.stopLocked()
	t.gen++
	gen := t.gen
	t.mu.Unlock()
	t.publish(gen, Job{Kind: t.kind, Status: StatusIdle})
}

// Close cancels any outstanding job. No state change is published afterwards.
// Calling Close more than once is a no-op.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.stopLocked()
	t.gen++
	t.closed = true
}

func (t *Tracker) stopLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// publish installs job as current state if gen is still the active run.
func (t *Tracker) publish(gen uint64, job Job) bool {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	if gen != t.gen || t.closed {
		t.mu.Unlock()
		return false
	}
	t.job = job
	observers := append([]func(Job){}, t.observers...)
	t.mu.Unlock()

	for _, fn := range observers {
		fn(job)
	}
	return true
}
