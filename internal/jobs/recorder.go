package jobs

import (
	"log/slog"
	"sync"
	"time"
)

// Recorder persists tracked job states into a Store. Register Observe with
// Tracker.OnChange.
type Recorder struct {
	log   *slog.Logger
	store Store

	mu   sync.Mutex
	seen map[string]bool
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(log *slog.Logger, store Store) *Recorder {
	return &Recorder{log: log, store: store, seen: make(map[string]bool)}
}

// Observe writes job to the store. Errors are logged, never returned: the
// local history must not interfere with tracking.
func (r *Recorder) Observe(job Job) {
	if job.LocalID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.seen[job.LocalID] {
		created := job
		if created.CreatedAt.IsZero() {
			created.CreatedAt = time.Now().UTC()
		}
		if err := r.store.CreateJob(&created); err != nil {
			r.log.Warn("history: create job", "local_id", job.LocalID, "err", err)
			return
		}
		r.seen[job.LocalID] = true
	}

	if err := r.store.UpdateStatus(job.LocalID, job.JobID, job.Status, job.Attempts); err != nil {
		r.log.Warn("history: update status", "local_id", job.LocalID, "err", err)
	}
	completedAt := job.UpdatedAt
	if job.CompletedAt != nil {
		completedAt = *job.CompletedAt
	}
	switch job.Status {
	case StatusCompleted:
		if err := r.store.SaveResult(job.LocalID, job.Result, completedAt); err != nil {
			r.log.Warn("history: save result", "local_id", job.LocalID, "err", err)
		}
	case StatusFailed:
		if err := r.store.SaveError(job.LocalID, job.ErrorMessage, completedAt); err != nil {
			r.log.Warn("history: save error", "local_id", job.LocalID, "err", err)
		}
	}
}
