package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/jo-hoe/studio/internal/common"
)

// CheckFunc performs one status request for jobID.
type CheckFunc func(ctx context.Context, jobID string) (Observation, error)

// Poller checks a job's status at a fixed interval until the job reaches a
// terminal status or the attempt budget is spent.
type Poller struct {
	Interval     time.Duration
	MaxAttempts  int
	InitialDelay time.Duration // wait before the first interval starts
	Log          *slog.Logger
	Now          func() time.Time
}

// Run polls job.JobID with check. Every tick performs exactly one check and
// counts one attempt. emit, if set, receives the job after every tick.
//
// Not-found responses, unexpected payloads and transport errors do not fail
// the job; they only use up attempts. ErrUnauthenticated fails it at once.
// When the budget is exhausted without a terminal status the job fails with
// a timeout message. A cancelled ctx ends
// the loop without a terminal update and returns ctx.Err().
func (p Poller) Run(ctx context.Context, job Job, check CheckFunc, emit func(Job)) (Job, error) {
	log := p.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log = log.With("kind", job.Kind, "job_id", job.JobID)
	now := p.Now
	if now == nil {
		now = time.Now
	}
	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if emit == nil {
		emit = func(Job) {}
	}

	if p.InitialDelay > 0 {
		timer := time.NewTimer(p.InitialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return job, ctx.Err()
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}

		job.Attempts++
		obs, err := check(ctx, job.JobID)
		if ctx.Err() != nil {
			return job, ctx.Err()
		}

		transportErr := false
		switch {
		case errors.Is(err, ErrUnauthenticated):
			log.Warn("status check unauthenticated", "attempt", job.Attempts)
			job = Fail(job, common.MessageSessionExpired, now())
		case errors.Is(err, ErrNotFound):
			log.Debug("job not queryable yet", "attempt", job.Attempts)
		case errors.Is(err, ErrUnexpectedPayload):
			log.Warn("unexpected status payload", "attempt", job.Attempts, "err", err)
		case err != nil:
			transportErr = true
			log.Warn("status check failed", "attempt", job.Attempts, "err", err)
		case !validObservation(obs):
			log.Warn("unexpected status payload", "attempt", job.Attempts, "status", obs.Status)
		default:
			job = Apply(job, obs, now())
		}

		if job.Status.IsTerminal() {
			log.Info("job finished", "status", job.Status, "attempts", job.Attempts)
			emit(job)
			return job, nil
		}
		if job.Attempts >= maxAttempts {
			msg := common.MessageTimeout
			if transportErr {
				msg = common.MessageNetworkExhausted
			}
			job = Fail(job, msg, now())
			log.Info("job polling budget exhausted", "attempts", job.Attempts)
			emit(job)
			return job, nil
		}
		emit(job)
	}
}

func validObservation(obs Observation) bool {
	switch obs.Status {
	case StatusPending, StatusProcessing, StatusFailed:
		return true
	case StatusCompleted:
		return obs.Result != nil
	}
	return false
}
