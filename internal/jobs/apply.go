package jobs

import (
	"strings"
	"time"

	"github.com/jo-hoe/studio/internal/common"
)

// Apply merges one status observation into job and returns the new state.
// Non-terminal observations only move the status; a completed observation
// installs the result, a failed one the error message. Exactly one of
// Result and ErrorMessage is set on a terminal job.
func Apply(job Job, obs Observation, now time.Time) Job {
	switch obs.Status {
	case StatusCompleted:
		if obs.Result == nil {
			return Fail(job, common.MessageGenerationFailed, now)
		}
		job.Status = StatusCompleted
		job.Result = obs.Result
		job.ErrorMessage = ""
		job.UpdatedAt = now
		done := now
		job.CompletedAt = &done
	case StatusFailed:
		return Fail(job, obs.Error, now)
	case StatusPending, StatusProcessing:
		job.Status = obs.Status
		job.UpdatedAt = now
	}
	return job
}

// Fail moves job into the failed state with msg, falling back to a generic message.
func Fail(job Job, msg string, now time.Time) Job {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = common.MessageGenerationFailed
	}
	job.Status = StatusFailed
	job.Result = nil
	job.ErrorMessage = msg
	job.UpdatedAt = now
	done := now
	job.CompletedAt = &done
	return job
}
