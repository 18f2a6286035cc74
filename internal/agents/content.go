package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jo-hoe/studio/internal/jobs"
	"github.com/jo-hoe/studio/internal/studio"
)

// ContentAPI is the part of the studio client used for content generation.
type ContentAPI interface {
	GenerateContent(ctx context.Context, userMessage, quickAction string) (string, error)
	ContentResult(ctx context.Context, runID string) (studio.ContentResult, error)
}

// ContentBackend runs news content generation.
type ContentBackend struct {
	api ContentAPI
}

var _ jobs.Backend = (*ContentBackend)(nil)

func NewContentBackend(api ContentAPI) *ContentBackend {
	return &ContentBackend{api: api}
}

func (b *ContentBackend) Submit(ctx context.Context, req jobs.Request) (jobs.Submission, error) {
	r, ok := req.(ContentRequest)
	if !ok {
		return jobs.Submission{}, jobs.ErrKindMismatch
	}
	runID, err := b.api.GenerateContent(ctx, strings.TrimSpace(r.Message), r.QuickAction)
	if err != nil {
		return jobs.Submission{}, fmt.Errorf("generate content: %w", err)
	}
	return jobs.Submission{JobID: runID, Status: jobs.StatusPending}, nil
}

func (b *ContentBackend) Check(ctx context.Context, runID string) (jobs.Observation, error) {
	res, err := b.api.ContentResult(ctx, runID)
	if err != nil {
		return jobs.Observation{}, checkError(err)
	}
	status, ok := jobs.ParseStatus(res.Status)
	if !ok {
		return jobs.Observation{}, fmt.Errorf("%w: status %q", jobs.ErrUnexpectedPayload, res.Status)
	}
	switch status {
	case jobs.StatusCompleted:
		if !res.Success {
			return jobs.Observation{}, fmt.Errorf("%w: completed without success", jobs.ErrUnexpectedPayload)
		}
		return jobs.Observation{Status: status, Result: jobs.ContentResult{Text: res.Result}}, nil
	case jobs.StatusFailed:
		return jobs.Observation{Status: status, Error: res.Error}, nil
	}
	return jobs.Observation{Status: status}, nil
}

// checkError maps client errors onto the poller's retryable sentinels.
func checkError(err error) error {
	switch {
	case errors.Is(err, studio.ErrUnauthorized):
		return fmt.Errorf("%w: %v", jobs.ErrUnauthenticated, err)
	case studio.IsNotFound(err):
		return fmt.Errorf("%w: %v", jobs.ErrNotFound, err)
	case errors.Is(err, studio.ErrMalformedResponse):
		return fmt.Errorf("%w: %v", jobs.ErrUnexpectedPayload, err)
	}
	return err
}
