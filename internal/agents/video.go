package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jo-hoe/studio/internal/jobs"
	"github.com/jo-hoe/studio/internal/studio"
)

// VideoAPI is the part of the studio client used for video generation.
type VideoAPI interface {
	CreateVideo(ctx context.Context, in studio.CreateVideoInput) (studio.CreateVideoResponse, error)
	VideoStatus(ctx context.Context, videoID string) (studio.VideoStatusResponse, error)
	VideoHistory(ctx context.Context, userID string, page, limit int) (studio.VideoPage, error)
	ResolveURL(ref string) string
}

// ErrVideoNotDiscovered is returned when the id of a created video cannot be found.
var ErrVideoNotDiscovered = errors.New("created video could not be found in the history")

const (
	discoveryAttempts = 3
	discoveryPageSize = 5
	// clockSkew is how much older than the submission a record may look
	// and still belong to it.
	clockSkew = time.Minute
)

// VideoBackend runs avatar video generation.
//
// The creation endpoint acknowledges with an event id that the status
// endpoint does not accept. When the response carries no record id, the
// newest history entries are searched for the record of this request,
// waiting discoveryDelay before each of up to discoveryAttempts lookups.
type VideoBackend struct {
	api            VideoAPI
	discoveryDelay time.Duration
	now            func() time.Time
}

var _ jobs.Backend = (*VideoBackend)(nil)

func NewVideoBackend(api VideoAPI, discoveryDelay time.Duration) *VideoBackend {
	return &VideoBackend{api: api, discoveryDelay: discoveryDelay, now: time.Now}
}

func (b *VideoBackend) Submit(ctx context.Context, req jobs.Request) (jobs.Submission, error) {
	r, ok := req.(VideoRequest)
	if !ok {
		return jobs.Submission{}, jobs.ErrKindMismatch
	}
	in := r.input()
	submitted := b.now()
	resp, err := b.api.CreateVideo(ctx, in)
	if err != nil {
		return jobs.Submission{}, fmt.Errorf("create video: %w", err)
	}
	sub := jobs.Submission{JobID: resp.VideoID, Status: jobs.StatusPending}
	if st, ok := jobs.ParseStatus(resp.Status); ok && !st.IsTerminal() {
		sub.Status = st
	}
	if sub.JobID != "" {
		return sub, nil
	}

	id, err := b.discover(ctx, in, submitted)
	if err != nil {
		return jobs.Submission{}, err
	}
	sub.JobID = id
	return sub, nil
}

func (b *VideoBackend) discover(ctx context.Context, in studio.CreateVideoInput, submitted time.Time) (string, error) {
	var lastErr error
	for attempt := 0; attempt < discoveryAttempts; attempt++ {
		if b.discoveryDelay > 0 {
			timer := time.NewTimer(b.discoveryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		}
		page, err := b.api.VideoHistory(ctx, in.UserID, 1, discoveryPageSize)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}
		for _, v := range page.Videos {
			if ownsVideo(v, in, submitted) {
				return v.ID, nil
			}
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", ErrVideoNotDiscovered, lastErr)
	}
	return "", ErrVideoNotDiscovered
}

// ownsVideo reports whether v was created by the request in submitted at
// the given time. Avatar and voice are compared when the history carries them.
func ownsVideo(v studio.VideoRecord, in studio.CreateVideoInput, submitted time.Time) bool {
	if v.ID == "" || strings.TrimSpace(v.Script) != in.Script {
		return false
	}
	if v.AvatarID != "" && v.AvatarID != in.AvatarID {
		return false
	}
	if v.VoiceID != "" && v.VoiceID != in.VoiceID {
		return false
	}
	return !createdBefore(v.CreatedAt, submitted)
}

// createdBefore reports whether the service timestamp stamp lies more than
// clockSkew before t. Unparseable stamps never count as older.
func createdBefore(stamp string, t time.Time) bool {
	created, err := time.Parse(time.RFC3339, strings.TrimSpace(stamp))
	if err != nil {
		return false
	}
	return created.Before(t.Add(-clockSkew))
}

func (b *VideoBackend) Check(ctx context.Context, videoID string) (jobs.Observation, error) {
	resp, err := b.api.VideoStatus(ctx, videoID)
	if err != nil {
		return jobs.Observation{}, checkError(err)
	}
	raw := resp.Status
	if raw == "" && resp.Video != nil {
		raw = resp.Video.Status
	}
	status, ok := jobs.ParseStatus(raw)
	if !ok {
		return jobs.Observation{}, fmt.Errorf("%w: status %q", jobs.ErrUnexpectedPayload, raw)
	}
	switch status {
	case jobs.StatusCompleted:
		v := resp.Video
		if v == nil || v.VideoURL == "" {
			return jobs.Observation{}, fmt.Errorf("%w: completed video without url", jobs.ErrUnexpectedPayload)
		}
		return jobs.Observation{Status: status, Result: jobs.VideoResult{
			VideoURL:        b.api.ResolveURL(v.VideoURL),
			ThumbnailURL:    b.api.ResolveURL(v.ThumbnailURL),
			DurationSeconds: v.VideoDuration,
			AvatarName:      v.AvatarName,
			VoiceName:       v.VoiceName,
		}}, nil
	case jobs.StatusFailed:
		msg := "Video generation failed"
		if resp.Video != nil && resp.Video.ErrorMessage != "" {
			msg = resp.Video.ErrorMessage
		}
		return jobs.Observation{Status: status, Error: msg}, nil
	}
	return jobs.Observation{Status: status}, nil
}
