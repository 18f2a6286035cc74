// Package agents binds the three generation services to the job tracking
// engine: request validation, submission and status mapping per kind.
package agents

import (
	"fmt"
	"log/slog"

	"github.com/jo-hoe/studio/internal/config"
	"github.com/jo-hoe/studio/internal/jobs"
	"github.com/jo-hoe/studio/internal/studio"
)

// Set builds backends, pollers and trackers for every job kind.
type Set struct {
	Client  *studio.Client
	Polling config.PollingConfig
	Log     *slog.Logger
}

// Backend returns the backend of kind.
func (s Set) Backend(kind jobs.Kind) (jobs.Backend, error) {
	switch kind {
	case jobs.KindContent:
		return NewContentBackend(s.Client), nil
	case jobs.KindSpeech:
		return NewSpeechBackend(s.Client, s.Polling.Speech.HistoryLimit), nil
	case jobs.KindVideo:
		return NewVideoBackend(s.Client, s.Polling.Video.DiscoveryDelay), nil
	}
	return nil, fmt.Errorf("unknown job kind %q", kind)
}

// Poller returns the polling parameters of kind.
func (s Set) Poller(kind jobs.Kind) jobs.Poller {
	var p config.PollSettings
	switch kind {
	case jobs.KindContent:
		p = s.Polling.Content
	case jobs.KindSpeech:
		p = s.Polling.Speech
	case jobs.KindVideo:
		p = s.Polling.Video
	}
	return jobs.Poller{
		Interval:     p.Interval,
		MaxAttempts:  p.MaxAttempts,
		InitialDelay: p.InitialDelay,
		Log:          s.Log,
	}
}

// NewTracker returns an idle tracker for kind.
func (s Set) NewTracker(kind jobs.Kind) (*jobs.Tracker, error) {
	b, err := s.Backend(kind)
	if err != nil {
		return nil, err
	}
	return jobs.NewTracker(s.Log, kind, b, s.Poller(kind)), nil
}
