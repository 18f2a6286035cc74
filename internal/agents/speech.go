package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jo-hoe/studio/internal/common"
	"github.com/jo-hoe/studio/internal/jobs"
	"github.com/jo-hoe/studio/internal/studio"
)

// SpeechAPI is the part of the studio client used for speech generation.
type SpeechAPI interface {
	GenerateSpeech(ctx context.Context, in studio.GenerateSpeechInput) (studio.GenerateSpeechResponse, error)
	SpeechHistory(ctx context.Context, limit int) ([]studio.SpeechRecord, error)
	ResolveURL(ref string) string
}

// SpeechBackend runs speech synthesis. The service has no per-job status
// endpoint; progress is read from the newest history entries.
type SpeechBackend struct {
	api          SpeechAPI
	historyLimit int
	now          func() time.Time

	mu      sync.Mutex
	pending map[string]submittedSpeech // by event id
}

type submittedSpeech struct {
	text string
	at   time.Time
}

var _ jobs.Backend = (*SpeechBackend)(nil)

func NewSpeechBackend(api SpeechAPI, historyLimit int) *SpeechBackend {
	if historyLimit <= 0 {
		historyLimit = common.SpeechHistoryLimit
	}
	return &SpeechBackend{api: api, historyLimit: historyLimit, now: time.Now, pending: make(map[string]submittedSpeech)}
}

func (b *SpeechBackend) Submit(ctx context.Context, req jobs.Request) (jobs.Submission, error) {
	r, ok := req.(SpeechRequest)
	if !ok {
		return jobs.Submission{}, jobs.ErrKindMismatch
	}
	in := r.input()
	submitted := b.now()
	resp, err := b.api.GenerateSpeech(ctx, in)
	if err != nil {
		return jobs.Submission{}, fmt.Errorf("generate speech: %w", err)
	}
	if resp.EventID == "" {
		msg := strings.TrimSpace(resp.Message)
		if msg == "" {
			msg = "speech service returned no event id"
		}
		return jobs.Submission{}, errors.New(msg)
	}
	b.mu.Lock()
	b.pending[resp.EventID] = submittedSpeech{text: in.Text, at: submitted}
	b.mu.Unlock()

	sub := jobs.Submission{JobID: resp.EventID, Status: jobs.StatusPending}
	if st, ok := jobs.ParseStatus(resp.Status); ok && !st.IsTerminal() {
		sub.Status = st
	}
	return sub, nil
}

func (b *SpeechBackend) Check(ctx context.Context, eventID string) (jobs.Observation, error) {
	records, err := b.api.SpeechHistory(ctx, b.historyLimit)
	if err != nil {
		return jobs.Observation{}, checkError(err)
	}
	b.mu.Lock()
	own, known := b.pending[eventID]
	b.mu.Unlock()
	rec, ok := findSpeech(records, eventID, own, known)
	if !ok {
		return jobs.Observation{}, fmt.Errorf("%w: no history entry for %s", jobs.ErrNotFound, eventID)
	}
	status, ok := jobs.ParseStatus(rec.Status)
	if !ok {
		return jobs.Observation{}, fmt.Errorf("%w: status %q", jobs.ErrUnexpectedPayload, rec.Status)
	}
	if status.IsTerminal() {
		b.mu.Lock()
		delete(b.pending, eventID)
		b.mu.Unlock()
	}
	switch status {
	case jobs.StatusCompleted:
		if rec.AudioFilePath == "" {
			return jobs.Observation{}, fmt.Errorf("%w: completed speech without audio", jobs.ErrUnexpectedPayload)
		}
		res := jobs.SpeechResult{
			AudioURL:        b.api.ResolveURL(rec.AudioFilePath),
			DurationSeconds: rec.Duration,
			SizeBytes:       rec.FileSize,
		}
		if rec.Voice != nil {
			res.VoiceName = rec.Voice.Name
		}
		return jobs.Observation{Status: status, Result: res}, nil
	case jobs.StatusFailed:
		msg := rec.ErrorMessage
		if msg == "" {
			msg = "Speech generation failed"
		}
		return jobs.Observation{Status: status, Error: msg}, nil
	}
	return jobs.Observation{Status: status}, nil
}

// findSpeech picks the history entry of eventID. Backends that do not echo
// event ids in the history only allow following the newest entry, and only
// when it carries the submitted text and is not older than the submission.
func findSpeech(records []studio.SpeechRecord, eventID string, own submittedSpeech, known bool) (studio.SpeechRecord, bool) {
	tagged := false
	for _, rec := range records {
		if rec.EventID != "" {
			tagged = true
		}
		if rec.EventID == eventID || rec.ID == eventID {
			return rec, true
		}
	}
	if tagged || !known || len(records) == 0 {
		return studio.SpeechRecord{}, false
	}
	newest := records[0]
	if strings.TrimSpace(newest.Text) != own.text || createdBefore(newest.CreatedAt, own.at) {
		return studio.SpeechRecord{}, false
	}
	return newest, true
}
