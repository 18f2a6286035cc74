package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/studio/internal/agents"
	"github.com/jo-hoe/studio/internal/config"
	"github.com/jo-hoe/studio/internal/jobs"
)

// BatchFile is the YAML document accepted by the batch command.
//
//	items:
//	  - name: intro
//	    kind: speech
//	    download: true
//	    speech: {text: "Hello", voiceId: "v1"}
type BatchFile struct {
	Items []BatchEntry `yaml:"items"`
}

// BatchEntry is one request of a batch. Exactly the section matching Kind
// is used.
type BatchEntry struct {
	Name     string                 `yaml:"name"`
	Kind     string                 `yaml:"kind"`
	Download bool                   `yaml:"download"`
	Content  *agents.ContentRequest `yaml:"content"`
	Speech   *agents.SpeechRequest  `yaml:"speech"`
	Video    *agents.VideoRequest   `yaml:"video"`
}

// Request returns the request selected by Kind.
func (e BatchEntry) Request() (jobs.Request, error) {
	kind, ok := jobs.ParseKind(e.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", e.Kind)
	}
	switch kind {
	case jobs.KindContent:
		if e.Content != nil {
			return *e.Content, nil
		}
	case jobs.KindSpeech:
		if e.Speech != nil {
			return *e.Speech, nil
		}
	case jobs.KindVideo:
		if e.Video != nil {
			return *e.Video, nil
		}
	}
	return nil, fmt.Errorf("missing %s section", kind)
}

// LoadBatch reads a batch file from path. Video items without a userId are
// owned by userID.
func LoadBatch(path, userID string) ([]jobs.WorkItem, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	return ParseBatch(data, userID)
}

// ParseBatch decodes and validates a batch. All invalid items are reported
// together.
func ParseBatch(data []byte, userID string) ([]jobs.WorkItem, error) {
	var f BatchFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
		return nil, fmt.Errorf("parse batch: %w", err)
	}
	if len(f.Items) == 0 {
		return nil, errors.New("batch has no items")
	}
	items := make([]jobs.WorkItem, 0, len(f.Items))
	var errs []error
	for i, e := range f.Items {
		if e.Video != nil && e.Video.UserID == "" {
			e.Video.UserID = userID
		}
		req, err := e.Request()
		if err == nil {
			err = req.Validate()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", i, err))
			continue
		}
		items = append(items, jobs.WorkItem{Index: i, Name: e.Name, Download: e.Download, Request: req})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return items, nil
}

// Run processes items on a worker pool and waits for all of them. When ctx
// is cancelled the pool is shut down within cfg.ShutdownGrace and the
// outcomes collected so far are returned with ctx's error.
func Run(ctx context.Context, log *slog.Logger, cfg config.BatchConfig, w *Worker, items []jobs.WorkItem) ([]Outcome, error) {
	q := jobs.NewQueue(log, cfg.QueueCapacity, cfg.WorkerCount)
	if err := q.Start(ctx, w); err != nil {
		return nil, err
	}
	for _, it := range items {
		if err := q.Enqueue(ctx, it); err != nil {
			q.Shutdown(cfg.ShutdownGrace)
			return w.Outcomes(), err
		}
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		q.Drain()
	}()
	select {
	case <-drained:
		return w.Outcomes(), ctx.Err()
	case <-ctx.Done():
		log.Warn("batch cancelled, shutting down workers")
		q.Shutdown(cfg.ShutdownGrace)
		return w.Outcomes(), ctx.Err()
	}
}

// Failed counts outcomes that did not complete.
func Failed(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Job.Status != jobs.StatusCompleted {
			n++
		}
	}
	return n
}
