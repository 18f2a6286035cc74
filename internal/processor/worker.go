package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jo-hoe/studio/internal/common"
	"github.com/jo-hoe/studio/internal/config"
	"github.com/jo-hoe/studio/internal/jobs"
	"github.com/jo-hoe/studio/internal/storage"
)

// TrackerFactory creates an idle tracker per job kind.
type TrackerFactory interface {
	NewTracker(kind jobs.Kind) (*jobs.Tracker, error)
}

// Fetcher stores the media of a completed job.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, name string) (storage.Download, error)
}

// Outcome is the final state of one batch item.
type Outcome struct {
	Index    int
	Name     string
	Job      jobs.Job
	File     string // downloaded media, if requested
	Download string // download error, if any
}

// Worker implements jobs.Processor. Every item gets its own tracker, which
// is closed when the item finishes.
type Worker struct {
	Log      *slog.Logger
	Notify   config.NotifyConfig
	Trackers TrackerFactory
	Recorder *jobs.Recorder // optional
	Fetcher  Fetcher        // optional, required for items with Download set
	Progress func(item jobs.WorkItem, job jobs.Job)
	HTTP     *http.Client // for webhook callbacks, defaults to http.DefaultClient

	mu       sync.Mutex
	outcomes []Outcome
}

// Ensure Worker implements jobs.Processor
var _ jobs.Processor = (*Worker)(nil)

func New(log *slog.Logger, notify config.NotifyConfig, trackers TrackerFactory, rec *jobs.Recorder, fetcher Fetcher) *Worker {
	return &Worker{
		Log:      log,
		Notify:   notify,
		Trackers: trackers,
		Recorder: rec,
		Fetcher:  fetcher,
	}
}

func (w *Worker) Process(ctx context.Context, item jobs.WorkItem) error {
	if item.Request == nil {
		return errors.New("work item has no request")
	}
	tracker, err := w.Trackers.NewTracker(item.Request.Kind())
	if err != nil {
		return err
	}
	defer tracker.Close()
	if w.Recorder != nil {
		tracker.OnChange(w.Recorder.Observe)
	}
	if w.Progress != nil {
		tracker.OnChange(func(j jobs.Job) { w.Progress(item, j) })
	}

	job, err := tracker.Start(ctx, item.Request)
	if err != nil {
		if job.Status != jobs.StatusFailed {
			// rejected before submission, nothing was tracked
			job = jobs.Fail(jobs.Job{Kind: item.Request.Kind()}, err.Error(), time.Now().UTC())
		}
		w.finish(ctx, item, Outcome{Index: item.Index, Name: item.Name, Job: job})
		return err
	}

	final, err := tracker.Wait(ctx)
	if err != nil {
		return err
	}
	if !final.Status.IsTerminal() {
		// polling stopped by cancellation
		return ctx.Err()
	}

	out := Outcome{Index: item.Index, Name: item.Name, Job: final}
	if final.Status == jobs.StatusCompleted && item.Download {
		out.File, out.Download = w.download(ctx, item, final)
	}
	w.finish(ctx, item, out)

	if final.Status == jobs.StatusFailed {
		return fmt.Errorf("job %s failed: %s", final.LocalID, final.ErrorMessage)
	}
	return nil
}

// Outcomes returns the finished items ordered by batch position.
func (w *Worker) Outcomes() []Outcome {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := append([]Outcome(nil), w.outcomes...)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (w *Worker) download(ctx context.Context, item jobs.WorkItem, job jobs.Job) (string, string) {
	media := jobs.MediaURL(job.Result)
	if media == "" {
		return "", ""
	}
	if w.Fetcher == nil {
		return "", "no downloader configured"
	}
	name := item.Name
	if name == "" {
		name = string(job.Kind) + "-" + job.LocalID
	}
	dl, err := w.Fetcher.Fetch(ctx, media, name)
	if err != nil {
		w.Log.Warn("media download failed", "local_id", job.LocalID, "err", err)
		return "", err.Error()
	}
	return dl.Path, ""
}

func (w *Worker) finish(ctx context.Context, item jobs.WorkItem, out Outcome) {
	w.mu.Lock()
	w.outcomes = append(w.outcomes, out)
	w.mu.Unlock()

	if w.Notify.WebhookURL == "" {
		return
	}
	if err := w.sendCallbackWithRetry(ctx, w.Notify.WebhookURL, newCallbackPayload(item, out)); err != nil {
		w.Log.Warn("callback failed after retries", "local_id", out.Job.LocalID, "err", err)
	}
}

type callbackPayload struct {
	LocalID string      `json:"local_id,omitempty"`
	JobID   string      `json:"job_id,omitempty"`
	Kind    string      `json:"kind"`
	Name    string      `json:"name,omitempty"`
	Index   int         `json:"index"`
	Status  string      `json:"status"` // completed|failed
	Error   *string     `json:"error,omitempty"`
	Result  jobs.Result `json:"result,omitempty"`
	File    string      `json:"file,omitempty"`
}

func newCallbackPayload(item jobs.WorkItem, out Outcome) callbackPayload {
	p := callbackPayload{
		LocalID: out.Job.LocalID,
		JobID:   out.Job.JobID,
		Kind:    string(out.Job.Kind),
		Name:    item.Name,
		Index:   item.Index,
		Status:  common.StatusCompleted,
		Result:  out.Job.Result,
		File:    out.File,
	}
	if out.Job.Status == jobs.StatusFailed {
		p.Status = common.StatusFailed
		msg := out.Job.ErrorMessage
		p.Error = &msg
	}
	return p
}

func (w *Worker) sendCallbackWithRetry(ctx context.Context, url string, payload callbackPayload) error {
	max := w.Notify.Retries
	if max <= 0 {
		max = 3
	}
	backoff := w.Notify.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		err := w.postJSON(ctx, url, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == max {
			break
		}
		timer := time.NewTimer(time.Duration(attempt) * backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return lastErr
}

func (w *Worker) postJSON(ctx context.Context, url string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set(common.HeaderContentType, common.ContentTypeJSON)

	client := w.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback status %d", resp.StatusCode)
	}
	return nil
}
