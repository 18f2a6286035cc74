// Package console renders job progress for terminal users.
package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"github.com/jo-hoe/studio/internal/jobs"
)

// Progress draws a bar for one tracked job. The bar advances one step per
// status check, so its length is the attempt budget.
type Progress struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

// NewJobProgress creates a bar for a job of kind polled at most maxAttempts times.
func NewJobProgress(w io.Writer, kind jobs.Kind, maxAttempts int) *Progress {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	bar := progressbar.NewOptions(maxAttempts,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(string(kind)),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(w) }),
	)
	return &Progress{bar: bar}
}

// Observe updates the bar from a tracked state. Register it with
// Tracker.OnChange.
func (p *Progress) Observe(job jobs.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar.IsFinished() {
		return
	}
	p.bar.Describe(fmt.Sprintf("%s %s", job.Kind, job.Status))
	_ = p.bar.Set(job.Attempts)
	if job.Status.IsTerminal() {
		_ = p.bar.Finish()
	}
}

// Finished reports whether a terminal state was drawn.
func (p *Progress) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bar.IsFinished()
}

// BatchProgress counts finished items of a batch.
type BatchProgress struct {
	mu   sync.Mutex
	bar  *progressbar.ProgressBar
	done int
}

// NewBatchProgress creates a counter bar for total items.
func NewBatchProgress(w io.Writer, total int) *BatchProgress {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("batch"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(w) }),
	)
	return &BatchProgress{bar: bar}
}

// Item advances the bar when an item reaches a terminal status.
func (b *BatchProgress) Item(item jobs.WorkItem, job jobs.Job) {
	if !job.Status.IsTerminal() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done++
	label := item.Name
	if label == "" {
		label = fmt.Sprintf("item %d", item.Index)
	}
	b.bar.Describe(fmt.Sprintf("%s %s", label, job.Status))
	_ = b.bar.Add(1)
}

// Done returns the number of finished items.
func (b *BatchProgress) Done() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// Size formats a byte count for humans.
func Size(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(n))
}
