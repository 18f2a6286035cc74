package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/jo-hoe/studio/internal/console"
	"github.com/jo-hoe/studio/internal/jobs"
	"github.com/jo-hoe/studio/internal/processor"
	"github.com/jo-hoe/studio/internal/session"
)

func cmdHistory(ctx context.Context, a *App, args []string) error {
	fs := a.flags("history")
	kindFlag := fs.String("kind", "", "content, speech or video")
	limit := fs.Int("limit", 20, "entries to list")
	if err := parse(fs, args); err != nil {
		return err
	}
	var kind jobs.Kind
	if *kindFlag != "" {
		k, ok := jobs.ParseKind(*kindFlag)
		if !ok {
			return fmt.Errorf("%w: unknown kind %q", ErrUsage, *kindFlag)
		}
		kind = k
	}
	if _, err := a.enter(ctx, session.ViewHistory); err != nil {
		return err
	}
	st, err := a.historyStore()
	if err != nil {
		return err
	}
	list, err := st.ListJobs(kind, *limit)
	if err != nil {
		return err
	}
	tw := newTable(a.Out)
	_, _ = fmt.Fprintln(tw, "LOCAL ID\tKIND\tSTATUS\tCHECKS\tCREATED\tDETAIL")
	for _, j := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", j.LocalID, j.Kind, j.Status, j.Attempts, humanize.Time(j.CreatedAt), clip(detail(j), 60))
	}
	return tw.Flush()
}

func cmdDownload(ctx context.Context, a *App, args []string) error {
	fs := a.flags("download")
	name := fs.String("name", "", "file name, defaults to kind-localid")
	if err := parse(fs, args); err != nil {
		return err
	}
	localID, err := positional(fs, "local job id")
	if err != nil {
		return err
	}
	if _, err := a.enter(ctx, session.ViewHistory); err != nil {
		return err
	}
	st, err := a.historyStore()
	if err != nil {
		return err
	}
	job, err := st.GetJob(localID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return fmt.Errorf("no recorded job %s, see: studio history", localID)
		}
		return err
	}
	if job.Status != jobs.StatusCompleted {
		return fmt.Errorf("job %s is %s, only completed jobs can be downloaded", localID, job.Status)
	}
	if *name == "" {
		*name = string(job.Kind) + "-" + job.LocalID
	}
	return a.fetch(ctx, *job, *name)
}

func cmdBatch(ctx context.Context, a *App, args []string) error {
	fs := a.flags("batch")
	file := fs.String("file", "", "batch YAML file")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *file == "" && fs.NArg() == 1 {
		*file = fs.Arg(0)
	}
	if *file == "" {
		return fmt.Errorf("%w: batch needs -file", ErrUsage)
	}
	if err := a.bootstrap(ctx); err != nil {
		return err
	}
	var userID string
	if user, _ := a.Store.User(); user != nil {
		userID = user.ID
	}
	items, err := processor.LoadBatch(*file, userID)
	if err != nil {
		return err
	}
	// every kind in the batch must pass its view's gate before anything runs
	seen := make(map[jobs.Kind]bool)
	for _, it := range items {
		kind := it.Request.Kind()
		if seen[kind] {
			continue
		}
		seen[kind] = true
		if _, err := a.authorize(viewFor(kind)); err != nil {
			return fmt.Errorf("%s items: %w", kind, err)
		}
	}

	var rec *jobs.Recorder
	if st, err := a.historyStore(); err != nil {
		a.Log.Warn("local history unavailable", "err", err)
	} else {
		rec = jobs.NewRecorder(a.Log, st)
	}
	worker := processor.New(a.Log, a.Cfg.Notify, a.agents(), rec, a.downloader())
	bar := console.NewBatchProgress(a.Err, len(items))
	worker.Progress = bar.Item

	a.Log.Info("batch started", "file", filepath.Base(*file), "items", len(items), "workers", a.Cfg.Batch.WorkerCount)
	outcomes, runErr := processor.Run(ctx, a.Log, a.Cfg.Batch, worker, items)

	tw := newTable(a.Out)
	_, _ = fmt.Fprintln(tw, "#\tNAME\tKIND\tSTATUS\tDETAIL\tFILE")
	for _, o := range outcomes {
		file := orDash(o.File)
		if o.Download != "" {
			file = "error: " + o.Download
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", o.Index, orDash(o.Name), o.Job.Kind, o.Job.Status, clip(detail(o.Job), 50), file)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if n := processor.Failed(outcomes); n > 0 {
		return fmt.Errorf("%d of %d batch items did not complete", n, len(items))
	}
	return nil
}

// detail is a one line summary of a job's result or error.
func detail(j jobs.Job) string {
	if j.Status == jobs.StatusFailed {
		return j.ErrorMessage
	}
	switch r := j.Result.(type) {
	case jobs.ContentResult:
		return strings.Join(strings.Fields(r.Text), " ")
	case jobs.SpeechResult:
		return r.AudioURL + " " + console.Size(r.SizeBytes)
	case jobs.VideoResult:
		return r.VideoURL
	}
	return ""
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}
