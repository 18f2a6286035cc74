package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jo-hoe/studio/internal/agents"
	"github.com/jo-hoe/studio/internal/config"
	"github.com/jo-hoe/studio/internal/jobs"
)

const sampleBatch = `
items:
  - name: headline
    kind: news
    content:
      message: "City council approves budget"
      quickAction: "SEO Title"
  - name: Intro Voice
    kind: speech
    download: true
    speech:
      text: "Welcome back"
      voiceId: v1
      language: de-DE
      settings: {stability: 0.4, similarityBoost: 0.8, style: 0.1, useSpeakerBoost: false}
  - kind: video
    video:
      script: "Hello"
      avatarId: a1
      voiceId: v2
      duration: 30s
`

func TestParseBatch(t *testing.T) {
	items, err := ParseBatch([]byte(sampleBatch), "user-7")
	if err != nil {
		t.Fatalf("ParseBatch: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %d", len(items))
	}
	if _, ok := items[0].Request.(agents.ContentRequest); !ok || items[0].Name != "headline" {
		t.Fatalf("item 0 = %+v", items[0])
	}
	sp, ok := items[1].Request.(agents.SpeechRequest)
	if !ok || !items[1].Download || sp.Settings == nil || sp.Settings.SimilarityBoost != 0.8 || sp.Settings.UseSpeakerBoost {
		t.Fatalf("item 1 = %+v", items[1])
	}
	v, ok := items[2].Request.(agents.VideoRequest)
	if !ok || v.UserID != "user-7" || items[2].Index != 2 {
		t.Fatalf("item 2 = %+v", items[2])
	}
}

func TestParseBatch_ReportsEveryInvalidItem(t *testing.T) {
	data := `
items:
  - kind: speech
    speech: {text: "no voice"}
  - kind: content
    content: {message: "ok"}
  - kind: podcast
  - kind: video
`
	_, err := ParseBatch([]byte(data), "")
	if err == nil {
		t.Fatalf("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"item 0: voiceId", "item 2: unknown kind", "item 3: missing video section"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q does not mention %q", msg, want)
		}
	}
	if strings.Contains(msg, "item 1") {
		t.Fatalf("valid item reported: %q", msg)
	}
	var verr *jobs.ValidationError
	if !errors.As(err, &verr) || verr.Field != "voiceId" {
		t.Fatalf("validation error not preserved: %v", err)
	}
}

func TestParseBatch_Empty(t *testing.T) {
	if _, err := ParseBatch([]byte("items: []"), ""); err == nil {
		t.Fatalf("expected error for empty batch")
	}
}

func TestLoadBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	t.Setenv("NEWS_TOPIC", "elections")
	if err := os.WriteFile(path, []byte("items:\n  - kind: content\n    content: {message: \"${NEWS_TOPIC}\"}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	items, err := LoadBatch(path, "")
	if err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}
	if got := items[0].Request.(agents.ContentRequest).Message; got != "elections" {
		t.Fatalf("message = %q", got)
	}
}

func TestRun_ProcessesEveryItemInOrder(t *testing.T) {
	trackers := fakeTrackers{backends: map[jobs.Kind]jobs.Backend{jobs.KindContent: &scriptBackend{kind: jobs.KindContent}}}
	w := New(quietLogger(), config.NotifyConfig{}, trackers, nil, nil)

	var items []jobs.WorkItem
	for i := 0; i < 8; i++ {
		items = append(items, jobs.WorkItem{Index: i, Request: agents.ContentRequest{Message: "m"}})
	}
	outs, err := Run(context.Background(), quietLogger(), config.BatchConfig{WorkerCount: 3, QueueCapacity: 2}, w, items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outs) != len(items) {
		t.Fatalf("outcomes = %d", len(outs))
	}
	for i, o := range outs {
		if o.Index != i || o.Job.Status != jobs.StatusCompleted {
			t.Fatalf("outcome %d = %+v", i, o)
		}
	}
	if Failed(outs) != 0 {
		t.Fatalf("failed = %d", Failed(outs))
	}
}

func TestRun_CancelStopsPolling(t *testing.T) {
	trackers := fakeTrackers{
		backends: map[jobs.Kind]jobs.Backend{jobs.KindContent: &scriptBackend{kind: jobs.KindContent, hang: true}},
		interval: 5 * time.Millisecond,
	}
	w := New(quietLogger(), config.NotifyConfig{}, trackers, nil, nil)
	items := []jobs.WorkItem{{Request: agents.ContentRequest{Message: "m"}}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	outs, err := Run(ctx, quietLogger(), config.BatchConfig{WorkerCount: 1, QueueCapacity: 1, ShutdownGrace: time.Second}, w, items)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if len(outs) != 0 {
		t.Fatalf("cancelled item produced an outcome: %+v", outs)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("shutdown took %s", time.Since(start))
	}
}
