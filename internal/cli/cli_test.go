package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jo-hoe/studio/internal/config"
	"github.com/jo-hoe/studio/internal/fakestudio"
)

const (
	adminEmail    = "admin@studio.local"
	adminPassword = "secret"
)

type harness struct {
	t    *testing.T
	fake *fakestudio.Server
	cfg  *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := fakestudio.New(nil, config.FakeConfig{Steps: 2, AdminEmail: adminEmail, AdminPassword: adminPassword})
	ts := httptest.NewServer(fake.Handler())
	t.Cleanup(ts.Close)

	cfg, err := config.Parse([]byte("api:\n  baseUrl: " + ts.URL + "\nstorage:\n  dir: " + t.TempDir() + "\n"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	fast := config.PollSettings{Interval: time.Millisecond, MaxAttempts: 20, DiscoveryDelay: time.Millisecond, HistoryLimit: 10}
	cfg.Polling = config.PollingConfig{Content: fast, Speech: fast, Video: fast}
	cfg.Batch.ShutdownGrace = time.Second
	return &harness{t: t, fake: fake, cfg: cfg}
}

// run executes one invocation with a fresh App, like a new process would.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	app, err := New(h.cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), &out, &errOut)
	if err != nil {
		h.t.Fatalf("New: %v", err)
	}
	defer func() { _ = app.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = app.Run(ctx, args)
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	if err != nil {
		h.t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	return out
}

func (h *harness) login(email, password string) {
	h.t.Helper()
	h.mustRun("login", "-email", email, "-password", password)
}

func TestLogin_SessionSurvivesInvocations(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("login", "-email", adminEmail, "-password", adminPassword)
	if !strings.Contains(out, "logged in as "+adminEmail) {
		t.Fatalf("login output = %q", out)
	}
	who := h.mustRun("whoami")
	if !strings.Contains(who, adminEmail) || !strings.Contains(who, "ADMIN") {
		t.Fatalf("whoami output = %q", who)
	}
}

func TestLogin_BadPassword(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("login", "-email", adminEmail, "-password", "wrong")
	if err == nil || !strings.Contains(err.Error(), "Invalid email or password") {
		t.Fatalf("err = %v", err)
	}
}

func TestGatedCommand_RequiresLogin(t *testing.T) {
	h := newHarness(t)
	if _, err := h.run("news", "-message", "hello"); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("err = %v, want ErrNotLoggedIn", err)
	}
}

func TestLogout_EndsSession(t *testing.T) {
	h := newHarness(t)
	h.login(adminEmail, adminPassword)
	h.mustRun("logout")
	if _, err := h.run("whoami"); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("err = %v, want ErrNotLoggedIn", err)
	}
}

func TestGate_ScriptWriterCannotStartVideo(t *testing.T) {
	h := newHarness(t)
	h.fake.AddUser("writer@studio.local", "pw", "SCRIPT_WRITER")
	h.login("writer@studio.local", "pw")

	_, err := h.run("video", "-script", "Hi", "-avatar", "avatar-lena", "-voice", "vv-anna")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	// own view still works
	h.mustRun("scripts", "create", "-heading", "Draft", "-content", "Body")
	if out := h.mustRun("scripts", "list"); !strings.Contains(out, "Draft") {
		t.Fatalf("scripts list = %q", out)
	}
}

func TestNews_PrintsGeneratedContent(t *testing.T) {
	h := newHarness(t)
	h.login(adminEmail, adminPassword)
	out := h.mustRun("news", "-action", "SEO Title", "Budget", "vote")
	if !strings.Contains(out, "SEO Title: Budget vote") {
		t.Fatalf("news output = %q", out)
	}
}

func TestNews_FailedJobIsAnError(t *testing.T) {
	h := newHarness(t)
	h.login(adminEmail, adminPassword)
	_, err := h.run("news", "-message", "broken [fail]")
	if err == nil || !strings.Contains(err.Error(), "Content generation failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestNews_ValidationErrorBeforeSubmit(t *testing.T) {
	h := newHarness(t)
	h.login(adminEmail, adminPassword)
	if _, err := h.run("news"); err == nil {
		t.Fatal("expected an error for an empty message")
	}
	if out := h.mustRun("history"); strings.Contains(out, "content") {
		t.Fatalf("rejected request was recorded: %q", out)
	}
}

func TestSpeech_DownloadAndHistory(t *testing.T) {
	h := newHarness(t)
	h.login(adminEmail, adminPassword)

	out := h.mustRun("speech", "-voice", "voice-rachel", "-download", "-name", "greeting", "Hello there")
	if !strings.Contains(out, "/media/speech/") {
		t.Fatalf("speech output = %q", out)
	}
	path := filepath.Join(h.cfg.Storage.Dir, "downloads", "greeting.mp3")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("downloaded file: %v", err)
	}

	hist := h.mustRun("history", "-kind", "speech")
	if !strings.Contains(hist, "speech") || !strings.Contains(hist, "completed") {
		t.Fatalf("history = %q", hist)
	}
	if list := h.mustRun("speeches", "list"); !strings.Contains(list, "Rachel") {
		t.Fatalf("speeches list = %q", list)
	}
}

func TestVideo_CompletesForSessionUser(t *testing.T) {
	h := newHarness(t)
	h.login(adminEmail, adminPassword)
	out := h.mustRun("video", "-avatar", "avatar-lena", "-voice", "vv-anna", "Hello viewers")
	if !strings.Contains(out, "/media/video/") {
		t.Fatalf("video output = %q", out)
	}
	if list := h.mustRun("videos", "list"); !strings.Contains(list, "completed") {
		t.Fatalf("videos list = %q", list)
	}
}

func TestBatch_RunsEveryItem(t *testing.T) {
	h := newHarness(t)
	h.login(adminEmail, adminPassword)

	file := filepath.Join(t.TempDir(), "batch.yaml")
	batch := `
items:
  - name: headline
    kind: news
    content:
      message: "Harbour reopens"
  - name: intro
    kind: speech
    download: true
    speech:
      text: "Good morning"
      voiceId: voice-daniel
  - name: broken
    kind: news
    content:
      message: "nothing [fail]"
`
	if err := os.WriteFile(file, []byte(batch), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err := h.run("batch", "-file", file)
	if err == nil || !strings.Contains(err.Error(), "1 of 3") {
		t.Fatalf("err = %v, want one failed item", err)
	}
	for _, want := range []string{"headline", "intro", "broken", "intro.mp3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("batch output missing %q:\n%s", want, out)
		}
	}
}

func TestUsers_AdminRegistersAndLists(t *testing.T) {
	h := newHarness(t)
	h.login(adminEmail, adminPassword)
	h.mustRun("users", "register", "-email", "voice@studio.local", "-password", "pw", "-role", "VOICE_GENERATOR")
	out := h.mustRun("users", "list")
	if !strings.Contains(out, "voice@studio.local") || !strings.Contains(out, "VOICE_GENERATOR") {
		t.Fatalf("users list = %q", out)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	h := newHarness(t)
	if _, err := h.run("bogus"); !errors.Is(err, ErrUsage) {
		t.Fatalf("err = %v, want ErrUsage", err)
	}
}

func TestMain_ExitCodes(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "studio.yaml")
	yaml := "api:\n  baseUrl: " + h.cfg.API.BaseURL + "\nstorage:\n  dir: " + h.cfg.Storage.Dir + "\nlogLevel: error\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	var out, errOut bytes.Buffer
	ctx := context.Background()

	if code := Main(ctx, []string{"-config", path, "bogus"}, &out, &errOut); code != 2 {
		t.Fatalf("unknown command exit = %d", code)
	}
	if code := Main(ctx, []string{"-config", path, "login", "-email", adminEmail, "-password", adminPassword}, &out, &errOut); code != 0 {
		t.Fatalf("login exit = %d, stderr %q", code, errOut.String())
	}
	if !strings.Contains(out.String(), "logged in as") {
		t.Fatalf("stdout = %q", out.String())
	}
	if code := Main(ctx, []string{"-config", filepath.Join(t.TempDir(), "missing.yaml"), "whoami"}, &out, &errOut); code != 1 {
		t.Fatalf("missing config exit = %d", code)
	}
}
