package storage

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func serveBytes(t *testing.T, contentType string, body []byte) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func id3Body() []byte {
	b := []byte("ID3\x03\x00\x00\x00\x00\x00\x00")
	return append(b, bytes.Repeat([]byte{0}, 64)...)
}

func mp4Body() []byte {
	b := []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00")
	return append(b, bytes.Repeat([]byte{0}, 64)...)
}

func TestDownloader_DetectsMP3FromContent(t *testing.T) {
	ts := serveBytes(t, "application/octet-stream", id3Body())
	d := NewDownloader(nil, t.TempDir(), ts.Client(), 1024)

	got, err := d.Fetch(context.Background(), ts.URL+"/file", "Speech: Hello World!")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if filepath.Ext(got.Path) != ".mp3" {
		t.Fatalf("path = %s, want .mp3", got.Path)
	}
	if base := filepath.Base(got.Path); base != "speech-hello-world.mp3" {
		t.Fatalf("base = %s", base)
	}
	if got.Size != int64(len(id3Body())) {
		t.Fatalf("size = %d", got.Size)
	}
	if got.Format == "" {
		t.Fatalf("format not detected")
	}
	if filepath.Dir(got.Path) != d.Dir() {
		t.Fatalf("stored outside downloads dir: %s", got.Path)
	}
}

func TestDownloader_DetectsMP4Video(t *testing.T) {
	ts := serveBytes(t, "", mp4Body())
	d := NewDownloader(nil, t.TempDir(), ts.Client(), 0)

	got, err := d.Fetch(context.Background(), ts.URL, "video-1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if filepath.Ext(got.Path) != ".mp4" {
		t.Fatalf("path = %s, want .mp4", got.Path)
	}
}

func TestDownloader_FallsBackToContentType(t *testing.T) {
	ts := serveBytes(t, "audio/wav; charset=binary", []byte("RIFF....WAVE"))
	d := NewDownloader(nil, t.TempDir(), ts.Client(), 0)

	got, err := d.Fetch(context.Background(), ts.URL, "clip")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if filepath.Ext(got.Path) != ".wav" || got.MimeType != "audio/wav" {
		t.Fatalf("got %+v", got)
	}
}

func TestDownloader_DoesNotOverwrite(t *testing.T) {
	ts := serveBytes(t, "video/webm", []byte("webm-data"))
	d := NewDownloader(nil, t.TempDir(), ts.Client(), 0)

	first, err := d.Fetch(context.Background(), ts.URL, "same")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := d.Fetch(context.Background(), ts.URL, "same")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.Path == second.Path {
		t.Fatalf("second download overwrote %s", first.Path)
	}
	if !strings.HasPrefix(filepath.Base(second.Path), "same-") {
		t.Fatalf("second = %s", second.Path)
	}
}

func TestDownloader_TooLarge(t *testing.T) {
	ts := serveBytes(t, "audio/mpeg", bytes.Repeat([]byte("a"), 100))
	dir := t.TempDir()
	d := NewDownloader(nil, dir, ts.Client(), 10)

	_, err := d.Fetch(context.Background(), ts.URL, "big")
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	entries, _ := os.ReadDir(d.Dir())
	if len(entries) != 0 {
		t.Fatalf("left files behind: %v", entries)
	}
}

func TestDownloader_StatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()
	d := NewDownloader(nil, t.TempDir(), ts.Client(), 0)

	if _, err := d.Fetch(context.Background(), ts.URL, "missing"); err == nil {
		t.Fatalf("expected error for 404")
	}
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"Hello World":      "hello-world",
		"../../etc/passwd": "etc-passwd",
		"news_run-1.json":  "news_run-1.json",
	}
	for in, want := range cases {
		if got := sanitize(in); got != want {
			t.Fatalf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
	if got := sanitize(strings.Repeat("x", 60)); len(got) != 48 {
		t.Fatalf("long name kept %d chars", len(got))
	}
	if got := sanitize("///"); !strings.HasPrefix(got, "media-") {
		t.Fatalf("empty name = %q", got)
	}
}
