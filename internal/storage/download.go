package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dhowden/tag"
	"github.com/dustin/go-humanize"

	"github.com/jo-hoe/studio/internal/common"
)

// ErrTooLarge is returned when a download exceeds the configured limit.
var ErrTooLarge = errors.New("download exceeds size limit")

// Downloader stores generated media below baseDir/downloads.
type Downloader struct {
	log      *slog.Logger
	baseDir  string
	client   *http.Client
	maxBytes int64
}

// Download describes a stored file.
type Download struct {
	Path     string
	MimeType string
	Format   string // container or tag format detected from the content, if any
	Size     int64
}

var mimeExtensions = map[string]string{
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/ogg":   ".ogg",
	"audio/flac":  ".flac",
	"audio/mp4":   ".m4a",
	"video/mp4":   ".mp4",
	"video/webm":  ".webm",
	"image/jpeg":  ".jpg",
	"image/png":   ".png",
}

// NewDownloader creates a downloader that stores to baseDir/downloads. client
// should carry the session cookies when media is served by the backend.
func NewDownloader(log *slog.Logger, baseDir string, client *http.Client, maxBytes int64) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{
		log:      log,
		baseDir:  filepath.Join(baseDir, common.DownloadsDirName),
		client:   client,
		maxBytes: maxBytes,
	}
}

// Dir is the directory downloads are written to.
func (d *Downloader) Dir() string {
	return d.baseDir
}

// Fetch downloads rawURL and stores it under a name derived from name.
func (d *Downloader) Fetch(ctx context.Context, rawURL, name string) (Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Download{}, fmt.Errorf("new request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Download{}, ctx.Err()
		}
		return Download{}, fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Download{}, fmt.Errorf("download status %d", resp.StatusCode)
	}
	if d.maxBytes > 0 && resp.ContentLength > d.maxBytes {
		return Download{}, fmt.Errorf("%w: %s > %s", ErrTooLarge,
			humanize.IBytes(uint64(resp.ContentLength)), humanize.IBytes(uint64(d.maxBytes)))
	}

	if err := os.MkdirAll(d.baseDir, 0o755); err != nil {
		return Download{}, fmt.Errorf("ensure downloads dir: %w", err)
	}
	tmp, err := os.CreateTemp(d.baseDir, ".part-*")
	if err != nil {
		return Download{}, fmt.Errorf("create tmp file: %w", err)
	}
	tmpPath := tmp.Name()
	keep := false
	defer func() {
		_ = tmp.Close()
		if !keep {
			_ = os.Remove(tmpPath)
		}
	}()

	var src io.Reader = resp.Body
	if d.maxBytes > 0 {
		src = io.LimitReader(resp.Body, d.maxBytes+1)
	}
	n, err := io.Copy(tmp, src)
	if err != nil {
		return Download{}, fmt.Errorf("copy download: %w", err)
	}
	if d.maxBytes > 0 && n > d.maxBytes {
		return Download{}, fmt.Errorf("%w: more than %s", ErrTooLarge, humanize.IBytes(uint64(d.maxBytes)))
	}

	format, ext := sniff(tmp)
	mimeType := contentType(resp.Header.Get(common.HeaderContentType))
	if ext == "" {
		ext = pickExtension(mimeType, rawURL)
	}
	if err := tmp.Close(); err != nil {
		return Download{}, fmt.Errorf("close tmp file: %w", err)
	}

	dst, err := d.reserve(sanitize(name), ext)
	if err != nil {
		return Download{}, err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return Download{}, fmt.Errorf("store download: %w", err)
	}
	keep = true

	if d.log != nil {
		d.log.Info("media downloaded", "path", dst, "size", humanize.Bytes(uint64(n)), "format", format)
	}
	return Download{Path: dst, MimeType: mimeType, Format: format, Size: n}, nil
}

// sniff identifies audio and mp4 containers from the file content.
func sniff(f io.ReadSeeker) (string, string) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", ""
	}
	format, fileType, err := tag.Identify(f)
	if err != nil {
		return "", ""
	}
	switch fileType {
	case tag.MP3:
		return string(format), ".mp3"
	case tag.M4A, tag.M4B, tag.M4P, tag.ALAC:
		return string(format), ".m4a"
	case tag.FLAC:
		return string(format), ".flac"
	case tag.OGG:
		return string(format), ".ogg"
	case tag.DSF:
		return string(format), ".dsf"
	}
	if format == tag.MP4 {
		return string(format), ".mp4"
	}
	return string(format), ""
}

func contentType(header string) string {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

func pickExtension(mimeType, rawURL string) string {
	if ext, ok := mimeExtensions[mimeType]; ok {
		return ext
	}
	if u, err := url.Parse(rawURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); ext != "" && len(ext) <= 6 {
			return ext
		}
	}
	return ".bin"
}

// reserve picks a free file name in the downloads directory.
func (d *Downloader) reserve(base, ext string) (string, error) {
	candidate := filepath.Join(d.baseDir, base+ext)
	for i := 0; i < 5; i++ {
		if _, err := os.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		candidate = filepath.Join(d.baseDir, fmt.Sprintf("%s-%s%s", base, randomHex(3), ext))
	}
	return "", fmt.Errorf("no free file name for %q", base)
}

var reUnsafe = regexp.MustCompile(`[^a-z0-9._-]+`)

func sanitize(name string) string {
	s := reUnsafe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	s = strings.Trim(s, "-.")
	if len(s) > 48 {
		s = strings.TrimRight(s[:48], "-.")
	}
	if s == "" {
		return "media-" + randomHex(4)
	}
	return s
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
