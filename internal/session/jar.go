package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileJar is an http.CookieJar that writes its cookies to a JSON file so a
// login survives process restarts.
type FileJar struct {
	path string
	now  func() time.Time

	mu      sync.Mutex
	inner   *cookiejar.Jar
	entries map[string][]storedCookie // keyed by scheme://host
}

type storedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"httpOnly,omitempty"`
}

var _ http.CookieJar = (*FileJar)(nil)

// OpenFileJar loads the jar at path. A missing file yields an empty jar.
func OpenFileJar(path string) (*FileJar, error) {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	j := &FileJar{path: path, now: time.Now, inner: inner, entries: make(map[string][]storedCookie)}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return j, nil
		}
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	if err := json.Unmarshal(data, &j.entries); err != nil {
		return nil, fmt.Errorf("parse cookies: %w", err)
	}
	for origin, cookies := range j.entries {
		u, err := url.Parse(origin)
		if err != nil {
			delete(j.entries, origin)
			continue
		}
		live := j.live(cookies)
		j.entries[origin] = live
		j.inner.SetCookies(u, toHTTP(live))
	}
	return j, nil
}

// SetCookies implements http.CookieJar and persists the result.
func (j *FileJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.inner.SetCookies(u, cookies)

	origin := u.Scheme + "://" + u.Host
	current := j.entries[origin]
	for _, c := range cookies {
		current = removeCookie(current, c.Name)
		if c.MaxAge < 0 || (!c.Expires.IsZero() && !c.Expires.After(j.now())) {
			continue
		}
		sc := storedCookie{Name: c.Name, Value: c.Value, Path: c.Path, Domain: c.Domain, Expires: c.Expires, Secure: c.Secure, HttpOnly: c.HttpOnly}
		if c.MaxAge > 0 {
			sc.Expires = j.now().Add(time.Duration(c.MaxAge) * time.Second)
		}
		current = append(current, sc)
	}
	if len(current) == 0 {
		delete(j.entries, origin)
	} else {
		j.entries[origin] = current
	}
	// A failed write only costs the persisted login.
	_ = j.saveLocked()
}

// Cookies implements http.CookieJar.
func (j *FileJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.inner.Cookies(u)
}

// Clear drops all cookies and removes the file.
func (j *FileJar) Clear() error {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("cookie jar: %w", err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.inner = inner
	j.entries = make(map[string][]storedCookie)
	if err := os.Remove(j.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cookies: %w", err)
	}
	return nil
}

func (j *FileJar) saveLocked() error {
	if j.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o750); err != nil {
		return fmt.Errorf("ensure cookie dir: %w", err)
	}
	data, err := json.MarshalIndent(j.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cookies: %w", err)
	}
	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write cookies: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		return fmt.Errorf("replace cookies: %w", err)
	}
	return nil
}

func (j *FileJar) live(cookies []storedCookie) []storedCookie {
	out := cookies[:0]
	now := j.now()
	for _, c := range cookies {
		if c.Expires.IsZero() || c.Expires.After(now) {
			out = append(out, c)
		}
	}
	return out
}

func removeCookie(cookies []storedCookie, name string) []storedCookie {
	out := cookies[:0]
	for _, c := range cookies {
		if c.Name != name {
			out = append(out, c)
		}
	}
	return out
}

func toHTTP(cookies []storedCookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}
	return out
}
