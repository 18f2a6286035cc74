// Package cli implements the studio command line. Every command opens the
// view it belongs to and passes the role gate before touching the backend.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/jo-hoe/studio/internal/agents"
	"github.com/jo-hoe/studio/internal/config"
	"github.com/jo-hoe/studio/internal/jobs"
	"github.com/jo-hoe/studio/internal/session"
	"github.com/jo-hoe/studio/internal/storage"
	"github.com/jo-hoe/studio/internal/studio"
)

var (
	// ErrNotLoggedIn is returned by gated commands without a session.
	ErrNotLoggedIn = errors.New("not logged in, run: studio login")
	// ErrForbidden is returned when the session's roles do not permit a view.
	ErrForbidden = errors.New("access denied")
)

// App wires the client, session and local state for one invocation.
type App struct {
	Cfg *config.Config
	Log *slog.Logger
	Out io.Writer // command output
	Err io.Writer // progress and notices

	Client *studio.Client
	Jar    *session.FileJar
	Router *session.Router
	Store  *session.Store
	Gate   session.Gate

	history *jobs.SQLiteStore
}

// New creates an App talking to cfg.API.BaseURL with cookies persisted in
// cfg.API.CookieFile.
func New(cfg *config.Config, log *slog.Logger, out, errOut io.Writer) (*App, error) {
	if err := cfg.EnsureStorageDir(); err != nil {
		return nil, err
	}
	jar, err := session.OpenFileJar(cfg.API.CookieFile)
	if err != nil {
		return nil, err
	}
	client, err := studio.New(cfg.API.BaseURL, cfg.API.Timeout, studio.WithCookieJar(jar))
	if err != nil {
		return nil, err
	}
	router := session.NewRouter(session.ViewLogin)
	router.OnNavigate = func(v session.View) {
		if v == session.ViewLogin {
			_, _ = fmt.Fprintln(errOut, "session ended, log in again with: studio login")
		}
	}
	store := session.NewStore(log, client, router)
	client.OnUnauthorized(store.HandleUnauthorized)

	return &App{
		Cfg:    cfg,
		Log:    log,
		Out:    out,
		Err:    errOut,
		Client: client,
		Jar:    jar,
		Router: router,
		Store:  store,
		Gate:   session.NewGate(store),
	}, nil
}

// Close releases local resources.
func (a *App) Close() error {
	if a.history != nil {
		return a.history.Close()
	}
	return nil
}

// enter opens view: the session is loaded and the gate consulted. The
// current user is returned when the view was allowed.
func (a *App) enter(ctx context.Context, view session.View) (*studio.User, error) {
	if err := a.bootstrap(ctx); err != nil {
		return nil, err
	}
	return a.authorize(view)
}

func (a *App) bootstrap(ctx context.Context) error {
	if err := a.Store.Bootstrap(ctx); err != nil && !errors.Is(err, studio.ErrUnauthorized) {
		return err
	}
	return nil
}

func (a *App) authorize(view session.View) (*studio.User, error) {
	a.Router.Set(view)
	decision, _ := a.Gate.Authorize(view)
	user, _ := a.Store.User()
	switch decision {
	case session.DecisionAllow:
		return user, nil
	case session.DecisionWait:
		return nil, fmt.Errorf("session for %s is still loading", view)
	}
	if user == nil {
		return nil, ErrNotLoggedIn
	}
	allowed, _ := session.AllowedRoles(view)
	names := make([]string, 0, len(allowed))
	for _, r := range allowed {
		names = append(names, string(r))
	}
	return nil, fmt.Errorf("%w: %s requires one of %s", ErrForbidden, view, strings.Join(names, ", "))
}

// viewFor is the view a job kind is started from.
func viewFor(kind jobs.Kind) session.View {
	switch kind {
	case jobs.KindSpeech:
		return session.ViewVoiceOverAgent
	case jobs.KindVideo:
		return session.ViewVideoAgent
	}
	return session.ViewNewsAgent
}

func (a *App) agents() agents.Set {
	return agents.Set{Client: a.Client, Polling: a.Cfg.Polling, Log: a.Log}
}

func (a *App) historyStore() (*jobs.SQLiteStore, error) {
	if a.history != nil {
		return a.history, nil
	}
	st, err := jobs.NewSQLiteStore(a.Cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	a.history = st
	return st, nil
}

func (a *App) downloader() *storage.Downloader {
	max := uint64(a.Cfg.Storage.MaxDownloadSize)
	if max > math.MaxInt64 {
		max = math.MaxInt64
	}
	return storage.NewDownloader(a.Log, a.Cfg.Storage.Dir, a.Client.HTTPClient(), int64(max)) // #nosec G115 - bounded above
}

func (a *App) pollSettings(kind jobs.Kind) config.PollSettings {
	switch kind {
	case jobs.KindSpeech:
		return a.Cfg.Polling.Speech
	case jobs.KindVideo:
		return a.Cfg.Polling.Video
	}
	return a.Cfg.Polling.Content
}
