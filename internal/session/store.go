package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jo-hoe/studio/internal/studio"
)

// State is the lifecycle state of a session store.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	}
	return "anonymous"
}

// AuthAPI is the part of the studio client used for sessions.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (studio.User, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*studio.User, error)
}

// Navigator moves the application between views.
type Navigator interface {
	Current() View
	Navigate(v View)
}

// Store holds the current session. Wire HandleUnauthorized as the client's
// unauthorized hook.
type Store struct {
	api AuthAPI
	nav Navigator
	log *slog.Logger

	mu         sync.Mutex
	state      State
	user       *studio.User
	redirected bool // a login redirect happened since the session ended
}

// NewStore creates an uninitialized store.
func NewStore(logger *slog.Logger, api AuthAPI, nav Navigator) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{api: api, nav: nav, log: logger}
}

// User returns the current user and state.
func (s *Store) User() (*studio.User, State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil, s.state
	}
	u := *s.user
	return &u, s.state
}

// Bootstrap asks the backend for the current session. Any failure leaves
// the store anonymous.
func (s *Store) Bootstrap(ctx context.Context) error {
	s.setLoading()
	user, err := s.api.Me(ctx)

	s.mu.Lock()
	if err == nil && user != nil {
		s.authenticateLocked(user)
		s.mu.Unlock()
		return nil
	}
	s.clearLocked()
	redirect := s.redirectLocked()
	s.mu.Unlock()

	if err != nil && !errors.Is(err, studio.ErrUnauthorized) {
		s.log.Warn("session check failed", "err", err)
	}
	s.navigate(redirect)
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	return nil
}

// Login starts a session and navigates to the user's home view.
func (s *Store) Login(ctx context.Context, email, password string) (studio.User, error) {
	s.setLoading()
	user, err := s.api.Login(ctx, email, password)

	s.mu.Lock()
	if err != nil {
		s.clearLocked()
		s.mu.Unlock()
		return studio.User{}, err
	}
	s.authenticateLocked(&user)
	s.mu.Unlock()

	s.nav.Navigate(HomeView(user.Role))
	return user, nil
}

// Logout ends the session. Local state is cleared even if the backend call
// fails; that error is returned for reporting only.
func (s *Store) Logout(ctx context.Context) error {
	err := s.api.Logout(ctx)
	if err != nil {
		s.log.Warn("logout request failed", "err", err)
	}
	s.mu.Lock()
	s.clearLocked()
	redirect := s.redirectLocked()
	s.mu.Unlock()

	s.navigate(redirect)
	return err
}

// HandleUnauthorized clears the session after a 401 and redirects to login
// once. Nothing happens when the user is already on the login view.
func (s *Store) HandleUnauthorized() {
	s.mu.Lock()
	if s.state == StateAuthenticated {
		s.log.Info("session expired")
	}
	s.clearLocked()
	redirect := s.redirectLocked()
	s.mu.Unlock()

	s.navigate(redirect)
}

func (s *Store) setLoading() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateLoading
}

func (s *Store) authenticateLocked(u *studio.User) {
	cp := *u
	s.user = &cp
	s.state = StateAuthenticated
	s.redirected = false
}

func (s *Store) clearLocked() {
	s.user = nil
	s.state = StateAnonymous
}

// redirectLocked claims the single redirect to login. The caller performs
// it with navigate once s.mu is released, so navigation listeners may call
// back into the store.
func (s *Store) redirectLocked() bool {
	if s.redirected || s.nav.Current() == ViewLogin {
		return false
	}
	s.redirected = true
	return true
}

func (s *Store) navigate(redirect bool) {
	if redirect {
		s.nav.Navigate(ViewLogin)
	}
}

// Router is an in-memory Navigator. OnNavigate, if set, runs on every move.
type Router struct {
	mu         sync.Mutex
	current    View
	history    []View
	OnNavigate func(View)
}

// NewRouter starts at view.
func NewRouter(view View) *Router {
	return &Router{current: view}
}

func (r *Router) Current() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Router) Navigate(v View) {
	r.mu.Lock()
	r.current = v
	r.history = append(r.history, v)
	fn := r.OnNavigate
	r.mu.Unlock()
	if fn != nil {
		fn(v)
	}
}

// Set moves to v without recording a navigation, like a user opening a view.
func (r *Router) Set(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = v
}

// History returns the navigations performed so far.
func (r *Router) History() []View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]View(nil), r.history...)
}
