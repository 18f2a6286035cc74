package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jo-hoe/studio/internal/studio"
)

type fakeAuth struct {
	mu        sync.Mutex
	user      *studio.User
	meErr     error
	loginErr  error
	logoutErr error
	onMe      func()
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (studio.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loginErr != nil {
		return studio.User{}, f.loginErr
	}
	return *f.user, nil
}

func (f *fakeAuth) Logout(ctx context.Context) error { return f.logoutErr }

func (f *fakeAuth) Me(ctx context.Context) (*studio.User, error) {
	if f.onMe != nil {
		f.onMe()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user, f.meErr
}

func TestGate_ScriptWriterDeniedOnVideoView(t *testing.T) {
	api := &fakeAuth{user: &studio.User{ID: "u1", Role: "SCRIPT_WRITER"}}
	router := NewRouter(ViewVideoAgent)
	store := NewStore(nil, api, router)
	gate := NewGate(store)

	if d, _ := gate.Authorize(ViewVideoAgent); d != DecisionWait {
		t.Fatalf("before bootstrap = %s, want wait", d)
	}
	if err := store.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	d, to := gate.Authorize(ViewVideoAgent)
	if d != DecisionRedirect || to != ViewLogin {
		t.Fatalf("video agent = %s -> %s, want redirect to login", d, to)
	}
	if d, _ := gate.Authorize(ViewMyScripts); d != DecisionAllow {
		t.Fatalf("my scripts = %s, want allow", d)
	}
	if d, _ := gate.Authorize(ViewHistory); d != DecisionAllow {
		t.Fatalf("history allows any authenticated user, got %s", d)
	}
}

func TestGate_AssignedAdminAllowedEverywhere(t *testing.T) {
	api := &fakeAuth{user: &studio.User{ID: "u2", Role: "SCRIPT_WRITER", AssignedRole: "ADMIN"}}
	store := NewStore(nil, api, NewRouter(ViewLogin))
	if err := store.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	gate := NewGate(store)
	for v := range viewRoles {
		if d, _ := gate.Authorize(v); d != DecisionAllow {
			t.Fatalf("%s = %s, want allow for assigned admin", v, d)
		}
	}
}

func TestGate_AnonymousRedirectsExceptPublic(t *testing.T) {
	store := NewStore(nil, &fakeAuth{}, NewRouter(ViewNewsAgent))
	if err := store.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	gate := NewGate(store)
	if d, to := gate.Authorize(ViewProfile); d != DecisionRedirect || to != ViewLogin {
		t.Fatalf("profile = %s -> %s", d, to)
	}
	if d, _ := gate.Authorize(ViewSelectAvatar); d != DecisionAllow {
		t.Fatalf("select-avatar is public, got %s", d)
	}
}

func TestPermits_AllowLists(t *testing.T) {
	cases := []struct {
		roles []Role
		view  View
		want  bool
	}{
		{[]Role{RoleVoiceGenerator}, ViewScriptsList, true},
		{[]Role{RoleVoiceGenerator}, ViewVoiceOverAgent, true},
		{[]Role{RoleAudioGenerator}, ViewScriptsList, false},
		{[]Role{RoleUser, RoleNewsGenerator}, ViewNewsAgent, true},
		{[]Role{RoleUser}, ViewNewsAgent, false},
		{[]Role{RoleUser}, ViewAdminPanel, false},
		{nil, ViewHistory, false},
		{[]Role{RoleUser}, View("unknown"), false},
	}
	for _, tc := range cases {
		if got := Permits(tc.roles, tc.view); got != tc.want {
			t.Fatalf("Permits(%v, %s) = %v, want %v", tc.roles, tc.view, got, tc.want)
		}
	}
}

func TestEffectiveRolesAndHome(t *testing.T) {
	roles := EffectiveRoles(studio.User{Role: "script_writer", AssignedRole: "VOICE_GENERATOR"})
	if len(roles) != 2 || roles[0] != RoleScriptWriter || roles[1] != RoleVoiceGenerator {
		t.Fatalf("roles = %v", roles)
	}
	if got := EffectiveRoles(studio.User{Role: "ADMIN", AssignedRole: "ADMIN"}); len(got) != 1 {
		t.Fatalf("duplicate role kept: %v", got)
	}
	homes := map[string]View{
		"SCRIPT_WRITER":   ViewScriptWriter,
		"VOICE_GENERATOR": ViewScriptsList,
		"VIDEO_GENERATOR": ViewVideoAgent,
		"AUDIO_GENERATOR": ViewVoiceOverAgent,
		"NEWS_GENERATOR":  ViewNewsAgent,
		"ADMIN":           ViewNewsAgent,
		"":                ViewNewsAgent,
	}
	for role, want := range homes {
		if got := HomeView(role); got != want {
			t.Fatalf("HomeView(%q) = %s, want %s", role, got, want)
		}
	}
}

func TestStore_UnauthorizedRedirectsOnce(t *testing.T) {
	api := &fakeAuth{user: &studio.User{ID: "u1", Role: "NEWS_GENERATOR"}}
	router := NewRouter(ViewLogin)
	store := NewStore(nil, api, router)
	if _, err := store.Login(context.Background(), "a@b.c", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if router.Current() != ViewNewsAgent {
		t.Fatalf("home view = %s", router.Current())
	}

	// several in-flight requests fail at once
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.HandleUnauthorized()
		}()
	}
	wg.Wait()

	logins := 0
	for _, v := range router.History() {
		if v == ViewLogin {
			logins++
		}
	}
	if logins != 1 {
		t.Fatalf("login redirects = %d, want exactly 1 (history %v)", logins, router.History())
	}
	if u, st := store.User(); u != nil || st != StateAnonymous {
		t.Fatalf("session not cleared: %v %s", u, st)
	}
}

func TestStore_NoRedirectWhenOnLogin(t *testing.T) {
	router := NewRouter(ViewLogin)
	store := NewStore(nil, &fakeAuth{}, router)
	store.HandleUnauthorized()
	if len(router.History()) != 0 {
		t.Fatalf("unexpected navigation: %v", router.History())
	}
}

func TestStore_BootstrapUnauthorizedThroughClientHook(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()
	client, err := studio.New(ts.URL, time.Second)
	if err != nil {
		t.Fatalf("studio.New: %v", err)
	}
	router := NewRouter(ViewVideoAgent)
	store := NewStore(nil, client, router)
	client.OnUnauthorized(store.HandleUnauthorized)

	if err := store.Bootstrap(context.Background()); !errors.Is(err, studio.ErrUnauthorized) {
		t.Fatalf("Bootstrap err = %v", err)
	}
	if h := router.History(); len(h) != 1 || h[0] != ViewLogin {
		t.Fatalf("history = %v, want one login redirect", h)
	}
	if _, st := store.User(); st != StateAnonymous {
		t.Fatalf("state = %s", st)
	}
}

func TestStore_LogoutClearsEvenOnFailure(t *testing.T) {
	api := &fakeAuth{user: &studio.User{ID: "u1", Role: "ADMIN"}, logoutErr: errors.New("network down")}
	router := NewRouter(ViewLogin)
	store := NewStore(nil, api, router)
	if _, err := store.Login(context.Background(), "a", "b"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := store.Logout(context.Background()); err == nil {
		t.Fatalf("logout error should be reported")
	}
	if u, st := store.User(); u != nil || st != StateAnonymous {
		t.Fatalf("session not cleared: %v %s", u, st)
	}
	if router.Current() != ViewLogin {
		t.Fatalf("current = %s, want login", router.Current())
	}
}

func TestStore_LoginFailureIsAnonymous(t *testing.T) {
	store := NewStore(nil, &fakeAuth{loginErr: errors.New("bad credentials")}, NewRouter(ViewLogin))
	if _, err := store.Login(context.Background(), "a", "b"); err == nil {
		t.Fatalf("expected error")
	}
	if _, st := store.User(); st != StateAnonymous {
		t.Fatalf("state = %s", st)
	}
}

func TestStore_LoadingWhileBootstrapping(t *testing.T) {
	var store *Store
	var seen State
	api := &fakeAuth{user: &studio.User{Role: "ADMIN"}}
	api.onMe = func() { _, seen = store.User() }
	store = NewStore(nil, api, NewRouter(ViewLogin))
	if err := store.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if seen != StateLoading {
		t.Fatalf("state during request = %s, want loading", seen)
	}
}

func TestFileJar_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cookies.json")
	u, _ := url.Parse("http://studio.local:8080/api/v1/auth/login")

	jar, err := OpenFileJar(path)
	if err != nil {
		t.Fatalf("OpenFileJar: %v", err)
	}
	jar.SetCookies(u, []*http.Cookie{
		{Name: "token", Value: "abc", Path: "/", MaxAge: 3600},
		{Name: "old", Value: "x", Path: "/", Expires: time.Now().Add(-time.Hour)},
	})

	reopened, err := OpenFileJar(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got := reopened.Cookies(u)
	if len(got) != 1 || got[0].Name != "token" || got[0].Value != "abc" {
		t.Fatalf("cookies = %v", got)
	}

	if err := reopened.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(reopened.Cookies(u)) != 0 {
		t.Fatalf("cookies survive Clear")
	}
	again, err := OpenFileJar(path)
	if err != nil {
		t.Fatalf("open after clear: %v", err)
	}
	if len(again.Cookies(u)) != 0 {
		t.Fatalf("file survived Clear")
	}
}

func TestStore_NavigationListenerCanReadStore(t *testing.T) {
	api := &fakeAuth{user: &studio.User{ID: "u1", Role: "ADMIN"}}
	router := NewRouter(ViewLogin)
	store := NewStore(nil, api, router)
	var seen []State
	router.OnNavigate = func(View) {
		_, st := store.User()
		seen = append(seen, st)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := store.Login(context.Background(), "a@b.c", "pw"); err != nil {
			t.Errorf("Login: %v", err)
			return
		}
		store.HandleUnauthorized()
		_ = store.Logout(context.Background())
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("store deadlocked inside a navigation listener")
	}

	want := []State{StateAuthenticated, StateAnonymous}
	if len(seen) != len(want) || seen[0] != want[0] || seen[1] != want[1] {
		t.Fatalf("listener saw %v, want %v", seen, want)
	}
}
