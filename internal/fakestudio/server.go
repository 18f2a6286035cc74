// Package fakestudio is an in-memory studio backend. Every job advances one
// step per status read and completes after a configured number of reads, so
// the client can be exercised end to end without the real services.
//
// Any request text containing "[fail]" produces a failing job.
package fakestudio

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/jo-hoe/studio/internal/common"
	"github.com/jo-hoe/studio/internal/config"
)

const (
	sessionCookie = "token"
	failMarker    = "[fail]"
)

// Server holds the backend state. It is safe for concurrent use.
type Server struct {
	log *slog.Logger
	cfg config.FakeConfig
	now func() time.Time

	mu       sync.Mutex
	users    map[string]*account // by id
	sessions map[string]string   // token -> user id
	runs     map[string]*contentRun
	speeches []*speech // newest first
	videos   []*video  // newest first
	scripts  []*script // newest first
}

type account struct {
	ID        string
	Email     string
	Password  string
	Role      string
	Assigned  string
	CreatedAt time.Time
}

// New creates a backend seeded with one admin account.
func New(log *slog.Logger, cfg config.FakeConfig) *Server {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Steps <= 0 {
		cfg.Steps = 3
	}
	s := &Server{
		log:      log,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		users:    make(map[string]*account),
		sessions: make(map[string]string),
		runs:     make(map[string]*contentRun),
	}
	s.addUser(cfg.AdminEmail, cfg.AdminPassword, "ADMIN")
	return s
}

// AddUser creates an account with role and returns its id.
func (s *Server) AddUser(email, password, role string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUser(email, password, role)
}

func (s *Server) addUser(email, password, role string) string {
	u := &account{
		ID:        uuid.NewString(),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Password:  password,
		Role:      role,
		CreatedAt: s.now(),
	}
	s.users[u.ID] = u
	return u.ID
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logging)

	r.Get("/media/speech/{file}", s.handleSpeechMedia)
	r.Get("/media/video/{file}", s.handleVideoMedia)

	r.Route(common.PathAPIPrefix, func(r chi.Router) {
		r.Post(common.PathAuthLogin, s.handleLogin)
		r.Post(common.PathAuthLogout, s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Get(common.PathAuthMe, s.handleMe)

			r.Post(common.PathContentCreate, s.handleContentCreate)
			r.Get(common.PathContentResult+"{runId}", s.handleContentResult)

			r.Post(common.PathSpeechGenerate, s.handleSpeechGenerate)
			r.Get(common.PathSpeechHistory, s.handleSpeechHistory)
			r.Post(common.PathSpeechDelete, s.handleSpeechDelete)
			r.Get(common.PathSpeechVoices, s.handleSpeechVoices)

			r.Post(common.PathVideoCreate, s.handleVideoCreate)
			r.Post(common.PathVideoStatus, s.handleVideoStatus)
			r.Get(common.PathVideoHistory+"{userId}", s.handleVideoHistory)
			r.Post(common.PathVideoDelete, s.handleVideoDelete)
			r.Get(common.PathVideoAvatars, s.handleAvatars)
			r.Get(common.PathVideoVoices, s.handleVideoVoices)

			r.Post(common.PathScriptsCreate, s.handleScriptCreate)
			r.Get(common.PathScriptsMine, s.handleMyScripts)
			r.Get(common.PathScriptsVoiceOver, s.handleVoiceOverScripts)
			r.Put(common.PathScriptsUpdate+"{id}", s.handleScriptUpdate)
			r.Delete(common.PathScriptsDelete+"{id}", s.handleScriptDelete)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get(common.PathAdminUsers, s.handleListUsers)
				r.Post(common.PathUserRegisterEmail, s.handleRegister)
				r.Put(common.PathAdminUpdateUser+"{id}", s.handleUpdateUser)
				r.Post(common.PathAdminAssignRole, s.handleAssignRole)
				r.Delete(common.PathAdminDeleteUser+"{id}", s.handleDeleteUser)
			})
		})
	})
	return r
}

// NewHTTPServer wraps Handler in an http.Server listening on cfg.Address.
func (s *Server) NewHTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

type ctxKey struct{}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := s.sessionUser(r)
		if u == nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(withAccount(r.Context(), *u)))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := accountFrom(r.Context())
		if u.Role != "ADMIN" && u.Assigned != "ADMIN" {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) sessionUser(r *http.Request) *account {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.sessions[c.Value]
	if !ok {
		return nil
	}
	u, ok := s.users[id]
	if !ok {
		delete(s.sessions, c.Value)
		return nil
	}
	cp := *u
	return &cp
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(common.HeaderContentType, common.ContentTypeJSON)
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func failing(texts ...string) bool {
	for _, t := range texts {
		if strings.Contains(strings.ToLower(t), failMarker) {
			return true
		}
	}
	return false
}

func stamp(t time.Time) string {
	return t.Format(time.RFC3339)
}
