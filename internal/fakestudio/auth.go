package fakestudio

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jo-hoe/studio/internal/studio"
)

func withAccount(ctx context.Context, u account) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func accountFrom(ctx context.Context) account {
	u, _ := ctx.Value(ctxKey{}).(account)
	return u
}

func (u account) wire() studio.User {
	active := true
	return studio.User{ID: u.ID, Email: u.Email, Role: u.Role, AssignedRole: u.Assigned, IsActive: &active}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !readJSON(w, r, &in) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))

	s.mu.Lock()
	var found *account
	for _, u := range s.users {
		if u.Email == email && u.Password == in.Password {
			found = u
			break
		}
	}
	if found == nil {
		s.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid email or password"})
		return
	}
	token := uuid.NewString()
	s.sessions[token] = found.ID
	user := found.wire()
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: token, Path: "/", HttpOnly: true, MaxAge: 24 * 3600})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, c.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": accountFrom(r.Context()).wire()})
}
