package fakestudio

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jo-hoe/studio/internal/studio"
)

var speechVoices = []studio.ElevenLabsVoice{
	{VoiceID: "voice-rachel", Name: "Rachel", Description: "calm narration", Category: "premade", Labels: map[string]string{"accent": "american"}},
	{VoiceID: "voice-daniel", Name: "Daniel", Description: "news presenter", Category: "premade", Labels: map[string]string{"accent": "british"}},
}

var videoVoices = []studio.VideoVoice{
	{VoiceID: "vv-anna", Name: "Anna", Description: "warm", Category: "standard"},
	{VoiceID: "vv-marc", Name: "Marc", Description: "deep", Category: "standard"},
}

var avatars = []studio.Avatar{
	{AvatarID: "avatar-lena", AvatarName: "Lena", Gender: "female"},
	{AvatarID: "avatar-tom", AvatarName: "Tom", Gender: "male"},
	{AvatarID: "avatar-kim", AvatarName: "Kim", Gender: "female", Premium: true},
}

const avatarPageSize = 2

func findVoice(id string) studio.ElevenLabsVoice {
	for _, v := range speechVoices {
		if v.VoiceID == id {
			return v
		}
	}
	return studio.ElevenLabsVoice{VoiceID: id, Name: id}
}

func findVideoVoice(id string) studio.VideoVoice {
	for _, v := range videoVoices {
		if v.VoiceID == id {
			return v
		}
	}
	return studio.VideoVoice{VoiceID: id, Name: id}
}

func findAvatar(id string) studio.Avatar {
	for _, a := range avatars {
		if a.AvatarID == id {
			return a
		}
	}
	return studio.Avatar{AvatarID: id, AvatarName: id}
}

func (s *Server) handleSpeechVoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"data": speechVoices})
}

func (s *Server) handleVideoVoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"data": videoVoices})
}

func (s *Server) handleAvatars(w http.ResponseWriter, r *http.Request) {
	search := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("search")))
	matched := make([]studio.Avatar, 0, len(avatars))
	for _, a := range avatars {
		if search == "" || strings.Contains(strings.ToLower(a.AvatarName), search) {
			matched = append(matched, a)
		}
	}
	if page, _ := strconv.Atoi(r.URL.Query().Get("page")); page > 0 {
		start := (page - 1) * avatarPageSize
		if start > len(matched) {
			start = len(matched)
		}
		end := start + avatarPageSize
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": matched})
}

type script struct {
	owner string
	rec   studio.Script
}

func (s *Server) handleScriptCreate(w http.ResponseWriter, r *http.Request) {
	var in studio.ScriptInput
	if !readJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Heading) == "" || strings.TrimSpace(in.Content) == "" {
		writeError(w, http.StatusBadRequest, "heading and content are required")
		return
	}
	sc := &script{
		owner: accountFrom(r.Context()).ID,
		rec: studio.Script{
			ID:          uuid.NewString(),
			Heading:     in.Heading,
			Description: in.Description,
			Content:     in.Content,
			CreatedAt:   stamp(s.now()),
		},
	}
	s.mu.Lock()
	s.scripts = append([]*script{sc}, s.scripts...)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "script": sc.rec})
}

func (s *Server) handleMyScripts(w http.ResponseWriter, r *http.Request) {
	owner := accountFrom(r.Context()).ID
	s.mu.Lock()
	out := make([]studio.Script, 0)
	for _, sc := range s.scripts {
		if sc.owner == owner {
			out = append(out, sc.rec)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"scripts": out})
}

func (s *Server) handleVoiceOverScripts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]studio.Script, 0)
	for _, sc := range s.scripts {
		if !sc.rec.IsVoiceGenerated {
			out = append(out, sc.rec)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"scripts": out})
}

func (s *Server) handleScriptUpdate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Heading string `json:"heading"`
		Content string `json:"content"`
	}
	if !readJSON(w, r, &in) {
		return
	}
	sc, ok := s.ownScript(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Script not found")
		return
	}
	s.mu.Lock()
	if in.Heading != "" {
		sc.rec.Heading = in.Heading
	}
	if in.Content != "" {
		sc.rec.Content = in.Content
	}
	sc.rec.UpdatedAt = stamp(s.now())
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleScriptDelete(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.ownScript(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Script not found")
		return
	}
	s.mu.Lock()
	for i, x := range s.scripts {
		if x == sc {
			s.scripts = append(s.scripts[:i], s.scripts[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) ownScript(r *http.Request) (*script, bool) {
	id := chi.URLParam(r, "id")
	owner := accountFrom(r.Context()).ID
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range s.scripts {
		if sc.rec.ID == id && sc.owner == owner {
			return sc, true
		}
	}
	return nil, false
}

// registrationRoles maps the registration codes back to role names.
var registrationRoles = map[string]string{
	"video":  "VIDEO_GENERATOR",
	"news":   "NEWS_GENERATOR",
	"voice":  "VOICE_GENERATOR",
	"script": "SCRIPT_WRITER",
}

func (u account) admin() studio.AdminUser {
	out := studio.AdminUser{ID: u.ID, Email: u.Email, Role: u.Role, CreatedAt: stamp(u.CreatedAt)}
	if u.Assigned != "" {
		out.AssignedRole = &studio.RoleAssignment{RoleType: u.Assigned, IsActive: true}
	}
	return out
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]studio.AdminUser, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.admin())
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "users": out})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if !readJSON(w, r, &in) {
		return
	}
	role, ok := registrationRoles[in.Role]
	if !ok || strings.TrimSpace(in.Email) == "" || in.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "email, password and a valid role are required"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			writeJSON(w, http.StatusConflict, map[string]any{"success": false, "message": "Email already registered"})
			return
		}
	}
	s.addUser(email, in.Password, role)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "User created"})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !readJSON(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[chi.URLParam(r, "id")]
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if e := strings.ToLower(strings.TrimSpace(in.Email)); e != "" {
		u.Email = e
	}
	if in.Password != "" {
		u.Password = in.Password
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID   string `json:"userId"`
		RoleType string `json:"roleType"`
	}
	if !readJSON(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[in.UserID]
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	u.Assigned = strings.ToUpper(strings.TrimSpace(in.RoleType))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == accountFrom(r.Context()).ID {
		writeError(w, http.StatusBadRequest, "Cannot delete yourself")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	delete(s.users, id)
	for token, uid := range s.sessions {
		if uid == id {
			delete(s.sessions, token)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
