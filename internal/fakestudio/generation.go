package fakestudio

import (
	"bytes"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jo-hoe/studio/internal/common"
	"github.com/jo-hoe/studio/internal/studio"
)

// progress is the scripted lifecycle shared by all generated jobs.
type progress struct {
	status string
	reads  int
	fail   bool
}

// advance counts one status read and returns the new status.
func (p *progress) advance(steps int) string {
	if p.status == "completed" || p.status == "failed" {
		return p.status
	}
	p.reads++
	switch {
	case p.reads < steps:
		p.status = "processing"
	case p.fail:
		p.status = "failed"
	default:
		p.status = "completed"
	}
	return p.status
}

type contentRun struct {
	progress
	owner  string
	result string
}

type speech struct {
	progress
	owner string
	rec   studio.SpeechRecord
}

type video struct {
	progress
	rec studio.VideoRecord
}

var (
	speechMedia = append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), bytes.Repeat([]byte{0}, 2048)...)
	videoMedia  = append([]byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00"), bytes.Repeat([]byte{0}, 4096)...)
)

func (s *Server) handleContentCreate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserMessage string `json:"userMessage"`
		QuickAction string `json:"quickAction"`
	}
	if !readJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.UserMessage) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "userMessage is required"})
		return
	}
	label := in.QuickAction
	if label == "" {
		label = "Article"
	}
	run := &contentRun{
		progress: progress{status: "pending", fail: failing(in.UserMessage, in.QuickAction)},
		owner:    accountFrom(r.Context()).ID,
		result:   fmt.Sprintf("%s: %s", label, strings.TrimSpace(in.UserMessage)),
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.runs[id] = run
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "runId": id})
}

func (s *Server) handleContentResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runId")
	s.mu.Lock()
	run, ok := s.runs[id]
	if !ok || run.owner != accountFrom(r.Context()).ID {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Run not found")
		return
	}
	out := studio.ContentResult{Status: run.advance(s.cfg.Steps)}
	switch out.Status {
	case "completed":
		out.Success = true
		out.Result = run.result
	case "failed":
		out.Error = "Content generation failed"
	default:
		out.Success = true
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSpeechGenerate(w http.ResponseWriter, r *http.Request) {
	var in studio.GenerateSpeechInput
	if !readJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Text) == "" || strings.TrimSpace(in.VoiceID) == "" {
		writeError(w, http.StatusBadRequest, "text and voiceId are required")
		return
	}
	voice := findVoice(in.VoiceID)
	sp := &speech{
		progress: progress{status: "pending", fail: failing(in.Text)},
		owner:    accountFrom(r.Context()).ID,
		rec: studio.SpeechRecord{
			ID:        uuid.NewString(),
			EventID:   "evt-" + uuid.NewString(),
			Text:      in.Text,
			Status:    "pending",
			Language:  in.Language,
			Voice:     &studio.SpeechVoiceRef{Name: voice.Name, VoiceID: voice.VoiceID},
			CreatedAt: stamp(s.now()),
		},
	}
	s.mu.Lock()
	s.speeches = append([]*speech{sp}, s.speeches...)
	if in.ScriptID != nil {
		for _, sc := range s.scripts {
			if sc.rec.ID == *in.ScriptID {
				sc.rec.IsVoiceGenerated = true
			}
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, studio.GenerateSpeechResponse{Status: "pending", EventID: sp.rec.EventID})
}

func (s *Server) handleSpeechHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 10
	}
	owner := accountFrom(r.Context()).ID

	s.mu.Lock()
	out := make([]studio.SpeechRecord, 0, limit)
	for _, sp := range s.speeches {
		if sp.owner != owner {
			continue
		}
		// synthesis advances while the history is watched
		if !sp.isTerminal() {
			sp.rec.Status = sp.advance(s.cfg.Steps)
			switch sp.rec.Status {
			case "completed":
				sp.rec.AudioFilePath = "/media/speech/" + sp.rec.ID + ".mp3"
				sp.rec.FileSize = int64(len(speechMedia))
				sp.rec.Duration = float64(len(strings.Fields(sp.rec.Text))) * 0.4
			case "failed":
				sp.rec.ErrorMessage = "Voice synthesis failed"
			}
		}
		if len(out) < limit {
			out = append(out, sp.rec)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"speeches": out})
}

func (p *progress) isTerminal() bool {
	return p.status == "completed" || p.status == "failed"
}

func (s *Server) handleSpeechDelete(w http.ResponseWriter, r *http.Request) {
	var in struct {
		SpeechID string `json:"speechId"`
	}
	if !readJSON(w, r, &in) {
		return
	}
	owner := accountFrom(r.Context()).ID
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sp := range s.speeches {
		if sp.rec.ID == in.SpeechID && sp.owner == owner {
			s.speeches = append(s.speeches[:i], s.speeches[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
	}
	writeError(w, http.StatusNotFound, "Speech not found")
}

func (s *Server) handleVideoCreate(w http.ResponseWriter, r *http.Request) {
	var in studio.CreateVideoInput
	if !readJSON(w, r, &in) {
		return
	}
	if in.AvatarID == "" || in.VoiceID == "" || strings.TrimSpace(in.Script) == "" || in.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"result": false, "message": "avatarId, voiceId, script and userId are required"})
		return
	}
	u := accountFrom(r.Context())
	if in.UserID != u.ID && u.Role != "ADMIN" {
		writeError(w, http.StatusForbidden, "Cannot create videos for another user")
		return
	}
	now := stamp(s.now())
	v := &video{
		progress: progress{status: "pending", fail: failing(in.Script)},
		rec: studio.VideoRecord{
			ID:         uuid.NewString(),
			UserID:     in.UserID,
			Status:     "pending",
			AvatarID:   in.AvatarID,
			AvatarName: findAvatar(in.AvatarID).AvatarName,
			VoiceID:    in.VoiceID,
			VoiceName:  findVideoVoice(in.VoiceID).Name,
			Script:     in.Script,
			Duration:   in.Duration,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}
	s.mu.Lock()
	s.videos = append([]*video{v}, s.videos...)
	s.mu.Unlock()

	resp := studio.CreateVideoResponse{Result: true, Message: "Video generation started", EventID: "evt-" + v.rec.ID, Status: "pending"}
	if !s.cfg.OmitVideoID {
		resp.VideoID = v.rec.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVideoStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		VideoID string `json:"videoId"`
	}
	if !readJSON(w, r, &in) {
		return
	}
	s.mu.Lock()
	v := s.findVideo(in.VideoID)
	if v == nil {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Video not found")
		return
	}
	if !v.isTerminal() {
		v.rec.Status = v.advance(s.cfg.Steps)
		v.rec.UpdatedAt = stamp(s.now())
		switch v.rec.Status {
		case "completed":
			v.rec.VideoURL = "/media/video/" + v.rec.ID + ".mp4"
			v.rec.VideoDuration = float64(len(strings.Fields(v.rec.Script))) * 0.4
		case "failed":
			v.rec.ErrorMessage = "Avatar rendering failed"
		}
	}
	rec := v.rec
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, studio.VideoStatusResponse{Result: true, Status: rec.Status, Video: &rec})
}

func (s *Server) findVideo(id string) *video {
	for _, v := range s.videos {
		if v.rec.ID == id {
			return v
		}
	}
	return nil
}

func (s *Server) handleVideoHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	u := accountFrom(r.Context())
	if userID != u.ID && u.Role != "ADMIN" {
		writeError(w, http.StatusForbidden, "Cannot list videos of another user")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 10
	}

	s.mu.Lock()
	var mine []studio.VideoRecord
	for _, v := range s.videos {
		if v.rec.UserID == userID {
			mine = append(mine, v.rec)
		}
	}
	s.mu.Unlock()

	start := (page - 1) * limit
	end := start + limit
	if start > len(mine) {
		start = len(mine)
	}
	if end > len(mine) {
		end = len(mine)
	}
	writeJSON(w, http.StatusOK, studio.VideoPage{
		Videos: mine[start:end],
		Pagination: studio.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      len(mine),
			TotalPages: (len(mine) + limit - 1) / limit,
		},
	})
}

func (s *Server) handleVideoDelete(w http.ResponseWriter, r *http.Request) {
	var in struct {
		VideoID string `json:"videoId"`
		UserID  string `json:"userId"`
	}
	if !readJSON(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range s.videos {
		if v.rec.ID == in.VideoID && v.rec.UserID == in.UserID {
			s.videos = append(s.videos[:i], s.videos[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]any{"deletedId": in.VideoID})
			return
		}
	}
	writeError(w, http.StatusNotFound, "Video not found")
}

func (s *Server) handleSpeechMedia(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(chi.URLParam(r, "file"), path.Ext(chi.URLParam(r, "file")))
	s.mu.Lock()
	ok := false
	for _, sp := range s.speeches {
		if sp.rec.ID == id && sp.status == "completed" {
			ok = true
			break
		}
	}
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	serveMedia(w, r, id+".mp3", "audio/mpeg", speechMedia)
}

func (s *Server) handleVideoMedia(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(chi.URLParam(r, "file"), path.Ext(chi.URLParam(r, "file")))
	s.mu.Lock()
	v := s.findVideo(id)
	ok := v != nil && v.status == "completed"
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	serveMedia(w, r, id+".mp4", "video/mp4", videoMedia)
}

func serveMedia(w http.ResponseWriter, r *http.Request, name, contentType string, data []byte) {
	w.Header().Set(common.HeaderContentType, contentType)
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
}
