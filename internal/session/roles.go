package session

import (
	"strings"

	"github.com/jo-hoe/studio/internal/studio"
)

// Role is a user role as issued by the backend.
type Role string

const (
	RoleAdmin          Role = "ADMIN"
	RoleUser           Role = "USER"
	RoleVideoGenerator Role = "VIDEO_GENERATOR"
	RoleNewsGenerator  Role = "NEWS_GENERATOR"
	RoleVoiceGenerator Role = "VOICE_GENERATOR"
	RoleAudioGenerator Role = "AUDIO_GENERATOR"
	RoleScriptWriter   Role = "SCRIPT_WRITER"
)

// View is a navigable screen of the application.
type View string

const (
	ViewLogin          View = "login"
	ViewSelectAvatar   View = "select-avatar"
	ViewNewsAgent      View = "news-agent"
	ViewVoiceOverAgent View = "voice-over-agent"
	ViewVideoAgent     View = "video-agent"
	ViewScriptWriter   View = "script-writer"
	ViewMyScripts      View = "my-scripts"
	ViewScriptsList    View = "scripts-list"
	ViewHistory        View = "history"
	ViewProfile        View = "view-profile"
	ViewAdminPanel     View = "admin-panel"
)

var publicViews = map[View]bool{
	ViewLogin:        true,
	ViewSelectAvatar: true,
}

// viewRoles lists the roles allowed per protected view. An empty list allows
// every authenticated user.
var viewRoles = map[View][]Role{
	ViewNewsAgent:      {RoleAdmin, RoleNewsGenerator},
	ViewVoiceOverAgent: {RoleAdmin, RoleAudioGenerator, RoleVoiceGenerator},
	ViewVideoAgent:     {RoleAdmin, RoleVideoGenerator},
	ViewScriptWriter:   {RoleAdmin, RoleScriptWriter},
	ViewMyScripts:      {RoleAdmin, RoleScriptWriter},
	ViewScriptsList:    {RoleAdmin, RoleVoiceGenerator},
	ViewHistory:        {},
	ViewProfile:        {},
	ViewAdminPanel:     {RoleAdmin},
}

// IsPublic reports whether view needs no session.
func IsPublic(v View) bool {
	return publicViews[v]
}

// AllowedRoles returns the allow-list of a protected view.
func AllowedRoles(v View) ([]Role, bool) {
	roles, ok := viewRoles[v]
	return roles, ok
}

// EffectiveRoles is the primary role plus the assigned role, if any.
func EffectiveRoles(u studio.User) []Role {
	roles := make([]Role, 0, 2)
	if r := normalize(u.Role); r != "" {
		roles = append(roles, r)
	}
	if r := normalize(u.AssignedRole); r != "" && (len(roles) == 0 || roles[0] != r) {
		roles = append(roles, r)
	}
	return roles
}

func normalize(s string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(s)))
}

// Permits reports whether a user with roles may open v. ADMIN may open
// everything.
func Permits(roles []Role, v View) bool {
	if IsPublic(v) {
		return true
	}
	allowed, ok := viewRoles[v]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == RoleAdmin {
			return true
		}
	}
	if len(allowed) == 0 {
		return len(roles) > 0
	}
	for _, r := range roles {
		for _, a := range allowed {
			if r == a {
				return true
			}
		}
	}
	return false
}

// HomeView is the view a user lands on after login, chosen by primary role.
func HomeView(role string) View {
	switch normalize(role) {
	case RoleScriptWriter:
		return ViewScriptWriter
	case RoleVoiceGenerator:
		return ViewScriptsList
	case RoleVideoGenerator:
		return ViewVideoAgent
	case RoleAudioGenerator:
		return ViewVoiceOverAgent
	}
	return ViewNewsAgent
}

// Decision is the outcome of an authorization check.
type Decision int

const (
	DecisionAllow Decision = iota
	DecisionWait           // session still loading
	DecisionRedirect
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionWait:
		return "wait"
	}
	return "redirect"
}

// Gate guards views with the session of a Store.
type Gate struct {
	store *Store
}

// NewGate creates a gate over store.
func NewGate(store *Store) Gate {
	return Gate{store: store}
}

// Authorize decides whether v may be shown. On redirect the target view is
// returned.
func (g Gate) Authorize(v View) (Decision, View) {
	if IsPublic(v) {
		return DecisionAllow, v
	}
	user, state := g.store.User()
	switch state {
	case StateUninitialized, StateLoading:
		return DecisionWait, v
	case StateAnonymous:
		return DecisionRedirect, ViewLogin
	}
	if user == nil || !Permits(EffectiveRoles(*user), v) {
		return DecisionRedirect, ViewLogin
	}
	return DecisionAllow, v
}
