package agents

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"

	"github.com/jo-hoe/studio/internal/common"
	"github.com/jo-hoe/studio/internal/jobs"
	"github.com/jo-hoe/studio/internal/studio"
)

var (
	_ jobs.Request = ContentRequest{}
	_ jobs.Request = SpeechRequest{}
	_ jobs.Request = VideoRequest{}
)

// ContentRequest asks the news agent for generated content.
type ContentRequest struct {
	Message     string `yaml:"message"`
	QuickAction string `yaml:"quickAction"` // e.g. "SEO Title", "Hashtags"
}

func (ContentRequest) Kind() jobs.Kind { return jobs.KindContent }

func (r ContentRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return jobs.Invalid("message", "is required")
	}
	return nil
}

// DefaultVoiceSettings are the synthesis settings used when none are given.
func DefaultVoiceSettings() studio.VoiceSettings {
	return studio.VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Style: 0, UseSpeakerBoost: true}
}

// SpeechRequest asks for a voice-over of Text.
type SpeechRequest struct {
	Text     string                `yaml:"text"`
	VoiceID  string                `yaml:"voiceId"`
	Language string                `yaml:"language"` // "multilingual" or a BCP 47 tag, default multilingual
	ScriptID string                `yaml:"scriptId"` // optional script the speech belongs to
	Settings *studio.VoiceSettings `yaml:"settings"`
}

func (SpeechRequest) Kind() jobs.Kind { return jobs.KindSpeech }

func (r SpeechRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return jobs.Invalid("text", "is required")
	}
	if strings.TrimSpace(r.VoiceID) == "" {
		return jobs.Invalid("voiceId", "please select a voice")
	}
	if lang := strings.TrimSpace(r.Language); lang != "" && !strings.EqualFold(lang, common.LanguageMultilingual) {
		if _, err := language.Parse(lang); err != nil {
			return jobs.Invalid("language", "must be multilingual or a valid language tag")
		}
	}
	if s := r.Settings; s != nil {
		if !unit(s.Stability) || !unit(s.SimilarityBoost) || !unit(s.Style) {
			return jobs.Invalid("settings", "stability, similarity boost and style must be between 0 and 1")
		}
	}
	return nil
}

// input builds the wire body with defaults applied.
func (r SpeechRequest) input() studio.GenerateSpeechInput {
	lang := strings.TrimSpace(r.Language)
	if lang == "" || strings.EqualFold(lang, common.LanguageMultilingual) {
		lang = common.LanguageMultilingual
	} else if tag, err := language.Parse(lang); err == nil {
		lang = tag.String()
	}
	settings := DefaultVoiceSettings()
	if r.Settings != nil {
		settings = *r.Settings
	}
	in := studio.GenerateSpeechInput{
		Text:              strings.TrimSpace(r.Text),
		VoiceID:           strings.TrimSpace(r.VoiceID),
		Language:          lang,
		IsElevenLabsVoice: true,
		VoiceSettings:     settings,
	}
	if id := strings.TrimSpace(r.ScriptID); id != "" {
		in.ScriptID = &id
	}
	return in
}

func unit(v float64) bool { return v >= 0 && v <= 1 }

var reDuration = regexp.MustCompile(`^[1-9]\d*s$`)

// VideoRequest asks for an avatar video reading Script.
type VideoRequest struct {
	Script   string `yaml:"script"`
	AvatarID string `yaml:"avatarId"`
	VoiceID  string `yaml:"voiceId"`
	Duration string `yaml:"duration"` // "Auto" or e.g. "30s", default Auto
	UserID   string `yaml:"userId"`   // owner, filled from the session when empty
}

func (VideoRequest) Kind() jobs.Kind { return jobs.KindVideo }

func (r VideoRequest) Validate() error {
	if strings.TrimSpace(r.Script) == "" {
		return jobs.Invalid("script", "is required")
	}
	if strings.TrimSpace(r.AvatarID) == "" {
		return jobs.Invalid("avatarId", "please select an avatar")
	}
	if strings.TrimSpace(r.VoiceID) == "" {
		return jobs.Invalid("voiceId", "please select a voice")
	}
	if strings.TrimSpace(r.UserID) == "" {
		return jobs.Invalid("userId", "is required")
	}
	if d := strings.TrimSpace(r.Duration); d != "" && !strings.EqualFold(d, common.VideoDurationAuto) && !reDuration.MatchString(d) {
		return jobs.Invalid("duration", `must be "Auto" or a number of seconds like "30s"`)
	}
	return nil
}

func (r VideoRequest) input() studio.CreateVideoInput {
	d := strings.TrimSpace(r.Duration)
	if d == "" || strings.EqualFold(d, common.VideoDurationAuto) {
		d = common.VideoDurationAuto
	}
	return studio.CreateVideoInput{
		AvatarID: strings.TrimSpace(r.AvatarID),
		VoiceID:  strings.TrimSpace(r.VoiceID),
		Script:   strings.TrimSpace(r.Script),
		Duration: d,
		UserID:   strings.TrimSpace(r.UserID),
	}
}
