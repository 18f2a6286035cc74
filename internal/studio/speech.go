package studio

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jo-hoe/studio/internal/common"
)

// VoiceSettings tunes speech synthesis.
type VoiceSettings struct {
	Stability       float64 `json:"stability" yaml:"stability"`
	SimilarityBoost float64 `json:"similarity_boost" yaml:"similarityBoost"`
	Style           float64 `json:"style" yaml:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost" yaml:"useSpeakerBoost"`
}

// GenerateSpeechInput is the body of a speech generation request.
type GenerateSpeechInput struct {
	Text              string        `json:"text"`
	VoiceID           string        `json:"voiceId"`
	Language          string        `json:"language"`
	ScriptID          *string       `json:"scriptId"`
	IsElevenLabsVoice bool          `json:"isElevenLabsVoice"`
	VoiceSettings     VoiceSettings `json:"voiceSettings"`
}

// GenerateSpeechResponse acknowledges a speech request.
type GenerateSpeechResponse struct {
	Status  string `json:"status"`
	EventID string `json:"eventId"`
	Message string `json:"message,omitempty"`
}

// SpeechVoiceRef names the voice a speech was rendered with.
type SpeechVoiceRef struct {
	Name    string `json:"name"`
	VoiceID string `json:"voiceId"`
}

// SpeechRecord is one entry of the speech history.
type SpeechRecord struct {
	ID            string          `json:"id"`
	EventID       string          `json:"eventId,omitempty"`
	Text          string          `json:"text"`
	AudioFilePath string          `json:"audioFilePath"`
	FileSize      int64           `json:"fileSize"`
	Status        string          `json:"status"`
	Duration      float64         `json:"duration,omitempty"`
	Language      string          `json:"language"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	Voice         *SpeechVoiceRef `json:"voice,omitempty"`
	CreatedAt     string          `json:"createdAt"`
}

// ElevenLabsVoice is a voice usable for speech generation.
type ElevenLabsVoice struct {
	VoiceID     string            `json:"voice_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Labels      map[string]string `json:"labels,omitempty"`
	PreviewURL  string            `json:"preview_url"`
	Category    string            `json:"category"`
}

// GenerateSpeech submits a speech synthesis request.
func (c *Client) GenerateSpeech(ctx context.Context, in GenerateSpeechInput) (GenerateSpeechResponse, error) {
	var resp GenerateSpeechResponse
	err := c.do(ctx, http.MethodPost, common.PathSpeechGenerate, nil, in, &resp)
	return resp, err
}

// SpeechHistory lists the newest speeches first. limit <= 0 uses the server default.
func (c *Client) SpeechHistory(ctx context.Context, limit int) ([]SpeechRecord, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var resp struct {
		Speeches []SpeechRecord `json:"speeches"`
	}
	if err := c.do(ctx, http.MethodGet, common.PathSpeechHistory, q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Speeches, nil
}

// DeleteSpeech removes a speech from the history.
func (c *Client) DeleteSpeech(ctx context.Context, speechID string) error {
	return c.do(ctx, http.MethodPost, common.PathSpeechDelete, nil, map[string]string{"speechId": speechID}, nil)
}

// SpeechVoices lists the voices available for speech generation.
func (c *Client) SpeechVoices(ctx context.Context) ([]ElevenLabsVoice, error) {
	var resp struct {
		Data []ElevenLabsVoice `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, common.PathSpeechVoices, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
