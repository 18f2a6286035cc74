package studio

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jo-hoe/studio/internal/common"
)

// CreateVideoInput is the body of a video creation request.
type CreateVideoInput struct {
	AvatarID string `json:"avatarId"`
	VoiceID  string `json:"voiceId"`
	Script   string `json:"script"`
	Duration string `json:"duration"` // "Auto" or e.g. "30s"
	UserID   string `json:"userId"`
}

// CreateVideoResponse acknowledges a video request. VideoID is only set by
// backends that return the record id synchronously.
type CreateVideoResponse struct {
	Result  bool   `json:"result"`
	Message string `json:"message"`
	EventID string `json:"eventId"`
	Status  string `json:"status"`
	VideoID string `json:"videoId,omitempty"`
}

// VideoRecord is a stored video generation.
type VideoRecord struct {
	ID            string  `json:"id"`
	UserID        string  `json:"userId"`
	Status        string  `json:"status"`
	AvatarID      string  `json:"avatarId"`
	AvatarName    string  `json:"avatarName"`
	AvatarImage   string  `json:"avatarImage,omitempty"`
	VoiceID       string  `json:"voiceId"`
	VoiceName     string  `json:"voiceName"`
	Script        string  `json:"script"`
	Duration      string  `json:"duration"`
	Language      string  `json:"language,omitempty"`
	HeygenVideoID string  `json:"heygenVideoId,omitempty"`
	VideoURL      string  `json:"videoUrl,omitempty"`
	ThumbnailURL  string  `json:"thumbnailUrl,omitempty"`
	VideoDuration float64 `json:"videoDuration,omitempty"`
	ErrorMessage  string  `json:"errorMessage,omitempty"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
}

// VideoStatusResponse is the body of a status check.
type VideoStatusResponse struct {
	Result bool         `json:"result"`
	Status string       `json:"status"`
	Video  *VideoRecord `json:"video"`
}

// Pagination describes a page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// VideoPage is one page of a user's video history.
type VideoPage struct {
	Videos     []VideoRecord `json:"videos"`
	Pagination Pagination    `json:"pagination"`
}

// Avatar is a presenter available for videos.
type Avatar struct {
	AvatarID        string `json:"avatar_id"`
	AvatarName      string `json:"avatar_name"`
	Gender          string `json:"gender"`
	PreviewImageURL string `json:"preview_image_url"`
	PreviewVideoURL string `json:"preview_video_url"`
	Premium         bool   `json:"premium"`
}

// VideoVoice is a voice available for videos.
type VideoVoice struct {
	VoiceID     string `json:"voice_id"`
	Name        string `json:"name"`
	PreviewURL  string `json:"preview_url"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// CreateVideo submits a video generation request.
func (c *Client) CreateVideo(ctx context.Context, in CreateVideoInput) (CreateVideoResponse, error) {
	var resp CreateVideoResponse
	if err := c.do(ctx, http.MethodPost, common.PathVideoCreate, nil, in, &resp); err != nil {
		return resp, err
	}
	if !resp.Result {
		return resp, rejected(resp.Message, "Failed to create video")
	}
	return resp, nil
}

// VideoStatus checks the state of a video record.
func (c *Client) VideoStatus(ctx context.Context, videoID string) (VideoStatusResponse, error) {
	var resp VideoStatusResponse
	err := c.do(ctx, http.MethodPost, common.PathVideoStatus, nil, map[string]string{"videoId": videoID}, &resp)
	return resp, err
}

// VideoHistory lists a user's videos, newest first.
func (c *Client) VideoHistory(ctx context.Context, userID string, page, limit int) (VideoPage, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{"page": {strconv.Itoa(page)}, "limit": {strconv.Itoa(limit)}}
	var resp VideoPage
	err := c.do(ctx, http.MethodGet, common.PathVideoHistory+url.PathEscape(userID), q, nil, &resp)
	return resp, err
}

// DeleteVideo removes a video and returns the deleted id.
func (c *Client) DeleteVideo(ctx context.Context, videoID, userID string) (string, error) {
	var resp struct {
		DeletedID string `json:"deletedId"`
	}
	in := map[string]string{"videoId": videoID, "userId": userID}
	if err := c.do(ctx, http.MethodPost, common.PathVideoDelete, nil, in, &resp); err != nil {
		return "", err
	}
	return resp.DeletedID, nil
}

// Avatars lists avatars. page <= 0 and an empty search are omitted.
func (c *Client) Avatars(ctx context.Context, page int, search string) ([]Avatar, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if s := strings.TrimSpace(search); s != "" {
		q.Set("search", s)
	}
	var resp struct {
		Data []Avatar `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, common.PathVideoAvatars, q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// VideoVoices lists voices usable in videos.
func (c *Client) VideoVoices(ctx context.Context) ([]VideoVoice, error) {
	var resp struct {
		Data []VideoVoice `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, common.PathVideoVoices, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
