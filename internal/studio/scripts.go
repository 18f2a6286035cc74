package studio

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jo-hoe/studio/internal/common"
)

// Script is a text written for a later voice-over.
type Script struct {
	ID               string `json:"id"`
	Heading          string `json:"heading"`
	Description      string `json:"description,omitempty"`
	Content          string `json:"content"`
	IsVoiceGenerated bool   `json:"isVoiceGenerated"`
	CreatedAt        string `json:"createdAt"`
	UpdatedAt        string `json:"updatedAt,omitempty"`
}

// ScriptInput is the body of a script creation.
type ScriptInput struct {
	Heading     string `json:"heading"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

type scriptsResponse struct {
	Scripts []Script `json:"scripts"`
}

// CreateScript stores a new script. The returned script is nil when the
// backend does not echo it.
func (c *Client) CreateScript(ctx context.Context, in ScriptInput) (*Script, error) {
	var resp struct {
		Script *Script `json:"script"`
	}
	if err := c.do(ctx, http.MethodPost, common.PathScriptsCreate, nil, in, &resp); err != nil {
		return nil, err
	}
	return resp.Script, nil
}

// MyScripts lists the scripts written by the current user.
func (c *Client) MyScripts(ctx context.Context) ([]Script, error) {
	var resp scriptsResponse
	if err := c.do(ctx, http.MethodGet, common.PathScriptsMine, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Scripts, nil
}

// VoiceOverScripts lists the scripts available for voice-over.
func (c *Client) VoiceOverScripts(ctx context.Context) ([]Script, error) {
	var resp scriptsResponse
	if err := c.do(ctx, http.MethodGet, common.PathScriptsVoiceOver, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Scripts, nil
}

// UpdateScript replaces heading and content of a script.
func (c *Client) UpdateScript(ctx context.Context, id, heading, content string) error {
	in := map[string]string{"heading": heading, "content": content}
	return c.do(ctx, http.MethodPut, common.PathScriptsUpdate+url.PathEscape(id), nil, in, nil)
}

// DeleteScript removes a script.
func (c *Client) DeleteScript(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, common.PathScriptsDelete+url.PathEscape(id), nil, nil, nil)
}
