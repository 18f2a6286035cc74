package studio

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jo-hoe/studio/internal/common"
)

// ContentResult is the body of a generated-result lookup.
type ContentResult struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Result  string `json:"result"`
	Error   string `json:"error,omitempty"`
}

// GenerateContent submits a news content request and returns its run id.
func (c *Client) GenerateContent(ctx context.Context, userMessage, quickAction string) (string, error) {
	in := map[string]string{"userMessage": userMessage, "quickAction": quickAction}
	var resp struct {
		Success bool   `json:"success"`
		RunID   string `json:"runId"`
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, common.PathContentCreate, nil, in, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", rejected(resp.Message, "Failed to process request. Please try again.")
	}
	return resp.RunID, nil
}

// ContentResult fetches the state of a content run.
func (c *Client) ContentResult(ctx context.Context, runID string) (ContentResult, error) {
	var resp ContentResult
	err := c.do(ctx, http.MethodGet, common.PathContentResult+url.PathEscape(runID), nil, nil, &resp)
	return resp, err
}
