package studio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jo-hoe/studio/internal/common"
)

// ErrRejected marks a 2xx response whose success flag is false.
var ErrRejected = errors.New("request rejected")

// User is the authenticated identity returned by the auth endpoints.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	AssignedRole string `json:"assignedRole,omitempty"`
	IsActive     *bool  `json:"isActive,omitempty"`
}

type authResponse struct {
	Success bool   `json:"success"`
	User    *User  `json:"user"`
	Message string `json:"message"`
}

// Login starts a cookie session.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	var resp authResponse
	in := map[string]string{"email": strings.TrimSpace(email), "password": password}
	if err := c.do(ctx, http.MethodPost, common.PathAuthLogin, nil, in, &resp); err != nil {
		return User{}, err
	}
	if !resp.Success || resp.User == nil {
		return User{}, rejected(resp.Message, "Login failed")
	}
	return *resp.User, nil
}

// Logout ends the cookie session on the server.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, common.PathAuthLogout, nil, nil, nil)
}

// Me returns the identity of the current session, or nil when the server
// does not report one.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var resp authResponse
	if err := c.do(ctx, http.MethodGet, common.PathAuthMe, nil, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.User == nil {
		return nil, nil
	}
	return resp.User, nil
}

func rejected(msg, fallback string) error {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = fallback
	}
	return fmt.Errorf("%w: %s", ErrRejected, msg)
}
