package studio

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jo-hoe/studio/internal/common"
)

// RoleAssignment is a secondary role granted by an admin.
type RoleAssignment struct {
	RoleType string `json:"roleType"`
	IsActive bool   `json:"isActive"`
}

// AdminUser is a user as listed in the admin panel.
type AdminUser struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	Role         string          `json:"role"`
	AssignedRole *RoleAssignment `json:"assignedRole,omitempty"`
	CreatedAt    string          `json:"createdAt"`
}

// CurrentRole is the assigned role when present, the primary role otherwise.
func (u AdminUser) CurrentRole() string {
	if u.AssignedRole != nil && u.AssignedRole.RoleType != "" {
		return u.AssignedRole.RoleType
	}
	return u.Role
}

// registerRoles maps role names onto the registration endpoint's role codes.
var registerRoles = map[string]string{
	"VIDEO_GENERATOR": "video",
	"NEWS_GENERATOR":  "news",
	"VOICE_GENERATOR": "voice",
	"SCRIPT_WRITER":   "script",
}

// RegistrationRole returns the registration code of role.
func RegistrationRole(role string) (string, bool) {
	code, ok := registerRoles[strings.ToUpper(strings.TrimSpace(role))]
	return code, ok
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ListUsers returns all users.
func (c *Client) ListUsers(ctx context.Context) ([]AdminUser, error) {
	var resp struct {
		successResponse
		Users []AdminUser `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, common.PathAdminUsers, nil, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, rejected(resp.Message, "Failed to fetch users")
	}
	return resp.Users, nil
}

// RegisterUser creates a user with one of the registrable roles.
func (c *Client) RegisterUser(ctx context.Context, email, password, role string) error {
	code, ok := RegistrationRole(role)
	if !ok {
		return fmt.Errorf("role %q cannot be registered", role)
	}
	in := map[string]string{"email": strings.TrimSpace(email), "password": password, "role": code}
	var resp successResponse
	if err := c.do(ctx, http.MethodPost, common.PathUserRegisterEmail, nil, in, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return rejected(resp.Message, "Failed to create user")
	}
	return nil
}

// UpdateUser changes email and, if given, password of u. The role is only
// reassigned when it differs from u's current role.
func (c *Client) UpdateUser(ctx context.Context, u AdminUser, email, password, role string) error {
	in := map[string]string{"email": strings.TrimSpace(email)}
	if password != "" {
		in["password"] = password
	}
	var resp successResponse
	if err := c.do(ctx, http.MethodPut, common.PathAdminUpdateUser+url.PathEscape(u.ID), nil, in, &resp); err != nil {
		return err
	}
	if role != "" && role != u.CurrentRole() {
		if err := c.AssignRole(ctx, u.ID, role); err != nil {
			return fmt.Errorf("assign role: %w", err)
		}
	}
	if !resp.Success {
		return rejected(resp.Message, "Failed to update user")
	}
	return nil
}

// AssignRole grants roleType to a user.
func (c *Client) AssignRole(ctx context.Context, userID, roleType string) error {
	in := map[string]string{"userId": userID, "roleType": roleType}
	return c.do(ctx, http.MethodPost, common.PathAdminAssignRole, nil, in, nil)
}

// DeleteUser removes a user.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	var resp successResponse
	if err := c.do(ctx, http.MethodDelete, common.PathAdminDeleteUser+url.PathEscape(userID), nil, nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return rejected(resp.Message, "Failed to delete user")
	}
	return nil
}
