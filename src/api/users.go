package api

import (
	"context"
	"net/url"

	"github.com/sosnet/realtime/src/types"
	"github.com/valyala/fasthttp"
)

// ListUsers returns user summaries, optionally filtered by role.
func (c *Client) ListUsers(ctx context.Context, role types.Role) ([]types.UserSummary, error) {
	q := url.Values{}
	if role != "" {
		q.Set("role", string(role))
	}
	var out []types.UserSummary
	if err := c.do(ctx, fasthttp.MethodGet, "/users/", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Me returns the profile behind the current token.
func (c *Client) Me(ctx context.Context) (*types.User, error) {
	var out types.User
	if err := c.do(ctx, fasthttp.MethodGet, "/users/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
