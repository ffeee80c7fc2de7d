package api

import (
	"context"
	"time"
)

const dashboardPath = "/api/me/dashboard"

// DashboardSummary is the authenticated aggregate view of the user's past
// searches.
type DashboardSummary struct {
	TotalSearches int                 `json:"total_searches"`
	TotalMatches  int                 `json:"total_matches"`
	Sessions      []*DashboardSession `json:"recent_sessions"`
}

// DashboardSession is one historical analysis session, newest first.
type DashboardSession struct {
	ViewToken    string    `json:"view_token"`
	CompletedAt  time.Time `json:"completed_at"`
	TotalMatches int       `json:"total_matches"`
	RoleTitle    string    `json:"role_title,omitempty"`
	SearchTitle  string    `json:"search_title,omitempty"`
}

// Dashboard fetches the aggregate summary and recent sessions. The call
// requires a credential; an expired one is refreshed and retried once before
// ErrUnauthorized is surfaced.
func (c *Client) Dashboard(ctx context.Context) (*DashboardSummary, error) {
	var summary DashboardSummary
	if err := c.getJSON(ctx, dashboardPath, nil, true, &summary); err != nil {
		return nil, err
	}

	return &summary, nil
}
