package api

import (
	"context"
	"net/url"
)

const sessionPath = "/api/public/session"

// Server-reported analysis states.
const (
	SessionProcessing = "processing"
	SessionCompleted  = "completed"
	SessionFailed     = "failed"
)

// SessionStatus is one observation of an analysis session.
type SessionStatus struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// SessionStatus fetches the current state of the analysis session behind the
// view token.
func (c *Client) SessionStatus(ctx context.Context, viewToken string) (*SessionStatus, error) {
	q := url.Values{}
	q.Set("token", viewToken)

	var status SessionStatus
	if err := c.getJSON(ctx, sessionPath, q, false, &status); err != nil {
		return nil, err
	}

	return &status, nil
}
