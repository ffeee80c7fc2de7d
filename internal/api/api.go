// Package api is the client for the resumatch backend: resume upload,
// analysis-session status, bucketed job matches, per-job explanations, the
// authenticated dashboard, and the auth endpoints backing it all.
package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultAPIURL = "https://api.resumatch.app"
	userAgent     = "resumatch/cli"
)

// Client performs HTTP calls against the backend, attaching a bearer token
// where an endpoint requires one and transparently recovering from token
// expiry with a single refresh-and-retry.
type Client struct {
	logger     *zap.Logger
	auth       *TokenManager
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

// New creates a backend client. The token manager may be shared with other
// clients; it owns the credential lifecycle.
func New(logger *zap.Logger, auth *TokenManager) *Client {
	return &Client{
		logger: logger,
		auth:   auth,
		APIURL: defaultAPIURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		UserAgent: userAgent,
	}
}

// Auth exposes the token manager for sign-in/sign-out flows.
func (c *Client) Auth() *TokenManager {
	return c.auth
}
