package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/resumatch/resumatch/internal/logger"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip, deflate, br"

	// maxLoggedBody bounds error-body debug logging.
	maxLoggedBody = 512
)

// requestBuilder creates a fresh request for each attempt, so a retried call
// never reuses a consumed body.
type requestBuilder func() (*http.Request, error)

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, requiresAuth bool, target any) error {
	return c.do(ctx, requiresAuth, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIURL+path, nil)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Content-Type", contentType)
		if q != nil {
			req.URL.RawQuery = q.Encode()
		}

		return req, nil
	}, target)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, requiresAuth bool, target any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	return c.do(ctx, requiresAuth, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}

		req.Header.Set("Content-Type", contentType)

		return req, nil
	}, target)
}

// do performs the call, recovering from token expiry at most once. The
// refreshed credential is persisted by the token manager before the retried
// call is issued.
func (c *Client) do(ctx context.Context, requiresAuth bool, build requestBuilder, target any) error {
	var token string

	refreshed := false

	if requiresAuth {
		cred, ok, err := c.auth.Current(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnauthorized
		}

		if cred.AccessExpired(time.Now()) {
			c.logger.Debug("access token expired, refreshing before the call")

			cred, err = c.auth.Refresh(ctx, cred.AccessToken)
			if err != nil {
				return err
			}
			refreshed = true
		}

		token = cred.AccessToken
	}

	resp, err := c.send(build, token)
	if err != nil {
		return err
	}

	if requiresAuth && isAuthFailure(resp.StatusCode) {
		resp.Body.Close()

		if refreshed {
			return ErrUnauthorized
		}

		cred, err := c.auth.Refresh(ctx, token)
		if err != nil {
			return err
		}

		c.logger.Debug("retrying call with refreshed token")

		resp, err = c.send(build, cred.AccessToken)
		if err != nil {
			return err
		}

		if isAuthFailure(resp.StatusCode) {
			resp.Body.Close()
			return ErrUnauthorized
		}
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Debug("request failed",
			zap.String("status", resp.Status),
			zap.String("body", logger.TruncateForLog(string(data), maxLoggedBody)),
		)

		return &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(data)}
	}

	if target == nil {
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return &DecodingError{Err: err}
	}

	return nil
}

func (c *Client) send(build requestBuilder, token string) (*http.Response, error) {
	req, err := build()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	c.setHeaders(req)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("make request", zap.String("method", req.Method), zap.String("url", req.URL.String()))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)
	req.Header.Set("X-Request-ID", uuid.NewString())
}

func isAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body

	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, &DecodingError{Err: err}
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	return data, nil
}
