package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

const uploadPath = "/api/resume"

// UploadResult is the server's acknowledgement of a resume upload. ViewToken
// identifies the analysis session for all subsequent unauthenticated reads.
type UploadResult struct {
	ViewToken       string `json:"view_token"`
	UserSearchID    string `json:"user_search_id"`
	SearchSessionID string `json:"search_session_id"`
}

// UploadResume submits the resume file and returns the new session handles.
// The upload itself is unauthenticated; the view token gates later reads.
func (c *Client) UploadResume(ctx context.Context, path string) (*UploadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading resume file: %w", err)
	}

	return c.uploadResume(ctx, filepath.Base(path), data)
}

func (c *Client) uploadResume(ctx context.Context, filename string, data []byte) (*UploadResult, error) {
	var b bytes.Buffer

	w := multipart.NewWriter(&b)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	w.Close()

	body := b.Bytes()

	var result UploadResult

	err = c.do(ctx, false, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+uploadPath, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		req.Header.Set("Content-Type", w.FormDataContentType())

		return req, nil
	}, &result)
	if err != nil {
		return nil, err
	}

	if result.ViewToken == "" {
		return nil, &DecodingError{Err: errors.New("upload response has no view token")}
	}

	return &result, nil
}

// UploadGuidance maps upload failures to the specific recovery guidance shown
// to the user instead of one generic message.
func UploadGuidance(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusRequestEntityTooLarge:
			return "The resume file is too large. Choose a smaller file and try again."
		case httpErr.StatusCode == http.StatusUnsupportedMediaType:
			return "This file format is not supported. Upload a PDF or Word document."
		case httpErr.StatusCode >= http.StatusInternalServerError:
			return "The server had trouble processing the upload. Try again in a moment."
		}
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return "Could not reach the server. Check your connection and try again."
	}

	return "The upload failed. Try again, or upload a different file."
}
