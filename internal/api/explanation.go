package api

import "context"

const explanationPath = "/api/jobs/explanation"

// Explanation is the AI-generated match rationale for a single job.
type Explanation struct {
	Summary string   `json:"explanation_summary"`
	Bullets []string `json:"bullets"`
}

type explanationRequest struct {
	JobID     string `json:"job_id"`
	ViewToken string `json:"view_token"`
}

// FetchExplanation asks the backend to explain why jobID matched the
// session's resume.
func (c *Client) FetchExplanation(ctx context.Context, jobID, viewToken string) (*Explanation, error) {
	var explanation Explanation

	body := explanationRequest{JobID: jobID, ViewToken: viewToken}
	if err := c.postJSON(ctx, explanationPath, body, false, &explanation); err != nil {
		return nil, err
	}

	return &explanation, nil
}
