package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

const jobsPath = "/api/public/jobs"

// Bucket selects one of the server-defined job subsets. It is a query
// projection, not a client-side filter: the server returns a different job
// set per bucket.
type Bucket int

const (
	BucketAll Bucket = iota
	BucketRemote
	BucketLocal
	BucketNational
)

// Buckets lists all buckets in display order.
func Buckets() []Bucket {
	return []Bucket{BucketAll, BucketRemote, BucketLocal, BucketNational}
}

func (b Bucket) String() string {
	switch b {
	case BucketRemote:
		return "remote"
	case BucketLocal:
		return "local"
	case BucketNational:
		return "national"
	default:
		return "all"
	}
}

// ParseBucket maps a user-facing bucket name to its value.
func ParseBucket(name string) (Bucket, error) {
	for _, b := range Buckets() {
		if b.String() == name {
			return b, nil
		}
	}

	return BucketAll, fmt.Errorf("unknown bucket %q", name)
}

// Query returns the exact filter parameters the backend expects for the
// bucket. The mapping is part of the wire contract and must not drift.
func (b Bucket) Query() url.Values {
	q := url.Values{}

	switch b {
	case BucketRemote:
		q.Set("remote", "true")
	case BucketLocal:
		q.Set("scope", "local")
		q.Set("remote", "false")
	case BucketNational:
		q.Set("scope", "national")
		q.Set("remote", "false")
	case BucketAll:
	}

	return q
}

// Job is one ranked match. Identity is ExternalJobID, which is stable across
// bucket switches within a session.
type Job struct {
	ID            string `json:"id,omitempty"`
	ExternalJobID string `json:"external_job_id,omitempty"`
	Title         string `json:"title,omitempty"`
	CompanyName   string `json:"company_name,omitempty"`
	Location      string `json:"location,omitempty"`
	PostedAt      string `json:"posted_at,omitempty"`
	URL           string `json:"url,omitempty"`
	SourceQuery   string `json:"source_query,omitempty"`
	Category      string `json:"category,omitempty"`
	IsRemote      bool   `json:"is_remote,omitempty"`
}

// FetchJobs returns the job set for the session's bucket.
func (c *Client) FetchJobs(ctx context.Context, viewToken string, bucket Bucket) ([]*Job, error) {
	q := bucket.Query()
	q.Set("token", viewToken)

	var items []map[string]any
	if err := c.getJSON(ctx, jobsPath, q, false, &items); err != nil {
		return nil, err
	}

	var jobs []*Job

	cfg := &mapstructure.DecoderConfig{
		Result:  &jobs,
		TagName: "json",
	}

	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, &DecodingError{Err: err}
	}
	if err := decoder.Decode(items); err != nil {
		return nil, &DecodingError{Err: err}
	}

	c.logger.Debug("fetched jobs",
		zap.String("bucket", bucket.String()),
		zap.Int("count", len(jobs)),
	)

	return jobs, nil
}
