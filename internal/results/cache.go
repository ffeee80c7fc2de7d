// Package results holds the per-session view state for a completed analysis:
// the fetched job list with its bucket projection, and the lazily loaded
// per-job explanations.
package results

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/resumatch/resumatch/internal/api"
	"github.com/resumatch/resumatch/internal/history"
	"github.com/resumatch/resumatch/internal/store"
)

// JobsFetcher is the one call the cache needs from the API client.
type JobsFetcher interface {
	FetchJobs(ctx context.Context, viewToken string, bucket api.Bucket) ([]*api.Job, error)
}

// Cache holds the job list for one analysis session and derives bucket
// views by re-querying the backend. Switching buckets while a fetch is in
// flight is resolved last-requested-bucket-wins: a stale response is dropped
// instead of being applied to visible state.
type Cache struct {
	fetcher   JobsFetcher
	store     store.Store
	logger    *zap.Logger
	viewToken string
	now       func() time.Time

	mu           sync.Mutex
	bucket       api.Bucket
	jobs         []*api.Job
	generation   uint64
	summarySaved bool
}

// NewCache creates an empty cache for the session behind viewToken. The
// default bucket is All; nothing is fetched until SetBucket or Refresh.
func NewCache(fetcher JobsFetcher, st store.Store, logger *zap.Logger, viewToken string) *Cache {
	return &Cache{
		fetcher:   fetcher,
		store:     st,
		logger:    logger,
		viewToken: viewToken,
		now:       time.Now,
	}
}

// Bucket returns the currently selected bucket.
func (c *Cache) Bucket() api.Bucket {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.bucket
}

// Jobs returns the currently visible job list.
func (c *Cache) Jobs() []*api.Job {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.jobs
}

// SetBucket selects a bucket and fetches its job set. When a newer selection
// supersedes this one mid-flight, the stale response is dropped and the
// visible state is returned unchanged.
func (c *Cache) SetBucket(ctx context.Context, bucket api.Bucket) ([]*api.Job, error) {
	c.mu.Lock()
	c.bucket = bucket
	c.generation++
	generation := c.generation
	c.mu.Unlock()

	return c.fetch(ctx, bucket, generation)
}

// Refresh re-issues the fetch for the current bucket. On failure the
// previously displayed list stays intact; the caller surfaces a retryable
// error instead of clearing the view.
func (c *Cache) Refresh(ctx context.Context) ([]*api.Job, error) {
	c.mu.Lock()
	bucket := c.bucket
	c.generation++
	generation := c.generation
	c.mu.Unlock()

	return c.fetch(ctx, bucket, generation)
}

func (c *Cache) fetch(ctx context.Context, bucket api.Bucket, generation uint64) ([]*api.Job, error) {
	jobs, err := c.fetcher.FetchJobs(ctx, c.viewToken, bucket)

	c.mu.Lock()

	if generation != c.generation {
		c.logger.Debug("dropping stale job response",
			zap.String("bucket", bucket.String()),
		)

		visible := c.jobs
		c.mu.Unlock()

		return visible, nil
	}

	if err != nil {
		visible := c.jobs
		c.mu.Unlock()

		// The previous list stays visible behind the error banner.
		return visible, err
	}

	c.jobs = jobs
	saveSummary := !c.summarySaved
	c.summarySaved = true
	c.mu.Unlock()

	if saveSummary {
		c.persistSummary(ctx, jobs)
	}

	return jobs, nil
}

// persistSummary records the session as the last search. Happens once per
// session, as a side effect of the first successful load.
func (c *Cache) persistSummary(ctx context.Context, jobs []*api.Job) {
	summary := &history.LastSearchSummary{
		ViewToken:    c.viewToken,
		Timestamp:    c.now().UTC(),
		TotalMatches: len(jobs),
	}

	for _, job := range jobs {
		if job.SourceQuery != "" {
			summary.LastSearchTitle = job.SourceQuery
			break
		}
	}

	if _, err := history.SaveIfNewer(ctx, c.store, summary); err != nil {
		c.logger.Warn("failed to persist last search summary", zap.Error(err))
		return
	}

	c.logger.Debug("persisted last search summary",
		zap.Int("total_matches", summary.TotalMatches),
	)
}
