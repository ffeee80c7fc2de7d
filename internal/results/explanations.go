package results

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/resumatch/resumatch/internal/api"
)

// ExplanationState tracks one job's lazily loaded explanation.
type ExplanationState int

const (
	ExplanationIdle ExplanationState = iota
	ExplanationLoading
	ExplanationLoaded
	ExplanationError
)

// ExplanationEntry is a snapshot of one job's explanation card.
type ExplanationEntry struct {
	State    ExplanationState
	Expanded bool
	Payload  *api.Explanation
	Err      string
}

// ExplanationFetcher is the one call the explanation cache needs from the
// API client.
type ExplanationFetcher interface {
	FetchExplanation(ctx context.Context, jobID, viewToken string) (*api.Explanation, error)
}

// Explanations caches per-job explanations for the lifetime of a results
// screen, keyed by job identity and independent of scroll position. Entries
// are never evicted; the cache is simply discarded with the screen.
type Explanations struct {
	fetcher   ExplanationFetcher
	logger    *zap.Logger
	viewToken string

	mu      sync.Mutex
	entries map[string]*ExplanationEntry
}

// NewExplanations creates an empty explanation cache for one session.
func NewExplanations(fetcher ExplanationFetcher, logger *zap.Logger, viewToken string) *Explanations {
	return &Explanations{
		fetcher:   fetcher,
		logger:    logger,
		viewToken: viewToken,
		entries:   map[string]*ExplanationEntry{},
	}
}

// Entry returns a snapshot of the job's explanation state.
func (x *Explanations) Entry(jobID string) ExplanationEntry {
	x.mu.Lock()
	defer x.mu.Unlock()

	return *x.entry(jobID)
}

// Toggle flips the expand state for a job's card. The first expansion starts
// the load; while a load is under way or already done, toggling is purely a
// view change and never re-fetches.
func (x *Explanations) Toggle(ctx context.Context, jobID string) ExplanationEntry {
	x.mu.Lock()

	entry := x.entry(jobID)
	entry.Expanded = !entry.Expanded

	if !entry.Expanded || entry.State != ExplanationIdle {
		snapshot := *entry
		x.mu.Unlock()

		return snapshot
	}

	entry.State = ExplanationLoading
	x.mu.Unlock()

	return x.load(ctx, jobID)
}

// Retry resets a failed entry and reloads it. This is the only path that
// forces a duplicate fetch for a job.
func (x *Explanations) Retry(ctx context.Context, jobID string) ExplanationEntry {
	x.mu.Lock()

	entry := x.entry(jobID)
	entry.State = ExplanationLoading
	entry.Payload = nil
	entry.Err = ""
	x.mu.Unlock()

	return x.load(ctx, jobID)
}

func (x *Explanations) load(ctx context.Context, jobID string) ExplanationEntry {
	payload, err := x.fetcher.FetchExplanation(ctx, jobID, x.viewToken)

	x.mu.Lock()
	defer x.mu.Unlock()

	entry := x.entry(jobID)

	if err != nil {
		x.logger.Debug("explanation load failed",
			zap.String("job_id", jobID),
			zap.Error(err),
		)

		entry.State = ExplanationError
		entry.Err = err.Error()

		return *entry
	}

	entry.State = ExplanationLoaded
	entry.Payload = payload

	return *entry
}

// entry looks up or creates the mutable state for jobID. Callers hold x.mu.
func (x *Explanations) entry(jobID string) *ExplanationEntry {
	entry, ok := x.entries[jobID]
	if !ok {
		entry = &ExplanationEntry{}
		x.entries[jobID] = entry
	}

	return entry
}
