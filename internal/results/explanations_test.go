package results

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/resumatch/resumatch/internal/api"
)

type fakeExplanationFetcher struct {
	mu      sync.Mutex
	payload *api.Explanation
	err     error
	calls   int
	release chan struct{}
}

func (f *fakeExplanationFetcher) FetchExplanation(_ context.Context, _, _ string) (*api.Explanation, error) {
	f.mu.Lock()
	f.calls++
	payload := f.payload
	err := f.err
	release := f.release
	f.mu.Unlock()

	if release != nil {
		<-release
	}

	return payload, err
}

func (f *fakeExplanationFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

func TestToggleLoadsOnFirstExpansion(t *testing.T) {
	t.Parallel()

	fetcher := &fakeExplanationFetcher{payload: &api.Explanation{
		Summary: "Strong match on Go and distributed systems.",
		Bullets: []string{"5 years of Go", "Kubernetes exposure"},
	}}
	x := NewExplanations(fetcher, zap.NewNop(), "tok123")

	entry := x.Toggle(context.Background(), "ext-1")
	if entry.State != ExplanationLoaded || !entry.Expanded {
		t.Fatalf("unexpected entry after first toggle: %+v", entry)
	}
	if entry.Payload == nil || len(entry.Payload.Bullets) != 2 {
		t.Fatalf("payload not populated: %+v", entry.Payload)
	}

	// Collapse and re-expand: the cached payload is reused, no refetch.
	x.Toggle(context.Background(), "ext-1")

	entry = x.Toggle(context.Background(), "ext-1")
	if entry.State != ExplanationLoaded || !entry.Expanded {
		t.Fatalf("unexpected entry after re-expansion: %+v", entry)
	}
	if fetcher.fetchCount() != 1 {
		t.Errorf("fetch count = %d, want 1", fetcher.fetchCount())
	}
}

func TestRapidTogglesIssueOneFetch(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	fetcher := &fakeExplanationFetcher{
		payload: &api.Explanation{Summary: "match"},
		release: release,
	}
	x := NewExplanations(fetcher, zap.NewNop(), "tok123")

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		x.Toggle(context.Background(), "ext-1")
	}()

	// Wait until the load is in flight, then toggle twice more while it
	// hangs: collapse and expand must not start a second fetch.
	for fetcher.fetchCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	x.Toggle(context.Background(), "ext-1")
	x.Toggle(context.Background(), "ext-1")

	close(release)
	wg.Wait()

	if fetcher.fetchCount() != 1 {
		t.Errorf("fetch count = %d, want exactly 1", fetcher.fetchCount())
	}

	entry := x.Entry("ext-1")
	if entry.State != ExplanationLoaded || !entry.Expanded {
		t.Errorf("unexpected final entry: %+v", entry)
	}
}

func TestRetryAfterFailureRefetches(t *testing.T) {
	t.Parallel()

	fetcher := &fakeExplanationFetcher{err: &api.NetworkError{Err: errors.New("dial tcp: refused")}}
	x := NewExplanations(fetcher, zap.NewNop(), "tok123")

	entry := x.Toggle(context.Background(), "ext-1")
	if entry.State != ExplanationError || entry.Err == "" {
		t.Fatalf("expected error entry, got %+v", entry)
	}

	// Other jobs are untouched by one card's failure.
	if other := x.Entry("ext-2"); other.State != ExplanationIdle {
		t.Errorf("unexpected state for untouched job: %+v", other)
	}

	fetcher.mu.Lock()
	fetcher.err = nil
	fetcher.payload = &api.Explanation{Summary: "match"}
	fetcher.mu.Unlock()

	entry = x.Retry(context.Background(), "ext-1")
	if entry.State != ExplanationLoaded || entry.Err != "" {
		t.Fatalf("expected loaded entry after retry, got %+v", entry)
	}
	if fetcher.fetchCount() != 2 {
		t.Errorf("fetch count = %d, want 2", fetcher.fetchCount())
	}
}
