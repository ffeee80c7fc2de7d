package results

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/resumatch/resumatch/internal/api"
	"github.com/resumatch/resumatch/internal/history"
	"github.com/resumatch/resumatch/internal/store"
)

// fakeJobsFetcher serves a canned job set per bucket and can block a fetch
// until released, to force overlapping requests.
type fakeJobsFetcher struct {
	mu      sync.Mutex
	byBuck  map[api.Bucket][]*api.Job
	err     error
	calls   int
	blockOn api.Bucket
	release chan struct{}
}

func (f *fakeJobsFetcher) FetchJobs(_ context.Context, _ string, bucket api.Bucket) ([]*api.Job, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	jobs := f.byBuck[bucket]
	blocked := f.release != nil && bucket == f.blockOn
	release := f.release
	f.mu.Unlock()

	if blocked {
		<-release
	}
	if err != nil {
		return nil, err
	}

	return jobs, nil
}

func sampleJobs() []*api.Job {
	return []*api.Job{
		{ExternalJobID: "ext-1", Title: "Go Engineer", SourceQuery: "golang backend", Category: "direct"},
		{ExternalJobID: "ext-2", Title: "Platform Engineer", Category: "direct"},
		{ExternalJobID: "ext-3", Title: "SRE", Category: "adjacent"},
	}
}

func newTestCache(fetcher *fakeJobsFetcher) (*Cache, *store.MemoryStore) {
	st := store.NewMemoryStore()
	cache := NewCache(fetcher, st, zap.NewNop(), "tok123")
	cache.now = func() time.Time {
		return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	}

	return cache, st
}

func TestFirstLoadPersistsLastSearchSummary(t *testing.T) {
	t.Parallel()

	fetcher := &fakeJobsFetcher{byBuck: map[api.Bucket][]*api.Job{
		api.BucketAll: sampleJobs(),
	}}
	cache, st := newTestCache(fetcher)

	jobs, err := cache.SetBucket(context.Background(), api.BucketAll)
	if err != nil {
		t.Fatalf("set bucket: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("got %d jobs, want 3", len(jobs))
	}

	summary, ok, err := history.Load(context.Background(), st)
	if err != nil || !ok {
		t.Fatalf("expected saved summary, ok=%v err=%v", ok, err)
	}
	if summary.ViewToken != "tok123" || summary.TotalMatches != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.LastSearchTitle != "golang backend" {
		t.Errorf("title = %q, want the first source query", summary.LastSearchTitle)
	}
}

func TestSummaryIsPersistedOnlyOncePerSession(t *testing.T) {
	t.Parallel()

	fetcher := &fakeJobsFetcher{byBuck: map[api.Bucket][]*api.Job{
		api.BucketAll:    sampleJobs(),
		api.BucketRemote: sampleJobs()[:1],
	}}
	cache, st := newTestCache(fetcher)

	if _, err := cache.SetBucket(context.Background(), api.BucketAll); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.SetBucket(context.Background(), api.BucketRemote); err != nil {
		t.Fatal(err)
	}

	// The summary keeps the first load's totals even after a bucket switch.
	summary, ok, err := history.Load(context.Background(), st)
	if err != nil || !ok {
		t.Fatalf("expected saved summary, ok=%v err=%v", ok, err)
	}
	if summary.TotalMatches != 3 {
		t.Errorf("total matches = %d, want 3 from the first load", summary.TotalMatches)
	}
}

func TestRefreshFailureKeepsPreviousList(t *testing.T) {
	t.Parallel()

	fetcher := &fakeJobsFetcher{byBuck: map[api.Bucket][]*api.Job{
		api.BucketAll: sampleJobs(),
	}}
	cache, _ := newTestCache(fetcher)

	if _, err := cache.SetBucket(context.Background(), api.BucketAll); err != nil {
		t.Fatal(err)
	}

	fetcher.mu.Lock()
	fetcher.err = &api.NetworkError{Err: errors.New("dial tcp: refused")}
	fetcher.mu.Unlock()

	jobs, err := cache.Refresh(context.Background())
	if err == nil {
		t.Fatal("expected refresh to surface the error")
	}
	if len(jobs) != 3 {
		t.Errorf("visible list shrank to %d, want the previous 3", len(jobs))
	}
	if got := cache.Jobs(); len(got) != 3 {
		t.Errorf("cache jobs = %d, want the previous 3", len(got))
	}
}

func TestLastRequestedBucketWins(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	fetcher := &fakeJobsFetcher{
		byBuck: map[api.Bucket][]*api.Job{
			api.BucketRemote:   sampleJobs()[:1],
			api.BucketNational: sampleJobs()[:2],
		},
		blockOn: api.BucketRemote,
		release: release,
	}
	cache, _ := newTestCache(fetcher)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		// Stale response for the superseded bucket must not become visible.
		jobs, err := cache.SetBucket(context.Background(), api.BucketRemote)
		if err != nil {
			t.Errorf("superseded fetch: %v", err)
		}
		if len(jobs) != 2 {
			t.Errorf("superseded fetch returned %d jobs, want the visible 2", len(jobs))
		}
	}()

	// Wait for the remote fetch to be in flight before superseding it.
	for {
		fetcher.mu.Lock()
		started := fetcher.calls >= 1
		fetcher.mu.Unlock()

		if started {
			break
		}

		time.Sleep(time.Millisecond)
	}

	jobs, err := cache.SetBucket(context.Background(), api.BucketNational)
	if err != nil {
		t.Fatalf("set bucket: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}

	close(release)
	wg.Wait()

	if cache.Bucket() != api.BucketNational {
		t.Errorf("bucket = %v, want national", cache.Bucket())
	}
	if got := cache.Jobs(); len(got) != 2 {
		t.Errorf("visible jobs = %d, want the national set", len(got))
	}
}
