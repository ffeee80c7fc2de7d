package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/resumatch/resumatch/internal/store"
)

// testBackend scripts the API and auth endpoints for one test.
type testBackend struct {
	dashboardHits    atomic.Int64
	refreshHits      atomic.Int64
	refreshDelay     time.Duration
	rejectRefresh    bool
	dashboardHandler http.HandlerFunc
}

const (
	oldAccess  = "old-access"
	oldRefresh = "old-refresh"
	newAccess  = "new-access"
	newRefresh = "new-refresh"
)

func (b *testBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/me/dashboard", func(w http.ResponseWriter, r *http.Request) {
		b.dashboardHits.Add(1)

		if b.dashboardHandler != nil {
			b.dashboardHandler(w, r)
			return
		}

		if r.Header.Get("Authorization") != "Bearer "+newAccess {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		json.NewEncoder(w).Encode(map[string]any{
			"total_searches": 1,
			"total_matches":  3,
		})
	})

	mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") != "refresh_token" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		b.refreshHits.Add(1)
		time.Sleep(b.refreshDelay)

		if b.rejectRefresh {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["refresh_token"] != oldRefresh {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  newAccess,
			"refresh_token": newRefresh,
		})
	})

	return mux
}

func newTestClient(t *testing.T, backend *testBackend) (*Client, *store.MemoryStore, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	st := store.NewMemoryStore()
	auth := NewTokenManager(zap.NewNop(), st, server.URL+"/auth")
	client := New(zap.NewNop(), auth)
	client.APIURL = server.URL

	return client, st, server
}

func seedCredential(t *testing.T, st store.Store, access, refresh string) {
	t.Helper()

	err := store.SetJSON(context.Background(), st, store.CredentialKey, &Credential{
		AccessToken:  access,
		RefreshToken: refresh,
		UserID:       "user-1",
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAuthenticatedCallWithoutCredentialFailsFast(t *testing.T) {
	t.Parallel()

	backend := &testBackend{}
	client, _, _ := newTestClient(t, backend)

	_, err := client.Dashboard(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if hits := backend.dashboardHits.Load(); hits != 0 {
		t.Fatalf("expected no network call, got %d", hits)
	}
}

func TestRefreshAndRetryOnce(t *testing.T) {
	t.Parallel()

	backend := &testBackend{}
	client, st, _ := newTestClient(t, backend)
	seedCredential(t, st, oldAccess, oldRefresh)

	summary, err := client.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("expected success after refresh, got %v", err)
	}
	if summary.TotalMatches != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	if hits := backend.refreshHits.Load(); hits != 1 {
		t.Fatalf("expected exactly one refresh, got %d", hits)
	}
	if hits := backend.dashboardHits.Load(); hits != 2 {
		t.Fatalf("expected original call plus one retry, got %d", hits)
	}

	// The refreshed pair must be persisted as a whole.
	var cred Credential
	if ok, err := store.GetJSON(context.Background(), st, store.CredentialKey, &cred); err != nil || !ok {
		t.Fatalf("expected persisted credential, ok=%v err=%v", ok, err)
	}
	if cred.AccessToken != newAccess || cred.RefreshToken != newRefresh {
		t.Fatalf("expected the new pair, got %+v", cred)
	}
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	t.Parallel()

	backend := &testBackend{refreshDelay: 50 * time.Millisecond}
	client, st, _ := newTestClient(t, backend)
	seedCredential(t, st, oldAccess, oldRefresh)

	const callers = 4

	var wg sync.WaitGroup

	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = client.Dashboard(context.Background())
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d failed: %v", i, err)
		}
	}

	if hits := backend.refreshHits.Load(); hits != 1 {
		t.Fatalf("expected exactly one refresh for %d concurrent 401s, got %d", callers, hits)
	}
}

func TestRefreshFailureClearsCredential(t *testing.T) {
	t.Parallel()

	backend := &testBackend{rejectRefresh: true}
	client, st, _ := newTestClient(t, backend)
	seedCredential(t, st, oldAccess, oldRefresh)

	_, err := client.Dashboard(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if _, ok, _ := st.Get(context.Background(), store.CredentialKey); ok {
		t.Fatal("expected credential to be cleared after refresh rejection")
	}
}

func TestServerErrorsNeverTriggerRefresh(t *testing.T) {
	t.Parallel()

	backend := &testBackend{dashboardHandler: func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}}
	client, st, _ := newTestClient(t, backend)
	seedCredential(t, st, newAccess, newRefresh)

	_, err := client.Dashboard(context.Background())

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected HTTPError 500, got %v", err)
	}

	if hits := backend.refreshHits.Load(); hits != 0 {
		t.Fatalf("expected no refresh on 5xx, got %d", hits)
	}
}

func TestMalformedBodyIsDecodingError(t *testing.T) {
	t.Parallel()

	backend := &testBackend{dashboardHandler: func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("{not json"))
	}}
	client, st, _ := newTestClient(t, backend)
	seedCredential(t, st, newAccess, newRefresh)

	_, err := client.Dashboard(context.Background())

	var decErr *DecodingError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodingError, got %v", err)
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	t.Parallel()

	backend := &testBackend{}
	client, st, server := newTestClient(t, backend)
	seedCredential(t, st, newAccess, newRefresh)
	server.Close()

	_, err := client.Dashboard(context.Background())

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
}

func TestExpiredJWTRefreshesBeforeTheCall(t *testing.T) {
	t.Parallel()

	backend := &testBackend{}
	client, st, _ := newTestClient(t, backend)
	seedCredential(t, st, expiredJWT(t), oldRefresh)

	if _, err := client.Dashboard(context.Background()); err != nil {
		t.Fatalf("expected success after proactive refresh, got %v", err)
	}

	// The first dashboard hit must already carry the refreshed token: one
	// refresh, one dashboard call.
	if hits := backend.refreshHits.Load(); hits != 1 {
		t.Fatalf("expected one proactive refresh, got %d", hits)
	}
	if hits := backend.dashboardHits.Load(); hits != 1 {
		t.Fatalf("expected a single dashboard call with the fresh token, got %d", hits)
	}
}

// expiredJWT builds an unsigned JWT whose exp is in the past.
func expiredJWT(t *testing.T) string {
	t.Helper()

	encode := func(v any) string {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		return base64.RawURLEncoding.EncodeToString(data)
	}

	header := encode(map[string]string{"alg": "HS256", "typ": "JWT"})
	claims := encode(map[string]int64{"exp": time.Now().Add(-time.Hour).Unix()})

	return strings.Join([]string{header, claims, "sig"}, ".")
}
