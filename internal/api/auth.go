package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/resumatch/resumatch/internal/store"
)

// Credential is the persisted token pair. AccessToken and RefreshToken are
// always both present or both absent; the record is written as one unit.
type Credential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	Email        string `json:"email,omitempty"`
}

// AccessExpired reports whether the access token is a JWT whose expiry has
// passed. Tokens that are not parseable JWTs or carry no expiry are treated
// as live; the 401 path catches those.
func (c *Credential) AccessExpired(now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.AccessToken, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}

	return now.After(exp.Time)
}

// SignUpResult reports the outcome of account creation. Some deployments
// require email confirmation before a session is issued.
type SignUpResult struct {
	ConfirmationRequired bool
	Credential           *Credential
}

// TokenManager owns the credential lifecycle: sign-in/up/out against the
// auth service, persistence in the key-value store, and token refresh.
// Concurrent callers that need a refresh share a single in-flight attempt,
// since the auth provider invalidates a refresh token after first use.
type TokenManager struct {
	logger     *zap.Logger
	store      store.Store
	AuthURL    string
	HTTPClient *http.Client
	UserAgent  string

	mu     sync.Mutex
	cred   *Credential
	loaded bool

	refresh singleflight.Group
}

// NewTokenManager creates a token manager persisting credentials to st.
func NewTokenManager(logger *zap.Logger, st store.Store, authURL string) *TokenManager {
	return &TokenManager{
		logger:  logger,
		store:   st,
		AuthURL: authURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		UserAgent: userAgent,
	}
}

// Current returns the cached credential, loading it from the store on first
// use. It reports false when no credential is available.
func (m *TokenManager) Current(ctx context.Context) (*Credential, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		var cred Credential

		ok, err := store.GetJSON(ctx, m.store, store.CredentialKey, &cred)
		if err != nil {
			return nil, false, err
		}

		m.loaded = true
		if ok && cred.AccessToken != "" && cred.RefreshToken != "" {
			m.cred = &cred
		}
	}

	if m.cred == nil {
		return nil, false, nil
	}

	cred := *m.cred

	return &cred, true, nil
}

// SignIn exchanges email and password for a token pair and persists it.
func (m *TokenManager) SignIn(ctx context.Context, email, password string) (*Credential, error) {
	var resp tokenResponse

	payload := map[string]string{"email": email, "password": password}
	if err := m.authPost(ctx, "/token?grant_type=password", payload, "", &resp); err != nil {
		return nil, fmt.Errorf("signing in: %w", err)
	}

	cred, err := resp.credential()
	if err != nil {
		return nil, err
	}

	if err := m.persist(ctx, cred); err != nil {
		return nil, err
	}

	m.logger.Info("signed in", zap.String("email", cred.Email))

	return cred, nil
}

// SignUp creates an account. When the service withholds the session pending
// email confirmation, the result says so and no credential is persisted.
func (m *TokenManager) SignUp(ctx context.Context, email, password string) (*SignUpResult, error) {
	var resp tokenResponse

	payload := map[string]string{"email": email, "password": password}
	if err := m.authPost(ctx, "/signup", payload, "", &resp); err != nil {
		return nil, fmt.Errorf("signing up: %w", err)
	}

	if resp.AccessToken == "" && resp.RefreshToken == "" {
		return &SignUpResult{ConfirmationRequired: true}, nil
	}

	cred, err := resp.credential()
	if err != nil {
		return nil, err
	}

	if err := m.persist(ctx, cred); err != nil {
		return nil, err
	}

	return &SignUpResult{Credential: cred}, nil
}

// SignOut revokes the session best-effort and always clears the local
// credential, whatever the auth service answers.
func (m *TokenManager) SignOut(ctx context.Context) error {
	cred, ok, err := m.Current(ctx)
	if err != nil {
		return err
	}

	if ok {
		if err := m.authPost(ctx, "/logout", nil, cred.AccessToken, nil); err != nil {
			m.logger.Debug("remote logout failed, clearing local session anyway", zap.Error(err))
		}
	}

	return m.clear(ctx)
}

// Refresh exchanges the stored refresh token for a new pair. staleAccess is
// the access token the caller saw rejected: when the stored credential has
// already moved past it, the existing pair is returned without a network
// call, and concurrent callers for the same stale token share one in-flight
// attempt. Together these guarantee a burst of 401s issues exactly one
// refresh. The new pair is persisted before Refresh returns, so a caller
// retrying a failed request never races a lost token. A definitive rejection
// clears the credential and yields ErrUnauthorized; transport failures leave
// it in place.
func (m *TokenManager) Refresh(ctx context.Context, staleAccess string) (*Credential, error) {
	result, err, _ := m.refresh.Do(staleAccess, func() (any, error) {
		return m.doRefresh(ctx, staleAccess)
	})
	if err != nil {
		return nil, err
	}

	return result.(*Credential), nil
}

func (m *TokenManager) doRefresh(ctx context.Context, staleAccess string) (*Credential, error) {
	current, ok, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnauthorized
	}

	if current.AccessToken != staleAccess {
		// Another caller already refreshed; share its outcome.
		return current, nil
	}

	m.logger.Debug("refreshing access token")

	var resp tokenResponse

	payload := map[string]string{"refresh_token": current.RefreshToken}
	err = m.authPost(ctx, "/token?grant_type=refresh_token", payload, "", &resp)

	switch {
	case err == nil:
	case errors.Is(err, ErrUnauthorized), isClientRejection(err):
		if clearErr := m.clear(ctx); clearErr != nil {
			return nil, clearErr
		}

		m.logger.Info("refresh token rejected, session cleared")

		return nil, fmt.Errorf("refreshing token: %w", ErrUnauthorized)
	default:
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	cred, err := resp.credential()
	if err != nil {
		return nil, err
	}
	cred.UserID = orDefault(cred.UserID, current.UserID)
	cred.Email = orDefault(cred.Email, current.Email)

	if err := m.persist(ctx, cred); err != nil {
		return nil, err
	}

	return cred, nil
}

func (m *TokenManager) persist(ctx context.Context, cred *Credential) error {
	if err := store.SetJSON(ctx, m.store, store.CredentialKey, cred); err != nil {
		return fmt.Errorf("persisting credential: %w", err)
	}

	m.mu.Lock()
	m.cred = cred
	m.loaded = true
	m.mu.Unlock()

	return nil
}

func (m *TokenManager) clear(ctx context.Context) error {
	if err := m.store.Remove(ctx, store.CredentialKey); err != nil {
		return fmt.Errorf("clearing credential: %w", err)
	}

	m.mu.Lock()
	m.cred = nil
	m.loaded = true
	m.mu.Unlock()

	return nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (r *tokenResponse) credential() (*Credential, error) {
	if r.AccessToken == "" || r.RefreshToken == "" {
		return nil, &DecodingError{Err: errors.New("token response is missing part of the token pair")}
	}

	return &Credential{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		UserID:       r.User.ID,
		Email:        r.User.Email,
	}, nil
}

// authPost talks to the auth service directly. It never triggers a refresh:
// the auth endpoints are the refresh machinery.
func (m *TokenManager) authPost(ctx context.Context, path string, body any, bearer string, target any) error {
	var payload []byte

	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.AuthURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", m.UserAgent)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return err
	}

	if isAuthFailure(resp.StatusCode) {
		return ErrUnauthorized
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
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

// isClientRejection reports a definitive 4xx refusal from the auth service,
// as opposed to a transport failure or a server-side error.
func isClientRejection(err error) bool {
	var httpErr *HTTPError

	return errors.As(err, &httpErr) &&
		httpErr.StatusCode >= http.StatusBadRequest &&
		httpErr.StatusCode < http.StatusInternalServerError
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}

	return fallback
}
