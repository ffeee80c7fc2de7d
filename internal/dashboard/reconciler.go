// Package dashboard fetches the authenticated search history and keeps the
// locally cached "last search" record in sync with it.
package dashboard

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/resumatch/resumatch/internal/api"
	"github.com/resumatch/resumatch/internal/history"
	"github.com/resumatch/resumatch/internal/store"
)

// State classifies the dashboard outcome for rendering.
type State int

const (
	// StateLoaded means Summary is populated.
	StateLoaded State = iota
	// StateEmpty means the user has no history yet; render an empty state,
	// not an error.
	StateEmpty
	// StateSignInRequired means the credential is missing or was rejected
	// even after a refresh; prompt for sign-in instead of a generic error.
	StateSignInRequired
	// StateError covers everything else and is retryable.
	StateError
)

// View is the classified result of a dashboard load.
type View struct {
	State   State
	Summary *api.DashboardSummary
	Err     error
}

// Fetcher is the one call the reconciler needs from the API client. The
// client already handles refresh-and-retry internally.
type Fetcher interface {
	Dashboard(ctx context.Context) (*api.DashboardSummary, error)
}

// Reconciler loads the dashboard and synchronizes the freshest session into
// the cached last-search record.
type Reconciler struct {
	fetcher Fetcher
	store   store.Store
	logger  *zap.Logger
}

func NewReconciler(fetcher Fetcher, st store.Store, logger *zap.Logger) *Reconciler {
	return &Reconciler{fetcher: fetcher, store: st, logger: logger}
}

// Load fetches the dashboard and classifies the outcome. On success, if the
// most recent returned session is newer than the cached last search, the
// cache is overwritten; this is what keeps the upload screen's card
// consistent with the dashboard.
func (r *Reconciler) Load(ctx context.Context) View {
	summary, err := r.fetcher.Dashboard(ctx)

	switch {
	case errors.Is(err, api.ErrUnauthorized):
		return View{State: StateSignInRequired, Err: err}
	case api.IsNotFound(err):
		return View{State: StateEmpty}
	case err != nil:
		return View{State: StateError, Err: err}
	}

	if len(summary.Sessions) == 0 {
		return View{State: StateEmpty, Summary: summary}
	}

	r.reconcile(ctx, summary)

	return View{State: StateLoaded, Summary: summary}
}

func (r *Reconciler) reconcile(ctx context.Context, summary *api.DashboardSummary) {
	latest := summary.Sessions[0]
	for _, s := range summary.Sessions[1:] {
		if s.CompletedAt.After(latest.CompletedAt) {
			latest = s
		}
	}

	wrote, err := history.SaveIfNewer(ctx, r.store, &history.LastSearchSummary{
		ViewToken:        latest.ViewToken,
		Timestamp:        latest.CompletedAt,
		TotalMatches:     latest.TotalMatches,
		CurrentRoleTitle: latest.RoleTitle,
		LastSearchTitle:  latest.SearchTitle,
	})
	if err != nil {
		r.logger.Warn("failed to sync last search from dashboard", zap.Error(err))
		return
	}

	if wrote {
		r.logger.Debug("last search updated from dashboard",
			zap.String("view_token", latest.ViewToken),
			zap.Time("completed_at", latest.CompletedAt),
		)
	}
}
