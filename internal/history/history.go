// Package history holds the cached "last search" record shared by the
// results cache and the dashboard reconciler. Both write paths go through
// SaveIfNewer so the stored timestamp only ever moves forward.
package history

import (
	"context"
	"time"

	"github.com/resumatch/resumatch/internal/store"
)

// LastSearchSummary is the lightweight record shown on the upload screen's
// "last search" card.
type LastSearchSummary struct {
	ViewToken        string    `json:"view_token"`
	Timestamp        time.Time `json:"timestamp"`
	TotalMatches     int       `json:"total_matches"`
	CurrentRoleTitle string    `json:"current_role_title,omitempty"`
	LastSearchTitle  string    `json:"last_search_title,omitempty"`
}

// Load reads the cached summary. It reports whether a summary was present.
func Load(ctx context.Context, s store.Store) (*LastSearchSummary, bool, error) {
	var summary LastSearchSummary

	ok, err := store.GetJSON(ctx, s, store.LastSearchKey, &summary)
	if err != nil || !ok {
		return nil, ok, err
	}

	return &summary, true, nil
}

// SaveIfNewer overwrites the cached summary only when the candidate is
// strictly newer than the stored one. It reports whether a write happened.
func SaveIfNewer(ctx context.Context, s store.Store, candidate *LastSearchSummary) (bool, error) {
	existing, ok, err := Load(ctx, s)
	if err != nil {
		return false, err
	}

	if ok && !candidate.Timestamp.After(existing.Timestamp) {
		return false, nil
	}

	if err := store.SetJSON(ctx, s, store.LastSearchKey, candidate); err != nil {
		return false, err
	}

	return true, nil
}
