// Package store provides the key-value port used for locally persisted
// client state. The core keeps no direct dependency on a concrete storage
// backend; commands pick a backend from configuration.
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Fixed keys for the records the client persists.
const (
	CredentialKey = "credential"
	LastSearchKey = "last_search"
)

// Store is a generic key-value port. Values are small strings or serialized
// JSON records. A missing key is not an error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// GetJSON reads the record under key into target. It reports whether the key
// was present.
func GetJSON(ctx context.Context, s Store, key string, target any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return ok, err
	}

	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return true, fmt.Errorf("decoding record %q: %w", key, err)
	}

	return true, nil
}

// SetJSON stores value under key as a single serialized record. The record is
// always written as one unit so partially updated state can never be read
// back.
func SetJSON(ctx context.Context, s Store, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding record %q: %w", key, err)
	}

	return s.Set(ctx, key, string(data))
}
