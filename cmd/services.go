package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/resumatch/resumatch/internal/api"
	"github.com/resumatch/resumatch/internal/secrets"
	"github.com/resumatch/resumatch/internal/store"
)

const defaultAuthURL = "https://auth.resumatch.app"

// newStore builds the persistence backend from configuration. The default is
// a JSON state file next to the user's other dotfiles.
func newStore(config *Config) (store.Store, error) {
	var state StateConfig
	if config != nil && config.State != nil {
		state = *config.State
	}

	switch strings.TrimSpace(state.Backend) {
	case "", "file":
		path := state.Path
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("resolving home directory for the state file: %w", err)
			}
			path = filepath.Join(home, "."+app, "state.json")
		}

		return store.NewFileStore(path), nil
	case "redis":
		if state.Redis == nil || state.Redis.Addr == "" {
			return nil, fmt.Errorf("state.redis.addr is required for the redis backend")
		}

		password := ""
		if state.Redis.PasswordFile != "" {
			var err error
			password, err = secrets.Load(secrets.Source{
				Name: "redis password",
				File: state.Redis.PasswordFile,
			})
			if err != nil {
				return nil, err
			}
		}

		return store.NewRedisStore(state.Redis.Addr, password, state.Redis.DB), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", state.Backend)
	}
}

// newClient wires the API client and its token manager from configuration.
func newClient(config *Config, st store.Store, logger *zap.Logger) *api.Client {
	authURL := defaultAuthURL
	if config != nil && config.AuthURL != "" {
		authURL = config.AuthURL
	}

	auth := api.NewTokenManager(logger, st, authURL)
	client := api.New(logger, auth)

	if config != nil {
		if config.APIURL != "" {
			client.APIURL = config.APIURL
		}
		if config.UserAgent != "" {
			client.UserAgent = config.UserAgent
			auth.UserAgent = config.UserAgent
		}
	}

	return client
}
