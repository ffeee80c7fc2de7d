package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/resumatch/resumatch/internal/api"
	"github.com/resumatch/resumatch/internal/dashboard"
	"github.com/resumatch/resumatch/internal/logger"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show your search history and sync the last-search card",
	Run: func(_ *cobra.Command, _ []string) {
		runDashboard()
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard() {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	st, err := newStore(config)
	if err != nil {
		logger.Fatal("building the state store", zap.Error(err))
	}

	client := newClient(config, st, logger)

	view := dashboard.NewReconciler(client, st, logger).Load(ctx)

	switch view.State {
	case dashboard.StateSignInRequired:
		logger.Fatal("sign-in required",
			zap.String("hint", fmt.Sprintf("run `%s login` and try again", app)),
		)
	case dashboard.StateEmpty:
		logger.Info("no searches yet",
			zap.String("hint", fmt.Sprintf("run `%s run <resume-file>` to start your first search", app)),
		)
	case dashboard.StateError:
		hint := "unexpected failure, check the configuration"
		if api.IsRetryable(view.Err) {
			hint = "this is usually transient, try again"
		}

		logger.Fatal("loading dashboard",
			zap.Error(view.Err),
			zap.String("hint", hint),
		)
	case dashboard.StateLoaded:
		pretty, _ := json.MarshalIndent(view.Summary, "", "  ")
		fmt.Println(string(pretty))

		logger.Info("dashboard loaded",
			zap.Int("total_searches", view.Summary.TotalSearches),
			zap.Int("total_matches", view.Summary.TotalMatches),
			zap.Int("recent_sessions", len(view.Summary.Sessions)),
		)
	}
}
