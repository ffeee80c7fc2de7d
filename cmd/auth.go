package cmd

import (
	"context"
	"log"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/resumatch/resumatch/internal/api"
	"github.com/resumatch/resumatch/internal/logger"
	"github.com/resumatch/resumatch/internal/secrets"
	"github.com/resumatch/resumatch/internal/store"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session locally",
	Run: func(cmd *cobra.Command, _ []string) {
		withAuth(cmd, func(ctx context.Context, auth *api.TokenManager, email, password string, logger *zap.Logger) {
			cred, err := auth.SignIn(ctx, email, password)
			if err != nil {
				logger.Fatal("signing in", zap.Error(err))
			}

			logger.Info("session stored", zap.String("user_id", cred.UserID))
		})
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	Run: func(cmd *cobra.Command, _ []string) {
		withAuth(cmd, func(ctx context.Context, auth *api.TokenManager, email, password string, logger *zap.Logger) {
			result, err := auth.SignUp(ctx, email, password)
			if err != nil {
				logger.Fatal("signing up", zap.Error(err))
			}

			if result.ConfirmationRequired {
				logger.Info("account created",
					zap.String("hint", "confirm the email we sent you, then run `"+app+" login`"),
				)
				return
			}

			logger.Info("account created and session stored", zap.String("user_id", result.Credential.UserID))
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the local session",
	Run: func(_ *cobra.Command, _ []string) {
		ctx := context.Background()

		logger, st, config := mustServices()

		client := newClient(config, st, logger)

		if err := client.Auth().SignOut(ctx); err != nil {
			logger.Fatal("signing out", zap.Error(err))
		}

		logger.Info("signed out")
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, signupCmd, logoutCmd)

	for _, cmd := range []*cobra.Command{loginCmd, signupCmd} {
		cmd.Flags().String("email", "", "account email (prompted when omitted)")
		cmd.Flags().String("password-file", "", "file containing the account password")
	}

	viper.BindPFlag("password-file", loginCmd.Flags().Lookup("password-file"))
}

// withAuth gathers the credentials interactively or from flags/env and hands
// them to the action.
func withAuth(cmd *cobra.Command, action func(context.Context, *api.TokenManager, string, string, *zap.Logger)) {
	ctx := context.Background()

	logger, st, config := mustServices()

	email := strings.TrimSpace(cmd.Flag("email").Value.String())
	if email == "" {
		emailPrompt := promptui.Prompt{Label: "Email"}

		var err error
		if email, err = emailPrompt.Run(); err != nil {
			logger.Fatal("reading email", zap.Error(err))
		}
	}

	passwordFile := strings.TrimSpace(cmd.Flag("password-file").Value.String())
	if passwordFile == "" {
		passwordFile = strings.TrimSpace(viper.GetString("password-file"))
	}

	password, err := secrets.Load(secrets.Source{
		Name: "password",
		File: passwordFile,
		Env:  "RESUMATCH_PASSWORD",
	})
	if err != nil {
		passwordPrompt := promptui.Prompt{Label: "Password", Mask: '*'}
		if password, err = passwordPrompt.Run(); err != nil {
			logger.Fatal("reading password", zap.Error(err))
		}
	}

	client := newClient(config, st, logger)

	action(ctx, client.Auth(), email, password, logger)
}

// mustServices builds the logger, store and config, exiting on failure.
func mustServices() (*zap.Logger, store.Store, *Config) {
	zlog, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		zlog.Fatal("getting a config", zap.Error(err))
	}

	st, err := newStore(config)
	if err != nil {
		zlog.Fatal("building the state store", zap.Error(err))
	}

	return zlog, st, config
}
