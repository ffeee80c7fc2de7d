package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/resumatch/resumatch/internal/api"
	"github.com/resumatch/resumatch/internal/logger"
	"github.com/resumatch/resumatch/internal/results"
	"github.com/resumatch/resumatch/internal/session"
)

const (
	PromptShowJobs     = "Show current matches"
	PromptSwitchBucket = "Switch bucket"
	PromptExplain      = "Explain a match"
	PromptRefresh      = "Refresh"
	PromptExit         = "Exit"

	PromptTryAgain = "Try again"
	PromptYes      = "Yes"
	PromptNo       = "No"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptShowJobs, PromptSwitchBucket, PromptExplain, PromptRefresh, PromptExit},
}

var runCmd = &cobra.Command{
	Use:   "run <resume-file>",
	Short: "Upload a resume, wait for the analysis, and browse the ranked matches",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		run(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("bucket", "b", "all", "initial job bucket: all, remote, local or national")
	runCmd.Flags().BoolP("no-interactive", "y", false, "print the matches and exit without prompting")
}

// run is the main command for the cli: upload, poll, browse.
func run(cmd *cobra.Command, resumePath string) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting resumatch", zap.String("version", version))

	st, err := newStore(config)
	if err != nil {
		logger.Fatal("building the state store", zap.Error(err))
	}

	client := newClient(config, st, logger)

	logger.Info("uploading resume", zap.String("file", resumePath))

	upload, err := client.UploadResume(ctx, resumePath)
	if err != nil {
		logger.Fatal("uploading resume",
			zap.Error(err),
			zap.String("hint", api.UploadGuidance(err)),
		)
	}

	logger.Info("upload accepted, analysis started", zap.String("view_token", upload.ViewToken))

	interactive := cmd.Flag("no-interactive").Value.String() == "false"

	if !waitForAnalysis(ctx, client, config, upload.ViewToken, interactive, logger) {
		return
	}

	bucket, err := api.ParseBucket(cmd.Flag("bucket").Value.String())
	if err != nil {
		logger.Fatal("parsing bucket flag", zap.Error(err))
	}

	cache := results.NewCache(client, st, logger, upload.ViewToken)
	explanations := results.NewExplanations(client, logger, upload.ViewToken)

	jobs, err := cache.SetBucket(ctx, bucket)
	if err != nil {
		logger.Fatal("fetching matches", zap.Error(err))
	}

	logger.Info("analysis completed",
		zap.Int("matches", len(jobs)),
		zap.String("bucket", bucket.String()),
	)

	printJobs(jobs)

	if !interactive {
		return
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(ctx, action, cache, explanations, logger); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

// waitForAnalysis polls until the session completes. It reports whether the
// caller should proceed to the results; a failed or abandoned session returns
// false. A user-requested retry restarts the polling cycle without
// resubmitting the upload.
func waitForAnalysis(ctx context.Context, client *api.Client, config *Config, viewToken string, interactive bool, logger *zap.Logger) bool {
	poller := session.NewPoller(client, logger)
	if config != nil && config.Poll != nil {
		if config.Poll.IntervalSeconds > 0 {
			poller.Interval = time.Duration(config.Poll.IntervalSeconds) * time.Second
		}
		if config.Poll.MaxPolls > 0 {
			poller.MaxPolls = config.Poll.MaxPolls
		}
	}

	for {
		logger.Info("waiting for the analysis to finish")

		result, err := poller.Run(ctx, viewToken)
		if err != nil {
			logger.Fatal("polling analysis status",
				zap.Error(err),
				zap.String("hint", "check your connection and run the command again"),
			)
		}

		if result.Status == session.StatusCompleted {
			logger.Debug("analysis finished", zap.Int("polls", result.Polls))
			return true
		}

		if result.TimedOut {
			logger.Warn("analysis timed out on the client side", zap.Int("polls", result.Polls))
		} else {
			logger.Warn("analysis failed", zap.String("reason", result.ErrorMessage))
		}

		if !interactive {
			logger.Error(result.ErrorMessage)
			return false
		}

		retryPrompt := promptui.Select{
			Label: result.ErrorMessage,
			Items: []string{PromptTryAgain, PromptExit},
		}

		_, choice, err := retryPrompt.Run()
		if err != nil || choice == PromptExit {
			return false
		}
	}
}

func handleAction(ctx context.Context, action string, cache *results.Cache, explanations *results.Explanations, logger *zap.Logger) error {
	switch action {
	case PromptShowJobs:
		printJobs(cache.Jobs())
		return nil
	case PromptSwitchBucket:
		return switchBucket(ctx, cache, logger)
	case PromptExplain:
		return explainJob(ctx, cache, explanations, logger)
	case PromptRefresh:
		jobs, err := cache.Refresh(ctx)
		if err != nil {
			// The previous list is still visible; this is a banner, not a reset.
			logger.Warn("refresh failed, keeping the current matches", zap.Error(err))
			return nil
		}
		printJobs(jobs)
		return nil
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func switchBucket(ctx context.Context, cache *results.Cache, logger *zap.Logger) error {
	names := make([]string, 0, len(api.Buckets()))
	for _, b := range api.Buckets() {
		names = append(names, b.String())
	}

	bucketPrompt := promptui.Select{
		Label: "Choose a bucket",
		Items: names,
	}

	_, name, err := bucketPrompt.Run()
	if err != nil {
		return err
	}

	bucket, err := api.ParseBucket(name)
	if err != nil {
		return err
	}

	jobs, err := cache.SetBucket(ctx, bucket)
	if err != nil {
		logger.Warn("bucket fetch failed, keeping the current matches", zap.Error(err))
		return nil
	}

	logger.Info("switched bucket",
		zap.String("bucket", bucket.String()),
		zap.Int("matches", len(jobs)),
	)
	printJobs(jobs)

	return nil
}

func explainJob(ctx context.Context, cache *results.Cache, explanations *results.Explanations, logger *zap.Logger) error {
	jobs := cache.Jobs()
	if len(jobs) == 0 {
		logger.Info("no matches to explain")
		return nil
	}

	items := make([]string, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, fmt.Sprintf("%s %s / %s / %s", job.ExternalJobID, job.Title, job.CompanyName, job.Location))
	}

	jobPrompt := promptui.Select{
		Label: "Choose a match and press ENTER",
		Items: items,
	}

	idx, _, err := jobPrompt.Run()
	if err != nil {
		return err
	}

	jobID := jobs[idx].ExternalJobID

	entry := explanations.Toggle(ctx, jobID)
	if !entry.Expanded {
		// Collapsed an already explained card; expand it back to print it.
		entry = explanations.Toggle(ctx, jobID)
	}

	if entry.State == results.ExplanationError {
		retryPrompt := promptui.Select{
			Label: fmt.Sprintf("Loading the explanation failed (%s). Retry?", entry.Err),
			Items: []string{PromptYes, PromptNo},
		}

		if _, choice, err := retryPrompt.Run(); err == nil && choice == PromptYes {
			entry = explanations.Retry(ctx, jobID)
		}
	}

	printExplanation(jobs[idx], entry, logger)

	return nil
}

func printExplanation(job *api.Job, entry results.ExplanationEntry, logger *zap.Logger) {
	if entry.State != results.ExplanationLoaded {
		logger.Warn("explanation is not available",
			zap.String("job_id", job.ExternalJobID),
			zap.String("error", entry.Err),
		)
		return
	}

	fmt.Printf("\n%s at %s\n%s\n", job.Title, job.CompanyName, entry.Payload.Summary)
	for _, bullet := range entry.Payload.Bullets {
		fmt.Printf("  - %s\n", bullet)
	}
	fmt.Println()
}

func printJobs(jobs []*api.Job) {
	// do not bother error since the payload came from a JSON decoder
	pretty, _ := json.MarshalIndent(jobs, "", "  ")
	fmt.Println(string(pretty))
}
