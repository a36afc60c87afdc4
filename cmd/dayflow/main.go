package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dayflow/dayflow/internal/config"
	"github.com/dayflow/dayflow/internal/database"
	"github.com/dayflow/dayflow/internal/logging"
	"github.com/dayflow/dayflow/internal/remote"
	"github.com/dayflow/dayflow/pkg/window"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd is the dayflow command tree.
var rootCmd = &cobra.Command{
	Use:   "dayflow",
	Short: "Record your day and let Gemini summarize it",
	Long: `dayflow samples the focused window into a CSV activity log while recording
the screen (with an optional webcam overlay) into a compact MP4. When the
session stops, the video is uploaded to Gemini and a timeline report is
written next to it.

Examples:
  dayflow start-session --interval 5
  dayflow stop-session
  dayflow analyze-log --json
  dayflow upload-asset --file output/videos/dayflow_2025-03-01_09-00-00.mp4
  dayflow analyze-asset --handle files/abc123 --prompt "What did I work on?" --wait

Configuration is read from .env (or $DAYFLOW_ENV_FILE) and the environment.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dayflow version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

var apiKeyFlag string

func init() {
	rootCmd.PersistentFlags().StringVar(&apiKeyFlag, "api-key", "", "Gemini API key, overrides GEMINI_API_KEY and GOOGLE_API_KEY")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg(describeError(err))
		os.Exit(1)
	}
}

// loadConfig reads and validates the configuration and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		logging.Init("info")
		return nil, err
	}
	logging.Init(cfg.Log.Level)

	if apiKeyFlag != "" {
		cfg.Remote.APIKey = apiKeyFlag
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Debug().Msg(cfg.String())
	return cfg, nil
}

func openRepository(cfg *config.Config) (*database.Repository, func(), error) {
	db, err := database.Open(cfg.DatabasePath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session index: %w", err)
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close session index")
		}
	}
	return database.NewRepository(db), closeDB, nil
}

func newProcessor(ctx context.Context, cfg *config.Config) (*remote.Processor, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	svc, err := remote.NewGeminiService(ctx, cfg.Remote.APIKey)
	if err != nil {
		return nil, err
	}
	return remote.NewProcessor(svc, cfg), nil
}

// describeError maps typed failures to a one-line explanation for the user.
func describeError(err error) string {
	var (
		uploadErr  *remote.UploadError
		timeoutErr *remote.TimeoutError
		serviceErr *remote.ServiceError
		cfgErr     *config.ConfigurationError
		unavailErr *window.ResourceUnavailableError
	)
	switch {
	case errors.As(err, &uploadErr):
		return "The video didn't upload"
	case errors.As(err, &timeoutErr):
		return "The model never finished processing the video"
	case remote.IsTransient(err):
		return "The remote service is unreachable, retries exhausted"
	case errors.As(err, &serviceErr):
		return "The remote service reported a failure"
	case errors.As(err, &cfgErr):
		return "Invalid configuration"
	case errors.As(err, &unavailErr):
		return "A required device is unavailable"
	case errors.Is(err, context.Canceled):
		return "Interrupted"
	default:
		return "Command failed"
	}
}
