// Package cli is the orbitsafe command line client.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/johnrirwin/orbitsafe/internal/app"
	"github.com/johnrirwin/orbitsafe/internal/config"
	"github.com/johnrirwin/orbitsafe/internal/logging"
)

// Version is the client version.
const Version = "0.1.0"

// runtime carries persistent flags and the client shared by every command.
type runtime struct {
	envFile    string
	apiURL     string
	predictURL string
	detector   string
	logLevel   string
	settingsDB string

	client *app.Client
	now    func() time.Time
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	rt := &runtime{now: time.Now}

	root := &cobra.Command{
		Use:           "orbitsafe",
		Short:         "Safety equipment detection client",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.open(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			rt.close()
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	flags := root.PersistentFlags()
	flags.StringVar(&rt.envFile, "env-file", ".env", "Environment file to load before reading configuration")
	flags.StringVar(&rt.apiURL, "api-url", "", "Record backend base URL (env ORBITSAFE_API_URL)")
	flags.StringVar(&rt.predictURL, "predict-url", "", "Inference endpoint base URL (env ORBITSAFE_PREDICT_URL)")
	flags.StringVar(&rt.detector, "detector", "", "Detector: http or rekognition (env DETECTOR)")
	flags.StringVar(&rt.logLevel, "log-level", "", "Log level: debug, info, warn, error (env LOG_LEVEL)")
	flags.StringVar(&rt.settingsDB, "settings-db", "", "Local settings copy (env SETTINGS_DB)")

	root.AddCommand(
		newSubmitCommand(rt),
		newHistoryCommand(rt),
		newAnalyticsCommand(rt),
		newRiskCommand(rt),
		newSettingsCommand(rt),
		newCaptureCommand(rt),
		newNotifyCommand(rt),
	)
	return root
}

// Execute runs the CLI and exits non-zero when the command failed.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (rt *runtime) open(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(rt.envFile); err != nil {
		return fmt.Errorf("load %s: %w", rt.envFile, err)
	}

	cfg := config.LoadClient()
	if rt.apiURL != "" {
		cfg.API.BaseURL = rt.apiURL
	}
	if rt.predictURL != "" {
		cfg.Detector.PredictURL = rt.predictURL
	}
	if rt.detector != "" {
		cfg.Detector.Kind = rt.detector
	}
	if rt.logLevel != "" {
		cfg.Logging.Level = rt.logLevel
	}
	if rt.settingsDB != "" {
		cfg.Settings.DBPath = rt.settingsDB
	}

	logger := logging.NewWithOutput(logging.ParseLevel(cfg.Logging.Level), cmd.ErrOrStderr())
	client, err := app.NewClient(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	rt.client = client
	return nil
}

func (rt *runtime) close() {
	if rt.client != nil {
		rt.client.Close()
		rt.client = nil
	}
}

// warn reports a degraded but usable result.
func warn(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.ErrOrStderr(), "Warning: "+format+"\n", args...)
}
