// Package cli implements the picsart command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/me/creativeapis/internal/config"
	"github.com/me/creativeapis/internal/logging"
	"github.com/me/creativeapis/internal/store"
	"github.com/me/creativeapis/pkg/picsart"
	"github.com/spf13/cobra"
)

var (
	flagConfig    string
	flagAPIKey    string
	flagImageURL  string
	flagGenAIURL  string
	flagTimeout   time.Duration
	flagRetries   int
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string
	flagHistory   string
	flagNoHistory bool

	cfg     config.CLIConfig
	logger  *slog.Logger
	client  *picsart.Client
	history store.Store
)

// NewRootCmd creates the root cobra command for the picsart CLI.
func NewRootCmd() *cobra.Command {
	client, history = nil, nil

	root := &cobra.Command{
		Use:   "picsart",
		Short: "Picsart Creative APIs from the command line",
		Long:  "picsart calls the Picsart Image and GenAI APIs, saves results locally or to S3 and keeps a history of calls.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default ~/.picsart/config.yaml or PICSART_CONFIG env)")
	pf.StringVar(&flagAPIKey, "api-key", "", "Picsart API key (or PICSART_API_KEY env)")
	pf.StringVar(&flagImageURL, "image-url", "", "Image API base URL")
	pf.StringVar(&flagGenAIURL, "genai-url", "", "GenAI API base URL")
	pf.DurationVar(&flagTimeout, "timeout", 0, "Per-request timeout")
	pf.IntVar(&flagRetries, "retries", 0, "Retry server and transport failures this many times")
	pf.BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", "", "Log format (text, json)")
	pf.StringVar(&flagHistory, "history", "", "History database (default ~/.picsart/history.db)")
	pf.BoolVar(&flagNoHistory, "no-history", false, "Do not record calls")

	root.AddCommand(
		newLoginCmd(),
		newBalanceCmd(),
		newUploadCmd(),
		newRemoveBgCmd(),
		newEffectCmd(),
		newEffectsCmd(),
		newPreviewsCmd(),
		newUpscaleCmd(),
		newUltraUpscaleCmd(),
		newUltraEnhanceCmd(),
		newEnhanceFaceCmd(),
		newAdjustCmd(),
		newTextureCmd(),
		newSurfaceMapCmd(),
		newText2ImageCmd(),
		newBatchCmd(),
		newHistoryCmd(),
	)

	return root
}

// configPath returns the config file selected by flag or environment.
func configPath() (string, error) {
	if flagConfig != "" {
		return flagConfig, nil
	}
	return config.DefaultPath()
}

func setup(cmd *cobra.Command) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	cfg, err = config.Load(path)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("api-key") {
		cfg.APIKey = flagAPIKey
	}
	if flagImageURL != "" {
		cfg.ImageBaseURL = flagImageURL
	}
	if flagGenAIURL != "" {
		cfg.GenAIBaseURL = flagGenAIURL
	}
	if f.Changed("timeout") {
		cfg.Timeout = flagTimeout
	}
	if f.Changed("retries") {
		cfg.Retries = flagRetries
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagDebug {
		cfg.LogLevel = "debug"
	}
	if flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	if flagHistory != "" {
		cfg.HistoryPath = flagHistory
	}

	logger = logging.NewLoggerWithWriter(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
	return nil
}

// Execute runs root and then releases the API client and history database,
// whether or not the command failed.
func Execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	return errors.Join(err, teardown())
}

func teardown() error {
	var errs []error
	if client != nil {
		errs = append(errs, client.Close())
		client = nil
	}
	if history != nil {
		errs = append(errs, history.Close())
		history = nil
	}
	return errors.Join(errs...)
}

// apiClient returns the SDK client, creating it on first use.
func apiClient() (*picsart.Client, error) {
	if client != nil {
		return client, nil
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key: run 'picsart login' or set %s", config.EnvAPIKey)
	}
	c, err := picsart.NewClient(cfg.ClientConfig(), logger)
	if err != nil {
		return nil, err
	}
	client = c
	return client, nil
}

// historyStore opens the history database on first use. It returns nil
// when history is disabled.
func historyStore(ctx context.Context) (store.Store, error) {
	if flagNoHistory {
		return nil, nil
	}
	if history != nil {
		return history, nil
	}
	path, err := cfg.HistoryDBPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	history = st
	return history, nil
}
