package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/signalherd/signalherd/internal/application"
	httpmetrics "github.com/signalherd/signalherd/internal/interfaces/http"
)

const (
	appName = "signalherd"
	version = "v0.4.0"
)

var (
	flagConfig   string
	flagLogLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Copy-trading consensus pipeline: episodes, skill scores, gated signals",
		Version: version,
		Long: `signalherd reconstructs position episodes from tracked-account fills,
ranks accounts by a stability-weighted skill score, and emits a trade
signal only when a correlation-adjusted supermajority of ranked traders
agrees within a volatility-scaled window.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(flagLogLevel)
		},
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to yaml config (defaults used when empty)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (trace|debug|info|warn|error)")

	rootCmd.AddCommand(newEpisodesCmd())
	rootCmd.AddCommand(newScoreCmd())
	rootCmd.AddCommand(newConsensusCmd())
	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging configures zerolog: human console output on a TTY,
// structured JSON otherwise.
func setupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	httpmetrics.InitializeMetrics()
	return nil
}

// loadConfig returns defaults when no --config was given.
func loadConfig() (application.Config, error) {
	if flagConfig == "" {
		return application.Default(), nil
	}
	return application.Load(flagConfig)
}
