// Package cmd holds the devkb command line.
package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/blogem/devkb/config"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "devkb",
	Short: "devkb is a developer knowledge base",
	Long: `devkb serves the developer knowledge base site and its API:
local and OAuth login, sessions, bearer tokens and an audited admin API.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file read before the environment")
}

// loadConfig reads configuration and builds the process logger
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newLogger logs JSON in production and text elsewhere
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
