// Package cmd implements the mcbridge CLI.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mcbridge/mcbridge/internal/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

var configFlag string

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcbridge",
		Short: "Code intelligence backend for coding agents",
		Long: "mcbridge indexes codebases for hybrid semantic search, keeps a persistent\n" +
			"observation memory, and tracks agent sessions. It serves these to coding\n" +
			"agents as MCP tools over stdio.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file path")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(indexCmd())
	cmd.AddCommand(searchCmd())
	cmd.AddCommand(configCmd())
	cmd.AddCommand(doctorCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath honours --config, then MCBRIDGE_CONFIG, then the default
// location under the home directory.
func resolveConfigPath() string {
	if configFlag != "" {
		return configFlag
	}
	if env := os.Getenv("MCBRIDGE_CONFIG"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "mcbridge.yaml"
	}
	return filepath.Join(home, ".mcbridge", "config.yaml")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// setupLogging configures the global slog logger. Output goes to stderr so
// the MCP stdio transport keeps stdout to itself.
func setupLogging(cfg config.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
