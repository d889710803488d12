package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcbridge/mcbridge/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and manage configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configPathCmd())
	cmd.AddCommand(configValidateCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration (secrets redacted)",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
				os.Exit(1)
			}

			redacted := redactConfig(cfg)
			data, _ := json.MarshalIndent(redacted, "", "  ")
			fmt.Println(string(data))
		},
	}
}

func configPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Run: func(cmd *cobra.Command, args []string) {
			if _, err := loadConfig(); err != nil {
				fmt.Fprintf(os.Stderr, "Invalid: %s\n", err)
				os.Exit(1)
			}
			fmt.Println("Configuration is valid.")
		},
	}
}

// redactConfig returns a copy with secrets masked for display.
func redactConfig(cfg *config.Config) *config.Config {
	out := *cfg
	out.Server.JWTSecret = redactSecret(cfg.Server.JWTSecret)
	out.Providers.Embedding.APIKey = redactSecret(cfg.Providers.Embedding.APIKey)
	out.Providers.Cache.Password = redactSecret(cfg.Providers.Cache.Password)
	out.Providers.VectorStore.DSN = redactDSN(cfg.Providers.VectorStore.DSN)
	return &out
}

func redactSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", 4) + s[len(s)-4:]
}

// redactDSN hides the password portion of a connection string.
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	at := strings.LastIndex(dsn, "@")
	colon := strings.Index(dsn, "://")
	if at < 0 || colon < 0 {
		return "****"
	}
	return dsn[:colon+3] + "****" + dsn[at:]
}
