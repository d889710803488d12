package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcbridge/mcbridge/internal/config"
	"github.com/mcbridge/mcbridge/internal/db"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("mcbridge doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Providers:")
	fmt.Printf("    %-14s %s\n", "Embedding:", describeEmbedding(cfg.Providers.Embedding))
	fmt.Printf("    %-14s %s\n", "Vector store:", cfg.Providers.VectorStore.Provider)
	fmt.Printf("    %-14s %s\n", "Cache:", cfg.Providers.Cache.Provider)
	fmt.Printf("    %-14s %s\n", "VCS:", orDefault(cfg.Providers.VCS.Provider, "git"))

	fmt.Println()
	fmt.Printf("  Database: %s", cfg.Database.Path)
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		fmt.Printf(" (ERROR: %s)\n", err)
	} else {
		store.Close()
		fmt.Println(" (OK)")
	}

	fmt.Println()
	fmt.Println("  External Tools:")
	checkBinary("git")

	fmt.Println()
	fmt.Printf("  Sync:     %s\n", enabledStr(cfg.Sync.Enabled))
	fmt.Printf("  Tracing:  %s\n", enabledStr(cfg.Tracing.Enabled))
	fmt.Printf("  Auth:     %s\n", enabledStr(cfg.Server.AuthEnabled))

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func describeEmbedding(cfg config.EmbeddingConfig) string {
	desc := fmt.Sprintf("%s (%s, %d dims)", cfg.Provider, cfg.Model, cfg.Dimensions)
	if cfg.APIKey != "" {
		key := cfg.APIKey
		if len(key) > 8 {
			key = key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
		}
		desc += ", key " + key
	}
	return desc
}

func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-14s NOT FOUND\n", name+":")
	} else {
		fmt.Printf("    %-14s %s\n", name+":", path)
	}
}

func enabledStr(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
