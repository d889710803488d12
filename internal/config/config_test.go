package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcbridge/mcbridge/internal/bus"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestLoadFileAndEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
providers:
  embedding:
    provider: openai
    dimensions: 1536
indexing:
  max_file_size: 2048
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MCP__PROVIDERS__EMBEDDING__PROVIDER", "null")
	t.Setenv("MCP__SERVER__TOOL_RATE_PER_MINUTE", "120")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// Env wins over file.
	if cfg.Providers.Embedding.Provider != "null" {
		t.Errorf("env overlay should win, got %q", cfg.Providers.Embedding.Provider)
	}
	// File wins over defaults.
	if cfg.Providers.Embedding.Dimensions != 1536 {
		t.Errorf("file value lost, got %d", cfg.Providers.Embedding.Dimensions)
	}
	if cfg.Indexing.MaxFileSize != 2048 {
		t.Errorf("file value lost, got %d", cfg.Indexing.MaxFileSize)
	}
	if cfg.Server.ToolRatePerM != 120 {
		t.Errorf("env int coercion failed, got %d", cfg.Server.ToolRatePerM)
	}
}

func TestLegacyPrefixIgnored(t *testing.T) {
	t.Setenv("MCB__SERVER__JWT_SECRET", "sekrit")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.JWTSecret != "" {
		t.Error("legacy env prefixes must not be recognised")
	}
}

func TestAuthRequiresJWTSecret(t *testing.T) {
	cfg := Default()
	cfg.Server.AuthEnabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("auth without jwt secret must fail validation")
	}

	cfg.Server.JWTSecret = "s"
	if err := cfg.Validate(); err != nil {
		t.Errorf("auth with jwt secret should validate: %v", err)
	}
}

func TestPostgresRequiresDSN(t *testing.T) {
	cfg := Default()
	cfg.Providers.VectorStore.Provider = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Error("postgres vector store without dsn must fail validation")
	}
}

func TestWatcherPublishesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	events := bus.New()
	defer events.Close()
	_, ch := events.Subscribe()

	w, err := NewWatcher(path, events)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	reloaded := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) { reloaded <- cfg })

	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected reloaded level debug, got %q", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload handler")
	}

	select {
	case env := <-ch:
		if _, ok := env.Event.(bus.ConfigReloaded); !ok {
			t.Errorf("expected ConfigReloaded, got %T", env.Event)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ConfigReloaded event")
	}
}
