// Package config loads and watches the mcbridge configuration.
//
// Configuration is a YAML file overlaid with environment variables using
// the MCP__ prefix and __ as section separator, e.g.
// MCP__PROVIDERS__EMBEDDING__PROVIDER=openai. Legacy prefixes are not
// recognised.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the only recognised environment variable prefix.
const EnvPrefix = "MCP__"

// Config is the merged configuration tree.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Providers ProvidersConfig `yaml:"providers"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Memory    MemoryConfig    `yaml:"memory"`
	Sync      SyncConfig      `yaml:"sync"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the tool-call surface.
type ServerConfig struct {
	AuthEnabled  bool   `yaml:"auth_enabled"`
	JWTSecret    string `yaml:"jwt_secret"`
	ToolRatePerM int    `yaml:"tool_rate_per_minute"` // 0 disables rate limiting
}

// DatabaseConfig locates the relational store.
type DatabaseConfig struct {
	Path string `yaml:"path"` // sqlite file; ":memory:" for tests
}

// ProvidersConfig selects the provider per kind.
type ProvidersConfig struct {
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Cache       CacheConfig       `yaml:"cache"`
	VCS         VCSConfig         `yaml:"vcs"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"` // "openai", "null"
	APIKey     string        `yaml:"api_key"`
	APIBase    string        `yaml:"api_base"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
	// Preferred providers for health-aware routing, most preferred first.
	Preferred []string `yaml:"preferred"`
}

// VectorStoreConfig configures the vector store provider.
type VectorStoreConfig struct {
	Provider string `yaml:"provider"` // "memory", "postgres", "null"
	DSN      string `yaml:"dsn"`      // postgres only
}

// CacheConfig configures the cache provider.
type CacheConfig struct {
	Provider      string        `yaml:"provider"` // "memory", "redis", "null"
	Addr          string        `yaml:"addr"`     // redis only
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	MaxEntries    int           `yaml:"max_entries"`
	MaxValueBytes int           `yaml:"max_value_bytes"`
	DefaultTTL    time.Duration `yaml:"default_ttl"`
}

// VCSConfig configures the VCS provider.
type VCSConfig struct {
	Provider     string `yaml:"provider"` // "git", "null"
	RegistryPath string `yaml:"registry_path"`
}

// IndexingConfig controls discovery and chunking.
type IndexingConfig struct {
	SupportedExtensions []string `yaml:"supported_extensions"`
	IgnorePatterns      []string `yaml:"ignore_patterns"`
	MaxFileSize         int64    `yaml:"max_file_size"`
	FollowSymlinks      bool     `yaml:"follow_symlinks"`
	MaxChunkTokens      int      `yaml:"max_chunk_tokens"`
}

// MemoryConfig scopes the observation memory.
type MemoryConfig struct {
	ProjectID  string `yaml:"project_id"`
	Collection string `yaml:"collection"`
}

// SyncConfig controls the workspace watcher.
type SyncConfig struct {
	Enabled    bool          `yaml:"enabled"`
	DebounceMs int           `yaml:"debounce_ms"`
	Interval   time.Duration `yaml:"interval"`
}

// TracingConfig controls tool-call span export.
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: defaultDBPath()},
		Providers: ProvidersConfig{
			Embedding: EmbeddingConfig{
				Provider:   "null",
				Model:      "text-embedding-3-small",
				Dimensions: 384,
				Timeout:    30 * time.Second,
			},
			VectorStore: VectorStoreConfig{Provider: "memory"},
			Cache: CacheConfig{
				Provider:      "memory",
				MaxEntries:    4096,
				MaxValueBytes: 1 << 20,
				DefaultTTL:    time.Hour,
			},
			VCS: VCSConfig{Provider: "git"},
		},
		Indexing: IndexingConfig{
			SupportedExtensions: []string{
				"go", "rs", "py", "js", "ts", "tsx", "jsx", "java", "kt",
				"c", "h", "cpp", "hpp", "cs", "rb", "php", "swift", "scala",
				"sh", "sql", "proto", "md", "yaml", "yml", "toml", "json",
			},
			IgnorePatterns: []string{
				"node_modules/", "vendor/", "target/", "dist/", "build/",
				".git/", "*.min.js", "*.lock",
			},
			MaxFileSize:    1 << 20,
			MaxChunkTokens: 512,
		},
		Memory: MemoryConfig{ProjectID: "default", Collection: "memory"},
		Sync:   SyncConfig{DebounceMs: 500, Interval: 30 * time.Second},
		Tracing: TracingConfig{
			ServiceName: "mcbridge",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the config file at path (optional), overlays MCP__ environment
// variables, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, os.Environ()); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.AuthEnabled && strings.TrimSpace(c.Server.JWTSecret) == "" {
		return fmt.Errorf("config: server.jwt_secret is required when auth is enabled")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("config: database.path cannot be empty")
	}
	if c.Providers.Embedding.Dimensions <= 0 {
		return fmt.Errorf("config: providers.embedding.dimensions must be positive")
	}
	if c.Providers.VectorStore.Provider == "postgres" && c.Providers.VectorStore.DSN == "" {
		return fmt.Errorf("config: providers.vector_store.dsn is required for the postgres provider")
	}
	if c.Providers.Cache.Provider == "redis" && c.Providers.Cache.Addr == "" {
		return fmt.Errorf("config: providers.cache.addr is required for the redis provider")
	}
	return nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "mcbridge.db"
	}
	return home + "/.mcbridge/mcbridge.db"
}
