package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcbridge/mcbridge/internal/config"
	"github.com/mcbridge/mcbridge/internal/mcpserver"
	"github.com/mcbridge/mcbridge/internal/syncer"
	"github.com/mcbridge/mcbridge/internal/tools"
	"github.com/mcbridge/mcbridge/internal/tracing/otelexport"
)

func serveCmd() *cobra.Command {
	var (
		root       string
		collection string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			setupLogging(cfg.Logging)
			return runServe(cmd.Context(), cfg, root, collection)
		},
	}
	cmd.Flags().StringVar(&root, "root", ".", "workspace root to watch when sync is enabled")
	cmd.Flags().StringVar(&collection, "collection", "workspace", "collection the watcher indexes into")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, root, collection string) error {
	d, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if path := resolveConfigPath(); path != "" {
		if _, err := os.Stat(path); err == nil {
			watcher, err := config.NewWatcher(path, d.bus)
			if err != nil {
				slog.Warn("config watcher unavailable", "error", err)
			} else {
				watcher.OnChange(func(next *config.Config) {
					setupLogging(next.Logging)
				})
				if err := watcher.Start(); err != nil {
					slog.Warn("config watcher failed to start", "error", err)
				} else {
					defer watcher.Stop()
				}
			}
		}
	}

	if cfg.Tracing.Enabled && cfg.Tracing.OTLPEndpoint != "" {
		exporter, err := otelexport.New(ctx, otelexport.Config{
			Endpoint:    cfg.Tracing.OTLPEndpoint,
			Insecure:    true,
			ServiceName: cfg.Tracing.ServiceName,
		})
		if err != nil {
			slog.Warn("otlp exporter unavailable, spans stay local", "error", err)
		} else {
			d.collector.SetExporter(exporter)
		}
	}
	d.collector.Start()
	defer d.collector.Stop()

	registry := tools.NewRegistry()
	registry.SetSpanSink(d.collector)
	if rl := tools.NewRateLimiter(cfg.Server.ToolRatePerM); rl != nil {
		registry.SetRateLimiter(rl)
	}
	registry.Register(mcpserver.NewIndexTool(d.indexSvc))
	registry.Register(mcpserver.NewSearchTool(d.searchSvc, d.memSvc))
	registry.Register(mcpserver.NewMemoryTool(d.memSvc))
	registry.Register(mcpserver.NewSessionTool(d.sessSvc))
	registry.Register(mcpserver.NewAgentTool(d.sessSvc))
	registry.Register(mcpserver.NewVCSTool(d.vcsProv, d.vcsReg, d.indexSvc))

	if cfg.Sync.Enabled {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("sync root %s is not a directory", root)
		}
		sync, err := syncer.New(d.indexSvc, d.bus, cfg.Sync, cfg.Indexing, root, collection)
		if err != nil {
			return fmt.Errorf("starting workspace watcher: %w", err)
		}
		if err := sync.Start(ctx); err != nil {
			return fmt.Errorf("starting workspace watcher: %w", err)
		}
		defer sync.Stop()
		slog.Info("workspace sync enabled", "root", root, "collection", collection)
	}

	srv, err := mcpserver.New(Version, registry)
	if err != nil {
		return err
	}
	slog.Info("serving MCP over stdio", "tools", registry.Count(), "version", Version)
	return mcpserver.Serve(srv)
}
