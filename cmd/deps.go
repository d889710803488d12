package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mcbridge/mcbridge/internal/bus"
	"github.com/mcbridge/mcbridge/internal/chunking"
	"github.com/mcbridge/mcbridge/internal/config"
	"github.com/mcbridge/mcbridge/internal/contextsvc"
	"github.com/mcbridge/mcbridge/internal/db"
	"github.com/mcbridge/mcbridge/internal/index"
	"github.com/mcbridge/mcbridge/internal/memsvc"
	"github.com/mcbridge/mcbridge/internal/providers"
	"github.com/mcbridge/mcbridge/internal/search"
	"github.com/mcbridge/mcbridge/internal/session"
	"github.com/mcbridge/mcbridge/internal/tracing"
	"github.com/mcbridge/mcbridge/internal/vcs"
)

// deps is everything a command needs, wired once from config.
type deps struct {
	cfg       *config.Config
	store     *db.DB
	bus       *bus.Bus
	embedder  contextsvc.Embedder
	vectors   providers.VectorStore
	ctxsvc    *contextsvc.Service
	indexSvc  *index.Service
	searchSvc *search.Service
	memSvc    *memsvc.Service
	sessSvc   *session.Service
	collector *tracing.Collector
	vcsProv   vcs.Provider
	vcsReg    *vcs.Registry
}

func buildDeps(ctx context.Context, cfg *config.Config) (*deps, func(), error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil && cfg.Database.Path != ":memory:" {
		return nil, nil, fmt.Errorf("creating database directory: %w", err)
	}
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			slog.Warn("database close", "error", err)
		}
	}

	embedder, err := buildEmbedder(cfg.Providers.Embedding)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	vectors, err := providers.ResolveVectorStore(cfg.Providers.VectorStore)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	cache, err := providers.ResolveCache(cfg.Providers.Cache)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	vcsProv, err := vcs.Resolve(cfg.Providers.VCS)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	dims := cfg.Providers.Embedding.Dimensions
	b := bus.New()
	ctxsvc := contextsvc.New(embedder, vectors, cache, dims)
	chunker := chunking.New(cfg.Indexing.MaxChunkTokens)
	indexSvc := index.NewService(store, ctxsvc, chunker, index.NewTracker(), b, cfg.Indexing)
	searchSvc := search.NewService(ctxsvc, search.NewBM25Reranker())

	memSvc := memsvc.New(store, embedder, vectors, cfg.Memory.Collection)
	if err := memSvc.EnsureCollection(ctx, dims); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("preparing memory collection: %w", err)
	}

	registryPath := cfg.Providers.VCS.RegistryPath
	if registryPath == "" {
		registryPath = filepath.Join(filepath.Dir(cfg.Database.Path), "repos.json")
	}

	return &deps{
		cfg:       cfg,
		store:     store,
		bus:       b,
		embedder:  embedder,
		vectors:   vectors,
		ctxsvc:    ctxsvc,
		indexSvc:  indexSvc,
		searchSvc: searchSvc,
		memSvc:    memSvc,
		sessSvc:   session.New(store, b),
		collector: tracing.NewCollector(store),
		vcsProv:   vcsProv,
		vcsReg:    vcs.NewRegistry(registryPath),
	}, cleanup, nil
}

// buildEmbedder resolves the configured embedding provider. When the
// preferred list names more than one provider, each is resolved and the
// health-aware router fronts them.
func buildEmbedder(cfg config.EmbeddingConfig) (contextsvc.Embedder, error) {
	if len(cfg.Preferred) <= 1 {
		return providers.ResolveEmbedding(cfg)
	}
	provs := make([]providers.EmbeddingProvider, 0, len(cfg.Preferred))
	for _, name := range cfg.Preferred {
		c := cfg
		c.Provider = name
		p, err := providers.ResolveEmbedding(c)
		if err != nil {
			return nil, err
		}
		provs = append(provs, p)
	}
	return providers.NewEmbeddingRouter(provs, cfg.Preferred, providers.NewHealthMonitor()), nil
}
