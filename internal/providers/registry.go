package providers

import (
	"sort"
	"sync"

	"github.com/mcbridge/mcbridge/internal/config"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

// Factories resolve a configuration into a live provider. Registration
// happens from init functions in this package; there is no runtime
// registration surface.

type EmbeddingFactory func(cfg config.EmbeddingConfig) (EmbeddingProvider, error)
type VectorStoreFactory func(cfg config.VectorStoreConfig) (VectorStore, error)
type CacheFactory func(cfg config.CacheConfig) (Cache, error)

var (
	regMu              sync.RWMutex
	embeddingFactories = map[string]EmbeddingFactory{}
	vectorFactories    = map[string]VectorStoreFactory{}
	cacheFactories     = map[string]CacheFactory{}
)

// RegisterEmbedding adds an embedding provider factory under a canonical
// name. Duplicate names panic at startup.
func RegisterEmbedding(name string, f EmbeddingFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := embeddingFactories[name]; dup {
		panic("providers: duplicate embedding provider " + name)
	}
	embeddingFactories[name] = f
}

// RegisterVectorStore adds a vector store factory under a canonical name.
func RegisterVectorStore(name string, f VectorStoreFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := vectorFactories[name]; dup {
		panic("providers: duplicate vector store provider " + name)
	}
	vectorFactories[name] = f
}

// RegisterCache adds a cache factory under a canonical name.
func RegisterCache(name string, f CacheFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := cacheFactories[name]; dup {
		panic("providers: duplicate cache provider " + name)
	}
	cacheFactories[name] = f
}

// ListEmbeddings returns registered embedding provider names, sorted.
func ListEmbeddings() []string { return listNames(embeddingFactories) }

// ListVectorStores returns registered vector store names, sorted.
func ListVectorStores() []string { return listNames(vectorFactories) }

// ListCaches returns registered cache provider names, sorted.
func ListCaches() []string { return listNames(cacheFactories) }

// ResolveEmbedding builds the embedding provider named in cfg. Unknown
// names fail with a configuration error listing the known names.
func ResolveEmbedding(cfg config.EmbeddingConfig) (EmbeddingProvider, error) {
	regMu.RLock()
	f, ok := embeddingFactories[cfg.Provider]
	regMu.RUnlock()
	if !ok {
		return nil, xerr.New(xerr.Configuration,
			"unknown embedding provider %q, known: %v", cfg.Provider, ListEmbeddings())
	}
	return f(cfg)
}

// ResolveVectorStore builds the vector store named in cfg.
func ResolveVectorStore(cfg config.VectorStoreConfig) (VectorStore, error) {
	regMu.RLock()
	f, ok := vectorFactories[cfg.Provider]
	regMu.RUnlock()
	if !ok {
		return nil, xerr.New(xerr.Configuration,
			"unknown vector store provider %q, known: %v", cfg.Provider, ListVectorStores())
	}
	return f(cfg)
}

// ResolveCache builds the cache provider named in cfg.
func ResolveCache(cfg config.CacheConfig) (Cache, error) {
	regMu.RLock()
	f, ok := cacheFactories[cfg.Provider]
	regMu.RUnlock()
	if !ok {
		return nil, xerr.New(xerr.Configuration,
			"unknown cache provider %q, known: %v", cfg.Provider, ListCaches())
	}
	return f(cfg)
}

func listNames[F any](m map[string]F) []string {
	regMu.RLock()
	defer regMu.RUnlock()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
