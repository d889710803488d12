package providers

import (
	"context"
	"sort"

	"github.com/mcbridge/mcbridge/internal/xerr"
)

// EmbeddingRouter selects among multiple embedding providers by health.
// Preferred providers win when not Unhealthy; otherwise the healthiest
// remaining candidate is chosen, name order breaking ties. Callers may
// exclude providers for the duration of one selection.
type EmbeddingRouter struct {
	providers map[string]EmbeddingProvider
	preferred []string
	monitor   *HealthMonitor
}

// NewEmbeddingRouter builds a router over the given providers. The
// preferred list is most-preferred first; names not in providers are
// ignored.
func NewEmbeddingRouter(provs []EmbeddingProvider, preferred []string, monitor *HealthMonitor) *EmbeddingRouter {
	byName := make(map[string]EmbeddingProvider, len(provs))
	for _, p := range provs {
		byName[p.Name()] = p
	}
	return &EmbeddingRouter{providers: byName, preferred: preferred, monitor: monitor}
}

// Monitor exposes the router's health monitor so callers can record
// outcomes of the calls they make on the selected provider.
func (r *EmbeddingRouter) Monitor() *HealthMonitor { return r.monitor }

// Select returns the provider to use, honouring exclusions. It fails with
// an infrastructure error when every candidate is Unhealthy or excluded.
func (r *EmbeddingRouter) Select(ctx context.Context, exclude map[string]bool) (EmbeddingProvider, error) {
	for _, name := range r.preferred {
		p, ok := r.providers[name]
		if !ok || exclude[name] {
			continue
		}
		if r.monitor.Status(name) != Unhealthy {
			return p, nil
		}
	}

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)

	var best EmbeddingProvider
	bestStatus := Unhealthy
	for _, name := range names {
		if exclude[name] {
			continue
		}
		status := r.monitor.Status(name)
		if status == Unhealthy {
			continue
		}
		if best == nil || status < bestStatus {
			best = r.providers[name]
			bestStatus = status
		}
	}
	if best == nil {
		return nil, xerr.New(xerr.Infrastructure, "no healthy embedding provider available")
	}
	return best, nil
}

// Embed selects a provider, calls it, and records the outcome with the
// health monitor. One failover attempt is made on error.
func (r *EmbeddingRouter) Embed(ctx context.Context, text string) (Embedding, error) {
	out, err := r.call(ctx, func(p EmbeddingProvider) (any, error) {
		return p.Embed(ctx, text)
	})
	if err != nil {
		return Embedding{}, err
	}
	return out.(Embedding), nil
}

// EmbedBatch is the batched counterpart of Embed.
func (r *EmbeddingRouter) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	out, err := r.call(ctx, func(p EmbeddingProvider) (any, error) {
		return p.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Embedding), nil
}

func (r *EmbeddingRouter) call(ctx context.Context, fn func(EmbeddingProvider) (any, error)) (any, error) {
	exclude := make(map[string]bool)
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		p, err := r.Select(ctx, exclude)
		if err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}
		out, err := fn(p)
		if err == nil {
			r.monitor.RecordSuccess(p.Name())
			return out, nil
		}
		r.monitor.RecordFailure(p.Name())
		exclude[p.Name()] = true
		lastErr = err
	}
	return nil, lastErr
}
