package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mcbridge/mcbridge/internal/config"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

const (
	openaiDefaultBase    = "https://api.openai.com/v1"
	openaiDefaultTimeout = 30 * time.Second

	retryAttempts = 3
	retryBase     = 500 * time.Millisecond
	retryCap      = 5 * time.Second
)

func init() {
	RegisterEmbedding("openai", func(cfg config.EmbeddingConfig) (EmbeddingProvider, error) {
		if cfg.APIKey == "" {
			return nil, xerr.New(xerr.Configuration, "openai embedding provider requires an api key")
		}
		base := cfg.APIBase
		if base == "" {
			base = openaiDefaultBase
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = openaiDefaultTimeout
		}
		dims := cfg.Dimensions
		if dims <= 0 {
			dims = 1536
		}
		return &openaiEmbedding{
			apiKey: cfg.APIKey,
			base:   base,
			model:  cfg.Model,
			dims:   dims,
			client: &http.Client{Timeout: timeout},
		}, nil
	})
}

// openaiEmbedding talks to an OpenAI-compatible /embeddings endpoint.
type openaiEmbedding struct {
	apiKey string
	base   string
	model  string
	dims   int
	client *http.Client

	consecutiveFailures atomic.Int64
}

func (o *openaiEmbedding) Name() string    { return "openai" }
func (o *openaiEmbedding) Dimensions() int { return o.dims }

func (o *openaiEmbedding) Embed(ctx context.Context, text string) (Embedding, error) {
	batch, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return Embedding{}, err
	}
	return batch[0], nil
}

type openaiEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (o *openaiEmbedding) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(openaiEmbedRequest{Model: o.model, Input: texts, Dimensions: o.dims})
	if err != nil {
		return nil, xerr.Wrap(xerr.Internal, err, "encode embedding request")
	}

	var resp openaiEmbedResponse
	if err := o.doWithRetry(ctx, body, &resp); err != nil {
		o.consecutiveFailures.Add(1)
		return nil, err
	}
	o.consecutiveFailures.Store(0)

	if len(resp.Data) != len(texts) {
		return nil, xerr.New(xerr.Embedding, "embedding response has %d items for %d inputs", len(resp.Data), len(texts))
	}

	out := make([]Embedding, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return nil, xerr.New(xerr.Embedding, "embedding response index %d out of range", item.Index)
		}
		out[item.Index] = Embedding{Vector: item.Embedding, Model: o.model, Dimensions: len(item.Embedding)}
	}
	return out, nil
}

func (o *openaiEmbedding) doWithRetry(ctx context.Context, body []byte, out *openaiEmbedResponse) error {
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			backoff := retryBase << (attempt - 1)
			if backoff > retryCap {
				backoff = retryCap
			}
			select {
			case <-ctx.Done():
				return xerr.Wrap(xerr.Infrastructure, ctx.Err(), "embedding request cancelled")
			case <-time.After(backoff):
			}
		}

		err := o.doOnce(ctx, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		// Invalid requests will not improve on retry.
		if xerr.IsKind(err, xerr.InvalidArgument) {
			return err
		}
	}
	return lastErr
}

func (o *openaiEmbedding) doOnce(ctx context.Context, body []byte, out *openaiEmbedResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return xerr.Wrap(xerr.Internal, err, "build embedding request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return xerr.Wrap(xerr.Infrastructure, err, "embedding request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return xerr.Wrap(xerr.Infrastructure, err, "read embedding response")
	}

	if resp.StatusCode != http.StatusOK {
		var parsed openaiEmbedResponse
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if json.Unmarshal(data, &parsed) == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return xerr.New(xerr.InvalidArgument, "embedding API rejected request: %s", msg)
		}
		return xerr.New(xerr.Embedding, "embedding API error: %s", msg)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return xerr.Wrap(xerr.Embedding, err, "decode embedding response")
	}
	return nil
}

func (o *openaiEmbedding) HealthCheck(context.Context) HealthStatus {
	n := o.consecutiveFailures.Load()
	switch {
	case n == 0:
		return Healthy
	case n < failureThreshold:
		return Degraded
	default:
		return Unhealthy
	}
}
