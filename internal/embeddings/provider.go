package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/storyhaven/hub/internal/observability"
)

// ProviderParams configures Provider. Metrics and Limiter may be nil.
type ProviderParams struct {
	Runtime       ModelRuntime
	PrimaryModel  string
	FallbackModel string

	// CacheDir is the directory the runtime stores model weights in; the
	// provider creates it before the first load.
	CacheDir string

	// SerializeInference forces inference calls to run one at a time. Set it
	// when the runtime is not safe for concurrent use; correctness, not a
	// performance knob.
	SerializeInference bool

	// Limiter caps requests against the runtime. Nil means unlimited.
	Limiter *rate.Limiter

	Metrics observability.EmbeddingMetrics
	Logger  *slog.Logger
}

// Provider implements Client on top of a ModelRuntime. The first Embed call
// loads the primary model; if that fails the fallback model is tried; if both
// fail the provider disables itself permanently and every later call returns
// ErrProviderDisabled without a reload attempt. A single failed inference
// call does not disable the provider.
//
// One Provider instance is shared process-wide and is safe for concurrent use.
type Provider struct {
	runtime            ModelRuntime
	primary            string
	fallback           string
	cacheDir           string
	serializeInference bool
	limiter            *rate.Limiter
	metrics            observability.EmbeddingMetrics
	logger             *slog.Logger

	mu       sync.Mutex
	loaded   bool
	disabled bool
	model    string // name of the model that actually loaded
	dim      int    // fixed per loaded model
}

var _ Client = (*Provider)(nil)

// NewProvider creates a Provider. The model is loaded lazily on first use.
func NewProvider(p ProviderParams) *Provider {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		runtime:            p.Runtime,
		primary:            p.PrimaryModel,
		fallback:           p.FallbackModel,
		cacheDir:           p.CacheDir,
		serializeInference: p.SerializeInference,
		limiter:            p.Limiter,
		metrics:            p.Metrics,
		logger:             logger,
	}
}

// Embed generates an embedding vector for text. See Client for the contract.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		if p.metrics != nil {
			p.metrics.RecordProviderError(ctx, "empty_text")
		}

		return nil, ErrEmptyText
	}

	model, err := p.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	vec, err := p.infer(ctx, model, text)
	if err != nil {
		var runtimeErr *RuntimeError
		if errors.As(err, &runtimeErr) {
			// Isolated inference failure: this call fails, provider stays enabled.
			if p.metrics != nil {
				p.metrics.RecordProviderError(ctx, "inference_failed")
			}

			p.logger.Warn("embedding inference failed", "model", model, "error", err)

			return nil, fmt.Errorf("embed: %w", err)
		}

		// Not a known runtime failure; propagate unchanged rather than mask it.
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dim != 0 && len(vec) != p.dim {
		if p.metrics != nil {
			p.metrics.RecordProviderError(ctx, "inference_failed")
		}

		return nil, fmt.Errorf("embed: model %s returned %d dimensions, expected %d", model, len(vec), p.dim)
	}

	return vec, nil
}

// Dimension returns the loaded model's output dimensionality, or 0 before the first load.
func (p *Provider) Dimension() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.dim
}

// infer runs one inference call, serialized behind the state mutex when the
// runtime is not safe for concurrent use.
func (p *Provider) infer(ctx context.Context, model, text string) ([]float32, error) {
	if p.serializeInference {
		p.mu.Lock()
		defer p.mu.Unlock()
	}

	return p.runtime.Embed(ctx, model, text)
}

// ensureLoaded loads the primary model (then the fallback) on first use and
// returns the name of the loaded model. Holding mu across the load serializes
// concurrent first calls so the model loads exactly once.
func (p *Provider) ensureLoaded(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disabled {
		return "", ErrProviderDisabled
	}

	if p.loaded {
		return p.model, nil
	}

	if p.cacheDir != "" {
		if err := os.MkdirAll(p.cacheDir, 0o755); err != nil {
			p.disable(ctx, fmt.Errorf("create model cache dir %s: %w", p.cacheDir, err))

			return "", ErrProviderDisabled
		}
	}

	p.logger.Info("loading embedding model", "model", p.primary, "cache_dir", p.cacheDir)

	dim, err := p.runtime.LoadModel(ctx, p.primary)
	if err == nil {
		p.loaded, p.model, p.dim = true, p.primary, dim
		p.logger.Info("embedding model loaded", "model", p.primary, "dimensions", dim)

		return p.model, nil
	}

	if p.metrics != nil {
		p.metrics.RecordProviderError(ctx, "load_failed")
	}

	p.logger.Warn("primary embedding model failed to load, trying fallback",
		"model", p.primary,
		"fallback", p.fallback,
		"error", err,
	)

	dim, err = p.runtime.LoadModel(ctx, p.fallback)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordProviderError(ctx, "load_failed")
		}

		p.disable(ctx, err)

		return "", ErrProviderDisabled
	}

	p.loaded, p.model, p.dim = true, p.fallback, dim
	p.logger.Info("embedding model loaded", "model", p.fallback, "dimensions", dim)

	return p.model, nil
}

// disable puts the provider into its permanent degraded state. Logged here,
// once, and never again on subsequent calls. Caller holds mu.
func (p *Provider) disable(ctx context.Context, cause error) {
	p.disabled = true

	if p.metrics != nil {
		p.metrics.RecordEmbeddingOutcome(ctx, "disabled")
	}

	p.logger.Error("embedding provider disabled: no model could be loaded; all embed calls will fail until restart",
		"primary", p.primary,
		"fallback", p.fallback,
		"error", cause,
	)
}
