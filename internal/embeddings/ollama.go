package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ModelRuntime loads named embedding models and runs inference against them.
// Implemented by OllamaRuntime in production and by fakes in tests.
type ModelRuntime interface {
	// LoadModel makes the named model available locally (downloading weights
	// on first use) and returns its output vector dimensionality.
	LoadModel(ctx context.Context, name string) (int, error)

	// Embed runs inference for text against the named, already-loaded model.
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// RuntimeError is a failure reported by the embedding runtime: a transport
// error, a non-2xx API response, or a malformed reply. The provider converts
// RuntimeErrors into degraded results; anything else propagates unchanged.
type RuntimeError struct {
	Op    string // "pull", "embed"
	Model string
	Err   error
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	return fmt.Sprintf("embedding runtime: %s %s: %v", e.Op, e.Model, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error { return e.Err }

// OllamaOptions configures the Ollama runtime client.
type OllamaOptions struct {
	// BaseURL is the Ollama server address (default: "http://localhost:11434")
	BaseURL string
	// RetryMax is the maximum number of retries (default: 2)
	RetryMax int
	// Timeout is the HTTP client timeout. Model pulls stream large weight
	// files, so this defaults generously (default: 5 minutes).
	Timeout time.Duration
}

// OllamaRuntime talks to a local Ollama server. Pulled model weights are
// cached on disk by the server, so a pull downloads only on first load.
// The HTTP client is safe for concurrent use.
type OllamaRuntime struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

var _ ModelRuntime = (*OllamaRuntime)(nil)

// NewOllamaRuntime creates an Ollama runtime client with default settings.
func NewOllamaRuntime(baseURL string) *OllamaRuntime {
	return NewOllamaRuntimeWithOptions(OllamaOptions{BaseURL: baseURL})
}

// NewOllamaRuntimeWithOptions creates an Ollama runtime client with custom options.
func NewOllamaRuntimeWithOptions(opts OllamaOptions) *OllamaRuntime {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:11434"
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")

	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.RetryMax == 0 {
		opts.RetryMax = 2
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = nil // disable retryablehttp's default logger; we log at provider layer

	return &OllamaRuntime{
		baseURL:    opts.BaseURL,
		httpClient: retryClient,
	}
}

type pullRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

type pullResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// LoadModel pulls the named model (a no-op beyond verification when the
// weights are already in the server's model directory) and probes it with a
// single embed call to learn the output dimensionality.
func (r *OllamaRuntime) LoadModel(ctx context.Context, name string) (int, error) {
	var pulled pullResponse
	if err := r.post(ctx, "/api/pull", pullRequest{Model: name, Stream: false}, &pulled); err != nil {
		return 0, &RuntimeError{Op: "pull", Model: name, Err: err}
	}

	if pulled.Error != "" {
		return 0, &RuntimeError{Op: "pull", Model: name, Err: fmt.Errorf("%s", pulled.Error)}
	}

	slog.Debug("model pulled", "model", name, "status", pulled.Status)

	// Probe inference fixes the vector dimensionality for this model.
	vec, err := r.Embed(ctx, name, "dimensionality probe")
	if err != nil {
		return 0, err
	}

	return len(vec), nil
}

// Embed runs a single-text embedding request against the named model.
func (r *OllamaRuntime) Embed(ctx context.Context, model, text string) ([]float32, error) {
	var resp embedResponse
	if err := r.post(ctx, "/api/embed", embedRequest{Model: model, Input: []string{text}}, &resp); err != nil {
		return nil, &RuntimeError{Op: "embed", Model: model, Err: err}
	}

	if resp.Error != "" {
		return nil, &RuntimeError{Op: "embed", Model: model, Err: fmt.Errorf("%s", resp.Error)}
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, &RuntimeError{Op: "embed", Model: model, Err: fmt.Errorf("no embedding returned")}
	}

	return resp.Embeddings[0], nil
}

// post sends a JSON request and decodes a JSON response into out.
func (r *OllamaRuntime) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("Failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return fmt.Errorf("status %d (body unreadable: %v)", resp.StatusCode, readErr)
		}

		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
