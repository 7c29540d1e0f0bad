package embeddings

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuntime struct {
	loadFunc  func(ctx context.Context, name string) (int, error)
	embedFunc func(ctx context.Context, model, text string) ([]float32, error)

	loadCalls  []string
	embedCalls int
}

func (f *fakeRuntime) LoadModel(ctx context.Context, name string) (int, error) {
	f.loadCalls = append(f.loadCalls, name)
	if f.loadFunc != nil {
		return f.loadFunc(ctx, name)
	}

	return 3, nil
}

func (f *fakeRuntime) Embed(ctx context.Context, model, text string) ([]float32, error) {
	f.embedCalls++
	if f.embedFunc != nil {
		return f.embedFunc(ctx, model, text)
	}

	return []float32{0.1, 0.2, 0.3}, nil
}

func newTestProvider(t *testing.T, rt ModelRuntime) *Provider {
	t.Helper()

	return NewProvider(ProviderParams{
		Runtime:       rt,
		PrimaryModel:  "primary-model",
		FallbackModel: "fallback-model",
		CacheDir:      filepath.Join(t.TempDir(), "ai_models"),
	})
}

func TestProvider_Embed(t *testing.T) {
	t.Run("empty text returns ErrEmptyText without touching the runtime", func(t *testing.T) {
		rt := &fakeRuntime{}
		p := newTestProvider(t, rt)

		for _, text := range []string{"", "   ", "\n\t"} {
			vec, err := p.Embed(context.Background(), text)
			assert.Nil(t, vec)
			assert.ErrorIs(t, err, ErrEmptyText)
		}

		assert.Empty(t, rt.loadCalls)
		assert.Zero(t, rt.embedCalls)
	})

	t.Run("loads primary model once and reuses it", func(t *testing.T) {
		rt := &fakeRuntime{}
		p := newTestProvider(t, rt)

		vec, err := p.Embed(context.Background(), "first call")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)

		_, err = p.Embed(context.Background(), "second call")
		require.NoError(t, err)

		assert.Equal(t, []string{"primary-model"}, rt.loadCalls)
		assert.Equal(t, 3, p.Dimension())
	})

	t.Run("falls back to the second model when primary fails to load", func(t *testing.T) {
		rt := &fakeRuntime{
			loadFunc: func(_ context.Context, name string) (int, error) {
				if name == "primary-model" {
					return 0, &RuntimeError{Op: "pull", Model: name, Err: errors.New("connection refused")}
				}

				return 5, nil
			},
			embedFunc: func(_ context.Context, model, _ string) ([]float32, error) {
				assert.Equal(t, "fallback-model", model)

				return []float32{1, 2, 3, 4, 5}, nil
			},
		}
		p := newTestProvider(t, rt)

		vec, err := p.Embed(context.Background(), "some text")
		require.NoError(t, err)
		assert.Len(t, vec, 5)
		assert.Equal(t, []string{"primary-model", "fallback-model"}, rt.loadCalls)
		assert.Equal(t, 5, p.Dimension())
	})

	t.Run("disables permanently when both models fail to load", func(t *testing.T) {
		rt := &fakeRuntime{
			loadFunc: func(_ context.Context, name string) (int, error) {
				return 0, &RuntimeError{Op: "pull", Model: name, Err: errors.New("no such model")}
			},
		}
		p := newTestProvider(t, rt)

		_, err := p.Embed(context.Background(), "text")
		assert.ErrorIs(t, err, ErrProviderDisabled)
		assert.Equal(t, []string{"primary-model", "fallback-model"}, rt.loadCalls)

		// Subsequent calls fail fast without reload attempts.
		_, err = p.Embed(context.Background(), "more text")
		assert.ErrorIs(t, err, ErrProviderDisabled)
		assert.Equal(t, []string{"primary-model", "fallback-model"}, rt.loadCalls)
		assert.Zero(t, rt.embedCalls)
	})

	t.Run("isolated inference failure does not disable the provider", func(t *testing.T) {
		failNext := true
		rt := &fakeRuntime{
			embedFunc: func(_ context.Context, model, _ string) ([]float32, error) {
				if failNext {
					failNext = false

					return nil, &RuntimeError{Op: "embed", Model: model, Err: errors.New("out of memory")}
				}

				return []float32{0.1, 0.2, 0.3}, nil
			},
		}
		p := newTestProvider(t, rt)

		_, err := p.Embed(context.Background(), "text")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrProviderDisabled)

		vec, err := p.Embed(context.Background(), "text again")
		require.NoError(t, err)
		assert.Len(t, vec, 3)
	})

	t.Run("rejects vectors that drift from the loaded dimensionality", func(t *testing.T) {
		calls := 0
		rt := &fakeRuntime{
			embedFunc: func(context.Context, string, string) ([]float32, error) {
				calls++
				if calls > 1 {
					return []float32{1, 2}, nil // wrong length, load fixed dim=3
				}

				return []float32{1, 2, 3}, nil
			},
		}
		p := newTestProvider(t, rt)

		_, err := p.Embed(context.Background(), "text")
		require.NoError(t, err)

		_, err = p.Embed(context.Background(), "text again")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dimensions")
	})

	t.Run("unexpected non-runtime errors propagate unchanged", func(t *testing.T) {
		boom := errors.New("programming error")
		rt := &fakeRuntime{
			embedFunc: func(context.Context, string, string) ([]float32, error) {
				return nil, boom
			},
		}
		p := newTestProvider(t, rt)

		_, err := p.Embed(context.Background(), "text")
		assert.ErrorIs(t, err, boom)
	})
}

func TestMockClient_Deterministic(t *testing.T) {
	c := NewMockClientWithDimensions(16)

	a, err := c.Embed(context.Background(), "sleepless nights with a newborn")
	require.NoError(t, err)
	b, err := c.Embed(context.Background(), "sleepless nights with a newborn")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 16)

	other, err := c.Embed(context.Background(), "a different story entirely")
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	_, err = c.Embed(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyText)
}
