package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyhaven/hub/internal/embeddings"
	"github.com/storyhaven/hub/internal/models"
	"github.com/storyhaven/hub/pkg/cache"
)

type mockEmbedder struct {
	embedFunc func(ctx context.Context, text string) ([]float32, error)
	dim       int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.embedFunc(ctx, text)
}

func (m *mockEmbedder) Dimension() int { return m.dim }

type mockCandidateLister struct {
	listFunc func(ctx context.Context) ([]*models.Story, error)
}

func (m *mockCandidateLister) ListApprovedWithEmbeddings(ctx context.Context) ([]*models.Story, error) {
	return m.listFunc(ctx)
}

func candidateStory(t *testing.T, challenge string, embedding []float32) *models.Story {
	t.Helper()

	return &models.Story{
		ID:        uuid.Must(uuid.NewV7()),
		Challenge: challenge,
		Status:    models.StoryStatusApproved,
		Embedding: embedding,
	}
}

func newTestMatchService(repo CandidateLister, embedder embeddings.Client) *MatchService {
	return NewMatchService(MatchServiceParams{
		Repo:                 repo,
		Embedder:             embedder,
		Logger:               slog.Default(),
		DefaultTopK:          9,
		DefaultMinSimilarity: 0.1,
	})
}

func TestMatchService_FindSimilar(t *testing.T) {
	queryVec := []float32{1, 0, 0}

	embedder := &mockEmbedder{
		embedFunc: func(_ context.Context, text string) ([]float32, error) {
			if text == "" || text == "   " {
				return nil, embeddings.ErrEmptyText
			}

			return queryVec, nil
		},
		dim: 3,
	}

	t.Run("ranks candidates best first and strips embeddings", func(t *testing.T) {
		far := candidateStory(t, "trouble bonding", []float32{0, 1, 0})
		near := candidateStory(t, "anxious and overwhelmed", []float32{0.9, 0.1, 0})
		exact := candidateStory(t, "panic and worry all day", []float32{1, 0, 0})

		repo := &mockCandidateLister{
			listFunc: func(_ context.Context) ([]*models.Story, error) {
				return []*models.Story{far, near, exact}, nil
			},
		}

		svc := newTestMatchService(repo, embedder)

		results, err := svc.FindSimilar(context.Background(), "feeling anxious and worried", 9, 0.1)
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, exact.ID, results[0].Story.ID)
		assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
		assert.Equal(t, near.ID, results[1].Story.ID)
		assert.Greater(t, results[0].Similarity, results[1].Similarity)

		for _, r := range results {
			assert.Nil(t, r.Story.Embedding)
		}

		// Candidates keep their stored vectors for the next search.
		assert.NotNil(t, exact.Embedding)
	})

	t.Run("explains matches via shared themes", func(t *testing.T) {
		story := candidateStory(t, "so anxious and worried about everything", []float32{1, 0, 0})
		repo := &mockCandidateLister{
			listFunc: func(_ context.Context) ([]*models.Story, error) {
				return []*models.Story{story}, nil
			},
		}

		svc := newTestMatchService(repo, embedder)

		results, err := svc.FindSimilar(context.Background(), "I feel anxious all the time", 9, 0.1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Similar experiences with: anxiety", results[0].MatchExplanation)
	})

	t.Run("falls back to generic explanation without shared themes", func(t *testing.T) {
		story := candidateStory(t, "zzz qqq", []float32{1, 0, 0})
		repo := &mockCandidateLister{
			listFunc: func(_ context.Context) ([]*models.Story, error) {
				return []*models.Story{story}, nil
			},
		}

		svc := newTestMatchService(repo, embedder)

		results, err := svc.FindSimilar(context.Background(), "xxx yyy", 9, 0.1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Similar emotional journey and experiences", results[0].MatchExplanation)
	})

	t.Run("truncates to top k", func(t *testing.T) {
		var stories []*models.Story
		for i := range 5 {
			stories = append(stories, candidateStory(t, fmt.Sprintf("story %d", i), []float32{1, 0, 0}))
		}

		repo := &mockCandidateLister{
			listFunc: func(_ context.Context) ([]*models.Story, error) {
				return stories, nil
			},
		}

		svc := newTestMatchService(repo, embedder)

		results, err := svc.FindSimilar(context.Background(), "anything", 2, 0.1)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("empty query returns empty result without touching the repository", func(t *testing.T) {
		repo := &mockCandidateLister{
			listFunc: func(_ context.Context) ([]*models.Story, error) {
				t.Fatal("repository should not be called for an empty query")

				return nil, nil
			},
		}

		svc := newTestMatchService(repo, embedder)

		results, err := svc.FindSimilar(context.Background(), "   ", 9, 0.1)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("degrades to empty result when provider is disabled", func(t *testing.T) {
		disabled := &mockEmbedder{
			embedFunc: func(_ context.Context, _ string) ([]float32, error) {
				return nil, embeddings.ErrProviderDisabled
			},
		}
		repo := &mockCandidateLister{
			listFunc: func(_ context.Context) ([]*models.Story, error) {
				t.Fatal("repository should not be called when embedding fails")

				return nil, nil
			},
		}

		svc := newTestMatchService(repo, disabled)

		results, err := svc.FindSimilar(context.Background(), "some query", 9, 0.1)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("degrades to empty result on runtime inference failure", func(t *testing.T) {
		failing := &mockEmbedder{
			embedFunc: func(_ context.Context, _ string) ([]float32, error) {
				return nil, fmt.Errorf("embedding failed: %w", &embeddings.RuntimeError{
					Op:    "embed",
					Model: "nomic-embed-text",
					Err:   errors.New("connection refused"),
				})
			},
		}
		repo := &mockCandidateLister{
			listFunc: func(_ context.Context) ([]*models.Story, error) {
				return nil, nil
			},
		}

		svc := newTestMatchService(repo, failing)

		results, err := svc.FindSimilar(context.Background(), "some query", 9, 0.1)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("propagates unexpected embedding errors", func(t *testing.T) {
		canceled := &mockEmbedder{
			embedFunc: func(_ context.Context, _ string) ([]float32, error) {
				return nil, context.Canceled
			},
		}
		repo := &mockCandidateLister{
			listFunc: func(_ context.Context) ([]*models.Story, error) {
				return nil, nil
			},
		}

		svc := newTestMatchService(repo, canceled)

		_, err := svc.FindSimilar(context.Background(), "some query", 9, 0.1)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("propagates repository failure", func(t *testing.T) {
		repo := &mockCandidateLister{
			listFunc: func(_ context.Context) ([]*models.Story, error) {
				return nil, errors.New("connection reset")
			},
		}

		svc := newTestMatchService(repo, embedder)

		_, err := svc.FindSimilar(context.Background(), "some query", 9, 0.1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "candidate stories")
	})

	t.Run("applies defaults for non-positive top k", func(t *testing.T) {
		var stories []*models.Story
		for i := range 12 {
			stories = append(stories, candidateStory(t, fmt.Sprintf("story %d", i), []float32{1, 0, 0}))
		}

		repo := &mockCandidateLister{
			listFunc: func(_ context.Context) ([]*models.Story, error) {
				return stories, nil
			},
		}

		svc := newTestMatchService(repo, embedder)

		results, err := svc.FindSimilar(context.Background(), "anything", 0, 0.1)
		require.NoError(t, err)
		assert.Len(t, results, 9)
	})
}

func TestMatchService_QueryCache(t *testing.T) {
	var embedCalls atomic.Int32

	embedder := &mockEmbedder{
		embedFunc: func(_ context.Context, _ string) ([]float32, error) {
			embedCalls.Add(1)

			return []float32{1, 0, 0}, nil
		},
		dim: 3,
	}

	repo := &mockCandidateLister{
		listFunc: func(_ context.Context) ([]*models.Story, error) {
			return nil, nil
		},
	}

	queryCache, err := cache.New[[]float32](8)
	require.NoError(t, err)

	svc := NewMatchService(MatchServiceParams{
		Repo:                 repo,
		Embedder:             embedder,
		QueryCache:           queryCache,
		DefaultTopK:          9,
		DefaultMinSimilarity: 0.1,
	})

	_, err = svc.FindSimilar(context.Background(), "same query", 9, 0.1)
	require.NoError(t, err)
	_, err = svc.FindSimilar(context.Background(), "same query", 9, 0.1)
	require.NoError(t, err)

	assert.Equal(t, int32(1), embedCalls.Load(), "repeated identical queries should embed once")
}
