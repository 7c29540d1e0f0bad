// Package service contains the business logic for story submission,
// moderation, and semantic similarity matching.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/storyhaven/hub/internal/embeddings"
	"github.com/storyhaven/hub/internal/matcher"
	"github.com/storyhaven/hub/internal/models"
	"github.com/storyhaven/hub/internal/observability"
	"github.com/storyhaven/hub/pkg/cache"
)

// queryEmbeddingCacheName labels cache metrics for the query embedding cache.
const queryEmbeddingCacheName = "query_embedding"

// CandidateLister loads the similarity-search candidate set.
type CandidateLister interface {
	ListApprovedWithEmbeddings(ctx context.Context) ([]*models.Story, error)
}

// MatchServiceParams bundles the dependencies for NewMatchService.
type MatchServiceParams struct {
	Repo     CandidateLister
	Embedder embeddings.Client
	// QueryCache memoizes query text -> embedding. Optional.
	QueryCache    *cache.LoaderCache[[]float32]
	SearchMetrics observability.SearchMetrics
	CacheMetrics  observability.CacheMetrics
	Logger        *slog.Logger

	// DefaultTopK and DefaultMinSimilarity apply when a search request does
	// not specify its own values.
	DefaultTopK          int
	DefaultMinSimilarity float64
}

// MatchService finds stories semantically similar to free-form query text.
// Matching is best-effort: when no embedding can be produced for the query,
// the search degrades to an empty result instead of failing.
type MatchService struct {
	repo          CandidateLister
	embedder      embeddings.Client
	queryCache    *cache.LoaderCache[[]float32]
	searchMetrics observability.SearchMetrics
	cacheMetrics  observability.CacheMetrics
	logger        *slog.Logger

	defaultTopK   int
	defaultMinSim float64
}

// NewMatchService creates a MatchService.
func NewMatchService(p MatchServiceParams) *MatchService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	topK := p.DefaultTopK
	if topK <= 0 {
		topK = 9
	}

	minSim := p.DefaultMinSimilarity
	if math.IsNaN(minSim) {
		minSim = 0.1
	}

	return &MatchService{
		repo:          p.Repo,
		embedder:      p.Embedder,
		queryCache:    p.QueryCache,
		searchMetrics: p.SearchMetrics,
		cacheMetrics:  p.CacheMetrics,
		logger:        logger,
		defaultTopK:   topK,
		defaultMinSim: minSim,
	}
}

// FindSimilar returns up to topK approved stories whose embeddings are
// cosine-similar to the query text, scored in [minSimilarity, 1], best first.
// topK <= 0 and NaN minSimilarity fall back to the service defaults.
//
// A blank query, or a query the embedding provider cannot embed, returns an
// empty result with a nil error. Repository failures are returned as errors.
func (s *MatchService) FindSimilar(ctx context.Context, query string, topK int, minSimilarity float64) ([]models.SimilarStory, error) {
	start := time.Now()

	if topK <= 0 {
		topK = s.defaultTopK
	}

	if math.IsNaN(minSimilarity) {
		minSimilarity = s.defaultMinSim
	}

	queryVec, status, err := s.embedQuery(ctx, query)
	if status != "" {
		s.recordSearch(ctx, status, time.Since(start))

		return []models.SimilarStory{}, err
	}

	candidates, err := s.repo.ListApprovedWithEmbeddings(ctx)
	if err != nil {
		s.recordSearch(ctx, "fetch_failed", time.Since(start))

		return nil, fmt.Errorf("failed to load candidate stories: %w", err)
	}

	onSkip := func(reason string) {
		if s.searchMetrics != nil {
			s.searchMetrics.RecordCandidateSkipped(ctx, reason)
		}
	}

	scored := matcher.Rank(queryVec, candidates, topK, minSimilarity, onSkip)

	results := make([]models.SimilarStory, 0, len(scored))

	for _, sc := range scored {
		story := *sc.Story
		story.Embedding = nil

		results = append(results, models.SimilarStory{
			Story:            &story,
			Similarity:       sc.Similarity,
			MatchExplanation: matcher.ExplainMatch(query, matcher.ComposeStoryText(sc.Story)),
		})
	}

	s.recordSearch(ctx, "success", time.Since(start))

	s.logger.DebugContext(ctx, "similarity search completed",
		"candidates", len(candidates),
		"results", len(results),
		"top_k", topK,
		"min_similarity", minSimilarity,
	)

	return results, nil
}

// embedQuery produces the query vector. A non-empty status means the search
// should stop with an empty result; err is non-nil only for unexpected
// failures that must propagate.
func (s *MatchService) embedQuery(ctx context.Context, query string) ([]float32, string, error) {
	load := func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.Embed(ctx, text)
	}

	var (
		vec []float32
		hit bool
		err error
	)

	if s.queryCache != nil {
		vec, hit, err = s.queryCache.Get(ctx, query, load)
		if s.cacheMetrics != nil && err == nil {
			if hit {
				s.cacheMetrics.RecordHit(ctx, queryEmbeddingCacheName)
			} else {
				s.cacheMetrics.RecordMiss(ctx, queryEmbeddingCacheName)
			}
		}
	} else {
		vec, err = load(ctx, query)
	}

	if err == nil {
		return vec, "", nil
	}

	if errors.Is(err, embeddings.ErrEmptyText) {
		return nil, "empty_query", nil
	}

	var runtimeErr *embeddings.RuntimeError

	if errors.Is(err, embeddings.ErrProviderDisabled) || errors.As(err, &runtimeErr) {
		s.logger.WarnContext(ctx, "similarity search degraded: query embedding unavailable", "error", err)

		return nil, "embedding_failed", nil
	}

	return nil, "embedding_failed", fmt.Errorf("failed to embed query: %w", err)
}

func (s *MatchService) recordSearch(ctx context.Context, status string, elapsed time.Duration) {
	if s.searchMetrics == nil {
		return
	}

	s.searchMetrics.RecordSearch(ctx, status)
	s.searchMetrics.RecordSearchDuration(ctx, elapsed, status)
}
