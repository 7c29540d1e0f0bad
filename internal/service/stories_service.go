package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/storyhaven/hub/internal/embeddings"
	apperrors "github.com/storyhaven/hub/internal/errors"
	"github.com/storyhaven/hub/internal/matcher"
	"github.com/storyhaven/hub/internal/models"
	"github.com/storyhaven/hub/internal/observability"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// StoriesRepo defines the repository operations the stories service needs.
type StoriesRepo interface {
	Create(ctx context.Context, story *models.Story) (*models.Story, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Story, error)
	List(ctx context.Context, filters *models.ListStoriesFilters) ([]models.Story, error)
	Count(ctx context.Context, filters *models.ListStoriesFilters) (int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.StoryStatus) (*models.Story, error)
}

// StoriesService handles story submission, retrieval, and moderation.
// Embedding generation at submission time is best-effort: a story whose
// embedding fails is still stored, it just never appears in similarity
// results until re-embedded.
type StoriesService struct {
	repo     StoriesRepo
	embedder embeddings.Client
	metrics  observability.EmbeddingMetrics
	logger   *slog.Logger
}

// NewStoriesService creates a StoriesService.
func NewStoriesService(repo StoriesRepo, embedder embeddings.Client, metrics observability.EmbeddingMetrics, logger *slog.Logger) *StoriesService {
	if logger == nil {
		logger = slog.Default()
	}

	return &StoriesService{repo: repo, embedder: embedder, metrics: metrics, logger: logger}
}

// Submit validates and stores a new story in pending status, generating its
// embedding from the composed story text when the provider is available.
func (s *StoriesService) Submit(ctx context.Context, req *models.SubmitStoryRequest) (*models.Story, error) {
	if err := validateSubmission(req); err != nil {
		return nil, err
	}

	story := &models.Story{
		AuthorName:  strings.TrimSpace(req.AuthorName),
		Challenge:   strings.TrimSpace(req.Challenge),
		Experience:  strings.TrimSpace(req.Experience),
		Solution:    strings.TrimSpace(req.Solution),
		Advice:      strings.TrimSpace(req.Advice),
		SymptomTags: req.SymptomTags,
		Narrative:   req.Narrative,
		Status:      models.StoryStatusPending,
	}

	story.Embedding = s.embedStory(ctx, story)

	created, err := s.repo.Create(ctx, story)
	if err != nil {
		return nil, fmt.Errorf("failed to store story: %w", err)
	}

	s.logger.InfoContext(ctx, "story submitted",
		"story_id", created.ID,
		"has_embedding", len(created.Embedding) > 0,
	)

	return created, nil
}

// embedStory generates the story's embedding vector, returning nil when
// generation fails for any reason.
func (s *StoriesService) embedStory(ctx context.Context, story *models.Story) []float32 {
	text := matcher.ComposeStoryText(story)
	start := time.Now()

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.recordEmbedding(ctx, embeddingStatus(err), time.Since(start))
		s.logger.WarnContext(ctx, "story embedding failed, storing without vector", "error", err)

		return nil
	}

	s.recordEmbedding(ctx, "success", time.Since(start))

	return vec
}

func (s *StoriesService) recordEmbedding(ctx context.Context, status string, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	s.metrics.RecordEmbeddingOutcome(ctx, status)
	s.metrics.RecordEmbeddingDuration(ctx, elapsed, status)
}

// embeddingStatus maps an embedding error to a metric outcome status.
func embeddingStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, embeddings.ErrProviderDisabled):
		return "disabled"
	default:
		return "failed"
	}
}

// Get retrieves a single story by ID.
func (s *StoriesService) Get(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	return s.repo.GetByID(ctx, id)
}

// List retrieves a page of stories. Limit defaults to 20 and is capped at 100;
// negative offsets are treated as zero.
func (s *StoriesService) List(ctx context.Context, filters *models.ListStoriesFilters) (*models.ListStoriesResponse, error) {
	if filters == nil {
		filters = &models.ListStoriesFilters{}
	}

	if filters.Status != "" && !filters.Status.Valid() {
		return nil, apperrors.NewValidationError("status", fmt.Sprintf("invalid status: %s", filters.Status))
	}

	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	}

	if filters.Limit > maxListLimit {
		filters.Limit = maxListLimit
	}

	if filters.Offset < 0 {
		filters.Offset = 0
	}

	stories, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}

	total, err := s.repo.Count(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to count stories: %w", err)
	}

	if stories == nil {
		stories = []models.Story{}
	}

	return &models.ListStoriesResponse{
		Stories: stories,
		Total:   total,
		Limit:   filters.Limit,
		Offset:  filters.Offset,
	}, nil
}

// Approve transitions a story to approved, making it eligible for
// similarity matching.
func (s *StoriesService) Approve(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	return s.setStatus(ctx, id, models.StoryStatusApproved)
}

// Reject transitions a story to rejected.
func (s *StoriesService) Reject(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	return s.setStatus(ctx, id, models.StoryStatusRejected)
}

func (s *StoriesService) setStatus(ctx context.Context, id uuid.UUID, status models.StoryStatus) (*models.Story, error) {
	story, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "story status updated", "story_id", id, "status", status)

	return story, nil
}

func validateSubmission(req *models.SubmitStoryRequest) error {
	if req == nil {
		return apperrors.NewValidationError("body", "request body is required")
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"challenge", req.Challenge},
		{"experience", req.Experience},
		{"solution", req.Solution},
	} {
		if strings.TrimSpace(field.value) == "" {
			return apperrors.NewValidationError(field.name, fmt.Sprintf("%s is required", field.name))
		}
	}

	return nil
}
