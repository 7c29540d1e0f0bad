// Package repository provides data access for stories.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	apperrors "github.com/storyhaven/hub/internal/errors"
	"github.com/storyhaven/hub/internal/models"
)

// errEmbeddingScanInvalidType is returned when Scan receives a type other than []byte.
var errEmbeddingScanInvalidType = errors.New("embedding: expected []byte")

// nullableEmbedding scans a vector column that may be NULL without panicking
// (pgvector.Vector.Scan panics on empty/NULL).
type nullableEmbedding []float32

func (n *nullableEmbedding) Scan(src any) error {
	if src == nil {
		*n = nil

		return nil
	}

	buf, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("%w: got %T", errEmbeddingScanInvalidType, src)
	}

	if len(buf) == 0 {
		*n = nil

		return nil
	}

	var vec pgvector.Vector

	if err := vec.DecodeBinary(buf); err != nil {
		return fmt.Errorf("embedding decode: %w", err)
	}

	*n = vec.Slice()

	return nil
}

// StoriesRepository handles data access for stories.
type StoriesRepository struct {
	db *pgxpool.Pool
}

// NewStoriesRepository creates a new stories repository.
func NewStoriesRepository(db *pgxpool.Pool) *StoriesRepository {
	return &StoriesRepository{db: db}
}

const storyColumns = `id, author_name, challenge, experience, solution, advice,
		symptom_tags, narrative, status, created_at, updated_at`

// Create inserts a new story. The embedding may be nil (generation failed);
// the full-precision vector column round-trips float32 values without loss.
func (r *StoriesRepository) Create(ctx context.Context, story *models.Story) (*models.Story, error) {
	query := `
		INSERT INTO stories (
			id, author_name, challenge, experience, solution, advice,
			symptom_tags, narrative, embedding, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + storyColumns

	var embedding any
	if len(story.Embedding) > 0 {
		embedding = pgvector.NewVector(story.Embedding)
	}

	id := story.ID
	if id == uuid.Nil {
		id = uuid.Must(uuid.NewV7())
	}

	var created models.Story

	err := r.db.QueryRow(ctx, query,
		id, story.AuthorName, story.Challenge, story.Experience, story.Solution, story.Advice,
		story.SymptomTags, story.Narrative, embedding, story.Status,
	).Scan(
		&created.ID, &created.AuthorName, &created.Challenge, &created.Experience,
		&created.Solution, &created.Advice, &created.SymptomTags, &created.Narrative,
		&created.Status, &created.CreatedAt, &created.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create story: %w", err)
	}

	created.Embedding = story.Embedding

	return &created, nil
}

// GetByID retrieves a single story by ID. The embedding is not loaded; it is
// internal to similarity search and never exposed per story.
func (r *StoriesRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories WHERE id = $1`

	var story models.Story

	err := r.db.QueryRow(ctx, query, id).Scan(
		&story.ID, &story.AuthorName, &story.Challenge, &story.Experience,
		&story.Solution, &story.Advice, &story.SymptomTags, &story.Narrative,
		&story.Status, &story.CreatedAt, &story.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("story", "story not found")
		}

		return nil, fmt.Errorf("failed to get story: %w", err)
	}

	return &story, nil
}

// List retrieves stories matching the filters, newest first.
func (r *StoriesRepository) List(ctx context.Context, filters *models.ListStoriesFilters) ([]models.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories`

	var args []any
	if filters.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, filters.Status)
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, filters.Limit, filters.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer rows.Close()

	var stories []models.Story

	for rows.Next() {
		var story models.Story
		if err := rows.Scan(
			&story.ID, &story.AuthorName, &story.Challenge, &story.Experience,
			&story.Solution, &story.Advice, &story.SymptomTags, &story.Narrative,
			&story.Status, &story.CreatedAt, &story.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan story: %w", err)
		}

		stories = append(stories, story)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stories: %w", err)
	}

	return stories, nil
}

// Count returns the number of stories matching the filters.
func (r *StoriesRepository) Count(ctx context.Context, filters *models.ListStoriesFilters) (int64, error) {
	query := `SELECT COUNT(*) FROM stories`

	var args []any
	if filters.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, filters.Status)
	}

	var count int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count stories: %w", err)
	}

	return count, nil
}

// ListApprovedWithEmbeddings returns the similarity-search candidate set:
// approved stories that have a stored embedding, in insertion order so tie
// ordering is stable across identical searches.
func (r *StoriesRepository) ListApprovedWithEmbeddings(ctx context.Context) ([]*models.Story, error) {
	query := `
		SELECT ` + storyColumns + `, embedding
		FROM stories
		WHERE status = $1 AND embedding IS NOT NULL
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, models.StoryStatusApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate stories: %w", err)
	}
	defer rows.Close()

	var stories []*models.Story

	for rows.Next() {
		var (
			story models.Story
			emb   nullableEmbedding
		)

		if err := rows.Scan(
			&story.ID, &story.AuthorName, &story.Challenge, &story.Experience,
			&story.Solution, &story.Advice, &story.SymptomTags, &story.Narrative,
			&story.Status, &story.CreatedAt, &story.UpdatedAt,
			&emb,
		); err != nil {
			return nil, fmt.Errorf("failed to scan candidate story: %w", err)
		}

		story.Embedding = emb

		stories = append(stories, &story)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candidate stories: %w", err)
	}

	return stories, nil
}

// UpdateStatus transitions a story's moderation status and returns the updated story.
func (r *StoriesRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.StoryStatus) (*models.Story, error) {
	query := `
		UPDATE stories
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + storyColumns

	var story models.Story

	err := r.db.QueryRow(ctx, query, id, status).Scan(
		&story.ID, &story.AuthorName, &story.Challenge, &story.Experience,
		&story.Solution, &story.Advice, &story.SymptomTags, &story.Narrative,
		&story.Status, &story.CreatedAt, &story.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("story", "story not found")
		}

		return nil, fmt.Errorf("failed to update story status: %w", err)
	}

	return &story, nil
}
