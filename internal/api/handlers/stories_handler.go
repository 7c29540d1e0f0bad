package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/storyhaven/hub/internal/api/response"
	apperrors "github.com/storyhaven/hub/internal/errors"
	"github.com/storyhaven/hub/internal/models"
)

// StoriesService defines the interface for story submission, retrieval, and moderation.
type StoriesService interface {
	Submit(ctx context.Context, req *models.SubmitStoryRequest) (*models.Story, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Story, error)
	List(ctx context.Context, filters *models.ListStoriesFilters) (*models.ListStoriesResponse, error)
	Approve(ctx context.Context, id uuid.UUID) (*models.Story, error)
	Reject(ctx context.Context, id uuid.UUID) (*models.Story, error)
}

// StoriesHandler handles HTTP requests for stories.
type StoriesHandler struct {
	service StoriesService
}

// NewStoriesHandler creates a new stories handler.
func NewStoriesHandler(service StoriesService) *StoriesHandler {
	return &StoriesHandler{service: service}
}

// Create handles POST /v1/stories.
func (h *StoriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitStoryRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	story, err := h.service.Submit(r.Context(), &req)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			response.RespondUnprocessableEntity(w, err.Error())

			return
		}

		response.RespondInternalServerError(w, "Failed to create story")

		return
	}

	response.RespondJSON(w, http.StatusCreated, story)
}

// Get handles GET /v1/stories/{id}.
func (h *StoriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseStoryID(w, r)
	if !ok {
		return
	}

	story, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			response.RespondNotFound(w, "Story not found")

			return
		}

		response.RespondInternalServerError(w, "Failed to get story")

		return
	}

	response.RespondJSON(w, http.StatusOK, story)
}

// List handles GET /v1/stories.
func (h *StoriesHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := &models.ListStoriesFilters{
		Status: models.StoryStatus(r.URL.Query().Get("status")),
		Limit:  parseIntParam(r.URL.Query().Get("limit")),
		Offset: parseIntParam(r.URL.Query().Get("offset")),
	}

	resp, err := h.service.List(r.Context(), filters)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			response.RespondBadRequest(w, err.Error())

			return
		}

		response.RespondInternalServerError(w, "Failed to list stories")

		return
	}

	response.RespondJSON(w, http.StatusOK, resp)
}

// Approve handles POST /v1/stories/{id}/approve.
func (h *StoriesHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, h.service.Approve)
}

// Reject handles POST /v1/stories/{id}/reject.
func (h *StoriesHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, h.service.Reject)
}

func (h *StoriesHandler) moderate(w http.ResponseWriter, r *http.Request, transition func(context.Context, uuid.UUID) (*models.Story, error)) {
	id, ok := parseStoryID(w, r)
	if !ok {
		return
	}

	story, err := transition(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			response.RespondNotFound(w, "Story not found")

			return
		}

		response.RespondInternalServerError(w, "Failed to update story status")

		return
	}

	response.RespondJSON(w, http.StatusOK, story)
}

func parseStoryID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := r.PathValue("id")
	if idStr == "" {
		response.RespondBadRequest(w, "Story ID is required")

		return uuid.Nil, false
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		response.RespondBadRequest(w, "Invalid story ID")

		return uuid.Nil, false
	}

	return id, true
}

// parseIntParam parses a query integer, returning 0 for empty or invalid values.
func parseIntParam(s string) int {
	if s == "" {
		return 0
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}

	return n
}
