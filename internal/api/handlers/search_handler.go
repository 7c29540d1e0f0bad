package handlers

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strings"

	"github.com/storyhaven/hub/internal/api/response"
	"github.com/storyhaven/hub/internal/models"
)

// MatchService defines the interface for finding semantically similar stories.
type MatchService interface {
	FindSimilar(ctx context.Context, query string, topK int, minSimilarity float64) ([]models.SimilarStory, error)
}

// SearchHandler handles HTTP requests for similarity search.
type SearchHandler struct {
	service MatchService
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(service MatchService) *SearchHandler {
	return &SearchHandler{service: service}
}

// minInputTextLength guards against queries too short to carry meaning.
const minInputTextLength = 10

// maxTopK caps how many results one search may request.
const maxTopK = 50

// FindSimilarRequest is the body for POST /v1/stories/search/similar.
// MinSimilarity is a pointer so an absent field falls back to the configured
// default while an explicit 0 is honored.
type FindSimilarRequest struct {
	InputText     string   `json:"input_text"`
	TopK          int      `json:"top_k"`
	MinSimilarity *float64 `json:"min_similarity"`
}

// FindSimilarResponse is the response for similarity search.
type FindSimilarResponse struct {
	Results []models.SimilarStory `json:"results"`
	Count   int                   `json:"count"`
}

// FindSimilar handles POST /v1/stories/search/similar.
func (h *SearchHandler) FindSimilar(w http.ResponseWriter, r *http.Request) {
	var req FindSimilarRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	input := strings.TrimSpace(req.InputText)
	if len([]rune(input)) < minInputTextLength {
		response.RespondBadRequest(w, "input_text must be at least 10 characters")

		return
	}

	topK := req.TopK
	if topK > maxTopK {
		topK = maxTopK
	}

	minSimilarity := math.NaN()
	if req.MinSimilarity != nil {
		minSimilarity = *req.MinSimilarity
		if minSimilarity < -1 || minSimilarity > 1 {
			response.RespondBadRequest(w, "min_similarity must be between -1 and 1")

			return
		}
	}

	results, err := h.service.FindSimilar(r.Context(), input, topK, minSimilarity)
	if err != nil {
		response.RespondInternalServerError(w, "Search failed")

		return
	}

	response.RespondJSON(w, http.StatusOK, FindSimilarResponse{
		Results: results,
		Count:   len(results),
	})
}
