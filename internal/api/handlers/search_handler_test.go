package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyhaven/hub/internal/models"
)

type mockMatchService struct {
	findSimilarFunc func(ctx context.Context, query string, topK int, minSimilarity float64) ([]models.SimilarStory, error)
}

func (m *mockMatchService) FindSimilar(ctx context.Context, query string, topK int, minSimilarity float64) ([]models.SimilarStory, error) {
	if m.findSimilarFunc != nil {
		return m.findSimilarFunc(ctx, query, topK, minSimilarity)
	}

	return nil, nil
}

func postSearch(t *testing.T, handler *SearchHandler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "http://test/v1/stories/search/similar", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.FindSimilar(rec, req)

	return rec
}

func TestSearchHandler_FindSimilar(t *testing.T) {
	t.Run("success returns 200 with results and count", func(t *testing.T) {
		storyID := uuid.MustParse("018e1234-5678-9abc-def0-111111111111")
		mock := &mockMatchService{
			findSimilarFunc: func(_ context.Context, query string, topK int, minSimilarity float64) ([]models.SimilarStory, error) {
				assert.Equal(t, "I feel anxious and alone since the birth", query)
				assert.Equal(t, 5, topK)
				assert.InDelta(t, 0.2, minSimilarity, 1e-9)

				return []models.SimilarStory{
					{
						Story:            &models.Story{ID: storyID, Challenge: "anxiety"},
						Similarity:       0.87,
						MatchExplanation: "Similar experiences with: anxiety, isolation",
					},
				}, nil
			},
		}

		rec := postSearch(t, NewSearchHandler(mock),
			`{"input_text":"I feel anxious and alone since the birth","top_k":5,"min_similarity":0.2}`)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp FindSimilarResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, storyID, resp.Results[0].Story.ID)
		assert.Equal(t, "Similar experiences with: anxiety, isolation", resp.Results[0].MatchExplanation)
	})

	t.Run("absent min_similarity passes NaN for the service default", func(t *testing.T) {
		mock := &mockMatchService{
			findSimilarFunc: func(_ context.Context, _ string, _ int, minSimilarity float64) ([]models.SimilarStory, error) {
				assert.True(t, math.IsNaN(minSimilarity))

				return nil, nil
			},
		}

		rec := postSearch(t, NewSearchHandler(mock), `{"input_text":"a long enough search query"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("short input_text returns 400", func(t *testing.T) {
		called := false
		mock := &mockMatchService{
			findSimilarFunc: func(_ context.Context, _ string, _ int, _ float64) ([]models.SimilarStory, error) {
				called = true

				return nil, nil
			},
		}

		for _, body := range []string{
			`{"input_text":""}`,
			`{"input_text":"   "}`,
			`{"input_text":"too short"}`,
		} {
			rec := postSearch(t, NewSearchHandler(mock), body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		}

		assert.False(t, called)
	})

	t.Run("out-of-range min_similarity returns 400", func(t *testing.T) {
		handler := NewSearchHandler(&mockMatchService{})

		for _, body := range []string{
			`{"input_text":"a long enough search query","min_similarity":1.5}`,
			`{"input_text":"a long enough search query","min_similarity":-2}`,
		} {
			rec := postSearch(t, handler, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("unknown fields return 400", func(t *testing.T) {
		rec := postSearch(t, NewSearchHandler(&mockMatchService{}),
			`{"input_text":"a long enough search query","bogus":true}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("top_k is capped", func(t *testing.T) {
		mock := &mockMatchService{
			findSimilarFunc: func(_ context.Context, _ string, topK int, _ float64) ([]models.SimilarStory, error) {
				assert.Equal(t, maxTopK, topK)

				return nil, nil
			},
		}

		rec := postSearch(t, NewSearchHandler(mock), `{"input_text":"a long enough search query","top_k":5000}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("service failure returns 500", func(t *testing.T) {
		mock := &mockMatchService{
			findSimilarFunc: func(_ context.Context, _ string, _ int, _ float64) ([]models.SimilarStory, error) {
				return nil, errors.New("boom")
			},
		}

		rec := postSearch(t, NewSearchHandler(mock), `{"input_text":"a long enough search query"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
