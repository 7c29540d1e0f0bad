package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyhaven/hub/internal/models"
)

func story(name string, embedding []float32) *models.Story {
	return &models.Story{AuthorName: name, Embedding: embedding}
}

func TestRank(t *testing.T) {
	query := []float32{1, 0, 0}

	t.Run("filters by threshold, ranks descending, caps at topK", func(t *testing.T) {
		// Cosine against (1,0,0) is just the normalized first component.
		docA := story("docA", []float32{0.82, 0.57236352, 0}) // sim ~0.82
		docB := story("docB", []float32{0.15, 0.9886859, 0}) // sim ~0.15
		docC := story("docC", nil)                           // no vector
		docD := story("docD", []float32{0.05, 0.9987492, 0}) // sim ~0.05, below threshold

		results := Rank(query, []*models.Story{docA, docB, docC, docD}, 2, 0.1, nil)

		require.Len(t, results, 2)
		assert.Equal(t, "docA", results[0].Story.AuthorName)
		assert.Equal(t, "docB", results[1].Story.AuthorName)
		assert.InDelta(t, 0.82, results[0].Similarity, 1e-6)
		assert.InDelta(t, 0.15, results[1].Similarity, 1e-6)
	})

	t.Run("malformed candidates are skipped without aborting the scan", func(t *testing.T) {
		var skips []string
		candidates := []*models.Story{
			story("missing", nil),
			story("empty", []float32{}),
			story("wrong-length", []float32{1, 0}),
			story("zero", []float32{0, 0, 0}),
			story("valid-low", []float32{0.5, 0.8660254, 0}),
			story("valid-high", []float32{1, 0, 0}),
		}

		results := Rank(query, candidates, 10, 0.1, func(reason string) {
			skips = append(skips, reason)
		})

		require.Len(t, results, 2)
		assert.Equal(t, "valid-high", results[0].Story.AuthorName)
		assert.Equal(t, "valid-low", results[1].Story.AuthorName)
		assert.Equal(t, []string{SkipMissingVector, SkipMissingVector, SkipLengthMismatch, SkipZeroVector}, skips)
	})

	t.Run("threshold is inclusive", func(t *testing.T) {
		exact := story("exact", []float32{0.1, 0.99498744, 0}) // sim == 0.1 within fp epsilon

		results := Rank(query, []*models.Story{exact}, 5, 0.1, nil)

		// Guard the boundary deliberately: score computed in float64 lands a
		// hair above or at 0.1 for this vector; >= keeps it.
		require.Len(t, results, 1)
		assert.GreaterOrEqual(t, results[0].Similarity, 0.1)
	})

	t.Run("ties keep their original scan order", func(t *testing.T) {
		first := story("first", []float32{0.6, 0.8, 0})
		second := story("second", []float32{0.6, 0, 0.8})  // same similarity as first
		third := story("third", []float32{0.6, -0.8, 0})   // same again
		higher := story("higher", []float32{0.9, 0.43589, 0})

		candidates := []*models.Story{first, second, third, higher}

		for range 5 {
			results := Rank(query, candidates, 10, 0.1, nil)
			require.Len(t, results, 4)
			assert.Equal(t, "higher", results[0].Story.AuthorName)
			assert.Equal(t, "first", results[1].Story.AuthorName)
			assert.Equal(t, "second", results[2].Story.AuthorName)
			assert.Equal(t, "third", results[3].Story.AuthorName)
		}
	})

	t.Run("scores are non-increasing", func(t *testing.T) {
		candidates := []*models.Story{
			story("a", []float32{0.3, 0.9539392, 0}),
			story("b", []float32{0.9, 0.43589, 0}),
			story("c", []float32{0.5, 0.8660254, 0}),
			story("d", []float32{0.7, 0.7141428, 0}),
		}

		results := Rank(query, candidates, 10, -1, nil)

		require.Len(t, results, 4)
		for i := 1; i < len(results); i++ {
			assert.LessOrEqual(t, results[i].Similarity, results[i-1].Similarity)
		}
	})

	t.Run("empty query vector returns nothing", func(t *testing.T) {
		assert.Nil(t, Rank(nil, []*models.Story{story("a", []float32{1})}, 5, 0.1, nil))
		assert.Nil(t, Rank([]float32{}, []*models.Story{story("a", []float32{1})}, 5, 0.1, nil))
	})

	t.Run("zero query vector skips every candidate", func(t *testing.T) {
		results := Rank([]float32{0, 0, 0}, []*models.Story{story("a", []float32{1, 0, 0})}, 5, -1, nil)

		assert.Empty(t, results)
	})

	t.Run("non-positive topK returns nothing", func(t *testing.T) {
		assert.Nil(t, Rank(query, []*models.Story{story("a", []float32{1, 0, 0})}, 0, 0.1, nil))
	})

	t.Run("result count never exceeds valid candidates", func(t *testing.T) {
		results := Rank(query, []*models.Story{story("only", []float32{1, 0, 0})}, 9, 0.1, nil)

		assert.Len(t, results, 1)
	})
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("identical vectors score 1", func(t *testing.T) {
		sim, ok := cosineSimilarity([]float32{0.3, 0.4, 0.5}, []float32{0.3, 0.4, 0.5})
		require.True(t, ok)
		assert.InDelta(t, 1.0, sim, 1e-12)
	})

	t.Run("orthogonal vectors score 0", func(t *testing.T) {
		sim, ok := cosineSimilarity([]float32{1, 0}, []float32{0, 1})
		require.True(t, ok)
		assert.InDelta(t, 0.0, sim, 1e-12)
	})

	t.Run("opposite vectors score -1", func(t *testing.T) {
		sim, ok := cosineSimilarity([]float32{1, 0}, []float32{-1, 0})
		require.True(t, ok)
		assert.InDelta(t, -1.0, sim, 1e-12)
	})

	t.Run("zero vector is undefined", func(t *testing.T) {
		_, ok := cosineSimilarity([]float32{0, 0}, []float32{1, 0})
		assert.False(t, ok)
	})
}
