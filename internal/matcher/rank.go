package matcher

import (
	"log/slog"
	"math"
	"sort"

	"github.com/storyhaven/hub/internal/models"
)

// Scored pairs a candidate story with its cosine similarity against the query.
type Scored struct {
	Story      *models.Story
	Similarity float64
}

// Skip reasons reported to the onSkip callback.
const (
	SkipMissingVector  = "missing_vector"
	SkipLengthMismatch = "length_mismatch"
	SkipZeroVector     = "zero_vector"
)

// Rank scans every candidate with a stored embedding, computes cosine
// similarity against queryVec, keeps scores >= minSimilarity (inclusive),
// sorts descending, and returns at most topK results. Candidates with a
// missing, empty, mismatched-length, or zero vector are skipped; a malformed
// candidate never aborts the scan. Ties keep their original scan order, so
// repeated calls on identical input return identical orderings.
//
// This is a full linear scan, O(N*D); acceptable at the corpus sizes this
// service targets (low thousands of stories).
//
// onSkip, when non-nil, is invoked with a skip reason for each candidate
// dropped before scoring (metrics hook).
func Rank(queryVec []float32, candidates []*models.Story, topK int, minSimilarity float64, onSkip func(reason string)) []Scored {
	if len(queryVec) == 0 || topK <= 0 {
		return nil
	}

	skip := func(story *models.Story, reason string) {
		if onSkip != nil {
			onSkip(reason)
		}

		slog.Debug("similarity scan: candidate skipped",
			"story_id", story.ID,
			"reason", reason,
			"vector_len", len(story.Embedding),
			"query_len", len(queryVec),
		)
	}

	scored := make([]Scored, 0, len(candidates))

	for _, story := range candidates {
		if story == nil {
			continue
		}

		switch {
		case len(story.Embedding) == 0:
			skip(story, SkipMissingVector)
		case len(story.Embedding) != len(queryVec):
			skip(story, SkipLengthMismatch)
		default:
			sim, ok := cosineSimilarity(queryVec, story.Embedding)
			if !ok {
				skip(story, SkipZeroVector)

				continue
			}

			if sim >= minSimilarity {
				scored = append(scored, Scored{Story: story, Similarity: sim})
			}
		}
	}

	// Stable sort keeps scan order for equal scores.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}

	return scored
}

// cosineSimilarity computes dot(a,b)/(|a|*|b|) in float64. The second return
// is false when either vector has zero norm (similarity undefined). Lengths
// must already match.
func cosineSimilarity(a, b []float32) (float64, bool) {
	var dot, normA, normB float64

	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}

	if normA == 0 || normB == 0 {
		return 0, false
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
