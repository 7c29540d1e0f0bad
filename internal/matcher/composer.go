// Package matcher implements the semantic story-matching core: composing the
// canonical text blob per story, extracting explanation themes, and ranking
// candidate stories by cosine similarity against a query embedding.
package matcher

import (
	"strings"

	"github.com/storyhaven/hub/internal/models"
)

const (
	// narrativeEmbedMaxChars caps how much of the generated narrative goes
	// into the embedding text. The stored narrative itself is never truncated.
	narrativeEmbedMaxChars = 500

	truncationMarker = "..."
	fieldDelimiter   = " | "
)

// ComposeStoryText builds the single normalized text blob that gets embedded
// for a story. Field order is fixed; absent or blank fields are omitted so no
// dangling labels appear. Deterministic: identical fields always produce an
// identical string.
func ComposeStoryText(story *models.Story) string {
	if story == nil {
		return ""
	}

	var parts []string

	appendPart := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			parts = append(parts, label+": "+value)
		}
	}

	appendPart("Challenge", story.Challenge)
	appendPart("Experience", story.Experience)
	appendPart("Solution", story.Solution)
	appendPart("Advice", story.Advice)

	if tags := presentTags(story.SymptomTags); len(tags) > 0 {
		parts = append(parts, "Symptoms: "+strings.Join(tags, ", "))
	}

	if strings.TrimSpace(story.Narrative) != "" {
		parts = append(parts, "Story: "+truncateForEmbedding(story.Narrative))
	}

	return strings.Join(parts, fieldDelimiter)
}

// presentTags filters out blank symptom tags, preserving order.
func presentTags(tags []string) []string {
	var out []string
	for _, tag := range tags {
		if strings.TrimSpace(tag) != "" {
			out = append(out, tag)
		}
	}

	return out
}

// truncateForEmbedding cuts text to narrativeEmbedMaxChars characters (runes,
// so multi-byte text is never split mid-character) and appends a marker when cut.
func truncateForEmbedding(text string) string {
	runes := []rune(text)
	if len(runes) <= narrativeEmbedMaxChars {
		return text
	}

	return string(runes[:narrativeEmbedMaxChars]) + truncationMarker
}
