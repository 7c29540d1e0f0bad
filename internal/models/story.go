// Package models contains the domain types shared across layers.
package models

import (
	"time"

	"github.com/google/uuid"
)

// StoryStatus is the moderation state of a story.
type StoryStatus string

const (
	StoryStatusPending  StoryStatus = "pending"
	StoryStatusApproved StoryStatus = "approved"
	StoryStatusRejected StoryStatus = "rejected"
)

// Valid reports whether the status is one of the known moderation states.
func (s StoryStatus) Valid() bool {
	switch s {
	case StoryStatusPending, StoryStatusApproved, StoryStatusRejected:
		return true
	}

	return false
}

// Story is a shared recovery story. The embedding is internal to similarity
// search and is never serialized to clients.
type Story struct {
	ID          uuid.UUID   `json:"id"`
	AuthorName  string      `json:"author_name"`
	Challenge   string      `json:"challenge"`
	Experience  string      `json:"experience"`
	Solution    string      `json:"solution"`
	Advice      string      `json:"advice,omitempty"`
	SymptomTags []string    `json:"symptom_tags,omitempty"`
	Narrative   string      `json:"narrative,omitempty"`
	Embedding   []float32   `json:"-"`
	Status      StoryStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// SubmitStoryRequest is the payload for submitting a new story.
type SubmitStoryRequest struct {
	AuthorName  string   `json:"author_name"`
	Challenge   string   `json:"challenge"`
	Experience  string   `json:"experience"`
	Solution    string   `json:"solution"`
	Advice      string   `json:"advice,omitempty"`
	SymptomTags []string `json:"symptom_tags,omitempty"`
	Narrative   string   `json:"narrative,omitempty"`
}

// SimilarStory pairs a matched story with its similarity score and a short
// human-readable explanation of why it matched.
type SimilarStory struct {
	Story            *Story  `json:"story"`
	Similarity       float64 `json:"similarity"`
	MatchExplanation string  `json:"match_explanation"`
}

// ListStoriesFilters narrows a story listing.
type ListStoriesFilters struct {
	Status StoryStatus
	Limit  int
	Offset int
}

// ListStoriesResponse is a page of stories with the total count across pages.
type ListStoriesResponse struct {
	Stories []Story `json:"stories"`
	Total   int64   `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}
