package matcher

import "strings"

// theme is one entry in the fixed explanation vocabulary. Iteration order is
// fixed so extracted theme lists are deterministic across calls.
type theme struct {
	name     string
	keywords []string
}

// themeVocabulary maps postnatal-recovery themes to case-insensitive keyword
// substrings. Used only to produce human-readable match explanations; never
// part of the similarity score.
var themeVocabulary = []theme{
	{"depression", []string{"depression", "depressed", "sad", "hopeless", "worthless", "empty", "dark"}},
	{"anxiety", []string{"anxiety", "anxious", "worried", "panic", "overwhelmed", "scared", "fear"}},
	{"isolation", []string{"lonely", "alone", "isolated", "no one", "support", "friends"}},
	{"sleep", []string{"sleep", "slept", "tired", "exhausted", "insomnia", "sleepless", "fatigue"}},
	{"feeding", []string{"breastfeeding", "feeding", "bottle", "latch", "milk", "nutrition"}},
	{"bonding", []string{"bond", "bonding", "connection", "attachment", "love", "feelings"}},
	{"identity", []string{"identity", "myself", "who am i", "lost", "changed", "person"}},
	{"relationship", []string{"partner", "husband", "relationship", "marriage", "spouse"}},
	{"support", []string{"help", "support", "therapy", "counselor", "treatment", "medication"}},
	{"recovery", []string{"better", "healing", "recovery", "improvement", "hope", "progress"}},
	{"guilt", []string{"guilt", "shame", "failure", "bad mother", "not enough"}},
	{"baby", []string{"baby", "newborn", "infant", "child", "crying", "care"}},
}

// genericExplanation is returned when the query and story share no themes.
const genericExplanation = "Similar emotional journey and experiences"

// ExtractThemes returns the themes whose keywords appear as substrings of the
// lower-cased text, in vocabulary order. Pure; empty input yields no themes.
func ExtractThemes(text string) []string {
	textLower := strings.ToLower(text)

	var themes []string

	for _, th := range themeVocabulary {
		for _, keyword := range th.keywords {
			if strings.Contains(textLower, keyword) {
				themes = append(themes, th.name)

				break
			}
		}
	}

	return themes
}

// ExplainMatch produces the human-readable reason a story matched the input:
// the shared themes when any exist, otherwise a generic fallback.
func ExplainMatch(inputText, storyText string) string {
	storyThemes := make(map[string]bool)
	for _, th := range ExtractThemes(storyText) {
		storyThemes[th] = true
	}

	var common []string

	for _, th := range ExtractThemes(inputText) {
		if storyThemes[th] {
			common = append(common, th)
		}
	}

	if len(common) == 0 {
		return genericExplanation
	}

	return "Similar experiences with: " + strings.Join(common, ", ")
}
