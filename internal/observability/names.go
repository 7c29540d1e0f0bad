// Package observability provides OpenTelemetry metrics and log correlation
// for the story matching service.
package observability

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameEmbeddingOutcomes  = "storyhaven_embedding_outcomes_total"
	MetricNameEmbeddingDuration  = "storyhaven_embedding_duration_seconds"
	MetricNameProviderErrors     = "storyhaven_embedding_provider_errors_total"
	MetricNameSearches           = "storyhaven_similarity_searches_total"
	MetricNameSearchDuration     = "storyhaven_similarity_search_duration_seconds"
	MetricNameCandidatesSkipped  = "storyhaven_similarity_candidates_skipped_total"
	MetricNameCacheHits          = "storyhaven_cache_hits_total"
	MetricNameCacheMisses        = "storyhaven_cache_misses_total"
)

// Attribute keys.
const (
	AttrReason = "reason"
	AttrStatus = "status"
	AttrCache  = "cache"
)

// AllowedEmbeddingOutcomeStatuses for storyhaven_embedding_outcomes_total.
// "success" and "failed" cover ingestion-time generation; "disabled" means the
// provider gave up on both models and is permanently off.
var AllowedEmbeddingOutcomeStatuses = map[string]bool{
	"success":  true,
	"failed":   true,
	"disabled": true,
}

// AllowedProviderErrorReasons for storyhaven_embedding_provider_errors_total.
var AllowedProviderErrorReasons = map[string]bool{
	"load_failed":      true,
	"inference_failed": true,
	"empty_text":       true,
}

// AllowedSearchStatuses for storyhaven_similarity_searches_total and the
// search duration histogram.
var AllowedSearchStatuses = map[string]bool{
	"success":          true,
	"empty_query":      true,
	"embedding_failed": true,
	"fetch_failed":     true,
}

// AllowedSkipReasons for storyhaven_similarity_candidates_skipped_total.
var AllowedSkipReasons = map[string]bool{
	"missing_vector":  true,
	"length_mismatch": true,
	"zero_vector":     true,
}

// AllowedCacheNames bounds the cache attribute cardinality.
var AllowedCacheNames = map[string]bool{
	"query_embedding": true,
}

// NormalizeReason returns reason when allowed, otherwise "other".
// Keeps metric label cardinality bounded against arbitrary error strings.
func NormalizeReason(reason string, allowed map[string]bool) string {
	if allowed[reason] {
		return reason
	}

	return "other"
}

// NormalizeCacheName returns name when allowed, otherwise "other".
func NormalizeCacheName(name string) string {
	if AllowedCacheNames[name] {
		return name
	}

	return "other"
}
