package domain

import (
	"math"
	"slices"
	"strings"
)

// DefaultSearchLimit is used when SearchOptions.Limit is not positive.
const DefaultSearchLimit = 10

// SearchOptions configures a similarity search.
type SearchOptions struct {
	// Collection to search. Empty selects the configured default.
	Collection string

	// Limit is the maximum number of results.
	Limit int

	// Sections restricts results to these section tags.
	Sections []string

	// Sources restricts results to these source stems.
	Sources []string
}

// EffectiveLimit returns Limit or DefaultSearchLimit.
func (o SearchOptions) EffectiveLimit() int {
	if o.Limit <= 0 {
		return DefaultSearchLimit
	}
	return o.Limit
}

// Matches reports whether c passes the section and source filters.
// Section matching ignores case.
func (o SearchOptions) Matches(c Chunk) bool {
	if len(o.Sections) > 0 && !slices.ContainsFunc(o.Sections, func(s string) bool {
		return strings.EqualFold(s, c.Section)
	}) {
		return false
	}
	if len(o.Sources) > 0 && !slices.Contains(o.Sources, c.Source) {
		return false
	}
	return true
}

// SearchResult is one ranked chunk.
type SearchResult struct {
	ID    string  `json:"id"`
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// RankResults orders results best first, breaking ties by ID, and keeps
// at most limit of them.
func RankResults(results []SearchResult, limit int) []SearchResult {
	slices.SortFunc(results, func(a, b SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return strings.Compare(a.ID, b.ID)
		}
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
