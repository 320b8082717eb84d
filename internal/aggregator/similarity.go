package aggregator

import "strings"

// Similarity scores how alike two finding titles are, in [0, 1]. The default
// token-overlap metric is deliberately cheap; deployments with an embedding
// service can plug in a semantic scorer without touching the deduplicator.
type Similarity interface {
	Score(a, b string) float64
}

// JaccardSimilarity measures token-set overlap between titles.
type JaccardSimilarity struct{}

// Score returns |A ∩ B| / |A ∪ B| over lowercased title tokens.
func (JaccardSimilarity) Score(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	tokens := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		token = strings.Trim(token, ".,!?:;\"'()[]")
		if token != "" {
			set[token] = struct{}{}
		}
	}
	return set
}
