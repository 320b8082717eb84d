package aggregator

import "github.com/shawkridge/athena-sub002/internal/models"

// Corroboration boosts by number of secondary sources: findings confirmed by
// independent sources earn higher credibility, with diminishing granularity
// past three corroborators.
const (
	boostSingle = 0.10
	boostDouble = 0.15
	boostTriple = 0.25
)

// CrossValidator recomputes final credibility from the per-source base
// credibility table and the corroboration boost.
type CrossValidator struct {
	sourceCredibility map[string]float64
}

// NewCrossValidator creates a validator over the fixed source credibility
// table. Sources absent from the table keep the credibility carried by the
// finding itself.
func NewCrossValidator(sourceCredibility map[string]float64) *CrossValidator {
	return &CrossValidator{sourceCredibility: sourceCredibility}
}

// Validate recomputes every finding's boost and final credibility in place.
func (v *CrossValidator) Validate(findings []models.AggregatedFinding) {
	for i := range findings {
		f := &findings[i]

		base := f.BaseCredibility
		if known, ok := v.sourceCredibility[f.PrimarySource]; ok && base <= 0 {
			base = known
		}

		f.CrossValidationBoost = boostFor(len(f.SecondarySources))
		f.FinalCredibility = clamp01(base*f.Relevance + f.CrossValidationBoost)
	}
}

func boostFor(corroborators int) float64 {
	switch {
	case corroborators >= 3:
		return boostTriple
	case corroborators == 2:
		return boostDouble
	case corroborators == 1:
		return boostSingle
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
