package aggregator

import (
	"sort"

	"go.uber.org/zap"

	"github.com/shawkridge/athena-sub002/internal/models"
)

// HighConfidenceThreshold is the credibility floor for FilterHighConfidence.
const HighConfidenceThreshold = 0.8

// Aggregator merges raw findings from all sources into ranked,
// credibility-scored results: deduplication, cross-validation, then a
// descending sort by final credibility.
type Aggregator struct {
	dedup     *Deduplicator
	validator *CrossValidator
	logger    *zap.Logger
}

// Config tunes the aggregation pipeline.
type Config struct {
	Similarity          Similarity
	SimilarityThreshold float64
	SourceCredibility   map[string]float64
}

// New creates an aggregator.
func New(cfg Config, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		dedup:     NewDeduplicator(cfg.Similarity, cfg.SimilarityThreshold),
		validator: NewCrossValidator(cfg.SourceCredibility),
		logger:    logger,
	}
}

// Aggregate merges raw findings into ranked aggregated findings. The result
// is deterministic for a fixed input order, never larger than the input, and
// every final credibility lands in [0, 1]. Zero findings yield an empty
// result, not an error.
func (a *Aggregator) Aggregate(raw []models.RawFinding) []models.AggregatedFinding {
	valid := raw[:0:0]
	for _, finding := range raw {
		if finding.Title == "" {
			a.logger.Warn("Dropping malformed finding without title",
				zap.String("source", finding.Source),
				zap.String("url", finding.URL),
			)
			continue
		}
		valid = append(valid, finding)
	}

	aggregated := a.dedup.Merge(valid)
	a.validator.Validate(aggregated)

	// Stable sort with a title tiebreak keeps the ranking reproducible when
	// credibilities collide.
	sort.SliceStable(aggregated, func(i, j int) bool {
		if aggregated[i].FinalCredibility != aggregated[j].FinalCredibility {
			return aggregated[i].FinalCredibility > aggregated[j].FinalCredibility
		}
		return aggregated[i].Title < aggregated[j].Title
	})

	return aggregated
}

// FilterHighConfidence keeps only findings at or above the 0.8 credibility bar.
func FilterHighConfidence(findings []models.AggregatedFinding) []models.AggregatedFinding {
	return FilterMinCredibility(findings, HighConfidenceThreshold)
}

// FilterMinCredibility keeps findings with final credibility >= min.
func FilterMinCredibility(findings []models.AggregatedFinding, min float64) []models.AggregatedFinding {
	if min <= 0 {
		return findings
	}
	out := make([]models.AggregatedFinding, 0, len(findings))
	for _, f := range findings {
		if f.FinalCredibility >= min {
			out = append(out, f)
		}
	}
	return out
}
