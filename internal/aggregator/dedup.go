package aggregator

import (
	"github.com/shawkridge/athena-sub002/internal/models"
	"github.com/shawkridge/athena-sub002/internal/util"
)

// DefaultSimilarityThreshold is the title similarity above which two findings
// are considered the same discovery.
const DefaultSimilarityThreshold = 0.85

// Deduplicator folds near-duplicate findings from different sources into one
// aggregated finding. The first-seen finding becomes the primary; later
// matches join as secondary sources.
type Deduplicator struct {
	similarity Similarity
	threshold  float64
}

// NewDeduplicator creates a deduplicator with the given similarity strategy.
// A nil strategy falls back to Jaccard token overlap; a non-positive
// threshold falls back to the default.
func NewDeduplicator(similarity Similarity, threshold float64) *Deduplicator {
	if similarity == nil {
		similarity = JaccardSimilarity{}
	}
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Deduplicator{similarity: similarity, threshold: threshold}
}

// Merge folds raw findings into aggregated ones, preserving first-seen order.
func (d *Deduplicator) Merge(raw []models.RawFinding) []models.AggregatedFinding {
	aggregated := make([]models.AggregatedFinding, 0, len(raw))

	for _, finding := range raw {
		relevance := finding.Relevance
		if relevance <= 0 {
			relevance = 1.0
		}

		matched := false
		for i := range aggregated {
			if d.similarity.Score(finding.Title, aggregated[i].Title) < d.threshold {
				continue
			}
			d.mergeInto(&aggregated[i], finding, relevance)
			matched = true
			break
		}
		if matched {
			continue
		}

		aggregated = append(aggregated, models.AggregatedFinding{
			Title:           finding.Title,
			Summary:         finding.Summary,
			URL:             finding.URL,
			PrimarySource:   finding.Source,
			BaseCredibility: finding.Credibility,
			Relevance:       relevance,
		})
	}

	return aggregated
}

// mergeInto records finding as corroboration for agg. The same source never
// counts twice, so identical titles from one source add no boost.
func (d *Deduplicator) mergeInto(agg *models.AggregatedFinding, finding models.RawFinding, relevance float64) {
	if finding.Source != agg.PrimarySource && !util.ContainsString(agg.SecondarySources, finding.Source) {
		agg.SecondarySources = append(agg.SecondarySources, finding.Source)
	}

	// A stronger corroborating source takes over the credibility basis; the
	// primary source attribution stays first-seen.
	if finding.Credibility*relevance > agg.BaseCredibility*agg.Relevance {
		agg.BaseCredibility = finding.Credibility
		agg.Relevance = relevance
		if agg.URL == "" {
			agg.URL = finding.URL
		}
	}
}
