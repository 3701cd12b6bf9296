package reconcile

import (
	"math"
	"sort"

	"github.com/linepulse/linepulse/internal/model"
	"github.com/linepulse/linepulse/internal/resilience"
)

// NumericFieldStrategy merges observations by confidence-weighted averaging
// of shared numeric fields. Non-numeric fields are carried from the
// top-ranked input. Used for live scores, where several books report the
// same game with slightly different numbers.
type NumericFieldStrategy struct{}

// NewNumericFieldStrategy creates the weighted-average strategy.
func NewNumericFieldStrategy() *NumericFieldStrategy {
	return &NumericFieldStrategy{}
}

// Reconcile merges 1+ observations deterministically. Inputs are ranked by
// (confidence desc, observedAt desc); each numeric field becomes the
// confidence-weighted mean across the inputs that carry it. A zero total
// weight falls back to the top-ranked input's raw value.
func (s *NumericFieldStrategy) Reconcile(obs []model.Observation) (*model.Observation, error) {
	if len(obs) == 0 {
		return nil, resilience.ErrEmptyReconcileInput
	}

	ranked := make([]model.Observation, len(obs))
	copy(ranked, obs)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Quality.Confidence != ranked[j].Quality.Confidence {
			return ranked[i].Quality.Confidence > ranked[j].Quality.Confidence
		}
		return ranked[i].ObservedAt.After(ranked[j].ObservedAt)
	})
	top := ranked[0]

	merged := make(map[string]any, len(top.NormalizedFields))
	for field, topVal := range top.NormalizedFields {
		if _, isNumeric := model.AsFloat(topVal); !isNumeric {
			merged[field] = topVal
			continue
		}
		merged[field] = s.mergeField(ranked, field, topVal)
	}

	latest := ranked[0].ObservedAt
	for _, o := range ranked[1:] {
		if o.ObservedAt.After(latest) {
			latest = o.ObservedAt
		}
	}

	rng := confidenceRange(obs)
	merged["source_count"] = len(obs)
	merged["reconciliation_method"] = "weighted_average"

	canonical := &model.Observation{
		// Deterministic ID: reconciling the same inputs yields the same record.
		ID:               model.ProvenanceHash(model.ReconciledSourceID, merged),
		SourceID:         model.ReconciledSourceID,
		SourceKind:       "reconciliation_engine",
		DataType:         top.DataType,
		EntityID:         top.EntityID,
		Tier:             model.TierPremium,
		RawFields:        merged,
		NormalizedFields: model.NormalizeFields(merged, top.DataType),
		Quality:          canonicalQuality(obs),
		Metadata: map[string]any{
			"contributing_sources": sourceIDs(obs),
			"source_count":         len(obs),
			"confidence_range":     []float64{rng[0], rng[1]},
		},
		ObservedAt:     latest,
		ProvenanceHash: model.ProvenanceHash(model.ReconciledSourceID, merged),
		PipelineStages: []string{"reconcile"},
	}
	return canonical, nil
}

// mergeField computes the confidence-weighted mean of one field across the
// inputs that carry it numerically. Integral inputs round to the nearest
// integer so merged scores stay natural.
func (s *NumericFieldStrategy) mergeField(ranked []model.Observation, field string, topVal any) any {
	var weightedSum, totalWeight float64
	allIntegral := true

	for _, o := range ranked {
		num, ok := model.NumericField(o.NormalizedFields, field)
		if !ok {
			continue
		}
		weight := o.Quality.Confidence
		weightedSum += num * weight
		totalWeight += weight
		if num != math.Trunc(num) {
			allIntegral = false
		}
	}

	if totalWeight == 0 {
		// All confidences zero: trust the top-ranked input's value as-is.
		return topVal
	}

	mean := weightedSum / totalWeight
	if allIntegral {
		return math.Round(mean)
	}
	return mean
}
