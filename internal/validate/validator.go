package validate

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/linepulse/linepulse/internal/model"
)

// Accuracy penalties compound multiplicatively so repeated violations drive
// the score toward zero without going negative.
const (
	typeMismatchPenalty = 0.9
	outOfRangePenalty   = 0.8
)

// minHistorySamples is the number of baseline values required before the
// z-score anomaly check engages.
const minHistorySamples = 10

// historyFetchLimit bounds how many baseline values are read per field.
const historyFetchLimit = 200

// recentFetchLimit bounds how many peer observations feed consistency.
const recentFetchLimit = 5

// timelinessHorizon is the age at which timeliness decays to zero.
const timelinessHorizon = time.Hour

// defaultConsistency is assumed when no peer observations exist: sparse
// data is treated as plausible rather than penalized.
const defaultConsistency = 0.8

// History supplies baseline values for anomaly detection. Absence (nil
// provider or empty result) degrades to anomaly score 0.
type History interface {
	HistoricalValues(ctx context.Context, dt model.DataType, field string, limit int) ([]float64, error)
}

// Peers supplies recent observations of the same entity from other sources
// for consistency scoring.
type Peers interface {
	RecentObservations(ctx context.Context, dt model.DataType, entityID string, limit int) ([]model.Observation, error)
}

// Validator scores observations against the static schema table. It never
// returns an error: malformed input degrades confidence and is recorded in
// the score's validation errors.
type Validator struct {
	schemas map[model.DataType]Schema
	history History
	peers   Peers

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// New creates a validator. history and peers may be nil; the corresponding
// sub-scores degrade to their defaults.
func New(history History, peers Peers) *Validator {
	return &Validator{
		schemas: Schemas(),
		history: history,
		peers:   peers,
		nowFunc: time.Now,
	}
}

// Validate scores one observation. The returned quality is fully populated;
// confidence is the fixed weighted blend of the sub-scores.
func (v *Validator) Validate(ctx context.Context, obs *model.Observation) model.QualityScore {
	now := v.nowFunc().UTC()

	if len(obs.RawFields) == 0 {
		return model.QualityScore{
			AnomalyScore:     1.0,
			Confidence:       0,
			SampleSize:       0,
			ScoredAt:         now,
			ValidationErrors: []string{"empty payload"},
		}
	}

	schema, hasSchema := v.schemas[obs.DataType]

	var errs []string
	completeness := 1.0
	accuracy := 1.0

	if hasSchema && len(schema.Required) > 0 {
		present := 0
		var missing []string
		for _, field := range schema.Required {
			if _, ok := obs.RawFields[field]; ok {
				present++
			} else {
				missing = append(missing, field)
			}
		}
		completeness = float64(present) / float64(len(schema.Required))
		if len(missing) > 0 {
			errs = append(errs, fmt.Sprintf("missing required fields: %v", missing))
		}
	}

	if hasSchema {
		for field, kind := range schema.Types {
			val, ok := obs.RawFields[field]
			if !ok {
				continue
			}
			if !matchesKind(val, kind) {
				accuracy *= typeMismatchPenalty
				errs = append(errs, fmt.Sprintf("invalid type for %s: expected %s", field, kind))
			}
		}

		for field, rng := range schema.Ranges {
			num, ok := model.NumericField(obs.RawFields, field)
			if !ok {
				continue
			}
			if !rng.Contains(num) {
				accuracy *= outOfRangePenalty
				errs = append(errs, fmt.Sprintf("value out of range for %s: %v", field, num))
			}
		}

		for field, nested := range schema.Nested {
			sub, ok := obs.RawFields[field].(map[string]any)
			if !ok {
				continue
			}
			for key, rng := range nested {
				num, ok := model.NumericField(sub, key)
				if !ok {
					continue
				}
				if !rng.Contains(num) {
					accuracy *= outOfRangePenalty
					errs = append(errs, fmt.Sprintf("value out of range for %s.%s: %v", field, key, num))
				}
			}
		}
	}

	anomaly := v.anomalyScore(ctx, obs)
	consistency := v.consistencyScore(ctx, obs)

	age := now.Sub(obs.ObservedAt)
	timeliness := math.Max(0, 1-age.Seconds()/timelinessHorizon.Seconds())

	q := model.QualityScore{
		Completeness:     completeness,
		Accuracy:         accuracy,
		Timeliness:       timeliness,
		Consistency:      consistency,
		Reliability:      obs.Tier.Score(),
		AnomalyScore:     anomaly,
		SampleSize:       1,
		ScoredAt:         now,
		ValidationErrors: errs,
	}
	q.Confidence = model.WeightedConfidence(q)
	return q
}

// anomalyScore computes per-field z-scores against historical baselines and
// returns the maximum: the most suspicious field dominates. Missing or thin
// history degrades to 0.
func (v *Validator) anomalyScore(ctx context.Context, obs *model.Observation) float64 {
	if v.history == nil {
		return 0
	}

	maxScore := 0.0
	for field, val := range obs.RawFields {
		num, ok := model.AsFloat(val)
		if !ok {
			continue
		}

		baseline, err := v.history.HistoricalValues(ctx, obs.DataType, field, historyFetchLimit)
		if err != nil {
			zap.L().Warn("anomaly baseline unavailable",
				zap.String("data_type", string(obs.DataType)),
				zap.String("field", field),
				zap.Error(err),
			)
			continue
		}
		if len(baseline) <= minHistorySamples {
			continue
		}

		mean, std := meanStddev(baseline)
		if std == 0 {
			continue
		}

		z := math.Abs((num - mean) / std)
		score := math.Min(z/3.0, 1.0)
		if score > maxScore {
			maxScore = score
		}
	}
	return maxScore
}

// consistencyScore compares the observation against recent peer
// observations of the same entity. No peers yields the default 0.8.
func (v *Validator) consistencyScore(ctx context.Context, obs *model.Observation) float64 {
	if v.peers == nil {
		return defaultConsistency
	}

	recent, err := v.peers.RecentObservations(ctx, obs.DataType, obs.EntityID, recentFetchLimit)
	if err != nil {
		zap.L().Warn("consistency peers unavailable",
			zap.String("data_type", string(obs.DataType)),
			zap.String("entity_id", obs.EntityID),
			zap.Error(err),
		)
		return defaultConsistency
	}

	var scores []float64
	for _, peer := range recent {
		if peer.SourceID == obs.SourceID || peer.SourceID == model.ReconciledSourceID {
			continue
		}
		scores = append(scores, fieldSimilarity(obs.RawFields, peer.RawFields))
	}
	if len(scores) == 0 {
		return defaultConsistency
	}

	total := 0.0
	for _, s := range scores {
		total += s
	}
	return total / float64(len(scores))
}

// fieldSimilarity computes a bounded similarity over the fields two
// observations share: |a-b|/max(|a|,|b|) distance for numerics, exact
// match for everything else.
func fieldSimilarity(a, b map[string]any) float64 {
	var scores []float64
	for key, av := range a {
		bv, ok := b[key]
		if !ok {
			continue
		}

		an, aNum := model.AsFloat(av)
		bn, bNum := model.AsFloat(bv)
		switch {
		case aNum && bNum:
			switch {
			case an == 0 && bn == 0:
				scores = append(scores, 1.0)
			case an == 0 || bn == 0:
				scores = append(scores, 0.0)
			default:
				sim := 1.0 - math.Abs(an-bn)/math.Max(math.Abs(an), math.Abs(bn))
				scores = append(scores, math.Max(0, sim))
			}
		case reflect.DeepEqual(av, bv):
			scores = append(scores, 1.0)
		default:
			scores = append(scores, 0.0)
		}
	}
	if len(scores) == 0 {
		return 0
	}

	total := 0.0
	for _, s := range scores {
		total += s
	}
	return total / float64(len(scores))
}

func meanStddev(vals []float64) (float64, float64) {
	n := float64(len(vals))
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	mean := sum / n

	variance := 0.0
	for _, v := range vals {
		d := v - mean
		variance += d * d
	}
	return mean, math.Sqrt(variance / n)
}
