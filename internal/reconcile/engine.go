// Package reconcile merges multiple validated observations of the same
// entity into one canonical observation.
package reconcile

import (
	"github.com/linepulse/linepulse/internal/model"
	"github.com/linepulse/linepulse/internal/resilience"
)

// Strategy merges two or more observations of one entity. Implementations
// must be deterministic: the same input slice in the same order always
// produces the same output.
type Strategy interface {
	Reconcile(obs []model.Observation) (*model.Observation, error)
}

// Engine dispatches reconciliation to a per-data-type strategy, falling
// back to highest-confidence selection when none is registered.
type Engine struct {
	strategies map[model.DataType]Strategy
	fallback   Strategy
}

// NewEngine creates an engine with the built-in strategy table: numeric
// weighted-mean merging for live scores, max-confidence for everything else.
func NewEngine() *Engine {
	e := &Engine{
		strategies: make(map[model.DataType]Strategy),
		fallback:   maxConfidenceStrategy{},
	}
	e.Register(model.DataTypeLiveScores, NewNumericFieldStrategy())
	return e
}

// Register installs a strategy for a data type, replacing any existing one.
func (e *Engine) Register(dt model.DataType, s Strategy) {
	e.strategies[dt] = s
}

// Reconcile merges the observations. Zero inputs is a programmer error;
// a single input passes through with provenance attached.
func (e *Engine) Reconcile(obs []model.Observation) (*model.Observation, error) {
	if len(obs) == 0 {
		return nil, resilience.ErrEmptyReconcileInput
	}

	if len(obs) == 1 {
		single := obs[0]
		single.Metadata = cloneMetadata(single.Metadata)
		single.Metadata["contributing_sources"] = []string{obs[0].SourceID}
		single.PipelineStages = append(append([]string{}, single.PipelineStages...), "reconcile")
		return &single, nil
	}

	strategy, ok := e.strategies[obs[0].DataType]
	if !ok {
		strategy = e.fallback
	}
	return strategy.Reconcile(obs)
}

// maxConfidenceStrategy returns the highest-confidence input. Ties break to
// the first observation encountered, keeping the result stable.
type maxConfidenceStrategy struct{}

func (maxConfidenceStrategy) Reconcile(obs []model.Observation) (*model.Observation, error) {
	if len(obs) == 0 {
		return nil, resilience.ErrEmptyReconcileInput
	}

	best := obs[0]
	for _, o := range obs[1:] {
		if o.Quality.Confidence > best.Quality.Confidence {
			best = o
		}
	}

	best.Metadata = cloneMetadata(best.Metadata)
	best.Metadata["contributing_sources"] = sourceIDs(obs)
	best.Metadata["reconciliation_method"] = "max_confidence"
	best.Metadata["source_count"] = len(obs)
	best.PipelineStages = append(append([]string{}, best.PipelineStages...), "reconcile")
	return &best, nil
}

// canonicalQuality recomputes quality for a merged observation: optimistic
// on completeness/timeliness/reliability (best input wins), averaged on
// confidence-driven scores.
func canonicalQuality(obs []model.Observation) model.QualityScore {
	q := model.QualityScore{SampleSize: len(obs)}

	var confSum, anomalySum, consistencySum float64
	for i, o := range obs {
		in := o.Quality
		confSum += in.Confidence
		anomalySum += in.AnomalyScore
		consistencySum += in.Consistency

		if i == 0 || in.Completeness > q.Completeness {
			q.Completeness = in.Completeness
		}
		if i == 0 || in.Timeliness > q.Timeliness {
			q.Timeliness = in.Timeliness
		}
		if i == 0 || in.Reliability > q.Reliability {
			q.Reliability = in.Reliability
		}
		if in.ScoredAt.After(q.ScoredAt) {
			q.ScoredAt = in.ScoredAt
		}
	}

	n := float64(len(obs))
	q.Confidence = confSum / n
	q.Accuracy = confSum / n
	q.AnomalyScore = anomalySum / n
	q.Consistency = consistencySum / n
	return q
}

func sourceIDs(obs []model.Observation) []string {
	ids := make([]string, len(obs))
	for i, o := range obs {
		ids[i] = o.SourceID
	}
	return ids
}

func cloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+4)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func confidenceRange(obs []model.Observation) [2]float64 {
	lo, hi := obs[0].Quality.Confidence, obs[0].Quality.Confidence
	for _, o := range obs[1:] {
		c := o.Quality.Confidence
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	return [2]float64{lo, hi}
}
