package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// ReconciledSourceID is the synthetic source ID carried by observations
// produced by the reconciliation engine.
const ReconciledSourceID = "reconciled"

// QualityScore is the per-observation quality assessment produced by
// validation. All sub-scores are in [0,1].
type QualityScore struct {
	Completeness     float64   `json:"completeness"`
	Accuracy         float64   `json:"accuracy"`
	Timeliness       float64   `json:"timeliness"`
	Consistency      float64   `json:"consistency"`
	Reliability      float64   `json:"reliability"`
	AnomalyScore     float64   `json:"anomaly_score"`
	Confidence       float64   `json:"confidence"`
	SampleSize       int       `json:"sample_size"`
	ScoredAt         time.Time `json:"scored_at"`
	ValidationErrors []string  `json:"validation_errors,omitempty"`
}

// Confidence weights. Fixed by contract: confidence must be reproducible
// from the sub-scores alone.
const (
	weightCompleteness = 0.25
	weightAccuracy     = 0.25
	weightConsistency  = 0.20
	weightTimeliness   = 0.15
	weightReliability  = 0.10
	weightAnomaly      = 0.05
)

// WeightedConfidence folds the five sub-scores and the anomaly score into
// the overall confidence. The result is in [0,1] whenever the inputs are.
func WeightedConfidence(q QualityScore) float64 {
	return q.Completeness*weightCompleteness +
		q.Accuracy*weightAccuracy +
		q.Consistency*weightConsistency +
		q.Timeliness*weightTimeliness +
		q.Reliability*weightReliability +
		(1-q.AnomalyScore)*weightAnomaly
}

// Observation is one source's view of a logical entity at a point in time.
// Observations are immutable once scored.
type Observation struct {
	ID               string          `json:"id"`
	SourceID         string          `json:"source_id"`
	SourceKind       string          `json:"source_kind"`
	DataType         DataType        `json:"data_type"`
	EntityID         string          `json:"entity_id"`
	Tier             ReliabilityTier `json:"tier"`
	RawFields        map[string]any  `json:"raw_fields"`
	NormalizedFields map[string]any  `json:"normalized_fields"`
	Quality          QualityScore    `json:"quality"`
	Metadata         map[string]any  `json:"metadata,omitempty"`
	ObservedAt       time.Time       `json:"observed_at"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	ProvenanceHash   string          `json:"provenance_hash,omitempty"`
	PipelineStages   []string        `json:"pipeline_stages,omitempty"`
}

// NormalizeFields derives the normalized field map from raw fields. The
// derivation is deterministic: same raw fields, same output.
func NormalizeFields(raw map[string]any, dt DataType) map[string]any {
	normalized := make(map[string]any, len(raw)+1)
	for k, v := range raw {
		normalized[k] = v
	}
	normalized["data_type"] = string(dt)
	return normalized
}

// ProvenanceHash computes a stable hash over the raw fields for tamper and
// duplicate detection. Keys are hashed in sorted order so map iteration
// order cannot change the result.
func ProvenanceHash(sourceID string, raw map[string]any) string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte(sourceID))
	for _, k := range keys {
		h.Write([]byte(k))
		// Best-effort value encoding; unmarshalable values contribute only
		// their key to the hash.
		if b, err := json.Marshal(raw[k]); err == nil {
			h.Write(b)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NumericField extracts a field as float64 if it holds any numeric type.
// JSON decoding yields float64, but hand-built observations may carry ints.
func NumericField(fields map[string]any, key string) (float64, bool) {
	v, ok := fields[key]
	if !ok {
		return 0, false
	}
	return AsFloat(v)
}

// AsFloat converts a value to float64 if it is numeric.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
