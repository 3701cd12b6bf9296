package model

// ReliabilityTier is a coarse trust label for a data source. It feeds the
// reliability sub-score during validation.
type ReliabilityTier string

const (
	TierPremium      ReliabilityTier = "premium"      // official/licensed feeds
	TierVerified     ReliabilityTier = "verified"     // established aggregators
	TierCommunity    ReliabilityTier = "community"    // community-operated feeds
	TierExperimental ReliabilityTier = "experimental" // new sources under evaluation
)

// Score returns the reliability sub-score for the tier. Unknown tiers score
// 0.5 rather than failing: a misconfigured source should degrade, not crash.
func (t ReliabilityTier) Score() float64 {
	switch t {
	case TierPremium:
		return 1.0
	case TierVerified:
		return 0.8
	case TierCommunity:
		return 0.6
	case TierExperimental:
		return 0.4
	default:
		return 0.5
	}
}

// QuotaConfig holds per-endpoint-category permit limits for one source.
// Limit is the tunable base; HardCap is the provider's documented ceiling
// that adaptive scaling must never exceed. A zero Limit falls back to the
// category default.
type QuotaConfig struct {
	Limits   map[EndpointCategory]int `json:"limits" yaml:"limits"`
	HardCaps map[EndpointCategory]int `json:"hard_caps,omitempty" yaml:"hard_caps,omitempty"`
}

// Limit returns the configured base limit for a category, or def when unset.
func (q QuotaConfig) Limit(cat EndpointCategory, def int) int {
	if q.Limits != nil {
		if n, ok := q.Limits[cat]; ok && n > 0 {
			return n
		}
	}
	return def
}

// HardCap returns the provider ceiling for a category, or 0 when none is
// documented.
func (q QuotaConfig) HardCap(cat EndpointCategory) int {
	if q.HardCaps == nil {
		return 0
	}
	return q.HardCaps[cat]
}

// SourceRegistration describes one upstream provider at registration time.
// Immutable after registration except for quota limits, which the adaptive
// tuner may scale within the hard cap.
type SourceRegistration struct {
	SourceID    string            `json:"source_id" yaml:"source_id"`
	Tier        ReliabilityTier   `json:"tier" yaml:"tier"`
	DataTypes   []DataType        `json:"data_types" yaml:"data_types"`
	Quota       QuotaConfig       `json:"quota,omitempty" yaml:"quota,omitempty"`
	BaseURL     string            `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	supportsSet map[DataType]struct{}
}

// Supports reports whether the source serves the given data type.
func (r *SourceRegistration) Supports(dt DataType) bool {
	if r.supportsSet == nil {
		r.supportsSet = make(map[DataType]struct{}, len(r.DataTypes))
		for _, d := range r.DataTypes {
			r.supportsSet[d] = struct{}{}
		}
	}
	_, ok := r.supportsSet[dt]
	return ok
}
