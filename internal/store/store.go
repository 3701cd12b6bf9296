// Package store provides the persistence capabilities consumed by the
// reconciliation engine: the canonical-observation cache, the recent
// observation window used for cross-source consistency checks, historical
// values for anomaly baselines, and the shared sliding-window rate counter.
package store

import (
	"context"
	"time"

	"github.com/linepulse/linepulse/internal/model"
)

// CacheStats summarizes the canonical-observation cache for health reporting.
type CacheStats struct {
	Entries int `json:"entries"`
}

// Store defines the persistence interface for the reconciliation engine.
// Every implementation must treat a cache miss as (nil, nil), not an error:
// callers branch on absence, and absence is routine.
type Store interface {
	// Canonical observation cache, keyed by (dataType, entityID).
	GetCachedObservation(ctx context.Context, dt model.DataType, entityID string) (*model.Observation, error)
	SetCachedObservation(ctx context.Context, obs *model.Observation, ttl time.Duration) error
	CacheStats(ctx context.Context) (CacheStats, error)

	// Per-source observation window, consumed by consistency scoring.
	RecordObservation(ctx context.Context, obs *model.Observation, ttl time.Duration) error
	RecentObservations(ctx context.Context, dt model.DataType, entityID string, limit int) ([]model.Observation, error)

	// Historical numeric values backing z-score anomaly baselines.
	AppendHistoricalValue(ctx context.Context, dt model.DataType, field string, value float64) error
	HistoricalValues(ctx context.Context, dt model.DataType, field string, limit int) ([]float64, error)

	// Shared sliding-window rate counter (ratelimit.SharedCounter). Prunes,
	// counts, records and refreshes expiry atomically; returns the count
	// before this call was recorded.
	Acquire(ctx context.Context, key string, window time.Duration) (int, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
