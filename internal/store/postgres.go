package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/linepulse/linepulse/internal/model"
)

// Pool abstracts pgxpool.Pool so tests can substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool. Intended for multi-process
// deployments where the rate counter must be shared across instances.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS canonical_cache (
	data_type  TEXT NOT NULL,
	entity_id  TEXT NOT NULL,
	payload    JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (data_type, entity_id)
);

CREATE TABLE IF NOT EXISTS observations (
	id          TEXT PRIMARY KEY,
	data_type   TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	payload     JSONB NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_entity
	ON observations (data_type, entity_id, observed_at DESC);

CREATE TABLE IF NOT EXISTS history_values (
	data_type   TEXT NOT NULL,
	field       TEXT NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_history_field
	ON history_values (data_type, field, recorded_at DESC);

CREATE TABLE IF NOT EXISTS rate_events (
	key   TEXT NOT NULL,
	at_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rate_events_key ON rate_events (key, at_ms);
`

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// GetCachedObservation returns the cached canonical observation, or nil on
// a miss or expiry.
func (s *PostgresStore) GetCachedObservation(ctx context.Context, dt model.DataType, entityID string) (*model.Observation, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM canonical_cache
		 WHERE data_type = $1 AND entity_id = $2 AND expires_at > now()`,
		string(dt), entityID,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached observation")
	}

	var obs model.Observation
	if err := json.Unmarshal(payload, &obs); err != nil {
		return nil, eris.Wrap(err, "postgres: decode cached observation")
	}
	return &obs, nil
}

// SetCachedObservation upserts the canonical observation with the given TTL.
func (s *PostgresStore) SetCachedObservation(ctx context.Context, obs *model.Observation, ttl time.Duration) error {
	payload, err := json.Marshal(obs)
	if err != nil {
		return eris.Wrap(err, "postgres: encode observation")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO canonical_cache (data_type, entity_id, payload, cached_at, expires_at)
		 VALUES ($1, $2, $3, now(), $4)
		 ON CONFLICT (data_type, entity_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			cached_at = EXCLUDED.cached_at,
			expires_at = EXCLUDED.expires_at`,
		string(obs.DataType), obs.EntityID, payload, time.Now().UTC().Add(ttl),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: set cached observation")
	}
	return nil
}

// CacheStats reports the number of unexpired cache entries.
func (s *PostgresStore) CacheStats(ctx context.Context) (CacheStats, error) {
	var stats CacheStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM canonical_cache WHERE expires_at > now()`,
	).Scan(&stats.Entries)
	if err != nil {
		return stats, eris.Wrap(err, "postgres: cache stats")
	}
	return stats, nil
}

// RecordObservation stores one source observation for later consistency
// comparison against other sources of the same entity.
func (s *PostgresStore) RecordObservation(ctx context.Context, obs *model.Observation, ttl time.Duration) error {
	payload, err := json.Marshal(obs)
	if err != nil {
		return eris.Wrap(err, "postgres: encode observation")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO observations (id, data_type, entity_id, source_id, payload, observed_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		obs.ID, string(obs.DataType), obs.EntityID, obs.SourceID,
		payload, obs.ObservedAt.UTC(), time.Now().UTC().Add(ttl),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: record observation")
	}
	return nil
}

// RecentObservations returns unexpired observations of the entity, newest
// first.
func (s *PostgresStore) RecentObservations(ctx context.Context, dt model.DataType, entityID string, limit int) ([]model.Observation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM observations
		 WHERE data_type = $1 AND entity_id = $2 AND expires_at > now()
		 ORDER BY observed_at DESC LIMIT $3`,
		string(dt), entityID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent observations")
	}
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		var obs model.Observation
		if err := json.Unmarshal(payload, &obs); err != nil {
			return nil, eris.Wrap(err, "postgres: decode observation")
		}
		out = append(out, obs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: recent observations")
}

// AppendHistoricalValue records a numeric field value for anomaly baselines.
func (s *PostgresStore) AppendHistoricalValue(ctx context.Context, dt model.DataType, field string, value float64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO history_values (data_type, field, value) VALUES ($1, $2, $3)`,
		string(dt), field, value,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: append historical value")
	}
	return nil
}

// HistoricalValues returns the most recent recorded values for a field.
func (s *PostgresStore) HistoricalValues(ctx context.Context, dt model.DataType, field string, limit int) ([]float64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT value FROM history_values
		 WHERE data_type = $1 AND field = $2
		 ORDER BY recorded_at DESC LIMIT $3`,
		string(dt), field, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: historical values")
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "postgres: scan historical value")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: historical values")
}

// Acquire prunes entries older than the window, counts the survivors, and
// records this call inside one transaction so concurrent processes see a
// consistent count. Returns the count before the new entry.
func (s *PostgresStore) Acquire(ctx context.Context, key string, window time.Duration) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin rate acquire")
	}
	defer tx.Rollback(ctx)

	nowMS := time.Now().UnixMilli()
	cutoff := nowMS - window.Milliseconds()

	if _, err := tx.Exec(ctx,
		`DELETE FROM rate_events WHERE key = $1 AND at_ms < $2`, key, cutoff,
	); err != nil {
		return 0, eris.Wrap(err, "postgres: prune rate events")
	}

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM rate_events WHERE key = $1`, key,
	).Scan(&count); err != nil {
		return 0, eris.Wrap(err, "postgres: count rate events")
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO rate_events (key, at_ms) VALUES ($1, $2)`, key, nowMS,
	); err != nil {
		return 0, eris.Wrap(err, "postgres: insert rate event")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit rate acquire")
	}
	return count, nil
}
