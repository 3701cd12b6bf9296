package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/linepulse/linepulse/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the default
// backend for single-process deployments; the rate counter is local to the
// database file but still atomic across goroutines.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS canonical_cache (
	data_type  TEXT NOT NULL,
	entity_id  TEXT NOT NULL,
	payload    TEXT NOT NULL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL,
	PRIMARY KEY (data_type, entity_id)
);

CREATE TABLE IF NOT EXISTS observations (
	id          TEXT PRIMARY KEY,
	data_type   TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	payload     TEXT NOT NULL,
	observed_at DATETIME NOT NULL,
	expires_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_entity
	ON observations (data_type, entity_id, observed_at DESC);

CREATE TABLE IF NOT EXISTS history_values (
	data_type   TEXT NOT NULL,
	field       TEXT NOT NULL,
	value       REAL NOT NULL,
	recorded_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_history_field
	ON history_values (data_type, field, recorded_at DESC);

CREATE TABLE IF NOT EXISTS rate_events (
	key   TEXT NOT NULL,
	at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rate_events_key ON rate_events (key, at_ms);
`

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetCachedObservation returns the cached canonical observation, or nil on
// a miss or expiry.
func (s *SQLiteStore) GetCachedObservation(ctx context.Context, dt model.DataType, entityID string) (*model.Observation, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM canonical_cache
		 WHERE data_type = ? AND entity_id = ? AND expires_at > datetime('now')`,
		string(dt), entityID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached observation")
	}

	var obs model.Observation
	if err := json.Unmarshal([]byte(payload), &obs); err != nil {
		return nil, eris.Wrap(err, "sqlite: decode cached observation")
	}
	return &obs, nil
}

// SetCachedObservation upserts the canonical observation with the given TTL.
func (s *SQLiteStore) SetCachedObservation(ctx context.Context, obs *model.Observation, ttl time.Duration) error {
	payload, err := json.Marshal(obs)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode observation")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO canonical_cache (data_type, entity_id, payload, cached_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (data_type, entity_id) DO UPDATE SET
			payload = excluded.payload,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at`,
		string(obs.DataType), obs.EntityID, string(payload),
		time.Now().UTC(), time.Now().UTC().Add(ttl),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: set cached observation")
	}
	return nil
}

// CacheStats reports the number of unexpired cache entries.
func (s *SQLiteStore) CacheStats(ctx context.Context) (CacheStats, error) {
	var stats CacheStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM canonical_cache WHERE expires_at > datetime('now')`,
	).Scan(&stats.Entries)
	if err != nil {
		return stats, eris.Wrap(err, "sqlite: cache stats")
	}
	return stats, nil
}

// RecordObservation stores one source observation for later consistency
// comparison against other sources of the same entity.
func (s *SQLiteStore) RecordObservation(ctx context.Context, obs *model.Observation, ttl time.Duration) error {
	payload, err := json.Marshal(obs)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode observation")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO observations (id, data_type, entity_id, source_id, payload, observed_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		obs.ID, string(obs.DataType), obs.EntityID, obs.SourceID,
		string(payload), obs.ObservedAt.UTC(), time.Now().UTC().Add(ttl),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: record observation")
	}
	return nil
}

// RecentObservations returns unexpired observations of the entity, newest
// first.
func (s *SQLiteStore) RecentObservations(ctx context.Context, dt model.DataType, entityID string, limit int) ([]model.Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM observations
		 WHERE data_type = ? AND entity_id = ? AND expires_at > datetime('now')
		 ORDER BY observed_at DESC LIMIT ?`,
		string(dt), entityID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent observations")
	}
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		var obs model.Observation
		if err := json.Unmarshal([]byte(payload), &obs); err != nil {
			return nil, eris.Wrap(err, "sqlite: decode observation")
		}
		out = append(out, obs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: recent observations")
}

// AppendHistoricalValue records a numeric field value for anomaly baselines.
func (s *SQLiteStore) AppendHistoricalValue(ctx context.Context, dt model.DataType, field string, value float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history_values (data_type, field, value) VALUES (?, ?, ?)`,
		string(dt), field, value,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: append historical value")
	}
	return nil
}

// HistoricalValues returns the most recent recorded values for a field.
func (s *SQLiteStore) HistoricalValues(ctx context.Context, dt model.DataType, field string, limit int) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT value FROM history_values
		 WHERE data_type = ? AND field = ?
		 ORDER BY recorded_at DESC LIMIT ?`,
		string(dt), field, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: historical values")
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan historical value")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: historical values")
}

// Acquire prunes entries older than the window, counts the survivors, and
// records this call, all in one transaction. Returns the count before the
// new entry.
func (s *SQLiteStore) Acquire(ctx context.Context, key string, window time.Duration) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin rate acquire")
	}
	defer tx.Rollback()

	nowMS := time.Now().UnixMilli()
	cutoff := nowMS - window.Milliseconds()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM rate_events WHERE key = ? AND at_ms < ?`, key, cutoff,
	); err != nil {
		return 0, eris.Wrap(err, "sqlite: prune rate events")
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rate_events WHERE key = ?`, key,
	).Scan(&count); err != nil {
		return 0, eris.Wrap(err, "sqlite: count rate events")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rate_events (key, at_ms) VALUES (?, ?)`, key, nowMS,
	); err != nil {
		return 0, eris.Wrap(err, "sqlite: insert rate event")
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit rate acquire")
	}
	return count, nil
}
