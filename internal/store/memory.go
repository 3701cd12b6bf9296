package store

import (
	"context"
	"sync"
	"time"

	"github.com/linepulse/linepulse/internal/model"
)

// MemoryStore is an in-process Store for tests and cache-less operation.
// Its rate counter is local-only, so cross-process quota enforcement
// degrades to per-process enforcement.
type MemoryStore struct {
	mu        sync.Mutex
	canonical map[string]memEntry
	recent    map[string][]memEntry
	history   map[string][]float64
	rates     map[string][]int64

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

type memEntry struct {
	obs       model.Observation
	expiresAt time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		canonical: make(map[string]memEntry),
		recent:    make(map[string][]memEntry),
		history:   make(map[string][]float64),
		rates:     make(map[string][]int64),
		nowFunc:   time.Now,
	}
}

func cacheKey(dt model.DataType, entityID string) string {
	return string(dt) + ":" + entityID
}

func (s *MemoryStore) GetCachedObservation(_ context.Context, dt model.DataType, entityID string) (*model.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.canonical[cacheKey(dt, entityID)]
	if !ok || s.nowFunc().After(entry.expiresAt) {
		return nil, nil
	}
	obs := entry.obs
	return &obs, nil
}

func (s *MemoryStore) SetCachedObservation(_ context.Context, obs *model.Observation, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.canonical[cacheKey(obs.DataType, obs.EntityID)] = memEntry{
		obs:       *obs,
		expiresAt: s.nowFunc().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) CacheStats(_ context.Context) (CacheStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	var stats CacheStats
	for _, entry := range s.canonical {
		if now.Before(entry.expiresAt) {
			stats.Entries++
		}
	}
	return stats, nil
}

func (s *MemoryStore) RecordObservation(_ context.Context, obs *model.Observation, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cacheKey(obs.DataType, obs.EntityID)
	s.recent[key] = append(s.recent[key], memEntry{
		obs:       *obs,
		expiresAt: s.nowFunc().Add(ttl),
	})
	return nil
}

func (s *MemoryStore) RecentObservations(_ context.Context, dt model.DataType, entityID string, limit int) ([]model.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	entries := s.recent[cacheKey(dt, entityID)]

	// Newest first.
	var out []model.Observation
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		if now.Before(entries[i].expiresAt) {
			out = append(out, entries[i].obs)
		}
	}
	return out, nil
}

func (s *MemoryStore) AppendHistoricalValue(_ context.Context, dt model.DataType, field string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(dt) + ":" + field
	s.history[key] = append(s.history[key], value)
	return nil
}

func (s *MemoryStore) HistoricalValues(_ context.Context, dt model.DataType, field string, limit int) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vals := s.history[string(dt)+":"+field]
	if len(vals) > limit {
		vals = vals[len(vals)-limit:]
	}
	out := make([]float64, len(vals))
	copy(out, vals)
	return out, nil
}

func (s *MemoryStore) Acquire(_ context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMS := s.nowFunc().UnixMilli()
	cutoff := nowMS - window.Milliseconds()

	events := s.rates[key]
	kept := events[:0]
	for _, at := range events {
		if at >= cutoff {
			kept = append(kept, at)
		}
	}
	count := len(kept)
	s.rates[key] = append(kept, nowMS)
	return count, nil
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
