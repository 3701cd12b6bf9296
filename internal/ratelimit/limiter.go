// Package ratelimit enforces per-source, per-endpoint sliding-window quotas.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/linepulse/linepulse/internal/model"
)

// SharedCounter is the optional cross-process counter capability. Acquire
// must atomically prune entries older than the window, count the remainder,
// record the new call, and refresh expiry in one round trip. It returns the
// count before the new call was recorded.
type SharedCounter interface {
	Acquire(ctx context.Context, key string, window time.Duration) (int, error)
}

// Config controls sliding-window quota enforcement for one source.
type Config struct {
	// Window is the rolling window duration. Default: 60s.
	Window time.Duration

	// BaseLimits overrides the default per-category limits.
	BaseLimits map[model.EndpointCategory]int

	// HardCaps are provider-documented ceilings that adaptive scaling must
	// never exceed. Zero means no documented cap.
	HardCaps map[model.EndpointCategory]int
}

// DefaultLimits are the per-category permits per window when neither the
// source registration nor config overrides them.
var DefaultLimits = map[model.EndpointCategory]int{
	model.EndpointLiveData:       60,
	model.EndpointHistoricalData: 30,
	model.EndpointPlayerStats:    100,
	model.EndpointOddsData:       120,
}

const defaultLimit = 60

// Limiter enforces quotas for one source. When a shared counter is
// configured it is authoritative; if it errors the limiter fails open and
// admits the call, since providers enforce their own limits anyway.
type Limiter struct {
	sourceID string
	cfg      Config
	counter  SharedCounter
	tuner    Tuner

	mu      sync.Mutex
	windows map[model.EndpointCategory][]time.Time

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// New creates a limiter for the given source. counter and tuner may be nil.
func New(sourceID string, cfg Config, counter SharedCounter, tuner Tuner) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = 60 * time.Second
	}
	return &Limiter{
		sourceID: sourceID,
		cfg:      cfg,
		counter:  counter,
		tuner:    tuner,
		windows:  make(map[model.EndpointCategory][]time.Time),
		nowFunc:  time.Now,
	}
}

// Acquire reports whether a call to the given endpoint category is admitted
// under the current window. Admitted calls are recorded immediately.
func (l *Limiter) Acquire(ctx context.Context, cat model.EndpointCategory) bool {
	limit := l.effectiveLimit(cat)

	if l.counter != nil {
		key := fmt.Sprintf("rate:%s:%s", l.sourceID, cat)
		count, err := l.counter.Acquire(ctx, key, l.cfg.Window)
		if err == nil {
			return count < limit
		}
		zap.L().Warn("shared rate counter unreachable, failing open",
			zap.String("source", l.sourceID),
			zap.String("endpoint", string(cat)),
			zap.Error(err),
		)
		return true
	}

	return l.acquireLocal(cat, limit)
}

// Limit returns the currently effective limit for a category, after
// adaptive scaling and hard-cap clamping.
func (l *Limiter) Limit(cat model.EndpointCategory) int {
	return l.effectiveLimit(cat)
}

func (l *Limiter) effectiveLimit(cat model.EndpointCategory) int {
	base := defaultLimit
	if n, ok := DefaultLimits[cat]; ok {
		base = n
	}
	if n, ok := l.cfg.BaseLimits[cat]; ok && n > 0 {
		base = n
	}

	limit := base
	if l.tuner != nil {
		limit = int(float64(base) * l.tuner.Factor(cat))
		if limit < 1 {
			limit = 1
		}
	}

	if cap, ok := l.cfg.HardCaps[cat]; ok && cap > 0 && limit > cap {
		limit = cap
	}
	return limit
}

func (l *Limiter) acquireLocal(cat model.EndpointCategory, limit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	cutoff := now.Add(-l.cfg.Window)

	// Drop timestamps that have aged out of the window.
	window := l.windows[cat]
	kept := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit {
		l.windows[cat] = kept
		return false
	}

	l.windows[cat] = append(kept, now)
	return true
}
