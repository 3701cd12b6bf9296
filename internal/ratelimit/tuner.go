package ratelimit

import (
	"sync"

	"github.com/linepulse/linepulse/internal/model"
)

// Tuner scales a category's base limit by a learned performance factor.
// Implementations observe call outcomes and return a multiplier; the
// limiter clamps the scaled limit to the provider's hard cap.
type Tuner interface {
	// Observe records the outcome of one call against the category.
	Observe(cat model.EndpointCategory, success bool)
	// Factor returns the current limit multiplier for the category.
	Factor(cat model.EndpointCategory) float64
}

// EMA tuner bounds. A consistently failing endpoint is throttled to a
// quarter of its base limit; a consistently healthy one may run 50% above
// it (still subject to the hard cap).
const (
	emaAlpha  = 0.2
	minFactor = 0.25
	maxFactor = 1.5
)

// EMATuner tracks an exponential moving average of call success rate per
// endpoint category and maps it to a limit factor.
type EMATuner struct {
	mu    sync.Mutex
	rates map[model.EndpointCategory]float64
}

// NewEMATuner creates a tuner with no observations; Factor is 1.0 until
// calls are observed.
func NewEMATuner() *EMATuner {
	return &EMATuner{rates: make(map[model.EndpointCategory]float64)}
}

// Observe folds a call outcome into the category's success-rate EMA.
func (t *EMATuner) Observe(cat model.EndpointCategory, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sample := 0.0
	if success {
		sample = 1.0
	}

	prev, ok := t.rates[cat]
	if !ok {
		t.rates[cat] = sample
		return
	}
	t.rates[cat] = prev*(1-emaAlpha) + sample*emaAlpha
}

// Factor maps the success-rate EMA linearly onto [minFactor, maxFactor].
// A 100% success rate yields maxFactor, 0% yields minFactor, and no
// history yields 1.0 (trust the configured base).
func (t *EMATuner) Factor(cat model.EndpointCategory) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	rate, ok := t.rates[cat]
	if !ok {
		return 1.0
	}
	return minFactor + rate*(maxFactor-minFactor)
}
