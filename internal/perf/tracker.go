// Package perf tracks per-source call performance: latency, status-code
// classes, and trailing throughput.
package perf

import (
	"fmt"
	"sync"
	"time"
)

// ringSize bounds the recent-call buffer used for throughput estimates.
const ringSize = 100

// throughputWindow is the trailing interval for the calls-per-minute estimate.
const throughputWindow = 60 * time.Second

// Snapshot is a point-in-time view of one source's call performance.
type Snapshot struct {
	TotalCalls       int64            `json:"total_calls"`
	SuccessCount     int64            `json:"success_count"`
	FailureCount     int64            `json:"failure_count"`
	SuccessRate      float64          `json:"success_rate"`
	AvgLatency       time.Duration    `json:"avg_latency"`
	MinLatency       time.Duration    `json:"min_latency"`
	MaxLatency       time.Duration    `json:"max_latency"`
	ErrorsByClass    map[string]int64 `json:"errors_by_class,omitempty"`
	RecentThroughput int              `json:"recent_throughput"` // calls in the last 60s
}

type call struct {
	at      time.Time
	latency time.Duration
}

// Tracker accumulates call metrics for one source. Purely observational:
// recording never fails and never blocks a call beyond the mutex.
type Tracker struct {
	mu            sync.Mutex
	totalCalls    int64
	successCount  int64
	failureCount  int64
	totalLatency  time.Duration
	minLatency    time.Duration
	maxLatency    time.Duration
	errorsByClass map[string]int64

	ring []call
	next int

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		errorsByClass: make(map[string]int64),
		ring:          make([]call, 0, ringSize),
		nowFunc:       time.Now,
	}
}

// RecordCall records one completed call. Status codes outside 2xx count as
// failures and are bucketed by class (4xx, 5xx). A zero status code means
// the call failed before a response arrived and is bucketed as "network".
func (t *Tracker) RecordCall(latency time.Duration, statusCode int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalCalls++
	t.totalLatency += latency
	if t.minLatency == 0 || latency < t.minLatency {
		t.minLatency = latency
	}
	if latency > t.maxLatency {
		t.maxLatency = latency
	}

	if statusCode >= 200 && statusCode < 300 {
		t.successCount++
	} else {
		t.failureCount++
		class := "network"
		if statusCode > 0 {
			class = fmt.Sprintf("%dxx", statusCode/100)
		}
		t.errorsByClass[class]++
	}

	c := call{at: t.nowFunc(), latency: latency}
	if len(t.ring) < ringSize {
		t.ring = append(t.ring, c)
	} else {
		t.ring[t.next] = c
		t.next = (t.next + 1) % ringSize
	}
}

// Snapshot returns the current metrics view.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		TotalCalls:   t.totalCalls,
		SuccessCount: t.successCount,
		FailureCount: t.failureCount,
		MinLatency:   t.minLatency,
		MaxLatency:   t.maxLatency,
	}

	if t.totalCalls > 0 {
		snap.AvgLatency = t.totalLatency / time.Duration(t.totalCalls)
		snap.SuccessRate = float64(t.successCount) / float64(t.totalCalls)
	}

	if len(t.errorsByClass) > 0 {
		snap.ErrorsByClass = make(map[string]int64, len(t.errorsByClass))
		for k, v := range t.errorsByClass {
			snap.ErrorsByClass[k] = v
		}
	}

	cutoff := t.nowFunc().Add(-throughputWindow)
	for _, c := range t.ring {
		if c.at.After(cutoff) {
			snap.RecentThroughput++
		}
	}

	return snap
}
