package aggregate

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/linepulse/linepulse/internal/perf"
	"github.com/linepulse/linepulse/internal/resilience"
	"github.com/linepulse/linepulse/internal/store"
)

// SourceHealth is one source's health entry in a system report.
type SourceHealth struct {
	SourceID     string        `json:"source_id"`
	Tier         string        `json:"tier"`
	Status       string        `json:"status"`
	CircuitState string        `json:"circuit_state"`
	Performance  perf.Snapshot `json:"performance"`
}

// SystemHealth summarizes every registered source plus cache state. Overall
// health is the conjunction of per-source health: one open breaker degrades
// the whole system.
type SystemHealth struct {
	Healthy    bool             `json:"healthy"`
	Sources    []SourceHealth   `json:"sources"`
	CacheStats store.CacheStats `json:"cache_stats"`
}

// Health builds the current system health report. Sources are ordered by ID
// so successive reports diff cleanly.
func (m *Manager) Health(ctx context.Context) SystemHealth {
	report := SystemHealth{Healthy: true}

	for _, conn := range m.registry.All() {
		reg := conn.Registration()
		state := conn.CircuitState()

		status := "healthy"
		if state != resilience.CircuitClosed {
			status = "degraded"
			report.Healthy = false
		}

		report.Sources = append(report.Sources, SourceHealth{
			SourceID:     reg.SourceID,
			Tier:         string(reg.Tier),
			Status:       status,
			CircuitState: state.String(),
			Performance:  conn.Performance(),
		})
	}
	sort.Slice(report.Sources, func(i, j int) bool {
		return report.Sources[i].SourceID < report.Sources[j].SourceID
	})

	stats, err := m.store.CacheStats(ctx)
	if err != nil {
		zap.L().Warn("cache stats unavailable", zap.Error(err))
	} else {
		report.CacheStats = stats
	}

	return report
}
