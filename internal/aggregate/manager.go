// Package aggregate orchestrates multi-source fetches: fan-out to every
// source serving a data type, quality filtering, reconciliation, and
// caching of the canonical result.
package aggregate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/linepulse/linepulse/internal/model"
	"github.com/linepulse/linepulse/internal/ratelimit"
	"github.com/linepulse/linepulse/internal/reconcile"
	"github.com/linepulse/linepulse/internal/resilience"
	"github.com/linepulse/linepulse/internal/source"
	"github.com/linepulse/linepulse/internal/store"
	"github.com/linepulse/linepulse/internal/validate"
)

// Config controls manager behavior.
type Config struct {
	// QualityThreshold is the minimum confidence an observation needs to
	// survive filtering. Default: 0.7.
	QualityThreshold float64

	// MaxConcurrentFetches bounds in-flight provider calls across all
	// sources. Default: 50.
	MaxConcurrentFetches int

	// DefaultTTL is the cache TTL when the caller passes no max age.
	// Default: 5m.
	DefaultTTL time.Duration

	// FetchTimeout is the aggregate deadline for one FetchEntity call.
	// Sources that have not answered by then are treated as failed.
	// Default: 30s.
	FetchTimeout time.Duration

	// OutboundRate smooths total outbound calls per second across all
	// connectors. Zero disables smoothing.
	OutboundRate float64
	// OutboundBurst is the smoothing limiter's burst size. Default: 10
	// when OutboundRate is set.
	OutboundBurst int

	// UseSharedCounter routes rate-limit accounting through the store so
	// multiple processes share one quota window.
	UseSharedCounter bool
}

func (c Config) withDefaults() Config {
	if c.QualityThreshold <= 0 {
		c.QualityThreshold = 0.7
	}
	if c.MaxConcurrentFetches <= 0 {
		c.MaxConcurrentFetches = 50
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 5 * time.Minute
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.OutboundRate > 0 && c.OutboundBurst <= 0 {
		c.OutboundBurst = 10
	}
	return c
}

// Manager owns the source registry and runs the fetch pipeline. Construct
// one at process start and inject it wherever fetches originate; there is
// no ambient global instance.
type Manager struct {
	cfg       Config
	registry  *source.Registry
	validator *validate.Validator
	engine    *reconcile.Engine
	store     store.Store
	smoother  *rate.Limiter
}

// NewManager creates a manager over the given store. The store backs the
// canonical cache, consistency window, anomaly baselines, and (optionally)
// the shared rate counter.
func NewManager(cfg Config, st store.Store) *Manager {
	cfg = cfg.withDefaults()

	var smoother *rate.Limiter
	if cfg.OutboundRate > 0 {
		smoother = rate.NewLimiter(rate.Limit(cfg.OutboundRate), cfg.OutboundBurst)
	}

	return &Manager{
		cfg:       cfg,
		registry:  source.NewRegistry(),
		validator: validate.New(st, st),
		engine:    reconcile.NewEngine(),
		store:     st,
		smoother:  smoother,
	}
}

// Engine exposes the reconciliation engine for strategy registration.
func (m *Manager) Engine() *reconcile.Engine {
	return m.engine
}

// RegisterSource wires a transport into the registry under the given
// registration, building the connector's limiter, breaker, and tracker.
func (m *Manager) RegisterSource(reg model.SourceRegistration, transport source.Transport) {
	var counter ratelimit.SharedCounter
	if m.cfg.UseSharedCounter {
		counter = m.store
	}

	conn := source.NewConnector(reg, transport, source.ConnectorOptions{
		Counter:  counter,
		Smoother: m.smoother,
	})
	m.registry.Register(conn)

	zap.L().Info("registered source",
		zap.String("source", reg.SourceID),
		zap.String("tier", string(reg.Tier)),
		zap.Int("data_types", len(reg.DataTypes)),
	)
}

// DeregisterSource removes a source and its breaker/limiter/tracker state.
func (m *Manager) DeregisterSource(sourceID string) {
	m.registry.Deregister(sourceID)
}

// FetchEntity fans out to every source serving the data type, validates
// and filters the results, reconciles the survivors, and caches the
// canonical observation under (dataType, entityID) with TTL maxAge.
// Individual source failures are contained; the only terminal error is
// resilience.ErrNoValidData.
func (m *Manager) FetchEntity(ctx context.Context, dt model.DataType, entityID string, maxAge time.Duration) (*model.Observation, error) {
	if maxAge <= 0 {
		maxAge = m.cfg.DefaultTTL
	}

	// Serve from cache while the previous reconciliation is still fresh.
	if cached, err := m.store.GetCachedObservation(ctx, dt, entityID); err != nil {
		zap.L().Warn("cache read failed",
			zap.String("data_type", string(dt)),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
	} else if cached != nil {
		return cached, nil
	}

	connectors := m.registry.ForDataType(dt)
	if len(connectors) == 0 {
		zap.L().Warn("no sources registered for data type",
			zap.String("data_type", string(dt)),
		)
		return nil, resilience.ErrNoValidData
	}

	fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(fetchCtx)
	g.SetLimit(m.cfg.MaxConcurrentFetches)

	var mu sync.Mutex
	var accepted []model.Observation

	for _, conn := range connectors {
		g.Go(func() error {
			obs := m.fetchOne(gCtx, conn, dt, entityID)
			if obs == nil {
				return nil
			}
			mu.Lock()
			accepted = append(accepted, *obs)
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; per-source failures are contained above.
	_ = g.Wait()

	if len(accepted) == 0 {
		zap.L().Warn("no observation cleared the quality threshold",
			zap.String("data_type", string(dt)),
			zap.String("entity_id", entityID),
			zap.Int("sources", len(connectors)),
		)
		return nil, resilience.ErrNoValidData
	}

	canonical, err := m.engine.Reconcile(accepted)
	if err != nil {
		return nil, err
	}

	if err := m.store.SetCachedObservation(ctx, canonical, maxAge); err != nil {
		zap.L().Warn("cache write failed",
			zap.String("data_type", string(dt)),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
	}

	return canonical, nil
}

// fetchOne runs one source's gated fetch and validation. Returns nil when
// the source yields nothing usable: the caller treats that as "excluded",
// never as a fetch-level failure.
func (m *Manager) fetchOne(ctx context.Context, conn *source.Connector, dt model.DataType, entityID string) *model.Observation {
	sourceID := conn.Registration().SourceID

	obs, err := conn.Fetch(ctx, source.Request{DataType: dt, EntityID: entityID})
	if err != nil {
		zap.L().Warn("source fetch failed",
			zap.String("source", sourceID),
			zap.String("data_type", string(dt)),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
		return nil
	}

	obs.Quality = m.validator.Validate(ctx, obs)
	obs.PipelineStages = append(obs.PipelineStages, "validate")

	// Feed the consistency window and anomaly baselines. Best effort: a
	// failed write degrades future scoring, not this fetch.
	if err := m.store.RecordObservation(ctx, obs, m.cfg.DefaultTTL); err != nil {
		zap.L().Warn("observation record failed",
			zap.String("source", sourceID),
			zap.Error(err),
		)
	}
	for field, val := range obs.RawFields {
		if num, ok := model.AsFloat(val); ok {
			if err := m.store.AppendHistoricalValue(ctx, dt, field, num); err != nil {
				zap.L().Warn("history append failed",
					zap.String("source", sourceID),
					zap.String("field", field),
					zap.Error(err),
				)
				break
			}
		}
	}

	if obs.Quality.Confidence < m.cfg.QualityThreshold {
		zap.L().Debug("observation below quality threshold",
			zap.String("source", sourceID),
			zap.Float64("confidence", obs.Quality.Confidence),
			zap.Float64("threshold", m.cfg.QualityThreshold),
			zap.Strings("validation_errors", obs.Quality.ValidationErrors),
		)
		return nil
	}

	return obs
}
