package source

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/linepulse/linepulse/internal/model"
	"github.com/linepulse/linepulse/internal/perf"
	"github.com/linepulse/linepulse/internal/ratelimit"
	"github.com/linepulse/linepulse/internal/resilience"
)

// Connector wraps one upstream provider's transport with quota enforcement,
// circuit breaking, and performance tracking. A connector owns its limiter,
// breaker, and tracker; no other source's state is ever touched.
type Connector struct {
	reg       model.SourceRegistration
	transport Transport
	limiter   *ratelimit.Limiter
	breaker   *resilience.CircuitBreaker
	tracker   *perf.Tracker
	tuner     *ratelimit.EMATuner
	retryCfg  resilience.RetryConfig

	// smoother is the process-wide outbound throttle shared by all
	// connectors. May be nil.
	smoother *rate.Limiter
}

// ConnectorOptions configures optional connector behavior.
type ConnectorOptions struct {
	// Counter is the shared rate counter; nil means local-only limiting.
	Counter ratelimit.SharedCounter
	// Smoother is the shared process-wide outbound limiter; nil disables it.
	Smoother *rate.Limiter
	// Breaker overrides the default circuit breaker config.
	Breaker *resilience.CircuitBreakerConfig
	// Retry overrides the default retry config.
	Retry *resilience.RetryConfig
	// Window overrides the default 60s rate window.
	Window time.Duration
}

// NewConnector creates a connector for a registered source.
func NewConnector(reg model.SourceRegistration, transport Transport, opts ConnectorOptions) *Connector {
	tuner := ratelimit.NewEMATuner()

	limits := make(map[model.EndpointCategory]int, len(reg.Quota.Limits))
	for cat, n := range reg.Quota.Limits {
		limits[cat] = n
	}
	caps := make(map[model.EndpointCategory]int, len(reg.Quota.HardCaps))
	for cat, n := range reg.Quota.HardCaps {
		caps[cat] = n
	}

	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	if opts.Breaker != nil {
		breakerCfg = *opts.Breaker
	}
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("circuit state change",
			zap.String("source", reg.SourceID),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	retryCfg := resilience.DefaultRetryConfig()
	if opts.Retry != nil {
		retryCfg = *opts.Retry
	}

	return &Connector{
		reg:       reg,
		transport: transport,
		limiter: ratelimit.New(reg.SourceID, ratelimit.Config{
			Window:     opts.Window,
			BaseLimits: limits,
			HardCaps:   caps,
		}, opts.Counter, tuner),
		breaker:  resilience.NewCircuitBreaker(breakerCfg),
		tracker:  perf.NewTracker(),
		tuner:    tuner,
		retryCfg: retryCfg,
		smoother: opts.Smoother,
	}
}

// Registration returns the source's registration record.
func (c *Connector) Registration() model.SourceRegistration {
	return c.reg
}

// CircuitState returns the breaker's current state for health reporting.
func (c *Connector) CircuitState() resilience.CircuitState {
	return c.breaker.State()
}

// Performance returns the tracker snapshot for health reporting.
func (c *Connector) Performance() perf.Snapshot {
	return c.tracker.Snapshot()
}

// ResetCircuit forces the breaker closed, for manual recovery.
func (c *Connector) ResetCircuit() {
	c.breaker.Reset()
}

// Fetch executes one gated call against the provider and returns an
// unvalidated observation. Quota denial and open-circuit rejections fail
// fast without a network call; transport failures are classified, recorded
// against the breaker and tracker exactly once, and propagated.
func (c *Connector) Fetch(ctx context.Context, req Request) (*model.Observation, error) {
	cat := req.DataType.Endpoint()
	if !c.limiter.Acquire(ctx, cat) {
		return nil, resilience.ErrRateLimited
	}

	retryCfg := c.retryCfg
	retryCfg.OnRetry = resilience.RetryLogger(c.reg.SourceID, string(cat))

	resp, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (Response, error) {
		if c.smoother != nil {
			if err := c.smoother.Wait(ctx); err != nil {
				return Response{}, resilience.NewTransportError(resilience.TransportLocal, 0, err)
			}
		}
		return resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (Response, error) {
			return c.transport.Do(ctx, req)
		})
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, err
		}
		te := resilience.ClassifyTransportError(err)
		c.tracker.RecordCall(resp.Latency, te.StatusCode)
		c.tuner.Observe(cat, false)
		return nil, te
	}

	c.tracker.RecordCall(resp.Latency, resp.StatusCode)
	c.tuner.Observe(cat, true)

	now := time.Now().UTC()
	obs := &model.Observation{
		ID:               uuid.NewString(),
		SourceID:         c.reg.SourceID,
		SourceKind:       "http_api",
		DataType:         req.DataType,
		EntityID:         req.EntityID,
		Tier:             c.reg.Tier,
		RawFields:        resp.Fields,
		NormalizedFields: model.NormalizeFields(resp.Fields, req.DataType),
		Metadata: map[string]any{
			"entity_id":   req.EntityID,
			"fetched_at":  now.Format(time.RFC3339),
			"endpoint":    string(cat),
			"status_code": resp.StatusCode,
			"latency_ms":  resp.Latency.Milliseconds(),
		},
		ObservedAt:     now,
		ProvenanceHash: model.ProvenanceHash(c.reg.SourceID, resp.Fields),
		PipelineStages: []string{"fetch"},
	}
	return obs, nil
}
