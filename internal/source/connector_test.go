package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linepulse/linepulse/internal/model"
	"github.com/linepulse/linepulse/internal/resilience"
)

func testRegistration(limits map[model.EndpointCategory]int) model.SourceRegistration {
	return model.SourceRegistration{
		SourceID:  "espn",
		Tier:      model.TierVerified,
		DataTypes: []model.DataType{model.DataTypeLiveScores},
		Quota:     model.QuotaConfig{Limits: limits},
	}
}

func okTransport(fields map[string]any) Transport {
	return TransportFunc(func(_ context.Context, _ Request) (Response, error) {
		return Response{Fields: fields, StatusCode: 200, Latency: 10 * time.Millisecond}, nil
	})
}

func failingTransport(status int) Transport {
	return TransportFunc(func(_ context.Context, _ Request) (Response, error) {
		return Response{StatusCode: status, Latency: 5 * time.Millisecond},
			resilience.NewTransportError(resilience.TransportRemote, status, errors.New("upstream down"))
	})
}

func TestConnector_Fetch_BuildsObservation(t *testing.T) {
	fields := map[string]any{"home_score": 101.0, "away_score": 99.0}
	conn := NewConnector(testRegistration(nil), okTransport(fields), ConnectorOptions{})

	obs, err := conn.Fetch(context.Background(), Request{DataType: model.DataTypeLiveScores, EntityID: "game-001"})
	require.NoError(t, err)

	assert.NotEmpty(t, obs.ID)
	assert.Equal(t, "espn", obs.SourceID)
	assert.Equal(t, "http_api", obs.SourceKind)
	assert.Equal(t, model.DataTypeLiveScores, obs.DataType)
	assert.Equal(t, "game-001", obs.EntityID)
	assert.Equal(t, model.TierVerified, obs.Tier)
	assert.Equal(t, 101.0, obs.RawFields["home_score"])
	assert.Equal(t, "live_scores", obs.NormalizedFields["data_type"])
	assert.Equal(t, model.ProvenanceHash("espn", fields), obs.ProvenanceHash)
	assert.Equal(t, []string{"fetch"}, obs.PipelineStages)
	assert.Equal(t, "live_data", obs.Metadata["endpoint"])
	assert.False(t, obs.ObservedAt.IsZero())

	snap := conn.Performance()
	assert.Equal(t, int64(1), snap.SuccessCount)
}

func TestConnector_Fetch_QuotaExhausted(t *testing.T) {
	conn := NewConnector(
		testRegistration(map[model.EndpointCategory]int{model.EndpointLiveData: 1}),
		okTransport(map[string]any{"home_score": 101.0}),
		ConnectorOptions{},
	)
	req := Request{DataType: model.DataTypeLiveScores, EntityID: "game-001"}

	_, err := conn.Fetch(context.Background(), req)
	require.NoError(t, err)

	_, err = conn.Fetch(context.Background(), req)
	assert.ErrorIs(t, err, resilience.ErrRateLimited)

	// Quota rejections never count against the breaker.
	assert.Equal(t, resilience.CircuitClosed, conn.CircuitState())
}

func TestConnector_Fetch_FailuresOpenCircuit(t *testing.T) {
	conn := NewConnector(testRegistration(nil), failingTransport(500), ConnectorOptions{
		Breaker: &resilience.CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Hour},
		Retry:   &resilience.RetryConfig{MaxAttempts: 1},
	})
	req := Request{DataType: model.DataTypeLiveScores, EntityID: "game-001"}

	for i := 0; i < 2; i++ {
		_, err := conn.Fetch(context.Background(), req)
		require.Error(t, err)
		var te *resilience.TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, 500, te.StatusCode)
	}

	assert.Equal(t, resilience.CircuitOpen, conn.CircuitState())

	// With the circuit open the transport is never reached.
	_, err := conn.Fetch(context.Background(), req)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)

	snap := conn.Performance()
	assert.Equal(t, int64(2), snap.FailureCount)
	assert.Equal(t, int64(2), snap.ErrorsByClass["5xx"])
}

func TestConnector_Fetch_RetriesTransient(t *testing.T) {
	var calls int
	transport := TransportFunc(func(_ context.Context, _ Request) (Response, error) {
		calls++
		if calls < 2 {
			return Response{StatusCode: 503}, resilience.NewTransportError(resilience.TransportRemote, 503, errors.New("busy"))
		}
		return Response{Fields: map[string]any{"home_score": 101.0}, StatusCode: 200}, nil
	})

	conn := NewConnector(testRegistration(nil), transport, ConnectorOptions{
		Retry: &resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond},
	})

	obs, err := conn.Fetch(context.Background(), Request{DataType: model.DataTypeLiveScores, EntityID: "game-001"})
	require.NoError(t, err)
	assert.Equal(t, 101.0, obs.RawFields["home_score"])
	assert.Equal(t, 2, calls)

	// The retried call counts once against the breaker and tracker.
	assert.Equal(t, resilience.CircuitClosed, conn.CircuitState())
	assert.Equal(t, int64(1), conn.Performance().TotalCalls)
}

func TestConnector_ResetCircuit(t *testing.T) {
	conn := NewConnector(testRegistration(nil), failingTransport(500), ConnectorOptions{
		Breaker: &resilience.CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour},
		Retry:   &resilience.RetryConfig{MaxAttempts: 1},
	})
	req := Request{DataType: model.DataTypeLiveScores, EntityID: "game-001"}

	_, _ = conn.Fetch(context.Background(), req)
	require.Equal(t, resilience.CircuitOpen, conn.CircuitState())

	conn.ResetCircuit()
	assert.Equal(t, resilience.CircuitClosed, conn.CircuitState())
}

func TestRegistry_RegisterLookupDeregister(t *testing.T) {
	r := NewRegistry()

	live := NewConnector(testRegistration(nil), okTransport(nil), ConnectorOptions{})
	odds := NewConnector(model.SourceRegistration{
		SourceID:  "odds_api",
		Tier:      model.TierVerified,
		DataTypes: []model.DataType{model.DataTypeBettingOdds},
	}, okTransport(nil), ConnectorOptions{})

	r.Register(live)
	r.Register(odds)

	assert.Same(t, live, r.Get("espn"))
	assert.Nil(t, r.Get("unknown"))
	assert.Len(t, r.All(), 2)

	forLive := r.ForDataType(model.DataTypeLiveScores)
	require.Len(t, forLive, 1)
	assert.Same(t, live, forLive[0])

	r.Deregister("espn")
	assert.Nil(t, r.Get("espn"))
	assert.Empty(t, r.ForDataType(model.DataTypeLiveScores))
}
