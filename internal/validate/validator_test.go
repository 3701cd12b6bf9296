package validate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linepulse/linepulse/internal/model"
	"github.com/linepulse/linepulse/internal/store"
)

func liveScoreObservation(sourceID string, raw map[string]any) *model.Observation {
	return &model.Observation{
		ID:               sourceID + "-game-001",
		SourceID:         sourceID,
		DataType:         model.DataTypeLiveScores,
		EntityID:         "game-001",
		Tier:             model.TierVerified,
		RawFields:        raw,
		NormalizedFields: model.NormalizeFields(raw, model.DataTypeLiveScores),
		ObservedAt:       time.Now().UTC(),
	}
}

func completeLiveScore(sourceID string) *model.Observation {
	return liveScoreObservation(sourceID, map[string]any{
		"game_id":    "game-001",
		"home_team":  "LAL",
		"away_team":  "BOS",
		"home_score": 101.0,
		"away_score": 99.0,
		"period":     4.0,
	})
}

func TestValidate_EmptyPayload(t *testing.T) {
	v := New(nil, nil)

	q := v.Validate(context.Background(), liveScoreObservation("espn", map[string]any{}))

	assert.Equal(t, 0.0, q.Confidence)
	assert.Equal(t, 1.0, q.AnomalyScore)
	require.Len(t, q.ValidationErrors, 1)
	assert.Contains(t, q.ValidationErrors[0], "empty payload")
}

func TestValidate_CompleteObservation(t *testing.T) {
	v := New(nil, nil)

	q := v.Validate(context.Background(), completeLiveScore("espn"))

	assert.Equal(t, 1.0, q.Completeness)
	assert.Equal(t, 1.0, q.Accuracy)
	assert.Equal(t, 0.8, q.Reliability) // verified tier
	assert.Empty(t, q.ValidationErrors)
	assert.Greater(t, q.Confidence, 0.7)
	assert.LessOrEqual(t, q.Confidence, 1.0)
}

func TestValidate_MissingRequiredFields(t *testing.T) {
	v := New(nil, nil)

	obs := liveScoreObservation("espn", map[string]any{
		"game_id":    "game-001",
		"home_score": 101.0,
		"away_score": 99.0,
	})
	q := v.Validate(context.Background(), obs)

	assert.InDelta(t, 0.5, q.Completeness, 1e-9) // 3 of 6 required fields
	require.Len(t, q.ValidationErrors, 1)
	assert.Contains(t, q.ValidationErrors[0], "missing required fields")
}

func TestValidate_TypeMismatchPenalty(t *testing.T) {
	v := New(nil, nil)

	obs := completeLiveScore("espn")
	obs.RawFields["home_score"] = "one hundred one"
	q := v.Validate(context.Background(), obs)

	assert.InDelta(t, 0.9, q.Accuracy, 1e-9)
	require.NotEmpty(t, q.ValidationErrors)
	assert.Contains(t, q.ValidationErrors[0], "invalid type for home_score")
}

func TestValidate_OutOfRangePenalty(t *testing.T) {
	v := New(nil, nil)

	obs := completeLiveScore("espn")
	obs.RawFields["home_score"] = 500.0
	q := v.Validate(context.Background(), obs)

	assert.InDelta(t, 0.8, q.Accuracy, 1e-9)
	require.NotEmpty(t, q.ValidationErrors)
	assert.Contains(t, q.ValidationErrors[0], "value out of range for home_score")
}

func TestValidate_PenaltiesCompound(t *testing.T) {
	v := New(nil, nil)

	obs := completeLiveScore("espn")
	obs.RawFields["home_score"] = 500.0
	obs.RawFields["away_score"] = -3.0
	obs.RawFields["period"] = "overtime"
	q := v.Validate(context.Background(), obs)

	// Two range violations and one type mismatch: 0.8 * 0.8 * 0.9.
	assert.InDelta(t, 0.576, q.Accuracy, 1e-9)
	assert.Len(t, q.ValidationErrors, 3)
}

func TestValidate_NestedRanges(t *testing.T) {
	v := New(nil, nil)

	obs := &model.Observation{
		SourceID: "prizepicks",
		DataType: model.DataTypePlayerStats,
		EntityID: "player-023",
		Tier:     model.TierCommunity,
		RawFields: map[string]any{
			"player_id":   "player-023",
			"player_name": "J. Doe",
			"team":        "LAL",
			"stats":       map[string]any{"points": 150.0, "rebounds": 12.0},
		},
		ObservedAt: time.Now().UTC(),
	}
	q := v.Validate(context.Background(), obs)

	assert.InDelta(t, 0.8, q.Accuracy, 1e-9)
	require.NotEmpty(t, q.ValidationErrors)
	assert.Contains(t, q.ValidationErrors[0], "stats.points")
}

func TestValidate_TimelinessDecay(t *testing.T) {
	now := time.Now().UTC()
	v := New(nil, nil)
	v.nowFunc = func() time.Time { return now }

	fresh := completeLiveScore("espn")
	fresh.ObservedAt = now
	assert.InDelta(t, 1.0, v.Validate(context.Background(), fresh).Timeliness, 1e-6)

	halfOld := completeLiveScore("espn")
	halfOld.ObservedAt = now.Add(-30 * time.Minute)
	assert.InDelta(t, 0.5, v.Validate(context.Background(), halfOld).Timeliness, 1e-6)

	stale := completeLiveScore("espn")
	stale.ObservedAt = now.Add(-2 * time.Hour)
	assert.Equal(t, 0.0, v.Validate(context.Background(), stale).Timeliness)
}

func TestValidate_AnomalyRequiresHistory(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	v := New(st, nil)

	// Thin history: anomaly detection stays silent.
	for i := 0; i < 5; i++ {
		require.NoError(t, st.AppendHistoricalValue(ctx, model.DataTypeLiveScores, "home_score", 100))
	}
	obs := completeLiveScore("espn")
	obs.RawFields["home_score"] = 1000.0
	obs.RawFields["away_score"] = 99.0
	q := v.Validate(ctx, obs)
	assert.Equal(t, 0.0, q.AnomalyScore)
}

func TestValidate_AnomalyFlagsOutlier(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	v := New(st, nil)

	// Baseline around 100 with modest spread, enough samples to engage.
	for i := 0; i < 20; i++ {
		require.NoError(t, st.AppendHistoricalValue(ctx, model.DataTypeLiveScores, "home_score", 95+float64(i%10)))
	}

	normal := completeLiveScore("espn")
	normal.RawFields["home_score"] = 100.0
	qNormal := v.Validate(ctx, normal)
	assert.Less(t, qNormal.AnomalyScore, 0.5)

	outlier := completeLiveScore("espn")
	outlier.RawFields["home_score"] = 190.0
	qOutlier := v.Validate(ctx, outlier)
	assert.Equal(t, 1.0, qOutlier.AnomalyScore)
	assert.Less(t, qOutlier.Confidence, qNormal.Confidence)
}

func TestValidate_ConsistencyAgainstPeers(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	v := New(nil, st)

	// A peer from another source with near-identical numbers.
	peer := completeLiveScore("sportradar")
	peer.RawFields["home_score"] = 100.0
	require.NoError(t, st.RecordObservation(ctx, peer, time.Hour))

	obs := completeLiveScore("espn")
	obs.RawFields["home_score"] = 101.0
	q := v.Validate(ctx, obs)

	assert.Greater(t, q.Consistency, 0.9)
}

func TestValidate_ConsistencyIgnoresSelfAndReconciled(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	v := New(nil, st)

	self := completeLiveScore("espn")
	require.NoError(t, st.RecordObservation(ctx, self, time.Hour))
	merged := completeLiveScore(model.ReconciledSourceID)
	require.NoError(t, st.RecordObservation(ctx, merged, time.Hour))

	q := v.Validate(ctx, completeLiveScore("espn"))
	assert.Equal(t, defaultConsistency, q.Consistency)
}

func TestValidate_UnknownDataType_NoSchema(t *testing.T) {
	v := New(nil, nil)

	obs := &model.Observation{
		SourceID:   "espn",
		DataType:   model.DataTypeWeatherData,
		EntityID:   "venue-001",
		Tier:       model.TierVerified,
		RawFields:  map[string]any{"temperature": 72.0, "wind_mph": 5.0},
		ObservedAt: time.Now().UTC(),
	}
	q := v.Validate(context.Background(), obs)

	assert.Equal(t, 1.0, q.Completeness)
	assert.Equal(t, 1.0, q.Accuracy)
	assert.Empty(t, q.ValidationErrors)
}

func TestValidate_ConfidenceAlwaysInUnitInterval(t *testing.T) {
	now := time.Now().UTC()
	v := New(nil, nil)
	v.nowFunc = func() time.Time { return now }

	cases := []*model.Observation{
		completeLiveScore("espn"),
		liveScoreObservation("espn", map[string]any{"game_id": "g"}),
		liveScoreObservation("espn", map[string]any{}),
	}
	stale := completeLiveScore("espn")
	stale.ObservedAt = now.Add(-24 * time.Hour)
	cases = append(cases, stale)

	for _, obs := range cases {
		q := v.Validate(context.Background(), obs)
		assert.GreaterOrEqual(t, q.Confidence, 0.0)
		assert.LessOrEqual(t, q.Confidence, 1.0)
	}
}

func TestFieldSimilarity(t *testing.T) {
	a := map[string]any{"home_score": 100.0, "home_team": "LAL"}
	b := map[string]any{"home_score": 100.0, "home_team": "LAL"}
	assert.InDelta(t, 1.0, fieldSimilarity(a, b), 1e-9)

	c := map[string]any{"home_score": 50.0, "home_team": "BOS"}
	assert.InDelta(t, 0.25, fieldSimilarity(a, c), 1e-9) // (0.5 + 0) / 2

	disjoint := map[string]any{"other": 1.0}
	assert.Equal(t, 0.0, fieldSimilarity(a, disjoint))
}
