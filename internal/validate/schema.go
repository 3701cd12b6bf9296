// Package validate scores raw observations against per-data-type schemas
// and produces the quality metrics that drive filtering and reconciliation.
package validate

import "github.com/linepulse/linepulse/internal/model"

// FieldKind is the closed set of field types a schema can expect. Dynamic
// payloads are narrowed to these kinds at the validation boundary.
type FieldKind int

const (
	KindString FieldKind = iota
	KindNumber
	KindBool
	KindMap
)

func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Range bounds a numeric field.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v falls inside the range, inclusive.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Schema describes the expected shape of one data type's payload.
type Schema struct {
	Required []string
	Types    map[string]FieldKind
	Ranges   map[string]Range
	// Nested maps a map-valued field to numeric range checks on its keys.
	Nested map[string]map[string]Range
}

// Schemas returns the static validation schema table.
func Schemas() map[model.DataType]Schema {
	return map[model.DataType]Schema{
		model.DataTypeLiveScores: {
			Required: []string{"game_id", "home_team", "away_team", "home_score", "away_score", "period"},
			Types: map[string]FieldKind{
				"home_score": KindNumber,
				"away_score": KindNumber,
				"period":     KindNumber,
			},
			Ranges: map[string]Range{
				"home_score": {Min: 0, Max: 200},
				"away_score": {Min: 0, Max: 200},
				"period":     {Min: 1, Max: 10},
			},
		},
		model.DataTypePlayerStats: {
			Required: []string{"player_id", "player_name", "team", "stats"},
			Types: map[string]FieldKind{
				"stats": KindMap,
			},
			Nested: map[string]map[string]Range{
				"stats": {
					"points":   {Min: 0, Max: 100},
					"rebounds": {Min: 0, Max: 30},
					"assists":  {Min: 0, Max: 30},
				},
			},
		},
		model.DataTypeBettingOdds: {
			Required: []string{"game_id", "market_type", "odds", "sportsbook"},
			Types: map[string]FieldKind{
				"odds": KindNumber,
			},
			Ranges: map[string]Range{
				"odds": {Min: 1.01, Max: 100.0},
			},
		},
	}
}

// matchesKind reports whether a decoded payload value satisfies the
// expected field kind.
func matchesKind(v any, kind FieldKind) bool {
	switch kind {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindNumber:
		_, ok := model.AsFloat(v)
		return ok
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindMap:
		_, ok := v.(map[string]any)
		return ok
	default:
		return false
	}
}
