package model

// DataType identifies a category of sports data served by upstream providers.
type DataType string

const (
	DataTypeLiveScores      DataType = "live_scores"
	DataTypePlayerStats     DataType = "player_stats"
	DataTypeTeamStats       DataType = "team_stats"
	DataTypeInjuryReports   DataType = "injury_reports"
	DataTypeWeatherData     DataType = "weather_data"
	DataTypeBettingOdds     DataType = "betting_odds"
	DataTypeLineMovements   DataType = "line_movements"
	DataTypePlayerProps     DataType = "player_props"
	DataTypeHistoricalData  DataType = "historical_data"
	DataTypeNewsSentiment   DataType = "news_sentiment"
	DataTypeSocialSentiment DataType = "social_sentiment"
	DataTypeRefereeData     DataType = "referee_data"
	DataTypeVenueData       DataType = "venue_data"
)

// AllDataTypes lists every known data type, for validation and iteration.
func AllDataTypes() []DataType {
	return []DataType{
		DataTypeLiveScores, DataTypePlayerStats, DataTypeTeamStats,
		DataTypeInjuryReports, DataTypeWeatherData, DataTypeBettingOdds,
		DataTypeLineMovements, DataTypePlayerProps, DataTypeHistoricalData,
		DataTypeNewsSentiment, DataTypeSocialSentiment, DataTypeRefereeData,
		DataTypeVenueData,
	}
}

// ParseDataType validates a wire-format data type string.
func ParseDataType(s string) (DataType, bool) {
	for _, dt := range AllDataTypes() {
		if string(dt) == s {
			return dt, true
		}
	}
	return "", false
}

// EndpointCategory groups data types into quota buckets. Providers meter
// live endpoints and bulk historical endpoints separately.
type EndpointCategory string

const (
	EndpointLiveData       EndpointCategory = "live_data"
	EndpointHistoricalData EndpointCategory = "historical_data"
	EndpointPlayerStats    EndpointCategory = "player_stats"
	EndpointOddsData       EndpointCategory = "odds_data"
)

// Endpoint returns the quota bucket a data type is fetched through.
func (dt DataType) Endpoint() EndpointCategory {
	switch dt {
	case DataTypePlayerStats, DataTypePlayerProps:
		return EndpointPlayerStats
	case DataTypeBettingOdds, DataTypeLineMovements:
		return EndpointOddsData
	case DataTypeHistoricalData:
		return EndpointHistoricalData
	default:
		return EndpointLiveData
	}
}
