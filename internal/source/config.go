package source

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/linepulse/linepulse/internal/model"
)

// LoadRegistrations reads source registrations from a YAML file.
// The file has a top-level "sources" key:
//
//	sources:
//	  - source_id: sportradar
//	    tier: premium
//	    data_types: [live_scores, player_stats]
//	    base_url: https://api.sportradar.example/v1
//	    quota:
//	      limits: {live_data: 60}
//	      hard_caps: {live_data: 90}
func LoadRegistrations(path string) ([]model.SourceRegistration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read registrations %s", path)
	}

	var wrapper struct {
		Sources []model.SourceRegistration `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "source: parse registrations")
	}

	for i, reg := range wrapper.Sources {
		if reg.SourceID == "" {
			return nil, eris.Errorf("source: registration %d missing source_id", i)
		}
		if len(reg.DataTypes) == 0 {
			return nil, eris.Errorf("source: %s declares no data types", reg.SourceID)
		}
		if reg.Tier == "" {
			wrapper.Sources[i].Tier = model.TierExperimental
		}
	}

	return wrapper.Sources, nil
}

// DefaultRegistrations is the built-in source catalogue used when no
// registration file is configured.
func DefaultRegistrations() []model.SourceRegistration {
	return []model.SourceRegistration{
		{
			SourceID: "sportradar",
			Tier:     model.TierPremium,
			DataTypes: []model.DataType{
				model.DataTypeLiveScores,
				model.DataTypePlayerStats,
				model.DataTypeTeamStats,
				model.DataTypeHistoricalData,
			},
		},
		{
			SourceID: "odds_api",
			Tier:     model.TierVerified,
			DataTypes: []model.DataType{
				model.DataTypeBettingOdds,
				model.DataTypeLineMovements,
			},
		},
		{
			SourceID:  "prizepicks",
			Tier:      model.TierCommunity,
			DataTypes: []model.DataType{model.DataTypePlayerProps},
		},
		{
			SourceID: "espn",
			Tier:     model.TierVerified,
			DataTypes: []model.DataType{
				model.DataTypeLiveScores,
				model.DataTypeInjuryReports,
				model.DataTypeNewsSentiment,
			},
		},
	}
}
