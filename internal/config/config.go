package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Aggregate AggregateConfig `yaml:"aggregate" mapstructure:"aggregate"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SourcesConfig configures source registration loading.
type SourcesConfig struct {
	// File is a YAML source catalogue; empty means the built-in defaults.
	File string `yaml:"file" mapstructure:"file"`
}

// AggregateConfig configures the fetch pipeline.
type AggregateConfig struct {
	QualityThreshold     float64 `yaml:"quality_threshold" mapstructure:"quality_threshold"`
	MaxConcurrentFetches int     `yaml:"max_concurrent_fetches" mapstructure:"max_concurrent_fetches"`
	CacheTTLSecs         int     `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	FetchTimeoutSecs     int     `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	OutboundRate         float64 `yaml:"outbound_rate" mapstructure:"outbound_rate"`
	SharedCounter        bool    `yaml:"shared_counter" mapstructure:"shared_counter"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LINEPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "linepulse.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("aggregate.quality_threshold", 0.7)
	v.SetDefault("aggregate.max_concurrent_fetches", 50)
	v.SetDefault("aggregate.cache_ttl_secs", 300)
	v.SetDefault("aggregate.fetch_timeout_secs", 30)
	v.SetDefault("aggregate.outbound_rate", 0)
	v.SetDefault("aggregate.shared_counter", false)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the loaded configuration before any command runs.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite", "postgres", "memory":
	default:
		problems = append(problems, "store.driver must be sqlite, postgres, or memory")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required for the postgres driver")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be between 1 and 65535")
	}
	if c.Aggregate.QualityThreshold < 0 || c.Aggregate.QualityThreshold > 1 {
		problems = append(problems, "aggregate.quality_threshold must be between 0 and 1")
	}
	if c.Aggregate.MaxConcurrentFetches < 1 || c.Aggregate.MaxConcurrentFetches > 500 {
		problems = append(problems, "aggregate.max_concurrent_fetches must be between 1 and 500")
	}
	if c.Aggregate.OutboundRate < 0 {
		problems = append(problems, "aggregate.outbound_rate must be >= 0")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
