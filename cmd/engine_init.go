package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/linepulse/linepulse/internal/aggregate"
	"github.com/linepulse/linepulse/internal/model"
	"github.com/linepulse/linepulse/internal/source"
	"github.com/linepulse/linepulse/internal/store"
)

// engineEnv holds the initialized store and aggregation manager needed by
// the fetch/serve commands.
type engineEnv struct {
	Store   store.Store
	Manager *aggregate.Manager
}

// Close releases resources held by the engine environment.
func (ee *engineEnv) Close() {
	if ee.Store != nil {
		_ = ee.Store.Close()
	}
}

// initEngine sets up the store, runs migrations, builds the manager, and
// registers every configured source. Callers should defer env.Close().
func initEngine(ctx context.Context) (*engineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	mgr := aggregate.NewManager(aggregate.Config{
		QualityThreshold:     cfg.Aggregate.QualityThreshold,
		MaxConcurrentFetches: cfg.Aggregate.MaxConcurrentFetches,
		DefaultTTL:           time.Duration(cfg.Aggregate.CacheTTLSecs) * time.Second,
		FetchTimeout:         time.Duration(cfg.Aggregate.FetchTimeoutSecs) * time.Second,
		OutboundRate:         cfg.Aggregate.OutboundRate,
		UseSharedCounter:     cfg.Aggregate.SharedCounter,
	}, st)

	regs, err := loadRegistrations()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	for _, reg := range regs {
		mgr.RegisterSource(reg, source.NewHTTPTransport(reg.BaseURL, reg.Headers))
	}

	zap.L().Info("engine initialized",
		zap.String("store", cfg.Store.Driver),
		zap.Int("sources", len(regs)),
	)

	return &engineEnv{Store: st, Manager: mgr}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "linepulse.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func loadRegistrations() ([]model.SourceRegistration, error) {
	if cfg.Sources.File == "" {
		return source.DefaultRegistrations(), nil
	}
	return source.LoadRegistrations(cfg.Sources.File)
}
