package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/betagouv/quotecheck/internal/extractor"
	"github.com/betagouv/quotecheck/internal/feedback"
	"github.com/betagouv/quotecheck/internal/pipeline"
	"github.com/betagouv/quotecheck/internal/regression"
	"github.com/betagouv/quotecheck/internal/store"
	"github.com/betagouv/quotecheck/internal/validator"
)

// env bundles the wired components a command needs.
type env struct {
	Store      store.Store
	Pipeline   *pipeline.Pipeline
	Feedback   *feedback.Correlator
	Regression *regression.Harness
}

func (e *env) Close() {
	_ = e.Store.Close()
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "quotecheck.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv opens the store, runs migrations and wires the pipeline.
func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	rules, err := loadRules()
	if err != nil {
		st.Close()
		return nil, err
	}

	return &env{
		Store:      st,
		Pipeline:   pipeline.New(cfg, st, extractor.NewRegistry(cfg), validator.New(rules), version),
		Feedback:   feedback.New(st),
		Regression: regression.New(st),
	}, nil
}

func loadRules() (validator.Rules, error) {
	if cfg.Validation.RulesFile != "" {
		return validator.LoadRules(cfg.Validation.RulesFile)
	}
	return validator.DefaultRules()
}
