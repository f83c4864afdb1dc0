package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/zjrosen/catalog-engine/internal/compiler"
	"github.com/zjrosen/catalog-engine/internal/config"
	"github.com/zjrosen/catalog-engine/internal/datastore"
	"github.com/zjrosen/catalog-engine/internal/engine"
	"github.com/zjrosen/catalog-engine/internal/expiration"
	"github.com/zjrosen/catalog-engine/internal/httpclient"
	"github.com/zjrosen/catalog-engine/internal/infrastructure/sqlite"
	"github.com/zjrosen/catalog-engine/internal/pubsub"
	"github.com/zjrosen/catalog-engine/internal/tracing"
	"github.com/zjrosen/catalog-engine/internal/tracker"
)

// services is everything a run needs, built from config.
type services struct {
	engine  *engine.Engine
	db      *sqlite.DB
	tracing *tracing.Provider
	events  *pubsub.Broker[engine.Summary]
}

func openServices(cfg config.Config) (*services, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := sqlite.NewDB(cfg.Failures.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening failure log: %w", err)
	}

	tp, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}

	storeHTTP := httpclient.DefaultConfig()
	storeHTTP.Timeout = cfg.Datastore.Timeout
	store := datastore.NewClient(datastore.Config{
		BaseURL:  cfg.Datastore.URL,
		CacheURL: cfg.Datastore.CacheURL,
		Attempts: cfg.Datastore.Retries,
		Backoff:  cfg.Datastore.Backoff,
	}, httpclient.New(storeHTTP))

	trackerHTTP := httpclient.DefaultConfig()
	trackerHTTP.Timeout = cfg.Tracker.Timeout

	locator := compiler.NewDirLocator(cfg.Compiler.ModulesDir)
	events := pubsub.NewBroker[engine.Summary]()

	eng := engine.New(engine.Deps{
		Datastore: store,
		Toolkit:   compiler.NewExec(cfg.Compiler.Binary, locator),
		Locator:   locator,
		Tracker:   tracker.NewClient(cfg.Tracker.URL, httpclient.New(trackerHTTP)),
		TrackerRetry: expiration.Config{
			Attempts: cfg.Tracker.Retries,
			Backoff:  cfg.Tracker.Backoff,
		},
		BatchSize:    cfg.Datastore.BatchSize,
		ArtifactsDir: cfg.Failures.ArtifactsDir,
		Failures:     db.FailureRepository(),
		Tracer:       tp.Tracer(),
		Events:       events,
	})

	return &services{engine: eng, db: db, tracing: tp, events: events}, nil
}

func (s *services) Close(ctx context.Context) error {
	s.events.Close()
	return errors.Join(s.tracing.Shutdown(ctx), s.db.Close())
}
