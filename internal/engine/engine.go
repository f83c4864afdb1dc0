// Package engine coordinates one catalog run: it loads the snapshot, runs
// the four resolvers, merges their output into a change set and hands it to
// the writer.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/catalog-engine/internal/catalog"
	"github.com/zjrosen/catalog-engine/internal/changeset"
	"github.com/zjrosen/catalog-engine/internal/compiler"
	"github.com/zjrosen/catalog-engine/internal/dependents"
	"github.com/zjrosen/catalog-engine/internal/expiration"
	"github.com/zjrosen/catalog-engine/internal/failures"
	"github.com/zjrosen/catalog-engine/internal/log"
	"github.com/zjrosen/catalog-engine/internal/pubsub"
	"github.com/zjrosen/catalog-engine/internal/semver"
	"github.com/zjrosen/catalog-engine/internal/tracing"
	"github.com/zjrosen/catalog-engine/internal/treetype"
	"github.com/zjrosen/catalog-engine/internal/writer"
)

var (
	// ErrSnapshot is returned when the catalog could not be read.
	ErrSnapshot = errors.New("failed to load catalog snapshot")

	// ErrPhase is returned when a phase cannot start. Nothing is written.
	ErrPhase = errors.New("phase failed")
)

// Datastore is the catalog datastore as the engine uses it.
type Datastore interface {
	writer.Datastore
	ListModules(ctx context.Context) ([]catalog.Module, error)
}

// Deps are the engine's collaborators. Failures, Tracer and Events are optional.
type Deps struct {
	Datastore Datastore
	Toolkit   compiler.Toolkit
	Locator   compiler.Locator
	Tracker   expiration.Tracker

	TrackerRetry expiration.Config
	BatchSize    int
	ArtifactsDir string

	Failures failures.Repository
	Tracer   trace.Tracer
	Events   pubsub.Publisher[Summary]
}

// Engine runs catalog passes. Runs are independent; the engine keeps no
// state between them.
type Engine struct {
	deps   Deps
	writer *writer.Writer
	tracer trace.Tracer
}

// New creates an engine.
func New(deps Deps) *Engine {
	tracer := deps.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("catalog-engine")
	}
	return &Engine{
		deps:   deps,
		writer: writer.New(deps.Datastore, deps.Failures, deps.BatchSize),
		tracer: tracer,
	}
}

// phaseResults is everything the phases hand back to the coordinator.
type phaseResults struct {
	treeTypes   map[string]catalog.TreeType
	versions    map[string]string
	dependents  map[string][]catalog.Dependency
	expirations expiration.Result
}

// Run processes keys (ignored in full mode) and writes the resulting change
// set. The returned summary is non-nil even when err is set. Cancelling ctx
// does not interrupt phases already started; each external call has its own
// retry budget instead.
func (e *Engine) Run(ctx context.Context, keys []catalog.ModuleKey, mode Mode) (summary *Summary, err error) {
	start := time.Now()
	summary = &Summary{RunID: uuid.NewString(), Mode: mode}

	ctx, span := tracing.Start(ctx, e.tracer, tracing.SpanRun,
		trace.WithAttributes(
			attribute.String(tracing.AttrRunID, summary.RunID),
			attribute.String(tracing.AttrRunMode, string(mode)),
		))
	defer func() {
		summary.Duration = time.Since(start)
		e.finish(span, summary, err)
	}()

	if _, err := ParseMode(string(mode)); err != nil {
		return summary, err
	}
	e.publish(pubsub.StartedEvent, *summary)
	log.Info(log.CatEngine, "run started", "run_id", summary.RunID, "mode", mode, "requested", len(keys))

	ctx = context.WithoutCancel(ctx)

	snap, err := e.snapshot(ctx)
	if err != nil {
		return summary, err
	}

	var ws *workingSet
	if mode == ModeFull {
		ws = fullSet(snap)
	} else {
		ws = incrementalSet(snap, keys)
	}
	summary.Processed = len(ws.modules)
	span.SetAttributes(attribute.Int(tracing.AttrWorkingSet, len(ws.modules)))
	if len(ws.modules) == 0 {
		log.Info(log.CatEngine, "nothing to process", "run_id", summary.RunID)
		return summary, nil
	}

	res, err := e.runPhases(ctx, snap, ws)
	if err != nil {
		return summary, err
	}

	cs := e.merge(ctx, snap, res)
	summary.Changed = len(cs)

	trackerFailures := toFailures(summary.RunID, res.expirations.Failures)
	summary.TrackerFailures = len(trackerFailures)
	summary.Failures = append(summary.Failures, trackerFailures...)
	if e.deps.Failures != nil && len(trackerFailures) > 0 {
		if err := e.deps.Failures.Record(trackerFailures); err != nil {
			log.ErrorErr(log.CatEngine, "failed to record tracker failures", err, "count", len(trackerFailures))
		}
	}

	wres, werr := e.write(ctx, summary.RunID, cs)
	summary.Updated = wres.Updated
	summary.Deleted = wres.Deleted
	summary.WriteFailures = len(wres.Failed)
	summary.CacheInvalidated = wres.CacheInvalidated
	summary.Failures = append(summary.Failures, wres.Failed...)

	if e.deps.ArtifactsDir != "" {
		path, aerr := failures.WriteArtifact(e.deps.ArtifactsDir, summary.RunID, summary.Failures)
		if aerr != nil {
			log.ErrorErr(log.CatEngine, "failed to write failure artifact", aerr, "dir", e.deps.ArtifactsDir)
		}
		summary.ArtifactPath = path
	}
	return summary, werr
}

func (e *Engine) snapshot(ctx context.Context) (*catalog.Snapshot, error) {
	ctx, span := tracing.Start(ctx, e.tracer, tracing.SpanSnapshot)
	mods, err := e.deps.Datastore.ListModules(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSnapshot, err)
		tracing.End(span, err)
		return nil, err
	}
	snap := catalog.NewSnapshot(mods)
	span.SetAttributes(attribute.Int(tracing.AttrSnapshotSize, snap.Len()))
	tracing.End(span, nil)
	log.Info(log.CatEngine, "snapshot loaded", "modules", snap.Len())
	return snap, nil
}

// runPhases runs tree-type and semver in one goroutine, since they share the
// run's tree cache, and dependents and expiration in one goroutine each.
// Every phase only reads snap and fills its own field of the result.
// Per-module problems are recorded in the result; an error means a phase
// could not run at all.
func (e *Engine) runPhases(ctx context.Context, snap *catalog.Snapshot, ws *workingSet) (*phaseResults, error) {
	res := &phaseResults{}

	var g errgroup.Group
	g.Go(func() error {
		if e.deps.Toolkit == nil || e.deps.Locator == nil {
			return fmt.Errorf("%w: tree-type: no compiler toolkit configured", ErrPhase)
		}
		trees := compiler.NewTreeCache(e.deps.Toolkit, e.deps.Locator)
		res.treeTypes = e.classify(ctx, trees, ws)
		res.versions = e.derive(ctx, trees, snap, ws)
		log.Debug(log.CatEngine, "tree phases finished", "renders", trees.Renders())
		return nil
	})
	g.Go(func() error {
		_, span := tracing.Start(ctx, e.tracer, tracing.SpanDependents)
		res.dependents = dependents.NewBuilder(snap).Build(ws.modules)
		tracing.End(span, nil)
		return nil
	})
	g.Go(func() error {
		ctx, span := tracing.Start(ctx, e.tracer, tracing.SpanExpiration)
		if e.deps.Tracker == nil {
			err := fmt.Errorf("%w: expiration: no document tracker configured", ErrPhase)
			tracing.End(span, err)
			return err
		}
		res.expirations = expiration.NewResolver(e.deps.Tracker, e.deps.TrackerRetry).Resolve(ctx, ws.modules)
		for _, f := range res.expirations.Failures {
			span.AddEvent(tracing.EventTrackerFailure, trace.WithAttributes(attribute.String(tracing.AttrModuleKey, f.Key)))
		}
		tracing.End(span, nil)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) classify(ctx context.Context, trees *compiler.TreeCache, ws *workingSet) map[string]catalog.TreeType {
	ctx, span := tracing.Start(ctx, e.tracer, tracing.SpanTreeType)
	defer tracing.End(span, nil)

	classifier := treetype.NewClassifier(trees)
	out := make(map[string]catalog.TreeType, len(ws.modules))
	for i := range ws.modules {
		out[ws.modules[i].Key()] = classifier.Classify(ctx, &ws.modules[i])
	}
	return out
}

func (e *Engine) derive(ctx context.Context, trees *compiler.TreeCache, snap *catalog.Snapshot, ws *workingSet) map[string]string {
	ctx, span := tracing.Start(ctx, e.tracer, tracing.SpanSemver)
	defer tracing.End(span, nil)

	deriver := semver.NewDeriver(trees, e.deps.Toolkit)
	out := make(map[string]string)
	for _, name := range ws.chains {
		chain := snap.Chain(name)
		for key, v := range deriver.DeriveChain(ctx, chain, ws.targets, ws.targets == nil) {
			out[key] = v
		}
	}
	span.SetAttributes(attribute.Int(tracing.AttrChain, len(ws.chains)))
	return out
}

func (e *Engine) merge(ctx context.Context, snap *catalog.Snapshot, res *phaseResults) catalog.ChangeSet {
	_, span := tracing.Start(ctx, e.tracer, tracing.SpanMerge)
	m := changeset.NewMerger(snap)
	m.AddTreeTypes(res.treeTypes)
	m.AddVersions(res.versions)
	m.AddDependents(res.dependents)
	m.AddExpirations(res.expirations.Expirations)
	cs := m.ChangeSet()
	span.SetAttributes(attribute.Int(tracing.AttrDeltaCount, len(cs)))
	tracing.End(span, nil)
	return cs
}

func (e *Engine) write(ctx context.Context, runID string, cs catalog.ChangeSet) (*writer.Result, error) {
	ctx, span := tracing.Start(ctx, e.tracer, tracing.SpanWrite)
	res, err := e.writer.Write(ctx, runID, cs)
	span.SetAttributes(
		attribute.Int(tracing.AttrUpdated, res.Updated),
		attribute.Int(tracing.AttrFailed, len(res.Failed)),
	)
	if res.CacheInvalidated {
		span.AddEvent(tracing.EventCacheInvalidated)
	}
	tracing.End(span, err)
	return res, err
}

func (e *Engine) finish(span trace.Span, summary *Summary, err error) {
	if err != nil {
		summary.Error = err.Error()
		log.ErrorErr(log.CatEngine, "run failed", err, "run_id", summary.RunID,
			"updated", summary.Updated, "duration", summary.Duration)
		e.publish(pubsub.FailedEvent, *summary)
	} else {
		log.Info(log.CatEngine, "run finished", "run_id", summary.RunID, "processed", summary.Processed,
			"changed", summary.Changed, "updated", summary.Updated, "deleted", summary.Deleted,
			"tracker_failures", summary.TrackerFailures, "write_failures", summary.WriteFailures,
			"duration", summary.Duration)
		e.publish(pubsub.FinishedEvent, *summary)
	}
	tracing.End(span, err)
}

func (e *Engine) publish(t pubsub.EventType, s Summary) {
	if e.deps.Events != nil {
		e.deps.Events.Publish(t, s)
	}
}

func toFailures(runID string, list []expiration.Failure) []*failures.Failure {
	out := make([]*failures.Failure, 0, len(list))
	now := time.Now()
	for _, f := range list {
		payload, _ := json.Marshal(map[string]string{"reference": f.Reference})
		out = append(out, &failures.Failure{
			RunID:     runID,
			Key:       f.Key,
			Kind:      failures.KindTracker,
			Reason:    f.Err.Error(),
			Payload:   string(payload),
			CreatedAt: now,
		})
	}
	return out
}
