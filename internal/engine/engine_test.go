package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/catalog-engine/internal/catalog"
	"github.com/zjrosen/catalog-engine/internal/compiler"
	"github.com/zjrosen/catalog-engine/internal/datastore"
	"github.com/zjrosen/catalog-engine/internal/expiration"
	"github.com/zjrosen/catalog-engine/internal/failures"
	"github.com/zjrosen/catalog-engine/internal/httpclient"
	"github.com/zjrosen/catalog-engine/internal/pubsub"
	"github.com/zjrosen/catalog-engine/internal/tracing"
	"github.com/zjrosen/catalog-engine/internal/tracker"
	"github.com/zjrosen/catalog-engine/internal/writer"
)

const plainTree = `module: %s
  +--rw top
     +--rw name?   string
`

const grownTree = `module: %s
  +--rw top
     +--rw name?   string
     +--rw mtu?    uint16
`

var draftExpiry = time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC)

// fakeStore is an in-memory datastore that applies what it receives.
type fakeStore struct {
	mu          sync.Mutex
	mods        map[string]catalog.Module
	listErr     error
	unreachable bool
	batches     int
	deletes     int
	cacheCalls  int
}

func newFakeStore(mods ...catalog.Module) *fakeStore {
	s := &fakeStore{mods: make(map[string]catalog.Module)}
	s.add(mods...)
	return s
}

func (s *fakeStore) add(mods ...catalog.Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range mods {
		s.mods[m.Key()] = m
	}
}

func (s *fakeStore) get(key string) catalog.Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mods[key]
}

func (s *fakeStore) ListModules(context.Context) ([]catalog.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]catalog.Module, 0, len(s.mods))
	for _, m := range s.mods {
		out = append(out, m.Clone())
	}
	return out, nil
}

func (s *fakeStore) PatchModules(_ context.Context, deltas []*catalog.Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	if s.unreachable {
		return fmt.Errorf("%w: connection refused", datastore.ErrUnreachable)
	}
	for _, d := range deltas {
		m := s.mods[d.Key()]
		d.ApplyTo(&m)
		s.mods[d.Key()] = m
	}
	return nil
}

func (s *fakeStore) DeleteExpires(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	m := s.mods[key]
	m.Expires = nil
	s.mods[key] = m
	return nil
}

func (s *fakeStore) LoadCache(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheCalls++
	return nil
}

// fakeToolkit renders trees by file name and reports incompatibility for
// the schemas listed in breaking.
type fakeToolkit struct {
	trees    map[string]string
	breaking map[string]bool
}

func (f *fakeToolkit) Parse(_ context.Context, path string) (*compiler.AST, error) {
	if _, ok := f.trees[filepath.Base(path)]; !ok {
		return nil, &compiler.ParseError{Path: path, Err: errors.New("syntax error")}
	}
	return &compiler.AST{Path: path}, nil
}

func (f *fakeToolkit) RenderTree(_ context.Context, ast *compiler.AST) (string, error) {
	return f.trees[filepath.Base(ast.Path)], nil
}

func (f *fakeToolkit) CheckBackwardCompatible(_ context.Context, _, newSchema string) ([]compiler.CompatError, error) {
	if f.breaking[newSchema] {
		return []compiler.CompatError{{File: newSchema, Line: 12, Message: "node removed"}}, nil
	}
	return nil, nil
}

type fakeTracker struct {
	mu    sync.Mutex
	docs  map[string]*tracker.Document
	err   error
	calls []string
}

func (f *fakeTracker) Document(_ context.Context, name, _ string) (*tracker.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.err != nil {
		return nil, f.err
	}
	doc, ok := f.docs[name]
	if !ok {
		return nil, tracker.ErrNotFound
	}
	return doc, nil
}

type memRepo struct {
	mu       sync.Mutex
	recorded []*failures.Failure
}

func (m *memRepo) Record(list []*failures.Failure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded = append(m.recorded, list...)
	return nil
}

func (m *memRepo) List(failures.ListFilter) ([]*failures.Failure, error) { return m.recorded, nil }

func (m *memRepo) Clear(string) (int64, error) { return 0, nil }

func schema(key string) string {
	return "https://models.example/" + key + ".yang"
}

func module(name, revision string) catalog.Module {
	return catalog.Module{
		Name:              name,
		Revision:          revision,
		Organization:      "ietf",
		CompilationStatus: catalog.CompilationPassed,
		MaturityLevel:     catalog.MaturityRatified,
		ModuleType:        catalog.TypeModule,
		Schema:            schema(catalog.Key(name, revision)),
	}
}

type fixture struct {
	store   *fakeStore
	toolkit *fakeToolkit
	tracker *fakeTracker
	repo    *memRepo
	dir     string
	engine  *Engine
	spans   *tracetest.SpanRecorder
}

// newFixture builds a catalog with a two-revision chain a, a draft b that
// imports every revision of a, and a submodule c.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	b := module("b", "2021-06-01")
	b.MaturityLevel = catalog.MaturityInitial
	b.Reference = "https://tracker.example/doc/draft-ietf-b/03/"
	b.Dependencies = []catalog.Dependency{{Name: "a"}}

	c := module("c", "2021-07-01")
	c.ModuleType = catalog.TypeSubmodule

	f := &fixture{
		store: newFakeStore(module("a", "2020-01-01"), module("a", "2021-01-01"), b, c),
		toolkit: &fakeToolkit{
			trees: map[string]string{
				"a@2020-01-01.yang": fmt.Sprintf(plainTree, "a"),
				"a@2021-01-01.yang": fmt.Sprintf(plainTree, "a"),
				"b@2021-06-01.yang": fmt.Sprintf(plainTree, "b"),
			},
			breaking: map[string]bool{},
		},
		tracker: &fakeTracker{docs: map[string]*tracker.Document{
			"draft-ietf-b": {Name: "draft-ietf-b", MatchedVersion: "03", ExpiresAt: &draftExpiry},
		}},
		repo:  &memRepo{},
		dir:   t.TempDir(),
		spans: tracetest.NewSpanRecorder(),
	}
	f.writeModules(t)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(f.spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f.engine = New(Deps{
		Datastore:    f.store,
		Toolkit:      f.toolkit,
		Locator:      compiler.NewDirLocator(filepath.Join(f.dir, "modules")),
		Tracker:      f.tracker,
		TrackerRetry: expiration.Config{Attempts: 2},
		BatchSize:    2,
		ArtifactsDir: filepath.Join(f.dir, "failed"),
		Failures:     f.repo,
		Tracer:       tp.Tracer("test"),
	})
	return f
}

func (f *fixture) writeModules(t *testing.T) {
	t.Helper()
	dir := filepath.Join(f.dir, "modules")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	for name := range f.toolkit.trees {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("module"), 0o600))
	}
}

func TestRun_FullPopulatesCatalog(t *testing.T) {
	f := newFixture(t)

	summary, err := f.engine.Run(context.Background(), nil, ModeFull)
	require.NoError(t, err)
	require.NotEmpty(t, summary.RunID)
	require.Equal(t, 4, summary.Processed)
	require.Equal(t, 4, summary.Changed)
	require.Equal(t, 4, summary.Updated)
	require.Zero(t, summary.TrackerFailures)
	require.Zero(t, summary.WriteFailures)
	require.True(t, summary.CacheInvalidated)
	require.Empty(t, summary.ArtifactPath)
	require.Equal(t, 2, f.store.batches)
	require.Equal(t, 1, f.store.cacheCalls)

	a1 := f.store.get("a@2020-01-01")
	require.Equal(t, "1.0.0", a1.DerivedSemanticVersion)
	require.Equal(t, catalog.TreeNMDACompatible, a1.TreeType)
	require.Equal(t, catalog.ExpiredFalse, a1.Expired)
	require.Equal(t, []catalog.Dependency{{Name: "b", Revision: "2021-06-01", Schema: schema("b@2021-06-01")}}, a1.Dependents)

	a2 := f.store.get("a@2021-01-01")
	require.Equal(t, "1.0.1", a2.DerivedSemanticVersion, "identical trees bump patch")
	require.Len(t, a2.Dependents, 1)

	b := f.store.get("b@2021-06-01")
	require.Equal(t, "1.0.0", b.DerivedSemanticVersion)
	require.Equal(t, catalog.ExpiredFalse, b.Expired)
	require.NotNil(t, b.Expires)
	require.True(t, draftExpiry.Equal(*b.Expires))

	c := f.store.get("c@2021-07-01")
	require.Equal(t, catalog.TreeNotApplicable, c.TreeType)
	require.Equal(t, "1.0.0", c.DerivedSemanticVersion)

	require.Equal(t, []string{"draft-ietf-b"}, f.tracker.calls, "ratified modules are never looked up")
}

func TestRun_SecondRunChangesNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Run(context.Background(), nil, ModeFull)
	require.NoError(t, err)
	before := f.store.batches

	summary, err := f.engine.Run(context.Background(), nil, ModeFull)
	require.NoError(t, err)
	require.Zero(t, summary.Changed)
	require.Zero(t, summary.Updated)
	require.False(t, summary.CacheInvalidated)
	require.Equal(t, before, f.store.batches)
	require.Equal(t, 1, f.store.cacheCalls, "no cache call for an empty change set")
}

func TestRun_IncrementalTouchesRelatedRecords(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Run(context.Background(), nil, ModeFull)
	require.NoError(t, err)
	f.tracker.calls = nil

	a3 := module("a", "2022-01-01")
	d := module("d", "2022-02-01")
	d.MaturityLevel = catalog.MaturityAdopted
	d.Dependencies = []catalog.Dependency{{Name: "b", Revision: "2021-06-01"}, {Name: "missing"}}
	f.store.add(a3, d)
	f.toolkit.trees["a@2022-01-01.yang"] = fmt.Sprintf(grownTree, "a")
	f.toolkit.trees["d@2022-02-01.yang"] = fmt.Sprintf(plainTree, "d")
	f.toolkit.breaking[a3.Schema] = true
	f.writeModules(t)

	summary, err := f.engine.Run(context.Background(), []catalog.ModuleKey{a3.Identity(), d.Identity()}, ModeIncremental)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Processed, "a@2022, b and d")

	got := f.store.get("a@2022-01-01")
	require.Equal(t, "2.0.0", got.DerivedSemanticVersion, "incompatible revision bumps major")
	require.Equal(t, []catalog.Dependency{{Name: "b", Revision: "2021-06-01", Schema: schema("b@2021-06-01")}}, got.Dependents)

	b := f.store.get("b@2021-06-01")
	require.Equal(t, []catalog.Dependency{{Name: "d", Revision: "2022-02-01", Schema: schema("d@2022-02-01")}}, b.Dependents)

	dd := f.store.get("d@2022-02-01")
	require.Equal(t, "1.0.0", dd.DerivedSemanticVersion)
	require.Equal(t, catalog.ExpiredNotApplicable, dd.Expired, "no reference")

	require.Equal(t, "1.0.1", f.store.get("a@2021-01-01").DerivedSemanticVersion, "earlier revisions keep their versions")
	require.Equal(t, []string{"draft-ietf-b"}, f.tracker.calls)
}

func TestRun_IncrementalUnknownKeysDoNothing(t *testing.T) {
	f := newFixture(t)

	summary, err := f.engine.Run(context.Background(), []catalog.ModuleKey{{Name: "zz", Revision: "2020-01-01"}}, ModeIncremental)
	require.NoError(t, err)
	require.Zero(t, summary.Processed)
	require.Zero(t, f.store.batches)
	require.Zero(t, f.store.cacheCalls)
	require.Empty(t, f.tracker.calls)
}

func TestRun_TrackerFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.tracker.err = &httpclient.TransportError{Method: "GET", URL: "https://tracker.example/doc/draft-ietf-b", Err: errors.New("timeout")}

	summary, err := f.engine.Run(context.Background(), nil, ModeFull)
	require.NoError(t, err)
	require.Equal(t, 1, summary.TrackerFailures)
	require.Equal(t, 4, summary.Updated, "b is still written without expiration fields")
	require.Len(t, f.tracker.calls, 2, "one retry")

	b := f.store.get("b@2021-06-01")
	require.Empty(t, b.Expired)
	require.Nil(t, b.Expires)
	require.Equal(t, catalog.TreeNMDACompatible, b.TreeType)

	require.Len(t, f.repo.recorded, 1)
	require.Equal(t, failures.KindTracker, f.repo.recorded[0].Kind)
	require.Equal(t, "b@2021-06-01", f.repo.recorded[0].Key)
	require.Equal(t, summary.RunID, f.repo.recorded[0].RunID)
	require.JSONEq(t, `{"reference":"https://tracker.example/doc/draft-ietf-b/03/"}`, f.repo.recorded[0].Payload)

	require.Equal(t, failures.ArtifactPath(filepath.Join(f.dir, "failed"), summary.RunID), summary.ArtifactPath)
	require.FileExists(t, summary.ArtifactPath)
}

func TestRun_UnreachableDatastoreIsFatal(t *testing.T) {
	f := newFixture(t)
	f.store.unreachable = true

	summary, err := f.engine.Run(context.Background(), nil, ModeFull)
	require.ErrorIs(t, err, writer.ErrDatastoreUnreachable)
	require.NotNil(t, summary)
	require.NotEmpty(t, summary.Error)
	require.Zero(t, summary.Updated)
	require.Zero(t, f.store.cacheCalls)
}

func TestRun_SnapshotFailure(t *testing.T) {
	f := newFixture(t)
	f.store.listErr = errors.New("connection refused")

	_, err := f.engine.Run(context.Background(), nil, ModeFull)
	require.ErrorIs(t, err, ErrSnapshot)
	require.Zero(t, f.store.batches)
}

func TestRun_MissingTrackerStopsBeforeWrite(t *testing.T) {
	f := newFixture(t)
	f.engine.deps.Tracker = nil

	summary, err := f.engine.Run(context.Background(), nil, ModeFull)
	require.ErrorIs(t, err, ErrPhase)
	require.ErrorContains(t, err, "expiration")
	require.NotEmpty(t, summary.Error)
	require.Zero(t, f.store.batches)
	require.Zero(t, f.store.cacheCalls)
}

func TestRun_InvalidMode(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Run(context.Background(), nil, Mode("partial"))
	require.ErrorIs(t, err, ErrInvalidMode)
}

func TestRun_PublishesLifecycleEvents(t *testing.T) {
	f := newFixture(t)
	broker := pubsub.NewBroker[Summary]()
	defer broker.Close()
	f.engine.deps.Events = broker

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := broker.Subscribe(ctx)

	summary, err := f.engine.Run(context.Background(), nil, ModeFull)
	require.NoError(t, err)

	started := <-events
	require.Equal(t, pubsub.StartedEvent, started.Type)
	require.Equal(t, summary.RunID, started.Payload.RunID)

	finished := <-events
	require.Equal(t, pubsub.FinishedEvent, finished.Type)
	require.Equal(t, 4, finished.Payload.Updated)
}

func TestRun_RecordsPhaseSpans(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Run(context.Background(), nil, ModeFull)
	require.NoError(t, err)

	var names []string
	for _, s := range f.spans.Ended() {
		names = append(names, s.Name())
	}
	for _, want := range []string{
		tracing.SpanRun, tracing.SpanSnapshot, tracing.SpanTreeType, tracing.SpanSemver,
		tracing.SpanDependents, tracing.SpanExpiration, tracing.SpanMerge, tracing.SpanWrite,
	} {
		require.True(t, slices.Contains(names, want), "missing span %s", want)
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("full")
	require.NoError(t, err)
	require.Equal(t, ModeFull, m)

	_, err = ParseMode("")
	require.ErrorIs(t, err, ErrInvalidMode)
}
