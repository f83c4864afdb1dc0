package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/catalog-engine/internal/catalog"
	"github.com/zjrosen/catalog-engine/internal/datastore"
	"github.com/zjrosen/catalog-engine/internal/failures"
)

type fakeStore struct {
	reject      map[string]bool
	rejectDel   map[string]bool
	unreachable bool
	cacheErr    error

	// unreachableAt makes the n-th PATCH call (1-based) and every later one fail.
	unreachableAt int

	batches    [][]string
	deletes    []string
	cacheCalls int
}

func (f *fakeStore) PatchModules(_ context.Context, deltas []*catalog.Delta) error {
	keys := make([]string, len(deltas))
	for i, d := range deltas {
		keys[i] = d.Key()
	}
	f.batches = append(f.batches, keys)
	if f.unreachable || (f.unreachableAt > 0 && len(f.batches) >= f.unreachableAt) {
		return fmt.Errorf("%w: connection refused", datastore.ErrUnreachable)
	}
	for _, k := range keys {
		if f.reject[k] {
			return &datastore.RejectionError{Status: 400, Body: "bad " + k, Keys: keys}
		}
	}
	return nil
}

func (f *fakeStore) DeleteExpires(_ context.Context, key string) error {
	f.deletes = append(f.deletes, key)
	if f.rejectDel[key] {
		return &datastore.RejectionError{Status: 403, Keys: []string{key}}
	}
	return nil
}

func (f *fakeStore) LoadCache(context.Context) error {
	f.cacheCalls++
	return f.cacheErr
}

type memRepo struct {
	recorded []*failures.Failure
}

func (m *memRepo) Record(list []*failures.Failure) error {
	m.recorded = append(m.recorded, list...)
	return nil
}

func (m *memRepo) List(failures.ListFilter) ([]*failures.Failure, error) { return m.recorded, nil }

func (m *memRepo) Clear(string) (int64, error) { return 0, nil }

func changeSet(names ...string) catalog.ChangeSet {
	cs := catalog.ChangeSet{}
	for _, n := range names {
		v := "1.0.0"
		d := &catalog.Delta{Name: n, Revision: "2020-01-01", DerivedSemanticVersion: &v}
		cs[d.Key()] = d
	}
	return cs
}

func TestWrite_EmptyChangeSetMakesNoCalls(t *testing.T) {
	store := &fakeStore{}
	res, err := New(store, nil, 2).Write(context.Background(), "run", catalog.ChangeSet{})
	require.NoError(t, err)
	require.Zero(t, res.Updated)
	require.Empty(t, store.batches)
	require.Zero(t, store.cacheCalls)
}

func TestWrite_Chunks(t *testing.T) {
	store := &fakeStore{}
	res, err := New(store, nil, 2).Write(context.Background(), "run", changeSet("a", "b", "c", "d", "e"))
	require.NoError(t, err)
	require.Equal(t, 5, res.Updated)
	require.Equal(t, [][]string{
		{"a@2020-01-01", "b@2020-01-01"},
		{"c@2020-01-01", "d@2020-01-01"},
		{"e@2020-01-01"},
	}, store.batches)
	require.Equal(t, 1, store.cacheCalls)
	require.True(t, res.CacheInvalidated)
}

func TestWrite_RejectedRecordIsIsolated(t *testing.T) {
	store := &fakeStore{reject: map[string]bool{"b@2020-01-01": true}}
	repo := &memRepo{}

	res, err := New(store, repo, 10).Write(context.Background(), "run-7", changeSet("a", "b", "c"))
	require.NoError(t, err)
	require.Equal(t, 2, res.Updated)
	require.Len(t, res.Failed, 1)
	require.Len(t, store.batches, 4, "one batch plus one retry per record")

	require.Len(t, repo.recorded, 1)
	f := repo.recorded[0]
	require.Equal(t, "run-7", f.RunID)
	require.Equal(t, "b@2020-01-01", f.Key)
	require.Equal(t, failures.KindWrite, f.Kind)
	require.Contains(t, f.Reason, "bad b@2020-01-01")
	require.True(t, strings.Contains(f.Payload, `"derived-semantic-version":"1.0.0"`))
	require.Equal(t, 1, store.cacheCalls)
}

func TestWrite_DeleteExpires(t *testing.T) {
	store := &fakeStore{rejectDel: map[string]bool{"locked@2020-01-01": true}}
	repo := &memRepo{}
	expired := catalog.ExpiredTrue
	cs := catalog.ChangeSet{
		"only@2020-01-01":   {Name: "only", Revision: "2020-01-01", DeleteExpires: true},
		"both@2020-01-01":   {Name: "both", Revision: "2020-01-01", Expired: &expired, DeleteExpires: true},
		"locked@2020-01-01": {Name: "locked", Revision: "2020-01-01", DeleteExpires: true},
	}

	res, err := New(store, repo, 10).Write(context.Background(), "run", cs)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"both@2020-01-01"}}, store.batches)
	require.ElementsMatch(t, []string{"both@2020-01-01", "locked@2020-01-01", "only@2020-01-01"}, store.deletes)
	require.Equal(t, 2, res.Deleted)
	require.Equal(t, 2, res.Updated)
	require.Len(t, repo.recorded, 1)
	require.JSONEq(t, `{"delete":["expires"]}`, repo.recorded[0].Payload)
}

func TestWrite_DeleteSkippedWhenPatchFails(t *testing.T) {
	store := &fakeStore{reject: map[string]bool{"x@2020-01-01": true}}
	expired := catalog.ExpiredTrue
	cs := catalog.ChangeSet{
		"x@2020-01-01": {Name: "x", Revision: "2020-01-01", Expired: &expired, DeleteExpires: true},
	}

	res, err := New(store, nil, 10).Write(context.Background(), "run", cs)
	require.NoError(t, err)
	require.Empty(t, store.deletes)
	require.Zero(t, res.Updated)
	require.Contains(t, res.Failed[0].Payload, `"delete":["expires"]`)
}

func TestWrite_UnreachableIsFatal(t *testing.T) {
	store := &fakeStore{unreachable: true}
	_, err := New(store, nil, 10).Write(context.Background(), "run", changeSet("a", "b"))
	require.ErrorIs(t, err, ErrDatastoreUnreachable)
	require.ErrorIs(t, err, datastore.ErrUnreachable)
	require.Len(t, store.batches, 1)
	require.Zero(t, store.cacheCalls)
}

func TestWrite_CacheFailureIsNotFatal(t *testing.T) {
	store := &fakeStore{cacheErr: errors.New("status 502")}
	res, err := New(store, nil, 0).Write(context.Background(), "run", changeSet("a"))
	require.NoError(t, err)
	require.Equal(t, 1, res.Updated)
	require.False(t, res.CacheInvalidated)
	require.Equal(t, 1, store.cacheCalls)
}

func TestWrite_UnreachableMidPhaseReportsProgress(t *testing.T) {
	store := &fakeStore{unreachableAt: 3}
	repo := &memRepo{}

	res, err := New(store, repo, 1).Write(context.Background(), "run-9", changeSet("a", "b", "c"))
	require.ErrorIs(t, err, ErrDatastoreUnreachable)
	require.Len(t, store.batches, 3)
	require.Equal(t, 2, res.Updated, "batches accepted before the outage stay counted")
	require.Zero(t, store.cacheCalls)

	require.Len(t, res.Failed, 1)
	require.Equal(t, "c@2020-01-01", res.Failed[0].Key)
	require.Equal(t, "aborted: datastore unreachable", res.Failed[0].Reason)
	require.Contains(t, res.Failed[0].Payload, `"derived-semantic-version":"1.0.0"`)
	require.Equal(t, res.Failed, repo.recorded)
}

func TestWrite_UnreachableBeforeDeleteKeepsDeleteOnly(t *testing.T) {
	store := &fakeStore{unreachableAt: 2}
	expired := catalog.ExpiredTrue
	cs := catalog.ChangeSet{
		"a@2020-01-01": {Name: "a", Revision: "2020-01-01", Expired: &expired, DeleteExpires: true},
		"b@2020-01-01": {Name: "b", Revision: "2020-01-01", Expired: &expired},
	}

	res, err := New(store, nil, 1).Write(context.Background(), "run", cs)
	require.ErrorIs(t, err, ErrDatastoreUnreachable)
	require.Empty(t, store.deletes)
	require.Zero(t, res.Updated)
	require.Len(t, res.Failed, 2)

	byKey := map[string]*failures.Failure{}
	for _, f := range res.Failed {
		byKey[f.Key] = f
	}
	require.JSONEq(t, `{"delete":["expires"]}`, byKey["a@2020-01-01"].Payload, "patch already applied")
	require.Contains(t, byKey["b@2020-01-01"].Payload, `"patch"`)
}
