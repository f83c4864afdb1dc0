package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/catalog-engine/internal/failures"
)

func setupRepo(t *testing.T) failures.Repository {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "failures.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db.FailureRepository()
}

func TestFailureRepository_RecordAndList(t *testing.T) {
	repo := setupRepo(t)
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	list := []*failures.Failure{
		{RunID: "r1", Key: "a@2020-01-01", Kind: failures.KindWrite, Reason: "status 400", Payload: `{"name":"a"}`, CreatedAt: older},
		{RunID: "r1", Key: "b@2020-01-01", Kind: failures.KindTracker, Reason: "timeout", CreatedAt: older},
		{RunID: "r2", Key: "a@2020-01-01", Kind: failures.KindWrite, Reason: "status 422", CreatedAt: newer},
	}
	require.NoError(t, repo.Record(list))
	for _, f := range list {
		require.NotZero(t, f.ID, "Record should set IDs")
	}

	all, err := repo.List(failures.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "r2", all[0].RunID, "newest first")
	require.Equal(t, newer, all[0].CreatedAt)

	byRun, err := repo.List(failures.ListFilter{RunID: "r1"})
	require.NoError(t, err)
	require.Len(t, byRun, 2)

	byKey, err := repo.List(failures.ListFilter{Key: "a@2020-01-01", Kind: failures.KindWrite})
	require.NoError(t, err)
	require.Len(t, byKey, 2)

	limited, err := repo.List(failures.ListFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)

	tracker, err := repo.List(failures.ListFilter{Kind: failures.KindTracker})
	require.NoError(t, err)
	require.Len(t, tracker, 1)
	require.Empty(t, tracker[0].Payload)
}

func TestFailureRepository_RecordEmpty(t *testing.T) {
	repo := setupRepo(t)
	require.NoError(t, repo.Record(nil))
	all, err := repo.List(failures.ListFilter{})
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestFailureRepository_Clear(t *testing.T) {
	repo := setupRepo(t)
	require.NoError(t, repo.Record([]*failures.Failure{
		{RunID: "r1", Key: "a@2020-01-01", Kind: failures.KindWrite, Reason: "x"},
		{RunID: "r2", Key: "b@2020-01-01", Kind: failures.KindWrite, Reason: "y"},
		{RunID: "r2", Key: "c@2020-01-01", Kind: failures.KindWrite, Reason: "z"},
	}))

	n, err := repo.Clear("r2")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = repo.Clear("")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
