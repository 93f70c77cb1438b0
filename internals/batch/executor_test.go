package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"schoolrecords_backend/internals/helpers/apperr"
	"schoolrecords_backend/internals/store"
	"schoolrecords_backend/internals/store/memstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func makeOps(n int) []store.Op {
	ops := make([]store.Op, n)
	for i := range ops {
		ops[i] = store.SetOp("pupils", fmt.Sprintf("p%04d", i), store.Fields{"n": i})
	}
	return ops
}

func newSnapshot(t *testing.T, s store.DocumentStore) DocTracker {
	t.Helper()
	require.NoError(t, s.Set(context.Background(), "snapshots", "snap-1", store.Fields{
		"status":             StatusInProgress,
		"lastCompletedChunk": -1,
	}, false))
	return DocTracker{Store: s, Collection: "snapshots", DocID: "snap-1"}
}

type snapshotDoc struct {
	Status                   string `json:"status"`
	LastCompletedChunk       int    `json:"lastCompletedChunk"`
	TotalOperationsCompleted int    `json:"totalOperationsCompleted"`
	FailedChunk              *int   `json:"failedChunk"`
	Error                    string `json:"error"`
}

func readSnapshot(t *testing.T, s store.DocumentStore) snapshotDoc {
	t.Helper()
	d, err := s.Get(context.Background(), "snapshots", "snap-1")
	require.NoError(t, err)
	var out snapshotDoc
	require.NoError(t, d.Decode(&out))
	return out
}

func TestRunCommitsCeilChunks(t *testing.T) {
	cases := []struct {
		ops, chunk, commits int
	}{
		{ops: 0, chunk: 400, commits: 0},
		{ops: 1, chunk: 400, commits: 1},
		{ops: 400, chunk: 400, commits: 1},
		{ops: 401, chunk: 400, commits: 2},
		{ops: 1000, chunk: 400, commits: 3},
		{ops: 7, chunk: 2, commits: 4},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d_ops_by_%d", tc.ops, tc.chunk), func(t *testing.T) {
			s := memstore.New()
			tracker := newSnapshot(t, s)
			ex := NewExecutor(s, tc.chunk, nil)

			p, err := ex.Run(context.Background(), makeOps(tc.ops), tracker)
			require.NoError(t, err)
			assert.Equal(t, tc.commits, s.Commits())
			assert.Equal(t, tc.ops, p.TotalOperationsCompleted)
			assert.Equal(t, tc.ops, s.Count("pupils"))

			snap := readSnapshot(t, s)
			assert.Equal(t, StatusCompleted, snap.Status)
			assert.Equal(t, tc.ops, snap.TotalOperationsCompleted)
			assert.Equal(t, tc.commits-1, snap.LastCompletedChunk)
		})
	}
}

func TestRunPartialFailureKeepsCommittedChunks(t *testing.T) {
	s := memstore.New()
	tracker := newSnapshot(t, s)
	ex := NewExecutor(s, 3, nil)
	cause := errors.New("quota exceeded")
	s.FailCommit(3, cause)

	p, err := ex.Run(context.Background(), makeOps(10), tracker)
	var pe *apperr.PartialExecutionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "snap-1", pe.SnapshotID)
	assert.Equal(t, 2, pe.FailedChunk)
	assert.Equal(t, 6, pe.CompletedOps)
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, 6, p.TotalOperationsCompleted)
	assert.Equal(t, 6, s.Count("pupils"), "committed chunks are not rolled back")

	snap := readSnapshot(t, s)
	assert.Equal(t, StatusFailed, snap.Status)
	require.NotNil(t, snap.FailedChunk)
	assert.Equal(t, 2, *snap.FailedChunk)
	assert.Equal(t, 1, snap.LastCompletedChunk)
	assert.Equal(t, 6, snap.TotalOperationsCompleted)
	assert.Contains(t, snap.Error, "quota exceeded")
}

func TestRunFirstChunkFailureIsNotPartial(t *testing.T) {
	s := memstore.New()
	tracker := newSnapshot(t, s)
	ex := NewExecutor(s, 5, nil)
	s.FailCommit(1, errors.New("unavailable"))

	_, err := ex.Run(context.Background(), makeOps(8), tracker)
	require.Error(t, err)
	var pe *apperr.PartialExecutionError
	assert.False(t, errors.As(err, &pe))
	assert.Equal(t, 0, s.Count("pupils"))
	assert.Equal(t, StatusFailed, readSnapshot(t, s).Status)
}

func TestRunIgnoresCallerCancellation(t *testing.T) {
	s := memstore.New()
	ex := NewExecutor(s, 2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := ex.Run(ctx, makeOps(5), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, p.TotalOperationsCompleted)
}

func TestNewExecutorClampsChunkSize(t *testing.T) {
	s := memstore.New(memstore.WithMaxBatchOps(50))
	assert.Equal(t, 50, NewExecutor(s, 400, nil).ChunkSize())
	assert.Equal(t, 50, NewExecutor(s, 0, nil).ChunkSize())
	assert.Equal(t, 10, NewExecutor(s, 10, nil).ChunkSize())
}

func TestResumeContinuesAfterLastCompletedChunk(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	tracker := newSnapshot(t, s)
	ex := NewExecutor(s, 3, nil)
	journal := Journal{Store: s, Collection: "journal"}

	ops := makeOps(10)
	chunks := Chunks(ops, ex.ChunkSize())
	require.NoError(t, journal.Write(ctx, "snap-1", chunks))

	s.FailCommit(2, errors.New("quota exceeded"))
	p, err := ex.Run(ctx, ops, tracker)
	var pe *apperr.PartialExecutionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.FailedChunk)
	assert.Equal(t, 3, s.Count("pupils"))

	replay, err := journal.Load(ctx, "snap-1")
	require.NoError(t, err)
	require.Len(t, replay, 4)

	commitsBefore := s.Commits()
	p, err = ex.Resume(ctx, replay, p, tracker)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Commits()-commitsBefore, "committed chunk 0 is not replayed")
	assert.Equal(t, 10, p.TotalOperationsCompleted)
	assert.Equal(t, 10, s.Count("pupils"))

	snap := readSnapshot(t, s)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 3, snap.LastCompletedChunk)
	assert.Equal(t, 10, snap.TotalOperationsCompleted)
}

func TestResumeFailureAfterProgressIsPartial(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	ex := NewExecutor(s, 2, nil)
	chunks := Chunks(makeOps(6), 2)
	p := Progress{ChunkSize: 2, TotalChunks: 3, TotalOperations: 6, LastCompletedChunk: 0, TotalOperationsCompleted: 2}

	s.FailCommit(1, errors.New("unavailable"))
	_, err := ex.Resume(ctx, chunks, p, nil)
	var pe *apperr.PartialExecutionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.FailedChunk)
	assert.Equal(t, 2, pe.CompletedOps)
}

func TestJournalKeepsServerTimestampsUnresolved(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	journal := Journal{Store: s, Collection: "journal"}
	chunks := [][]store.Op{
		{store.MergeOp("requests", "r1", store.Fields{"status": "completed", "completedAt": store.ServerTimestamp()})},
		{store.DeleteOp("pupils", "p1")},
	}
	require.NoError(t, journal.Write(ctx, "run", chunks))

	got, err := journal.Load(ctx, "run")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Len(t, got[0], 1)
	assert.Equal(t, store.OpSet, got[0][0].Kind)
	assert.True(t, got[0][0].Merge)
	assert.True(t, store.IsServerTimestamp(got[0][0].Fields["completedAt"]))
	assert.Equal(t, "completed", got[0][0].Fields["status"])
	assert.Equal(t, store.DeleteOp("pupils", "p1"), got[1][0])
}

func TestJournalLoadReportsMissingChunk(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	journal := Journal{Store: s, Collection: "journal"}
	require.NoError(t, journal.Write(ctx, "run", Chunks(makeOps(6), 2)))
	require.NoError(t, s.Delete(ctx, "journal", "run-0001"))

	_, err := journal.Load(ctx, "run")
	assert.ErrorContains(t, err, "missing chunk 1")
}
