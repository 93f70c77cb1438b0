package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolrecords_backend/internals/store"
)

func TestSetMergeAndGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Set(ctx, "pupils", "p1", store.Fields{"name": "Ada", "class": "Primary1"}, false))
	require.NoError(t, s.Set(ctx, "pupils", "p1", store.Fields{"class": "Primary2"}, true))

	d, err := s.Get(ctx, "pupils", "p1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", d.Fields["name"])
	assert.Equal(t, "Primary2", d.Fields["class"])
	assert.Equal(t, int64(2), d.Version)

	require.NoError(t, s.Set(ctx, "pupils", "p1", store.Fields{"class": "Primary3"}, false))
	d, err = s.Get(ctx, "pupils", "p1")
	require.NoError(t, err)
	assert.NotContains(t, d.Fields, "name", "non-merge set replaces the document")

	require.NoError(t, s.Delete(ctx, "pupils", "p1"))
	_, err = s.Get(ctx, "pupils", "p1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestQueryFiltersOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s := New()
	for id, f := range map[string]store.Fields{
		"a": {"class": "c1", "name": "Zed", "score": 10},
		"b": {"class": "c1", "name": "Amy", "score": 30},
		"c": {"class": "c2", "name": "Bob", "score": 20},
	} {
		require.NoError(t, s.Set(ctx, "pupils", id, f, false))
	}

	docs, err := s.Query(ctx, store.Query{Collection: "pupils", Filters: []store.Filter{store.Eq("class", "c1")}, OrderBy: "name"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].ID)

	docs, err = s.Query(ctx, store.Query{Collection: "pupils", OrderBy: "score", Desc: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, []string{"b", "c"}, []string{docs[0].ID, docs[1].ID})

	docs, err = s.Query(ctx, store.Query{Collection: "pupils", Filters: []store.Filter{store.Eq("score", 20)}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "c", docs[0].ID)

	docs, err = s.Query(ctx, store.Query{Collection: "pupils", Filters: []store.Filter{store.In(store.DocIDField, "a", "c", "zz")}})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestQueryRejectsOversizedInFilter(t *testing.T) {
	vs := make([]any, store.MaxInValues+1)
	for i := range vs {
		vs[i] = i
	}
	_, err := New().Query(context.Background(), store.Query{Collection: "pupils", Filters: []store.Filter{store.In("n", vs...)}})
	assert.ErrorIs(t, err, store.ErrInFilterTooLarge)
}

func TestGetManyChunksInQueries(t *testing.T) {
	ctx := context.Background()
	s := New()
	var ids []string
	for i := 0; i < 25; i++ {
		id := string(rune('a'+i)) + "x"
		ids = append(ids, id)
		require.NoError(t, s.Set(ctx, "pupils", id, store.Fields{"i": i}, false))
	}
	got, err := store.GetMany(ctx, s, "pupils", append(ids, "missing"))
	require.NoError(t, err)
	assert.Len(t, got, 25)
}

func TestBatchCommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := New(WithMaxBatchOps(2))

	err := s.BatchCommit(ctx, []store.Op{
		store.SetOp("c", "1", store.Fields{}),
		store.SetOp("c", "2", store.Fields{}),
		store.SetOp("c", "3", store.Fields{}),
	})
	assert.ErrorIs(t, err, store.ErrBatchTooLarge)
	assert.Equal(t, 0, s.Count("c"))

	s.FailCommit(1, errors.New("down"))
	require.Error(t, s.BatchCommit(ctx, []store.Op{store.SetOp("c", "1", store.Fields{})}))
	assert.Equal(t, 0, s.Count("c"))
	assert.Equal(t, 0, s.Commits())

	require.NoError(t, s.BatchCommit(ctx, []store.Op{store.SetOp("c", "1", store.Fields{}), store.DeleteOp("c", "1")}))
	assert.Equal(t, 1, s.Commits())
	assert.Equal(t, 0, s.Count("c"))
}

func TestServerTimestampResolvedAtCommit(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "c", "1", store.Fields{"at": store.ServerTimestamp()}, false))
	d, err := s.Get(ctx, "c", "1")
	require.NoError(t, err)
	assert.IsType(t, "", d.Fields["at"])
	assert.NotEmpty(t, d.Fields["at"])
}

func TestRunTransactionDetectsContention(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "classes", "c1", store.Fields{"subjects": []string{"Math"}}, false))

	s.BeforeTransactionCommit(func() {
		s.BeforeTransactionCommit(nil)
		require.NoError(t, s.Set(ctx, "classes", "c1", store.Fields{"subjects": []string{"English"}}, true))
	})
	err := s.RunTransaction(ctx, []store.Key{{Collection: "classes", ID: "c1"}}, func(reads []store.Document) ([]store.Op, error) {
		return []store.Op{store.MergeOp("classes", "c1", store.Fields{"subjects": []string{"Science"}})}, nil
	})
	assert.ErrorIs(t, err, store.ErrContention)

	err = s.RunTransaction(ctx, []store.Key{{Collection: "classes", ID: "c1"}, {Collection: "classes", ID: "ghost"}}, func(reads []store.Document) ([]store.Op, error) {
		assert.True(t, reads[0].Exists)
		assert.False(t, reads[1].Exists)
		return []store.Op{store.MergeOp("classes", "c1", store.Fields{"subjects": []string{"Science"}})}, nil
	})
	require.NoError(t, err)
	d, err := s.Get(ctx, "classes", "c1")
	require.NoError(t, err)
	assert.Equal(t, []any{"Science"}, d.Fields["subjects"])
}

func TestRecreatedDocumentKeepsCountingVersions(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "classes", "c1", store.Fields{"name": "Primary1"}, false))

	s.BeforeTransactionCommit(func() {
		s.BeforeTransactionCommit(nil)
		require.NoError(t, s.Delete(ctx, "classes", "c1"))
		require.NoError(t, s.Set(ctx, "classes", "c1", store.Fields{"name": "Primary1"}, false))
	})
	err := s.RunTransaction(ctx, []store.Key{{Collection: "classes", ID: "c1"}}, func(reads []store.Document) ([]store.Op, error) {
		assert.Equal(t, int64(1), reads[0].Version)
		return []store.Op{store.MergeOp("classes", "c1", store.Fields{"subjects": []string{"Math"}})}, nil
	})
	assert.ErrorIs(t, err, store.ErrContention)

	d, err := s.Get(ctx, "classes", "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.Version)
	assert.NotContains(t, d.Fields, "subjects")
}

func TestServerTimestampsOrderWithinASecond(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)
	now := base.Add(100 * time.Millisecond)
	s := New(WithClock(func() time.Time { return now }))

	require.NoError(t, s.Set(ctx, "c", "early", store.Fields{"at": store.ServerTimestamp()}, false))
	now = base.Add(120 * time.Millisecond)
	require.NoError(t, s.Set(ctx, "c", "late", store.Fields{"at": store.ServerTimestamp()}, false))
	now = base.Add(time.Second)
	require.NoError(t, s.Set(ctx, "c", "whole", store.Fields{"at": store.ServerTimestamp()}, false))

	docs, err := s.Query(ctx, store.Query{Collection: "c", OrderBy: "at", Desc: true})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "whole", docs[0].ID)
	assert.Equal(t, "late", docs[1].ID)
	assert.Equal(t, "early", docs[2].ID)
	assert.Equal(t, "2024-09-02T08:00:00.100000000Z", docs[2].Fields["at"])
}
