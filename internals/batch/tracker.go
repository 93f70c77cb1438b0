package batch

import (
	"context"

	"schoolrecords_backend/internals/store"
)

// Snapshot statuses.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// DocTracker writes progress into an existing snapshot document with merge sets.
type DocTracker struct {
	Store      store.DocumentStore
	Collection string
	DocID      string
}

func (t DocTracker) ID() string { return t.DocID }

func (t DocTracker) ChunkCommitted(ctx context.Context, p Progress) error {
	return t.Store.Set(ctx, t.Collection, t.DocID, store.Fields{
		"lastCompletedChunk":       p.LastCompletedChunk,
		"totalOperationsCompleted": p.TotalOperationsCompleted,
		"updatedAt":                store.ServerTimestamp(),
	}, true)
}

func (t DocTracker) Failed(ctx context.Context, p Progress, failedChunk int, cause error) error {
	return t.Store.Set(ctx, t.Collection, t.DocID, store.Fields{
		"status":                   StatusFailed,
		"failedChunk":              failedChunk,
		"error":                    cause.Error(),
		"lastCompletedChunk":       p.LastCompletedChunk,
		"totalOperationsCompleted": p.TotalOperationsCompleted,
		"updatedAt":                store.ServerTimestamp(),
		"finishedAt":               store.ServerTimestamp(),
	}, true)
}

func (t DocTracker) Completed(ctx context.Context, p Progress) error {
	return t.Store.Set(ctx, t.Collection, t.DocID, store.Fields{
		"status":                   StatusCompleted,
		"lastCompletedChunk":       p.LastCompletedChunk,
		"totalOperationsCompleted": p.TotalOperationsCompleted,
		"updatedAt":                store.ServerTimestamp(),
		"finishedAt":               store.ServerTimestamp(),
	}, true)
}
