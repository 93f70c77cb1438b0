// Package batch splits a mutation list into bounded atomic commits and records progress
// so a failed run can be reconciled by hand. Committed chunks are never rolled back.
package batch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"schoolrecords_backend/internals/helpers/apperr"
	"schoolrecords_backend/internals/store"
)

// DefaultChunkSize stays safely under the store's hard ceiling.
const DefaultChunkSize = 400

// Progress is what the executor reports after every committed chunk.
type Progress struct {
	ChunkSize                int `json:"chunkSize"`
	TotalChunks              int `json:"totalChunks"`
	TotalOperations          int `json:"totalOperations"`
	LastCompletedChunk       int `json:"lastCompletedChunk"`
	TotalOperationsCompleted int `json:"totalOperationsCompleted"`
}

// ProgressTracker persists progress into the caller's snapshot.
type ProgressTracker interface {
	ID() string
	ChunkCommitted(ctx context.Context, p Progress) error
	Failed(ctx context.Context, p Progress, failedChunk int, cause error) error
	Completed(ctx context.Context, p Progress) error
}

// Executor commits ops in chunks of at most ChunkSize.
type Executor struct {
	store     store.DocumentStore
	chunkSize int
	log       *zap.Logger
}

// NewExecutor clamps chunkSize to [1, store.MaxBatchOps()]; zero picks DefaultChunkSize.
func NewExecutor(s store.DocumentStore, chunkSize int, log *zap.Logger) *Executor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if max := s.MaxBatchOps(); max > 0 && chunkSize > max {
		chunkSize = max
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{store: s, chunkSize: chunkSize, log: log.Named("batch")}
}

func (e *Executor) ChunkSize() int { return e.chunkSize }

// Chunks partitions ops into slices of at most size ops, preserving order.
func Chunks(ops []store.Op, size int) [][]store.Op {
	var out [][]store.Op
	for start := 0; start < len(ops); start += size {
		end := start + size
		if end > len(ops) {
			end = len(ops)
		}
		out = append(out, ops[start:end])
	}
	return out
}

// Run commits every chunk in order. tracker may be nil.
//
// The run is detached from ctx cancellation: once started it ends in completed or failed.
func (e *Executor) Run(ctx context.Context, ops []store.Op, tracker ProgressTracker) (Progress, error) {
	chunks := Chunks(ops, e.chunkSize)
	p := Progress{
		ChunkSize:          e.chunkSize,
		TotalChunks:        len(chunks),
		TotalOperations:    len(ops),
		LastCompletedChunk: -1,
	}
	return e.run(ctx, chunks, p, tracker)
}

// Resume continues a run from the chunk after p.LastCompletedChunk. chunks must be the
// same partition the original run used; see Journal.
func (e *Executor) Resume(ctx context.Context, chunks [][]store.Op, p Progress, tracker ProgressTracker) (Progress, error) {
	if p.LastCompletedChunk >= len(chunks) {
		return p, fmt.Errorf("resume: last completed chunk %d of %d", p.LastCompletedChunk, len(chunks))
	}
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	p.TotalChunks = len(chunks)
	p.TotalOperations = total
	if len(chunks) > 0 {
		p.ChunkSize = len(chunks[0])
	}
	return e.run(ctx, chunks, p, tracker)
}

func (e *Executor) run(ctx context.Context, chunks [][]store.Op, p Progress, tracker ProgressTracker) (Progress, error) {
	ctx = context.WithoutCancel(ctx)
	snapshotID := ""
	if tracker != nil {
		snapshotID = tracker.ID()
	}
	log := e.log.With(zap.String("snapshot_id", snapshotID), zap.Int("ops", p.TotalOperations), zap.Int("chunks", len(chunks)))
	if p.LastCompletedChunk >= 0 {
		log.Info("resuming batch", zap.Int("after_chunk", p.LastCompletedChunk))
	}

	for i := p.LastCompletedChunk + 1; i < len(chunks); i++ {
		chunk := chunks[i]
		if err := e.store.BatchCommit(ctx, chunk); err != nil {
			log.Error("chunk commit failed", zap.Int("chunk", i), zap.Int("committed_ops", p.TotalOperationsCompleted), zap.Error(err))
			if tracker != nil {
				if terr := tracker.Failed(ctx, p, i, err); terr != nil {
					log.Error("record failed snapshot", zap.Error(terr))
				}
			}
			if i == 0 {
				return p, fmt.Errorf("commit chunk 0 of %d: %w", len(chunks), err)
			}
			return p, &apperr.PartialExecutionError{
				SnapshotID:   snapshotID,
				FailedChunk:  i,
				CompletedOps: p.TotalOperationsCompleted,
				Err:          err,
			}
		}
		p.LastCompletedChunk = i
		p.TotalOperationsCompleted += len(chunk)
		if tracker != nil {
			if err := tracker.ChunkCommitted(ctx, p); err != nil {
				// the chunk is committed; a stale snapshot is better than stopping half way
				log.Warn("record chunk progress", zap.Int("chunk", i), zap.Error(err))
			}
		}
		log.Debug("chunk committed", zap.Int("chunk", i), zap.Int("committed_ops", p.TotalOperationsCompleted))
	}

	if tracker != nil {
		if err := tracker.Completed(ctx, p); err != nil {
			log.Warn("record completed snapshot", zap.Error(err))
		}
	}
	log.Info("batch completed", zap.Int("committed_ops", p.TotalOperationsCompleted))
	return p, nil
}
