package batch

import (
	"context"
	"fmt"
	"sort"

	"schoolrecords_backend/internals/store"
)

// Journal keeps the exact chunk partition of a run so it can be resumed later.
// Each chunk is one document with id "<runID>-<chunk>".
type Journal struct {
	Store      store.DocumentStore
	Collection string
}

type journalChunk struct {
	RunID string         `json:"runId"`
	Chunk int            `json:"chunk"`
	Ops   []store.Fields `json:"ops"`
}

func (j Journal) docID(runID string, chunk int) string {
	return fmt.Sprintf("%s-%04d", runID, chunk)
}

// Write stores chunks under runID, replacing any earlier entry with the same ids.
func (j Journal) Write(ctx context.Context, runID string, chunks [][]store.Op) error {
	for i, chunk := range chunks {
		ops := make([]any, len(chunk))
		for k, op := range chunk {
			ops[k] = store.EncodeOp(op)
		}
		err := j.Store.Set(ctx, j.Collection, j.docID(runID, i), store.Fields{
			"runId":     runID,
			"chunk":     i,
			"ops":       ops,
			"createdAt": store.ServerTimestamp(),
		}, false)
		if err != nil {
			return fmt.Errorf("journal chunk %d of %s: %w", i, runID, err)
		}
	}
	return nil
}

// Load returns the chunks of runID in order. A gap in the sequence is an error.
func (j Journal) Load(ctx context.Context, runID string) ([][]store.Op, error) {
	docs, err := j.Store.Query(ctx, store.Query{
		Collection: j.Collection,
		Filters:    []store.Filter{store.Eq("runId", runID)},
	})
	if err != nil {
		return nil, fmt.Errorf("load journal %s: %w", runID, err)
	}
	entries := make([]journalChunk, 0, len(docs))
	for _, d := range docs {
		var e journalChunk
		if err := d.Decode(&e); err != nil {
			return nil, fmt.Errorf("decode journal %s: %w", d.ID, err)
		}
		entries = append(entries, e)
	}
	// chunk is numeric; not every store orders JSON numbers numerically
	sort.Slice(entries, func(a, b int) bool { return entries[a].Chunk < entries[b].Chunk })

	chunks := make([][]store.Op, len(entries))
	for i, e := range entries {
		if e.Chunk != i {
			return nil, fmt.Errorf("journal %s: missing chunk %d", runID, i)
		}
		ops := make([]store.Op, len(e.Ops))
		for k, f := range e.Ops {
			op, err := store.DecodeOp(f)
			if err != nil {
				return nil, fmt.Errorf("journal %s chunk %d op %d: %w", runID, i, k, err)
			}
			ops[k] = op
		}
		chunks[i] = ops
	}
	return chunks, nil
}
