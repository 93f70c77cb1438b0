// Package store defines the document store contract the workflows are written against.
//
// Any backend satisfying DocumentStore is enough: gormstore keeps documents in a single
// relational table, memstore keeps them in memory for tests.
package store

import (
	"context"
	"errors"
	"time"
)

// Store-level sentinel errors.
var (
	ErrNotFound         = errors.New("document not found")
	ErrContention       = errors.New("transaction aborted: a read document changed concurrently")
	ErrBatchTooLarge    = errors.New("batch exceeds the maximum operations per commit")
	ErrInFilterTooLarge = errors.New("in filter exceeds the maximum number of values")
	ErrInvalidQuery     = errors.New("invalid query")
)

const (
	// MaxInValues is the cap on values inside one "in" filter.
	MaxInValues = 10
	// DefaultMaxBatchOps is the hard ceiling of operations per atomic commit.
	DefaultMaxBatchOps = 500
)

// Fields is the schema-flexible body of a document.
type Fields map[string]any

// Key addresses one document.
type Key struct {
	Collection string
	ID         string
}

// Document is a stored document. Exists is false for transaction reads of absent keys.
type Document struct {
	Collection string
	ID         string
	Fields     Fields
	Version    int64
	Exists     bool
	UpdatedAt  time.Time
}

func (d Document) Key() Key { return Key{Collection: d.Collection, ID: d.ID} }

// Decode copies the document fields into a typed struct.
func (d Document) Decode(v any) error { return Decode(d.Fields, v) }

// TxFunc receives the transaction's reads (same order as the requested keys) and returns
// the writes to commit.
type TxFunc func(reads []Document) ([]Op, error)

// DocumentStore is the contract every workflow depends on.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	Set(ctx context.Context, collection, id string, fields Fields, merge bool) error
	Delete(ctx context.Context, collection, id string) error
	// BatchCommit applies ops atomically: all of them or none.
	BatchCommit(ctx context.Context, ops []Op) error
	// RunTransaction reads keys, calls fn and commits its ops unless one of the read
	// documents changed in between, in which case ErrContention is returned.
	RunTransaction(ctx context.Context, keys []Key, fn TxFunc) error
	// MaxBatchOps reports the per-commit operation ceiling.
	MaxBatchOps() int
}

type serverTimestamp struct{}

// TimestampLayout is how resolved server timestamps are stored. The fraction is fixed
// width so that string order equals time order.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ServerTimestamp returns a sentinel that the store replaces with the commit time.
func ServerTimestamp() any { return serverTimestamp{} }

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// ResolveTimestamps returns a copy of f with every ServerTimestamp sentinel replaced by now.
func ResolveTimestamps(f Fields, now time.Time) Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = resolveValue(v, now)
	}
	return out
}

func resolveValue(v any, now time.Time) any {
	switch t := v.(type) {
	case serverTimestamp:
		return now.UTC().Format(TimestampLayout)
	case Fields:
		return map[string]any(ResolveTimestamps(t, now))
	case map[string]any:
		return map[string]any(ResolveTimestamps(Fields(t), now))
	case []any:
		out := make([]any, len(t))
		for i, it := range t {
			out[i] = resolveValue(it, now)
		}
		return out
	default:
		return v
	}
}

// MergeFields applies patch on top of base at the top level.
func MergeFields(base, patch Fields) Fields {
	out := make(Fields, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
