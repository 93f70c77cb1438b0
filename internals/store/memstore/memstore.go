// Package memstore is an in-memory DocumentStore with commit accounting and fault
// injection hooks. It backs the workflow tests and `serve --store=memory`.
package memstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"schoolrecords_backend/internals/store"
)

type doc struct {
	fields    store.Fields
	version   int64
	updatedAt time.Time
}

// Store keeps documents per collection behind a RWMutex; reads return deep copies.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]map[string]doc
	graves map[string]map[string]int64 // last version of deleted documents
	maxOps int
	nowFn  func() time.Time

	commits        int
	batchAttempts  int
	failures       map[int]error
	beforeTxCommit func()
}

// Option configures a Store.
type Option func(*Store)

// WithMaxBatchOps overrides the per-commit ceiling.
func WithMaxBatchOps(n int) Option { return func(s *Store) { s.maxOps = n } }

// WithClock overrides the commit clock.
func WithClock(fn func() time.Time) Option { return func(s *Store) { s.nowFn = fn } }

func New(opts ...Option) *Store {
	s := &Store{
		docs:     map[string]map[string]doc{},
		graves:   map[string]map[string]int64{},
		maxOps:   store.DefaultMaxBatchOps,
		nowFn:    func() time.Time { return time.Now().UTC() },
		failures: map[int]error{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ store.DocumentStore = (*Store)(nil)

func (s *Store) MaxBatchOps() int { return s.maxOps }

// Commits returns the number of successful BatchCommit calls.
func (s *Store) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

// FailCommit makes the n-th BatchCommit issued after this call fail with err (n >= 1).
func (s *Store) FailCommit(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[s.batchAttempts+n] = err
}

// BeforeTransactionCommit installs a hook run between a transaction's reads and its
// commit; tests use it to simulate a concurrent writer.
func (s *Store) BeforeTransactionCommit(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeTxCommit = fn
}

// Count returns the number of documents in a collection.
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[collection])
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[collection][id]
	if !ok {
		return store.Document{}, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	return toDocument(collection, id, d), nil
}

func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	filters, err := normalizeFilters(q.Filters)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []store.Document
	for id, d := range s.docs[q.Collection] {
		if matches(id, d.fields, filters) {
			out = append(out, toDocument(q.Collection, id, d))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if q.OrderBy != "" {
			c := compareValues(out[i].Fields[q.OrderBy], out[j].Fields[q.OrderBy])
			if c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, fields store.Fields, merge bool) error {
	op := store.SetOp(collection, id, fields)
	op.Merge = merge
	return s.apply(ctx, []store.Op{op}, false)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.apply(ctx, []store.Op{store.DeleteOp(collection, id)}, false)
}

func (s *Store) BatchCommit(ctx context.Context, ops []store.Op) error {
	return s.apply(ctx, ops, true)
}

func (s *Store) RunTransaction(ctx context.Context, keys []store.Key, fn store.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	reads := make([]store.Document, len(keys))
	for i, k := range keys {
		if d, ok := s.docs[k.Collection][k.ID]; ok {
			reads[i] = toDocument(k.Collection, k.ID, d)
		} else {
			reads[i] = store.Document{Collection: k.Collection, ID: k.ID}
		}
	}
	hook := s.beforeTxCommit
	s.mu.RUnlock()

	ops, err := fn(reads)
	if err != nil {
		return err
	}
	if hook != nil {
		hook()
	}

	staged, err := s.stage(ops)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range reads {
		cur, ok := s.docs[r.Collection][r.ID]
		if ok != r.Exists || (ok && cur.version != r.Version) {
			return fmt.Errorf("%s/%s: %w", r.Collection, r.ID, store.ErrContention)
		}
	}
	s.commitLocked(staged)
	return nil
}

type stagedOp struct {
	op     store.Op
	fields store.Fields
}

func (s *Store) stage(ops []store.Op) ([]stagedOp, error) {
	if err := store.ValidateOps(ops, s.maxOps); err != nil {
		return nil, err
	}
	now := s.nowFn()
	out := make([]stagedOp, len(ops))
	for i, op := range ops {
		out[i] = stagedOp{op: op}
		if op.Kind == store.OpSet {
			f, err := store.Normalize(store.ResolveTimestamps(op.Fields, now))
			if err != nil {
				return nil, err
			}
			out[i].fields = f
		}
	}
	return out, nil
}

func (s *Store) apply(ctx context.Context, ops []store.Op, batch bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	staged, err := s.stage(ops)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if batch {
		s.batchAttempts++
		if ferr, ok := s.failures[s.batchAttempts]; ok {
			delete(s.failures, s.batchAttempts)
			return ferr
		}
	}
	s.commitLocked(staged)
	if batch {
		s.commits++
	}
	return nil
}

func (s *Store) commitLocked(staged []stagedOp) {
	now := s.nowFn()
	for _, st := range staged {
		op := st.op
		coll := s.docs[op.Collection]
		if coll == nil {
			coll = map[string]doc{}
			s.docs[op.Collection] = coll
		}
		cur, exists := coll[op.ID]
		switch op.Kind {
		case store.OpDelete:
			if exists {
				s.bury(op.Collection, op.ID, cur.version)
				delete(coll, op.ID)
			}
		case store.OpSet:
			fields := st.fields
			version := cur.version
			if op.Merge && exists {
				fields = store.MergeFields(cur.fields, st.fields)
			}
			if !exists {
				version = s.graves[op.Collection][op.ID]
				delete(s.graves[op.Collection], op.ID)
			}
			coll[op.ID] = doc{fields: fields, version: version + 1, updatedAt: now}
		}
	}
}

func (s *Store) bury(collection, id string, version int64) {
	g := s.graves[collection]
	if g == nil {
		g = map[string]int64{}
		s.graves[collection] = g
	}
	g[id] = version
}

func toDocument(collection, id string, d doc) store.Document {
	return store.Document{
		Collection: collection,
		ID:         id,
		Fields:     cloneFields(d.fields),
		Version:    d.version,
		Exists:     true,
		UpdatedAt:  d.updatedAt,
	}
}

func cloneFields(f store.Fields) store.Fields {
	out := make(store.Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, it := range t {
			out[k] = cloneValue(it)
		}
		return out
	case store.Fields:
		return map[string]any(cloneFields(t))
	case []any:
		out := make([]any, len(t))
		for i, it := range t {
			out[i] = cloneValue(it)
		}
		return out
	default:
		return v
	}
}

func normalizeFilters(filters []store.Filter) ([]store.Filter, error) {
	out := make([]store.Filter, len(filters))
	for i, f := range filters {
		nf := store.Filter{Field: f.Field, Op: f.Op}
		if f.Op == store.FilterEq {
			v, err := store.NormalizeValue(f.Value)
			if err != nil {
				return nil, err
			}
			nf.Value = v
		}
		for _, raw := range f.Values {
			v, err := store.NormalizeValue(raw)
			if err != nil {
				return nil, err
			}
			nf.Values = append(nf.Values, v)
		}
		out[i] = nf
	}
	return out, nil
}

func matches(id string, fields store.Fields, filters []store.Filter) bool {
	for _, f := range filters {
		var got any
		if f.Field == store.DocIDField {
			got = id
		} else {
			v, ok := fields[f.Field]
			if !ok {
				return false
			}
			got = v
		}
		switch f.Op {
		case store.FilterEq:
			if !reflect.DeepEqual(got, f.Value) {
				return false
			}
		case store.FilterIn:
			found := false
			for _, want := range f.Values {
				if reflect.DeepEqual(got, want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func compareValues(a, b any) int {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	}
	if a == nil && b != nil {
		return -1
	}
	if a != nil && b == nil {
		return 1
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}
