package store

import (
	"context"
	"fmt"
)

// FilterOp is a query filter operator.
type FilterOp string

const (
	FilterEq FilterOp = "=="
	FilterIn FilterOp = "in"
)

// DocIDField filters on the document id instead of a body field.
const DocIDField = "__id__"

// Filter is an equality or membership condition on a top-level field.
type Filter struct {
	Field  string
	Op     FilterOp
	Value  any
	Values []any
}

// Eq matches documents whose field equals v.
func Eq(field string, v any) Filter { return Filter{Field: field, Op: FilterEq, Value: v} }

// In matches documents whose field is one of vs (at most MaxInValues).
func In(field string, vs ...any) Filter { return Filter{Field: field, Op: FilterIn, Values: vs} }

// Query selects documents of one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Desc       bool
	Limit      int
}

// Validate enforces the single, capped "in" filter rule.
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: collection is required", ErrInvalidQuery)
	}
	ins := 0
	for _, f := range q.Filters {
		if f.Field == "" {
			return fmt.Errorf("%w: filter field is required", ErrInvalidQuery)
		}
		switch f.Op {
		case FilterEq:
		case FilterIn:
			ins++
			if len(f.Values) == 0 {
				return fmt.Errorf("%w: empty in filter on %s", ErrInvalidQuery, f.Field)
			}
			if len(f.Values) > MaxInValues {
				return fmt.Errorf("%w: %d values on %s", ErrInFilterTooLarge, len(f.Values), f.Field)
			}
		default:
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, f.Op)
		}
	}
	if ins > 1 {
		return fmt.Errorf("%w: only one in filter is allowed", ErrInvalidQuery)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}
	return nil
}

// ChunkStrings splits values into slices of at most size elements.
func ChunkStrings(values []string, size int) [][]string {
	if size <= 0 {
		size = MaxInValues
	}
	var out [][]string
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		out = append(out, values[start:end])
	}
	return out
}

// QueryIn runs q once per chunk of values with an "in" filter on field and concatenates
// the results. Any limit or ordering applies per chunk.
func QueryIn(ctx context.Context, s DocumentStore, q Query, field string, values []string) ([]Document, error) {
	var out []Document
	for _, chunk := range ChunkStrings(values, MaxInValues) {
		vs := make([]any, len(chunk))
		for i, v := range chunk {
			vs[i] = v
		}
		cq := q
		cq.Filters = append(append([]Filter(nil), q.Filters...), In(field, vs...))
		docs, err := s.Query(ctx, cq)
		if err != nil {
			return nil, err
		}
		out = append(out, docs...)
	}
	return out, nil
}

// GetMany fetches documents by id through chunked "in" queries on the id field.
// Missing ids are simply absent from the result.
func GetMany(ctx context.Context, s DocumentStore, collection string, ids []string) (map[string]Document, error) {
	docs, err := QueryIn(ctx, s, Query{Collection: collection}, DocIDField, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Document, len(docs))
	for _, d := range docs {
		out[d.ID] = d
	}
	return out, nil
}
