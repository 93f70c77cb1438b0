package store

import "fmt"

// OpKind is the kind of a write operation.
type OpKind string

const (
	OpSet    OpKind = "set"
	OpDelete OpKind = "delete"
)

// Op is one write inside a batch commit or transaction.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Fields     Fields
	Merge      bool
}

// SetOp replaces the whole document.
func SetOp(collection, id string, fields Fields) Op {
	return Op{Kind: OpSet, Collection: collection, ID: id, Fields: fields}
}

// MergeOp upserts the given top-level fields.
func MergeOp(collection, id string, fields Fields) Op {
	return Op{Kind: OpSet, Collection: collection, ID: id, Fields: fields, Merge: true}
}

// DeleteOp removes the document.
func DeleteOp(collection, id string) Op {
	return Op{Kind: OpDelete, Collection: collection, ID: id}
}

func (o Op) String() string {
	if o.Kind == OpSet && o.Merge {
		return fmt.Sprintf("merge %s/%s", o.Collection, o.ID)
	}
	return fmt.Sprintf("%s %s/%s", o.Kind, o.Collection, o.ID)
}

// ValidateOps checks the ops are addressable and fit in one commit.
func ValidateOps(ops []Op, max int) error {
	if max > 0 && len(ops) > max {
		return fmt.Errorf("%w: %d ops, limit %d", ErrBatchTooLarge, len(ops), max)
	}
	for i, op := range ops {
		if op.Collection == "" || op.ID == "" {
			return fmt.Errorf("op %d: collection and id are required", i)
		}
		if op.Kind != OpSet && op.Kind != OpDelete {
			return fmt.Errorf("op %d: unknown kind %q", i, op.Kind)
		}
	}
	return nil
}

// serverTimestampMarker stands in for ServerTimestamp inside an encoded op, so the
// timestamp is resolved when the op is replayed rather than when it is stored.
const serverTimestampMarker = "$serverTimestamp"

// EncodeOp turns op into storable fields.
func EncodeOp(op Op) Fields {
	out := Fields{
		"kind":       string(op.Kind),
		"collection": op.Collection,
		"id":         op.ID,
		"merge":      op.Merge,
	}
	if op.Fields != nil {
		out["fields"] = markTimestamps(map[string]any(op.Fields))
	}
	return out
}

// DecodeOp reverses EncodeOp on stored (normalized) fields.
func DecodeOp(f Fields) (Op, error) {
	kind, _ := f["kind"].(string)
	coll, _ := f["collection"].(string)
	id, _ := f["id"].(string)
	merge, _ := f["merge"].(bool)
	op := Op{Kind: OpKind(kind), Collection: coll, ID: id, Merge: merge}
	if raw, ok := f["fields"]; ok && raw != nil {
		var m map[string]any
		switch t := raw.(type) {
		case Fields:
			m = t
		case map[string]any:
			m = t
		default:
			return Op{}, fmt.Errorf("decode op %s/%s: fields is %T", coll, id, raw)
		}
		op.Fields = Fields(unmarkTimestamps(m).(map[string]any))
	}
	if err := ValidateOps([]Op{op}, 0); err != nil {
		return Op{}, fmt.Errorf("decode op: %w", err)
	}
	return op, nil
}

func markTimestamps(v any) any {
	switch t := v.(type) {
	case serverTimestamp:
		return map[string]any{serverTimestampMarker: true}
	case Fields:
		return markTimestamps(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, it := range t {
			out[k] = markTimestamps(it)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, it := range t {
			out[i] = markTimestamps(it)
		}
		return out
	default:
		return v
	}
}

func unmarkTimestamps(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 1 && t[serverTimestampMarker] == true {
			return serverTimestamp{}
		}
		out := make(map[string]any, len(t))
		for k, it := range t {
			out[k] = unmarkTimestamps(it)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, it := range t {
			out[i] = unmarkTimestamps(it)
		}
		return out
	default:
		return v
	}
}
