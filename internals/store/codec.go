package store

import (
	"fmt"

	"github.com/bytedance/sonic"
)

var api = sonic.ConfigStd

// Encode turns a tagged struct into Fields.
func Encode(v any) (Fields, error) {
	raw, err := api.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var out Fields
	if err := api.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return out, nil
}

// MustEncode is Encode for values whose encoding cannot fail (plain tagged structs).
func MustEncode(v any) Fields {
	f, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return f
}

// Decode copies fields into a tagged struct.
func Decode(f Fields, v any) error {
	raw, err := api.Marshal(f)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := api.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// Normalize round-trips fields through JSON so stored values have canonical types
// (float64 numbers, []any, map[string]any). Timestamps must be resolved first.
func Normalize(f Fields) (Fields, error) {
	if f == nil {
		return Fields{}, nil
	}
	raw, err := api.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("normalize fields: %w", err)
	}
	var out Fields
	if err := api.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize fields: %w", err)
	}
	return out, nil
}

// NormalizeValue is Normalize for a single filter value.
func NormalizeValue(v any) (any, error) {
	raw, err := api.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := api.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeJSON serializes fields for storage.
func EncodeJSON(f Fields) ([]byte, error) {
	if f == nil {
		f = Fields{}
	}
	return api.Marshal(f)
}

// DecodeJSON parses stored fields.
func DecodeJSON(raw []byte) (Fields, error) {
	out := Fields{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := api.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode stored document: %w", err)
	}
	return out, nil
}
