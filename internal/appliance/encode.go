package appliance

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Encode turns an operation's parameter struct into the wire map and
// normalizes booleans. The appliance's field model rejects native JSON
// booleans; every write must go through here.
func Encode(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("parameters must encode to an object: %w", err)
	}
	return NormalizeBools(out).(map[string]any), nil
}

// NormalizeBools returns a copy of v with every bool replaced by 1 or 0,
// descending into maps and slices.
func NormalizeBools(v any) any {
	switch t := v.(type) {
	case bool:
		if t {
			return 1
		}
		return 0
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = NormalizeBools(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = NormalizeBools(val)
		}
		return out
	case []bool:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = NormalizeBools(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = NormalizeBools(val)
		}
		return out
	default:
		return v
	}
}
