package patterns

// RedactRecursive walks a JSON-shaped value (as produced by
// encoding/json.Unmarshal into `any`: map[string]any, []any, string,
// float64, bool, nil) and applies RedactString to every string leaf.
//
// Maps and slices recurse; map keys are never redacted, only values; all
// other leaf types (numbers, booleans, nil) pass through unchanged. Output
// map key order is whatever range order Go gives — callers that need
// stable serialization order should marshal through encoding/json, which
// sorts map keys on its own.
//
// Counts accumulate and types union across the entire walk, matching the
// monotone RedactionSummary invariant (spec.md §3).
func RedactRecursive(v any) (result any, count int, types map[string]struct{}) {
	types = make(map[string]struct{})
	result = walk(v, &count, types)
	return result, count, types
}

func walk(v any, count *int, types map[string]struct{}) any {
	switch val := v.(type) {
	case string:
		masked, n, ts := RedactString(val)
		*count += n
		for t := range ts {
			types[t] = struct{}{}
		}
		return masked
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = walk(item, count, types)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = walk(item, count, types)
		}
		return out
	default:
		return v
	}
}
