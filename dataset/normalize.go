package dataset

import "sort"

// wrapperContainerField is the conventional name of the nested container the
// upstream wraps single-object responses in.
const wrapperContainerField = "list"

// Normalize turns a raw upstream payload into a flat ordered sequence of
// records. Two shapes are handled:
//
//   - an already-flat sequence of records, passed through unchanged;
//   - a single wrapper record whose "list" field contains exactly one inner
//     field holding either an array of records or a single record object.
//
// Normalization never fails: an ambiguous wrapper (no array or object found
// inside the container) degrades to the original input, and non-object
// elements are preserved under a synthetic "value" key rather than dropped.
func Normalize(raw []any) []Record {
	if inner, ok := unwrap(raw); ok {
		return toRecords(inner)
	}
	return toRecords(raw)
}

// unwrap detects the wrapper-with-nested-container shape and returns the
// inner sequence. The container's fields are scanned in sorted key order so
// detection is deterministic; the first array-typed value wins, then the
// first object-typed value treated as a single-element array.
func unwrap(raw []any) ([]any, bool) {
	if len(raw) != 1 {
		return nil, false
	}
	wrapper, ok := raw[0].(map[string]any)
	if !ok {
		return nil, false
	}
	container, ok := wrapper[wrapperContainerField].(map[string]any)
	if !ok {
		return nil, false
	}

	keys := make([]string, 0, len(container))
	for k := range container {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if arr, ok := container[k].([]any); ok {
			return arr, true
		}
	}
	for _, k := range keys {
		if obj, ok := container[k].(map[string]any); ok {
			return []any{obj}, true
		}
	}
	return nil, false
}

func toRecords(items []any) []Record {
	records := make([]Record, 0, len(items))
	for _, it := range items {
		switch t := it.(type) {
		case map[string]any:
			records = append(records, Record(t))
		case Record:
			records = append(records, t)
		case nil:
			// Nothing to keep.
		default:
			records = append(records, Record{"value": t})
		}
	}
	return records
}
