package dataset

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Record is one flat item of a snapshot: string keys mapped to JSON value
// kinds (string, float64, bool, map, slice, nil). All field access must
// tolerate missing keys.
type Record map[string]any

// fallbackIdentityField is consulted when the configured identity field is
// absent from an item.
const fallbackIdentityField = "id"

// resolveIdentity returns an item's identity value through the ordered
// fallback chain: configured primary field, then "id", then literal 0.
// Identity is not guaranteed unique; callers own collision policy.
func resolveIdentity(rec Record, primary string) any {
	if primary != "" {
		if v, ok := rec[primary]; ok && v != nil {
			return v
		}
	}
	if primary != fallbackIdentityField {
		if v, ok := rec[fallbackIdentityField]; ok && v != nil {
			return v
		}
	}
	return 0
}

// identityKey canonicalizes an identity value for set membership and
// equality, so the JSON number 5 and the string "5" address the same item.
func identityKey(v any) string {
	return canonicalString(v)
}

// canonicalString renders a JSON value in its canonical text form: numbers
// in decimal notation without a trailing ".0", booleans as true/false,
// containers as compact JSON, nil as the empty string.
func canonicalString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// numberValue extracts a float64 from any JSON numeric representation.
func numberValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// searchableString renders a field value for free-text search. Containers
// and nil yield "", which never matches a non-empty search string.
func searchableString(v any) string {
	switch v.(type) {
	case nil, map[string]any, []any, Record:
		return ""
	default:
		return canonicalString(v)
	}
}

// compareValues orders two field values: numbers numerically, everything
// else by canonical string. Mixed number/string pairs fall back to string
// comparison. Returns <0, 0 or >0.
func compareValues(a, b any) int {
	fa, aNum := numberValue(a)
	fb, bNum := numberValue(b)
	if aNum && bNum {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(canonicalString(a), canonicalString(b))
}

// truncate shortens s to at most n runes, appending "..." when cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
