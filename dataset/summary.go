package dataset

import (
	"sort"
	"time"
)

const (
	previewLen      = 5
	previewTextMax  = 120
	unknownSentinel = "UNKNOWN"
	// errorStatus marks a failed message, either at the top level or inside
	// a per-connector sub-status.
	errorStatus = "ERRORED"
)

// dateFieldNames is the ordered set of known date-bearing fields; the first
// one present on an item feeds the snapshot date range.
var dateFieldNames = []string{"receivedDate", "timestamp", "time", "createdDate", "creationDate", "date"}

// buildSummary derives the read-only aggregate for a snapshot. It never
// fails: unparseable dates are excluded from the range and absent tally
// fields coalesce to UNKNOWN.
func buildSummary(kind string, items []Record) *Summary {
	s := &Summary{
		TotalCount: len(items),
		DateRange:  dateRange(items),
		Preview:    preview(kind, items),
	}

	switch kind {
	case KindMessages:
		s.StatusCounts = tally(items, "status")
		s.ErrorCount = countErrors(items)
	case KindLogEntries, KindConnectionLogs:
		s.LevelCounts = tally(items, "level")
	case KindEvents:
		s.LevelCounts = tally(items, "level")
		s.OutcomeCounts = tally(items, "outcome")
	}
	return s
}

// dateRange scans each item for the first present date-bearing field and
// folds parseable values into an earliest/latest pair.
func dateRange(items []Record) *DateRange {
	var dr *DateRange
	for _, rec := range items {
		v, ok := firstDateValue(rec)
		if !ok {
			continue
		}
		ts, ok := parseDateValue(v)
		if !ok {
			continue
		}
		if dr == nil {
			dr = &DateRange{Earliest: ts, Latest: ts}
			continue
		}
		if ts.Before(dr.Earliest) {
			dr.Earliest = ts
		}
		if ts.After(dr.Latest) {
			dr.Latest = ts
		}
	}
	return dr
}

func firstDateValue(rec Record) (any, bool) {
	for _, name := range dateFieldNames {
		if v, ok := rec[name]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// parseDateValue interprets a value as a point in time: a numeric epoch
// (milliseconds above 1e12, seconds below), an object carrying an embedded
// numeric time field, or a date-like string. Anything else is excluded.
func parseDateValue(v any) (time.Time, bool) {
	if n, ok := numberValue(v); ok {
		return epochTime(n), true
	}

	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if n, ok := numberValue(t[k]); ok {
				return epochTime(n), true
			}
		}
	case string:
		layouts := []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
			"2006-01-02",
		}
		for _, layout := range layouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

func epochTime(n float64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}

// tally counts occurrences of a field's stringified values; absent or empty
// values coalesce to UNKNOWN.
func tally(items []Record, field string) map[string]int {
	counts := make(map[string]int)
	for _, rec := range items {
		key := unknownSentinel
		if v, ok := rec[field]; ok && v != nil {
			if s := canonicalString(v); s != "" {
				key = s
			}
		}
		counts[key]++
	}
	return counts
}

// countErrors counts message items that failed, inspecting the top-level
// status first and falling back to per-connector sub-statuses.
func countErrors(items []Record) int {
	n := 0
	for _, rec := range items {
		if isErrored(rec) {
			n++
		}
	}
	return n
}

func isErrored(rec Record) bool {
	if s, ok := rec["status"].(string); ok && s == errorStatus {
		return true
	}
	connectors, ok := rec["connectors"].([]any)
	if !ok {
		return false
	}
	for _, c := range connectors {
		sub, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := sub["status"].(string); ok && s == errorStatus {
			return true
		}
	}
	return false
}

// preview projects the first 5 items through kind-specific field selection.
func preview(kind string, items []Record) []Record {
	n := previewLen
	if len(items) < n {
		n = len(items)
	}
	out := make([]Record, 0, n)
	for _, rec := range items[:n] {
		out = append(out, projectPreview(kind, rec))
	}
	return out
}

// previewFields names the fields each kind surfaces in its preview, besides
// the identity and date fields.
var previewFields = map[string][]string{
	KindMessages:       {"status", "title", "message"},
	KindLogEntries:     {"level", "message"},
	KindConnectionLogs: {"level", "connection", "message"},
	KindEvents:         {"level", "outcome", "message"},
}

func projectPreview(kind string, rec Record) Record {
	fields, ok := previewFields[kind]
	if !ok {
		return projectGeneric(rec)
	}

	p := Record{}
	if v, ok := rec[fallbackIdentityField]; ok {
		p[fallbackIdentityField] = v
	}
	for _, f := range fields {
		v, ok := rec[f]
		if !ok || v == nil {
			continue
		}
		if s, isText := v.(string); isText {
			p[f] = truncate(s, previewTextMax)
		} else {
			p[f] = v
		}
	}
	for _, name := range dateFieldNames {
		if v, ok := rec[name]; ok && v != nil {
			p[name] = v
			break
		}
	}
	return p
}

// projectGeneric keeps the first 5 fields in sorted key order. The original
// JSON key order is not observable once decoded into a map, so sorted order
// stands in as the deterministic equivalent.
func projectGeneric(rec Record) Record {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > previewLen {
		keys = keys[:previewLen]
	}

	p := Record{}
	for _, k := range keys {
		if s, isText := rec[k].(string); isText {
			p[k] = truncate(s, previewTextMax)
		} else {
			p[k] = rec[k]
		}
	}
	return p
}
