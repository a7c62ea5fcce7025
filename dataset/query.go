package dataset

import (
	"fmt"
	"sort"
	"strings"
)

// Query narrows, orders and pages a snapshot's items. The pipeline order is
// fixed: identity-list filter, field filters, free-text search, sort,
// paginate. Side-effect-free except for lazy eviction of an expired
// snapshot.
func (s *Store) Query(req *QueryRequest) (*Page, error) {
	sn := s.liveSnapshot(req.DatasetID)
	if sn == nil {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, req.DatasetID)
	}

	items := sn.items
	if len(req.IDs) > 0 {
		items = filterByIdentity(items, sn.identityField, req.IDs)
	}
	if len(req.Filters) > 0 {
		items = applyFilters(items, req.Filters)
	}
	if req.Search != "" {
		items = applySearch(items, req.Search)
	}
	if req.SortBy != "" {
		items = sortItems(items, req.SortBy, req.SortOrder)
	}
	return paginate(items, req.Page, req.PageSize), nil
}

// filterByIdentity keeps items whose resolved identity is in the requested
// set. Membership is by canonical value, so the number 5 and the string "5"
// select the same items.
func filterByIdentity(items []Record, identityField string, ids []any) []Record {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[identityKey(id)] = true
	}
	out := make([]Record, 0, len(ids))
	for _, rec := range items {
		if want[identityKey(resolveIdentity(rec, identityField))] {
			out = append(out, rec)
		}
	}
	return out
}

// applyFilters ANDs all field filters. A text filter on a text field is a
// case-insensitive substring match; any other combination requires
// equality. Items missing a filtered field never match.
func applyFilters(items []Record, filters map[string]any) []Record {
	out := make([]Record, 0, len(items))
	for _, rec := range items {
		if matchesFilters(rec, filters) {
			out = append(out, rec)
		}
	}
	return out
}

func matchesFilters(rec Record, filters map[string]any) bool {
	for field, want := range filters {
		got, ok := rec[field]
		if !ok || got == nil {
			return false
		}
		if !matchesValue(got, want) {
			return false
		}
	}
	return true
}

func matchesValue(got, want any) bool {
	gs, gotText := got.(string)
	ws, wantText := want.(string)
	if gotText && wantText {
		return strings.Contains(strings.ToLower(gs), strings.ToLower(ws))
	}
	if gn, ok := numberValue(got); ok {
		if wn, ok := numberValue(want); ok {
			return gn == wn
		}
	}
	return canonicalString(got) == canonicalString(want)
}

// applySearch keeps items where at least one field value contains the
// search string, case-insensitively. Numbers compare via their decimal
// string form.
func applySearch(items []Record, search string) []Record {
	needle := strings.ToLower(search)
	out := make([]Record, 0, len(items))
	for _, rec := range items {
		for _, v := range rec {
			if s := searchableString(v); s != "" &&
				strings.Contains(strings.ToLower(s), needle) {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

// sortItems orders by a field ascending or descending (default descending).
// Items missing the field sort after all items that have it, regardless of
// direction; ties keep their input order.
func sortItems(items []Record, field, order string) []Record {
	asc := strings.EqualFold(order, "asc")

	out := make([]Record, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		a, aOK := out[i][field]
		b, bOK := out[j][field]
		if aOK && a == nil {
			aOK = false
		}
		if bOK && b == nil {
			bOK = false
		}
		switch {
		case !aOK && !bOK:
			return false
		case !aOK:
			return false // missing trails
		case !bOK:
			return true
		}
		cmp := compareValues(a, b)
		if asc {
			return cmp < 0
		}
		return cmp > 0
	})
	return out
}

// paginate clamps the page size into [1, MaxPageSize] (default
// DefaultPageSize) and the page number into [1, totalPages or 1], then
// slices the window.
func paginate(items []Record, page, pageSize int) *Page {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	total := len(items)
	pages := totalPages(total, pageSize)
	if page < 1 {
		page = 1
	}
	if pages == 0 {
		page = 1
	} else if page > pages {
		page = pages
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return &Page{
		Page:       page,
		PageSize:   pageSize,
		TotalPages: pages,
		TotalCount: total,
		HasNext:    page < pages,
		HasPrev:    page > 1,
		Items:      items[start:end],
	}
}
