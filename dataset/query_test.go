package dataset

import (
	"errors"
	"fmt"
	"testing"
)

func storeEvents(t *testing.T, s *Store) *Metadata {
	t.Helper()
	return s.Store(KindEvents, []any{
		map[string]any{"id": float64(1), "level": "ERROR", "outcome": "FAILED", "message": "disk full on node-3"},
		map[string]any{"id": float64(2), "level": "INFO", "outcome": "SUCCESS", "message": "nightly sync finished"},
		map[string]any{"id": float64(3), "level": "ERROR", "outcome": "SUCCESS", "message": "retried and recovered"},
		map[string]any{"id": float64(4), "level": "WARN", "outcome": "SUCCESS", "message": "slow response from upstream"},
	}, nil)
}

func TestQueryIdentityListFilter(t *testing.T) {
	s := testStore(t)
	meta := storeEvents(t, s)

	page, err := s.Query(&QueryRequest{
		DatasetID: meta.ID,
		IDs:       []any{float64(1), "3", float64(99)},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.TotalCount != 2 {
		t.Fatalf("TotalCount: got %d, want 2", page.TotalCount)
	}
	// Baseline order is identity descending, filters never reorder.
	if page.Items[0]["id"] != float64(3) || page.Items[1]["id"] != float64(1) {
		t.Errorf("items: got ids %v, %v, want 3, 1", page.Items[0]["id"], page.Items[1]["id"])
	}
}

func TestQueryFieldFiltersAreANDed(t *testing.T) {
	s := testStore(t)
	meta := storeEvents(t, s)

	page, err := s.Query(&QueryRequest{
		DatasetID: meta.ID,
		Filters:   map[string]any{"level": "ERROR", "outcome": "FAILED"},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.TotalCount != 1 {
		t.Fatalf("TotalCount: got %d, want 1", page.TotalCount)
	}
	if page.Items[0]["id"] != float64(1) {
		t.Errorf("id: got %v, want 1", page.Items[0]["id"])
	}
}

func TestQueryTextFilterIsSubstringCaseInsensitive(t *testing.T) {
	s := testStore(t)
	meta := storeEvents(t, s)

	page, err := s.Query(&QueryRequest{
		DatasetID: meta.ID,
		Filters:   map[string]any{"message": "SYNC"},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.TotalCount != 1 || page.Items[0]["id"] != float64(2) {
		t.Errorf("got %d items, first %v", page.TotalCount, page.Items)
	}
}

func TestQueryNumericFilterMatchesStringForm(t *testing.T) {
	s := testStore(t)
	meta := s.Store(KindGeneric, []any{
		map[string]any{"id": float64(1), "code": float64(404)},
		map[string]any{"id": float64(2), "code": "404"},
		map[string]any{"id": float64(3), "code": float64(200)},
	}, nil)

	page, err := s.Query(&QueryRequest{DatasetID: meta.ID, Filters: map[string]any{"code": float64(404)}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.TotalCount != 2 {
		t.Errorf("TotalCount: got %d, want 2", page.TotalCount)
	}
}

func TestQueryMissingFieldNeverMatches(t *testing.T) {
	s := testStore(t)
	meta := s.Store(KindGeneric, []any{
		map[string]any{"id": float64(1)},
		map[string]any{"id": float64(2), "status": "OPEN"},
	}, nil)

	page, err := s.Query(&QueryRequest{DatasetID: meta.ID, Filters: map[string]any{"status": "OPEN"}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.TotalCount != 1 || page.Items[0]["id"] != float64(2) {
		t.Errorf("got %d items, first %v", page.TotalCount, page.Items)
	}
}

func TestQuerySearchSpansAllScalarFields(t *testing.T) {
	s := testStore(t)
	meta := storeEvents(t, s)

	page, err := s.Query(&QueryRequest{DatasetID: meta.ID, Search: "success"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.TotalCount != 3 {
		t.Errorf("TotalCount: got %d, want 3", page.TotalCount)
	}
}

func TestQuerySortAscDescReversal(t *testing.T) {
	s := testStore(t)
	meta := s.Store(KindGeneric, []any{
		map[string]any{"id": float64(1), "size": float64(30)},
		map[string]any{"id": float64(2), "size": float64(10)},
		map[string]any{"id": float64(3)}, // no size field
		map[string]any{"id": float64(4), "size": float64(20)},
	}, nil)

	asc, err := s.Query(&QueryRequest{DatasetID: meta.ID, SortBy: "size", SortOrder: "asc"})
	if err != nil {
		t.Fatalf("asc query: %v", err)
	}
	desc, err := s.Query(&QueryRequest{DatasetID: meta.ID, SortBy: "size"})
	if err != nil {
		t.Fatalf("desc query: %v", err)
	}

	wantAsc := []float64{10, 20, 30}
	for i, w := range wantAsc {
		if asc.Items[i]["size"] != w {
			t.Errorf("asc[%d].size: got %v, want %v", i, asc.Items[i]["size"], w)
		}
	}
	wantDesc := []float64{30, 20, 10}
	for i, w := range wantDesc {
		if desc.Items[i]["size"] != w {
			t.Errorf("desc[%d].size: got %v, want %v", i, desc.Items[i]["size"], w)
		}
	}
	// Items lacking the sort field trail in both directions.
	if asc.Items[3]["id"] != float64(3) {
		t.Errorf("asc tail: got %v, want id 3", asc.Items[3])
	}
	if desc.Items[3]["id"] != float64(3) {
		t.Errorf("desc tail: got %v, want id 3", desc.Items[3])
	}
}

func TestQueryPaginationCoversEveryItemOnce(t *testing.T) {
	s := testStore(t)
	var raw []any
	for i := 1; i <= 237; i++ {
		raw = append(raw, map[string]any{"id": float64(i)})
	}
	meta := s.Store(KindGeneric, raw, nil)

	seen := make(map[string]int)
	page := 1
	for {
		p, err := s.Query(&QueryRequest{DatasetID: meta.ID, Page: page, PageSize: 25})
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		if p.TotalCount != 237 {
			t.Fatalf("page %d TotalCount: got %d, want 237", page, p.TotalCount)
		}
		for _, it := range p.Items {
			seen[fmt.Sprint(it["id"])]++
		}
		if !p.HasNext {
			break
		}
		page++
	}
	if len(seen) != 237 {
		t.Fatalf("distinct items: got %d, want 237", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("item %s seen %d times", id, n)
		}
	}
}

func TestQueryPageBeyondLastClampsToLast(t *testing.T) {
	s := testStore(t)
	var raw []any
	for i := 1; i <= 10; i++ {
		raw = append(raw, map[string]any{"id": float64(i)})
	}
	meta := s.Store(KindGeneric, raw, nil)

	p, err := s.Query(&QueryRequest{DatasetID: meta.ID, Page: 50, PageSize: 3})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if p.Page != 4 {
		t.Errorf("Page: got %d, want 4", p.Page)
	}
	if len(p.Items) != 1 {
		t.Errorf("items on last page: got %d, want 1", len(p.Items))
	}
	if p.HasNext {
		t.Error("HasNext on last page: got true")
	}
	if !p.HasPrev {
		t.Error("HasPrev on last page: got false")
	}
}

func TestQueryPageSizeClamped(t *testing.T) {
	s := testStore(t)
	var raw []any
	for i := 1; i <= 150; i++ {
		raw = append(raw, map[string]any{"id": float64(i)})
	}
	meta := s.Store(KindGeneric, raw, nil)

	p, err := s.Query(&QueryRequest{DatasetID: meta.ID, PageSize: 500})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if p.PageSize != MaxPageSize {
		t.Errorf("PageSize: got %d, want %d", p.PageSize, MaxPageSize)
	}
	if len(p.Items) != MaxPageSize {
		t.Errorf("items: got %d, want %d", len(p.Items), MaxPageSize)
	}
}

func TestQueryEmptyResultHasValidShape(t *testing.T) {
	s := testStore(t)
	meta := storeEvents(t, s)

	p, err := s.Query(&QueryRequest{DatasetID: meta.ID, Filters: map[string]any{"level": "FATAL"}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if p.TotalCount != 0 || p.TotalPages != 0 || p.Page != 1 {
		t.Errorf("empty page: got %+v", p)
	}
	if p.HasNext || p.HasPrev {
		t.Errorf("empty page nav: got next=%v prev=%v", p.HasNext, p.HasPrev)
	}
	if p.Items == nil {
		t.Error("Items: got nil, want empty slice")
	}
}

func TestQueryUnknownDataset(t *testing.T) {
	s := testStore(t)
	_, err := s.Query(&QueryRequest{DatasetID: "ds_missing"})
	if !errors.Is(err, ErrDatasetNotFound) {
		t.Errorf("got %v, want ErrDatasetNotFound", err)
	}
}

func TestQueryStagesComposeInOrder(t *testing.T) {
	s := testStore(t)
	meta := storeEvents(t, s)

	p, err := s.Query(&QueryRequest{
		DatasetID: meta.ID,
		IDs:       []any{float64(1), float64(2), float64(3)},
		Filters:   map[string]any{"outcome": "SUCCESS"},
		Search:    "sync",
		SortBy:    "id",
		SortOrder: "asc",
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if p.TotalCount != 1 || p.Items[0]["id"] != float64(2) {
		t.Errorf("composed query: got %d items, first %v", p.TotalCount, p.Items)
	}
}
