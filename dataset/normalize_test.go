package dataset

import "testing"

func TestNormalizeFlatPassthrough(t *testing.T) {
	raw := []any{
		map[string]any{"id": float64(1), "level": "INFO"},
		map[string]any{"id": float64(2), "level": "ERROR"},
	}
	items := Normalize(raw)
	if len(items) != 2 {
		t.Fatalf("items: got %d, want 2", len(items))
	}
	if items[0]["level"] != "INFO" {
		t.Errorf("items[0].level: got %v, want INFO", items[0]["level"])
	}
}

func TestNormalizeUnwrapsNestedArray(t *testing.T) {
	raw := []any{
		map[string]any{
			"list": map[string]any{
				"event": []any{
					map[string]any{"id": float64(5)},
					map[string]any{"id": float64(7)},
				},
			},
		},
	}
	items := Normalize(raw)
	if len(items) != 2 {
		t.Fatalf("items: got %d, want 2", len(items))
	}
	if _, hasList := items[0]["list"]; hasList {
		t.Error("wrapper field leaked into normalized item")
	}
	if items[0]["id"] != float64(5) || items[1]["id"] != float64(7) {
		t.Errorf("ids: got %v, %v, want 5, 7", items[0]["id"], items[1]["id"])
	}
}

func TestNormalizeUnwrapsSingleObject(t *testing.T) {
	raw := []any{
		map[string]any{
			"list": map[string]any{
				"message": map[string]any{"id": float64(9), "status": "COMPLETED"},
			},
		},
	}
	items := Normalize(raw)
	if len(items) != 1 {
		t.Fatalf("items: got %d, want 1", len(items))
	}
	if items[0]["status"] != "COMPLETED" {
		t.Errorf("status: got %v, want COMPLETED", items[0]["status"])
	}
}

func TestNormalizeAmbiguousWrapperFallsBack(t *testing.T) {
	// Container holds neither an array nor an object: keep the input.
	raw := []any{
		map[string]any{
			"list": map[string]any{"count": float64(3)},
		},
	}
	items := Normalize(raw)
	if len(items) != 1 {
		t.Fatalf("items: got %d, want 1", len(items))
	}
	if _, ok := items[0]["list"]; !ok {
		t.Error("ambiguous wrapper should be returned unchanged")
	}
}

func TestNormalizeMultiElementInputIsNotUnwrapped(t *testing.T) {
	raw := []any{
		map[string]any{"list": map[string]any{"x": []any{map[string]any{"id": float64(1)}}}},
		map[string]any{"id": float64(2)},
	}
	items := Normalize(raw)
	if len(items) != 2 {
		t.Fatalf("items: got %d, want 2", len(items))
	}
}

func TestNormalizeNonObjectElements(t *testing.T) {
	raw := []any{"loose string", float64(42), nil}
	items := Normalize(raw)
	if len(items) != 2 {
		t.Fatalf("items: got %d, want 2 (nil dropped)", len(items))
	}
	if items[0]["value"] != "loose string" {
		t.Errorf("items[0].value: got %v", items[0]["value"])
	}
	if items[1]["value"] != float64(42) {
		t.Errorf("items[1].value: got %v", items[1]["value"])
	}
}

func TestNormalizeEmpty(t *testing.T) {
	if items := Normalize(nil); len(items) != 0 {
		t.Errorf("nil input: got %d items, want 0", len(items))
	}
	if items := Normalize([]any{}); len(items) != 0 {
		t.Errorf("empty input: got %d items, want 0", len(items))
	}
}
