package inject

import (
	"encoding/json"
	"testing"
)

func TestDiscoverAnglesTopLevelList(t *testing.T) {
	raw := json.RawMessage(`{"angles":[{"headline":"A"},{"headline":"B"}]}`)
	got := DiscoverAngles(raw)
	if len(got) != 2 {
		t.Fatalf("candidates = %d, want 2", len(got))
	}
	if got[0].Fields["headline"] != "A" || got[1].Fields["headline"] != "B" {
		t.Fatalf("order not preserved: %+v", got)
	}
}

func TestDiscoverAnglesNestedShapes(t *testing.T) {
	shapes := []string{
		`{"results":{"angles":[{"headline":"X"}]}}`,
		`{"data":{"angles":[{"headline":"X"}]}}`,
		`{"output":{"angles":[{"headline":"X"}]}}`,
		`{"results":[{"headline":"X"}]}`,
		`[{"headline":"X"}]`,
	}
	for _, shape := range shapes {
		got := DiscoverAngles(json.RawMessage(shape))
		if len(got) != 1 || got[0].Fields["headline"] != "X" {
			t.Fatalf("shape %s: candidates = %+v", shape, got)
		}
	}
}

func TestDiscoverAnglesObjectCollectionSortedByKey(t *testing.T) {
	raw := json.RawMessage(`{"angles":{
		"b_second": {"headline":"Second"},
		"a_first":  {"headline":"First"}
	}}`)
	got := DiscoverAngles(raw)
	if len(got) != 2 {
		t.Fatalf("candidates = %d, want 2", len(got))
	}
	if got[0].Fields["headline"] != "First" || got[1].Fields["headline"] != "Second" {
		t.Fatalf("object values not ordered by key: %+v", got)
	}
	if got[0].Name != "A First" {
		t.Fatalf("name hint = %q, want derived from key", got[0].Name)
	}
}

func TestDiscoverAnglesEmpty(t *testing.T) {
	for _, raw := range []string{``, `{}`, `{"angles":[]}`, `{"unrelated":true}`, `"scalar"`} {
		if got := DiscoverAngles(json.RawMessage(raw)); len(got) != 0 {
			t.Fatalf("payload %q: expected zero candidates, got %+v", raw, got)
		}
	}
}

func TestDiscoverAnglesContentWrapper(t *testing.T) {
	raw := json.RawMessage(`{"angles":[{"name":"Value Seekers","content":{"headline":"Deal"}}]}`)
	got := DiscoverAngles(raw)
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1", len(got))
	}
	if got[0].Name != "Value Seekers" {
		t.Fatalf("name = %q", got[0].Name)
	}
	if got[0].Fields["headline"] != "Deal" {
		t.Fatalf("wrapped content not unwrapped: %+v", got[0].Fields)
	}
}

func TestCandidateNamePrecedence(t *testing.T) {
	raw := json.RawMessage(`{"angles":[{"angle_name":"From Field","title":"Ignored","headline":"H"}]}`)
	got := DiscoverAngles(raw)
	if len(got) != 1 || got[0].Name != "From Field" {
		t.Fatalf("candidates = %+v", got)
	}
}

func TestDiscoverAnglesFirstNonEmptyStrategyWins(t *testing.T) {
	// "angles" is present but empty; the nested shape must be tried next.
	raw := json.RawMessage(`{"angles":[],"results":{"angles":[{"headline":"Nested"}]}}`)
	got := DiscoverAngles(raw)
	if len(got) != 1 || got[0].Fields["headline"] != "Nested" {
		t.Fatalf("candidates = %+v", got)
	}
}
