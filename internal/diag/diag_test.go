package diag

import "testing"

func TestGroupRelatedAttachesHintsToPrecedingError(t *testing.T) {
	dup := New(Range{Start: Position{Line: 3, Character: 2}, End: Position{Line: 3, Character: 4}}, SevError, "Duplicate ordinal number")
	orig := New(Point(Position{Line: 2, Character: 2}), SevHint, "Ordinal @0 originally used here")
	other := New(Point(Position{Line: 7}), SevError, "Parse error")

	groups := GroupRelated([]Diagnostic{dup, orig, other})
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Primary != dup {
		t.Fatalf("unexpected primary: %v", groups[0].Primary)
	}
	if len(groups[0].Related) != 1 || groups[0].Related[0].Message != orig.Message {
		t.Fatalf("expected hint nested under first error, got %+v", groups[0].Related)
	}
	if groups[1].Primary != other || len(groups[1].Related) != 0 {
		t.Fatalf("unexpected second group: %+v", groups[1])
	}
}

func TestGroupRelatedLeadingHintStandsAlone(t *testing.T) {
	hint := New(Point(Position{}), SevHint, "x originally used here")
	groups := GroupRelated([]Diagnostic{hint, hint})
	if len(groups) != 2 {
		t.Fatalf("expected orphan hints to stay separate, got %d groups", len(groups))
	}
}

func TestBagLimit(t *testing.T) {
	b := NewBag(1)
	if !b.Add(New(Range{}, SevHint, "a")) {
		t.Fatal("first add should succeed")
	}
	if b.Add(New(Range{}, SevError, "b")) {
		t.Fatal("second add should hit the limit")
	}
	if b.Len() != 1 || b.Dropped() != 1 {
		t.Fatalf("len=%d dropped=%d", b.Len(), b.Dropped())
	}
	if b.HasErrors() {
		t.Fatal("dropped error must not count")
	}
}

func TestSeverityLSP(t *testing.T) {
	cases := map[Severity]int{SevError: 1, SevWarning: 2, SevInfo: 3, SevHint: 4}
	for sev, want := range cases {
		if got := sev.LSP(); got != want {
			t.Errorf("%s.LSP() = %d, want %d", sev, got, want)
		}
	}
}
