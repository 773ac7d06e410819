package model

import "testing"

func TestParseRef_RoundTrip(t *testing.T) {
	cases := []string{"group/proj#12", "group/proj!7", "ops#1"}
	for _, in := range cases {
		ref, err := ParseRef(in)
		if err != nil {
			t.Fatalf("ParseRef(%q): %v", in, err)
		}
		if got := ref.String(); got != in {
			t.Errorf("round trip %q = %q", in, got)
		}
	}
}

func TestParseRef_Kinds(t *testing.T) {
	ref, err := ParseRef("proj!42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.Kind != KindMergeRequest || ref.Number != 42 {
		t.Errorf("ref = %+v", ref)
	}
	ref, err = ParseRef("proj#42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.Kind != KindIssue {
		t.Errorf("kind = %v, want issue", ref.Kind)
	}
}

func TestParseRef_Malformed(t *testing.T) {
	for _, in := range []string{"", "proj", "#12", "proj#", "proj#abc", "proj#0", "proj#-3"} {
		if _, err := ParseRef(in); err == nil {
			t.Errorf("ParseRef(%q): expected error", in)
		}
	}
}

func TestRecordRef_Before(t *testing.T) {
	a := RecordRef{Project: "p", Kind: KindIssue, Number: 3}
	b := RecordRef{Project: "p", Kind: KindIssue, Number: 9}
	if !a.Before(b) || b.Before(a) {
		t.Errorf("ordering by number broken")
	}
	c := RecordRef{Project: "q", Kind: KindIssue, Number: 3}
	if !a.Before(c) {
		t.Errorf("tie on number should fall back to project")
	}
}

func TestParseLinkKind_FailsClosed(t *testing.T) {
	if k := ParseLinkKind("shiny-new-relation"); k != LinkUnknown {
		t.Errorf("unexpected kind %v for unknown relation", k)
	}
	if k := ParseLinkKind("is_blocked_by"); k != LinkBlockedBy {
		t.Errorf("is_blocked_by = %v", k)
	}
	if k := ParseLinkKind("relates-to"); k != LinkRelatesTo {
		t.Errorf("relates-to = %v", k)
	}
}

func TestLink_Normalized(t *testing.T) {
	a := RecordRef{Project: "p", Number: 1}
	b := RecordRef{Project: "p", Number: 2}
	n := Link{From: a, To: b, Kind: LinkBlockedBy}.Normalized()
	if n.Kind != LinkBlocks || n.From != b || n.To != a {
		t.Errorf("normalized = %+v", n)
	}
	same := Link{From: a, To: b, Kind: LinkPartOf}
	if got := same.Normalized(); got != same {
		t.Errorf("part_of should be unchanged, got %+v", got)
	}
}

func TestRecord_Validate(t *testing.T) {
	r := &Record{Ref: RecordRef{Project: "p", Number: 1}, Title: "Add widget"}
	if err := r.Validate(); err != nil {
		t.Errorf("valid record rejected: %v", err)
	}
	bad := &Record{Ref: RecordRef{Project: "p", Number: 1}}
	if err := bad.Validate(); err == nil {
		t.Errorf("record without title accepted")
	}
}
