package testcase

import "testing"

func TestSetDedupByByteIdentity(t *testing.T) {
	s := NewSet(Testcase("AAAA"), Testcase("AAAA"), Testcase("BB"))
	if len(s) != 2 {
		t.Fatalf("expected 2 distinct members, got %d", len(s))
	}
	if !s.Has(Testcase("AAAA")) || !s.Has(Testcase("BB")) {
		t.Fatalf("missing expected members: %v", s)
	}
}

func TestSetAddIsNoOpOnDuplicate(t *testing.T) {
	s := NewSet()
	s.Add(Testcase("x"))
	s.Add(Testcase("x"))
	if len(s) != 1 {
		t.Fatalf("expected 1 member after duplicate Add, got %d", len(s))
	}
}

func TestSetUnion(t *testing.T) {
	a := NewSet(Testcase("A"), Testcase("B"))
	b := NewSet(Testcase("B"), Testcase("C"))
	u := a.Union(b)
	if len(u) != 3 {
		t.Fatalf("expected 3 members in union, got %d", len(u))
	}
	for _, want := range []string{"A", "B", "C"} {
		if !u.Has(Testcase(want)) {
			t.Fatalf("union missing %q", want)
		}
	}
}

func TestSetSliceIsDeterministic(t *testing.T) {
	s := NewSet(Testcase("CCC"), Testcase("A"), Testcase("BB"))
	first := s.Slice()
	second := s.Slice()
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("expected 3 elements, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if string(first[i]) != string(second[i]) {
			t.Fatalf("Slice() not stable across calls: %v vs %v", first, second)
		}
	}
	if string(first[0]) != "A" || string(first[1]) != "BB" || string(first[2]) != "CCC" {
		t.Fatalf("expected lexicographic order, got %v", first)
	}
}
