package ids

import "testing"

func TestParseCanonicalAndLegacy(t *testing.T) {
	v, err := Parse("0000000000000001")
	if err != nil || v != 1 {
		t.Fatalf("Parse(canonical) = %d, %v", v, err)
	}
	v, err = Parse("1")
	if err != nil || v != 1 {
		t.Fatalf("Parse(legacy decimal) = %d, %v", v, err)
	}
	if _, err := Parse(""); err == nil {
		t.Fatal("expected error for empty id")
	}
	if _, err := Parse("not-an-id!"); err == nil {
		t.Fatal("expected error for garbage id")
	}
}

func TestCanonicalRoundTrip(t *testing.T) {
	c := Canonical(42)
	if len(c) != CanonicalLen {
		t.Fatalf("canonical id length = %d, want %d", len(c), CanonicalLen)
	}
	v, err := Parse(c)
	if err != nil || v != 42 {
		t.Fatalf("round trip failed: %d, %v", v, err)
	}
}

func TestCompareIsNumericNotLexical(t *testing.T) {
	// Legacy decimal "9" < "10" numerically, but "9" > "10" as plain
	// strings, so a lexical comparison would order them the other way.
	a := "9"
	b := "10"
	if !Less(a, b) {
		t.Fatalf("expected %s < %s numerically", a, b)
	}
}

func TestNextID(t *testing.T) {
	if got := NextID(nil); got != 1 {
		t.Fatalf("NextID(empty) = %d, want 1", got)
	}
	existing := []string{Canonical(1), Canonical(5), Canonical(3)}
	if got := NextID(existing); got != 6 {
		t.Fatalf("NextID = %d, want 6", got)
	}
}

func TestResolvePrefixExactMatchWins(t *testing.T) {
	resident := []string{Canonical(1), Canonical(0x1a)}
	got, err := ResolvePrefix(Canonical(1), resident)
	if err != nil {
		t.Fatalf("ResolvePrefix: %v", err)
	}
	if got != Canonical(1) {
		t.Fatalf("got %s, want exact match %s", got, Canonical(1))
	}
}

func TestResolvePrefixUnique(t *testing.T) {
	resident := []string{Canonical(0x1a2b), Canonical(0x99)}
	got, err := ResolvePrefix("0000000000001a2", resident)
	if err != nil {
		t.Fatalf("ResolvePrefix: %v", err)
	}
	if got != Canonical(0x1a2b) {
		t.Fatalf("got %s, want %s", got, Canonical(0x1a2b))
	}
}

func TestResolvePrefixAmbiguous(t *testing.T) {
	resident := []string{Canonical(0x1a00), Canonical(0x1a01)}
	_, err := ResolvePrefix("0000000000001a", resident)
	if err == nil {
		t.Fatal("expected AmbiguousPrefix error")
	}
}

func TestResolvePrefixNotFound(t *testing.T) {
	resident := []string{Canonical(1)}
	if _, err := ResolvePrefix("ffffffffffffffff", resident); err == nil {
		t.Fatal("expected NotFound error")
	}
}
