package channel

import (
	"testing"
)

// --- Key derivation tests ---

func TestKeyFor_Deterministic(t *testing.T) {
	type filter struct {
		SellerID string `json:"sellerId"`
		Location string `json:"location"`
	}
	a, err := KeyFor("inventory", filter{SellerID: "s-1", Location: "us"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := KeyFor("inventory", filter{SellerID: "s-1", Location: "us"})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("same inputs produced different keys: %s vs %s", a, b)
	}
}

func TestKeyFor_MapOrderIndependent(t *testing.T) {
	// Struct field order and map insertion order must not matter: both
	// encode to the same canonical JSON object.
	type ab struct {
		A string `json:"a"`
		B string `json:"b"`
	}
	type ba struct {
		B string `json:"b"`
		A string `json:"a"`
	}
	k1, err := KeyFor("inventory", ab{A: "1", B: "2"})
	if err != nil {
		t.Fatal(err)
	}
	k2, err := KeyFor("inventory", ba{A: "1", B: "2"})
	if err != nil {
		t.Fatal(err)
	}
	k3, err := KeyFor("inventory", map[string]string{"b": "2", "a": "1"})
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 || k1 != k3 {
		t.Fatalf("equivalent filters produced different keys: %s, %s, %s", k1, k2, k3)
	}
}

func TestKeyFor_DomainSeparation(t *testing.T) {
	f := map[string]string{"sellerId": "s-1"}
	k1, err := KeyFor("inventory", f)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := KeyFor("marketing", f)
	if err != nil {
		t.Fatal(err)
	}
	if k1 == k2 {
		t.Fatal("different domains with equal filters must not collide")
	}
}

func TestKeyFor_FilterSeparation(t *testing.T) {
	k1, err := KeyFor("inventory", map[string]string{"sellerId": "s-1"})
	if err != nil {
		t.Fatal(err)
	}
	k2, err := KeyFor("inventory", map[string]string{"sellerId": "s-2"})
	if err != nil {
		t.Fatal(err)
	}
	if k1 == k2 {
		t.Fatal("different filters must not collide")
	}
}

func TestKeyFor_EmptyDomain(t *testing.T) {
	if _, err := KeyFor("", nil); err == nil {
		t.Fatal("expected error for empty domain")
	}
}

func TestKeyFor_NilFilterIsEmptyObject(t *testing.T) {
	k1, err := KeyFor("inventory", nil)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := KeyFor("inventory", map[string]string{})
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 {
		t.Fatal("nil filter should hash like an empty object")
	}
}

func TestCanonicalFilter_RejectsNonObject(t *testing.T) {
	if _, err := CanonicalFilter([]string{"not", "an", "object"}); err == nil {
		t.Fatal("expected error for non-object filter")
	}
	if _, err := CanonicalFilter(42); err == nil {
		t.Fatal("expected error for scalar filter")
	}
}

func TestCanonicalFilter_RejectsUnmarshalable(t *testing.T) {
	if _, err := CanonicalFilter(map[string]any{"fn": func() {}}); err == nil {
		t.Fatal("expected error for unmarshalable filter")
	}
}

// --- Hex round-trip tests ---

func TestKey_HexRoundTrip(t *testing.T) {
	k, err := KeyFor("inventory", map[string]string{"sellerId": "s-1"})
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseHex(k.Hex())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != k {
		t.Fatalf("round trip mismatch: %s vs %s", parsed, k)
	}
}

func TestParseHex_Invalid(t *testing.T) {
	if _, err := ParseHex("zz"); err == nil {
		t.Fatal("expected error for non-hex input")
	}
	if _, err := ParseHex("abcd"); err == nil {
		t.Fatal("expected error for short input")
	}
}
