package digest_test

import (
	"strings"
	"testing"

	"anchord/internal/digest"
)

// Reference vector: SHA-256 of the empty byte string. Empty payloads are
// rejected upstream, so this only pins the algorithm identity.
const emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestSumDeterministic(t *testing.T) {
	a := digest.Sum([]byte("evidence payload"))
	b := digest.Sum([]byte("evidence payload"))
	if a != b {
		t.Fatalf("expected identical digests, got %s and %s", a, b)
	}
	if a.Algo != digest.SHA256 {
		t.Fatalf("unexpected algorithm %q", a.Algo)
	}
	if len(a.Hex) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a.Hex))
	}
	if a.Hex != strings.ToLower(a.Hex) {
		t.Fatalf("digest not lowercase: %s", a.Hex)
	}
}

func TestSumEmptyReferenceVector(t *testing.T) {
	if got := digest.Sum(nil).Hex; got != emptySHA256 {
		t.Fatalf("empty input digest = %s, want %s", got, emptySHA256)
	}
}

func TestVerifyFormat(t *testing.T) {
	cases := []struct {
		name string
		hex  string
		algo digest.Algorithm
		ok   bool
	}{
		{"valid", emptySHA256, digest.SHA256, true},
		{"too short", emptySHA256[:63], digest.SHA256, false},
		{"too long", emptySHA256 + "a", digest.SHA256, false},
		{"uppercase", strings.ToUpper(emptySHA256), digest.SHA256, false},
		{"non hex", strings.Replace(emptySHA256, "e", "z", 1), digest.SHA256, false},
		{"unknown algo", emptySHA256, digest.Algorithm("md5"), false},
		{"empty", "", digest.SHA256, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := digest.VerifyFormat(tc.hex, tc.algo); got != tc.ok {
				t.Fatalf("VerifyFormat(%q, %q) = %v, want %v", tc.hex, tc.algo, got, tc.ok)
			}
		})
	}
}

func TestParse(t *testing.T) {
	v, err := digest.Parse("sha256:" + emptySHA256)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if v.Algo != digest.SHA256 || v.Hex != emptySHA256 {
		t.Fatalf("unexpected value: %#v", v)
	}

	bare, err := digest.Parse(emptySHA256)
	if err != nil {
		t.Fatalf("Parse bare hex failed: %v", err)
	}
	if bare != v {
		t.Fatalf("bare hex parse mismatch: %#v", bare)
	}

	if _, err := digest.Parse("sha256:abc"); err == nil {
		t.Fatal("expected error for truncated hex")
	}
	if _, err := digest.Parse(""); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestBytesRoundTrip(t *testing.T) {
	v := digest.Sum([]byte("round trip"))
	raw, err := v.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if len(raw) != 32 {
		t.Fatalf("expected 32 raw bytes, got %d", len(raw))
	}
}
