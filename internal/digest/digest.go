// Package digest computes and validates canonical evidence content digests.
//
// This is the only package in the repository that hashes payload bytes;
// every other component treats digests as opaque validated values. The
// algorithm set is closed: adding a member is a deliberate schema change
// that must be reflected in the store schema and the verification surface.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Algorithm identifies a supported digest algorithm.
type Algorithm string

const (
	// SHA256 is the only algorithm currently in the closed set.
	SHA256 Algorithm = "sha256"
)

// Size returns the hex-encoded output width for the algorithm, or 0 when
// the algorithm is unknown.
func (a Algorithm) Size() int {
	switch a {
	case SHA256:
		return sha256.Size * 2
	default:
		return 0
	}
}

// Valid reports whether the algorithm is a member of the closed set.
func (a Algorithm) Valid() bool {
	return a.Size() > 0
}

// Value is an algorithm-tagged, lowercase hex digest.
type Value struct {
	Algo Algorithm `json:"algo"`
	Hex  string    `json:"hex"`
}

// Sum computes the SHA-256 digest of data. Callers must reject empty
// payloads at their own boundary; Sum is total for any input.
func Sum(data []byte) Value {
	h := sha256.Sum256(data)
	return Value{Algo: SHA256, Hex: hex.EncodeToString(h[:])}
}

// VerifyFormat reports whether hex has the exact length and character set
// required by algo, without recomputing any hash.
func VerifyFormat(hexStr string, algo Algorithm) bool {
	size := algo.Size()
	if size == 0 || len(hexStr) != size {
		return false
	}
	for i := 0; i < len(hexStr); i++ {
		c := hexStr[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// String renders the value in "algo:hex" notation.
func (v Value) String() string {
	return string(v.Algo) + ":" + v.Hex
}

// Validate checks the value against its declared algorithm.
func (v Value) Validate() error {
	if !v.Algo.Valid() {
		return fmt.Errorf("unknown digest algorithm %q", v.Algo)
	}
	if !VerifyFormat(v.Hex, v.Algo) {
		return fmt.Errorf("digest %q is not a valid %s hex string", v.Hex, v.Algo)
	}
	return nil
}

// Bytes decodes the hex digest into raw bytes.
func (v Value) Bytes() ([]byte, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return hex.DecodeString(v.Hex)
}

// Parse converts "algo:hex" notation (or bare hex, assumed SHA-256) into a
// validated Value.
func Parse(s string) (Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}, fmt.Errorf("empty digest")
	}
	v := Value{Algo: SHA256, Hex: s}
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		v.Algo = Algorithm(strings.ToLower(s[:idx]))
		v.Hex = s[idx+1:]
	}
	v.Hex = strings.ToLower(v.Hex)
	if err := v.Validate(); err != nil {
		return Value{}, err
	}
	return v, nil
}
