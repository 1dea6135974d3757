package dpconsensus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashSize is the size in bytes of a [Hash].
const HashSize = sha256.Size

// Hash is a SHA-256 digest used for commitments, reveals and signatures.
//
// The zero value is the explicit empty sentinel,
// meaning "no value was ever committed or revealed".
type Hash [HashSize]byte

// HashOf returns the SHA-256 digest of the concatenation of parts.
func HashOf(parts ...[]byte) Hash {
	h := sha256.New()
	for _, p := range parts {
		_, _ = h.Write(p) // hash.Hash never returns an error on Write.
	}
	var out Hash
	h.Sum(out[:0])
	return out
}

// HashFromHex decodes a 64-character hex string into a Hash.
// The empty string decodes to the empty sentinel.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	if s == "" {
		return h, nil
	}
	if len(s) != 2*HashSize {
		return h, fmt.Errorf("invalid hash length: want %d hex characters, got %d", 2*HashSize, len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("invalid hash hex: %w", err)
	}
	return h, nil
}

// IsEmpty reports whether h is the empty sentinel.
func (h Hash) IsEmpty() bool {
	return h == Hash{}
}

// Xor returns the bytewise XOR of h and o.
func (h Hash) Xor(o Hash) Hash {
	var out Hash
	for i := range h {
		out[i] = h[i] ^ o[i]
	}
	return out
}

// XorAndHash returns the digest of a XOR b.
func XorAndHash(a, b Hash) Hash {
	x := a.Xor(b)
	return HashOf(x[:])
}

// Bytes returns a newly allocated copy of the hash bytes.
func (h Hash) Bytes() []byte {
	out := make([]byte, HashSize)
	copy(out, h[:])
	return out
}

// String returns the lowercase hex encoding of h,
// or the empty string for the empty sentinel.
func (h Hash) String() string {
	if h.IsEmpty() {
		return ""
	}
	return hex.EncodeToString(h[:])
}

// MarshalText implements [encoding.TextMarshaler].
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (h *Hash) UnmarshalText(b []byte) error {
	v, err := HashFromHex(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}
