package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// Fingerprint identifies a candidate by its content, not its storage identity.
// Two candidates with identical (family, theta, alpha, sim config) share one.
type Fingerprint Hash

// NewFingerprint creates a fingerprint from canonical bytes
func NewFingerprint(data []byte) Fingerprint { return Fingerprint(NewHash(data)) }

// String returns the string representation
func (f Fingerprint) String() string { return Hash(f).String() }

// IsEmpty checks if the fingerprint is empty
func (f Fingerprint) IsEmpty() bool { return Hash(f).IsEmpty() }

// CanonicalEncoder builds the byte stream fingerprints are computed over.
// Field order is fixed; floats are encoded to full bit precision so that
// 0.1+0.2 and 0.3 fingerprint differently.
type CanonicalEncoder struct {
	buf strings.Builder
}

// WriteString appends a length-prefixed string field
func (e *CanonicalEncoder) WriteString(s string) {
	var lenBytes [8]byte
	binary.BigEndian.PutUint64(lenBytes[:], uint64(len(s)))
	e.buf.Write(lenBytes[:])
	e.buf.WriteString(s)
}

// WriteFloat appends a float64 field at full bit precision
func (e *CanonicalEncoder) WriteFloat(f float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(f))
	e.buf.Write(b[:])
}

// WriteInt appends an int64 field
func (e *CanonicalEncoder) WriteInt(i int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(i))
	e.buf.Write(b[:])
}

// WriteBool appends a bool field
func (e *CanonicalEncoder) WriteBool(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

// WriteFloats appends a float64 slice field with a length prefix
func (e *CanonicalEncoder) WriteFloats(fs []float64) {
	e.WriteInt(int64(len(fs)))
	for _, f := range fs {
		e.WriteFloat(f)
	}
}

// Fingerprint returns the fingerprint of everything written so far
func (e *CanonicalEncoder) Fingerprint() Fingerprint {
	return NewFingerprint([]byte(e.buf.String()))
}
