// Package hexid generates short random hex identifiers.
package hexid

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns an 8-character lowercase hex string (4 random bytes). Used for
// debug log file names.
func New() string {
	return generate(4)
}

// NewLong returns a 16-character lowercase hex string (8 random bytes). Used
// for locally synthesized message ids, which must not collide with
// backend-assigned ids within a session.
func NewLong() string {
	return generate(8)
}

func generate(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("hexid: crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
