// Package xrand centralizes randomness the way katzenpost's
// core/crypto/rand package does: a cryptographically secure Reader for
// anything security relevant (nonces, msg-ids, keys) and a convenience
// math/rand source, reseeded from crypto/rand, for non-adversarial choices
// like picking among equally-good datacenter endpoints or jittering a
// reconnect backoff.
package xrand

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
)

// Reader is the package-wide CSPRNG source.
var Reader = rand.Reader

// NewMath returns a *math/rand.Rand seeded from Reader. It must never be
// used for anything where predictability would be a security problem
// (keys, nonces, msg-ids) — only for load-balancing style choices.
func NewMath() *mrand.Rand {
	var seed [8]byte
	if _, err := rand.Read(seed[:]); err != nil {
		panic(err)
	}
	return mrand.New(mrand.NewSource(int64(binary.LittleEndian.Uint64(seed[:]))))
}

// Int63n returns a pseudo-random int64 in [0, n) drawn from a math/rand
// source seeded from Reader (see NewMath); it is not for keys, nonces,
// or msg-ids.
func Int63n(n int64) int64 {
	return NewMath().Int63n(n)
}
