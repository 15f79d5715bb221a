// Package mtproto implements the MTProto 2.0 transport core: auth-key
// negotiation, message-layer encryption, and session state (spec.md §§3,
// 4.2-4.5). The crypto here follows pylogram's authorize()/ precisely in
// shape; the concurrency and memory-hygiene idioms follow katzenpost's
// Ratchet (memguard-locked key material) and its AVL-tree/bloom-filter
// based bookkeeping for pending responses and replay detection.
package mtproto

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math/big"
	"time"

	"github.com/awnumar/memguard"

	"github.com/dstainton-labs/gomtproto/internal/xrand"
)

// ErrFactorizationTimeout is returned when Pollard's rho fails to find a
// nontrivial factor of pq within the allotted budget. A real server's pq
// is always exactly two ~32-bit primes, so this only fires against a
// misbehaving or adversarial peer.
var ErrFactorizationTimeout = errors.New("mtproto: pq factorization exceeded time budget")

// AuthKey is the 2048-bit shared secret negotiated by the handshake. It
// is kept in a memguard.LockedBuffer for the same reason Ratchet keeps
// its chain/header keys there: this process must not let it be paged to
// swap or linger in a stack frame after use.
type AuthKey struct {
	buf *memguard.LockedBuffer
	id  int64
}

// NewAuthKey takes ownership of key (2048 bits / 256 bytes) and computes
// its key id (the low 64 bits of SHA1(key), per MTProto's auth_key_id
// rule).
func NewAuthKey(key []byte) *AuthKey {
	sum := sha1.Sum(key)
	id := int64(binary.LittleEndian.Uint64(sum[12:20]))
	return &AuthKey{buf: memguard.NewBufferFromBytes(key), id: id}
}

// ID returns the 64-bit auth_key_id every encrypted message is prefixed
// with.
func (k *AuthKey) ID() int64 { return k.id }

// Bytes returns a copy of the raw key material. Callers must not retain
// the returned slice past its use; Destroy zeroes the backing buffer.
func (k *AuthKey) Bytes() []byte {
	k.buf.Melt()
	defer k.buf.Freeze()
	out := make([]byte, k.buf.Size())
	copy(out, k.buf.Bytes())
	return out
}

// Destroy wipes the key from memory. Call this when a Session tears
// down or reauthorizes.
func (k *AuthKey) Destroy() {
	k.buf.Destroy()
}

// GenerateNonce returns 16 bytes of handshake nonce material.
func GenerateNonce() [16]byte {
	var n [16]byte
	if _, err := xrand.Reader.Read(n[:]); err != nil {
		panic(err)
	}
	return n
}

// GenerateNewNonce returns the 32-byte new_nonce used to bind every
// later handshake step back to this attempt.
func GenerateNewNonce() [32]byte {
	var n [32]byte
	if _, err := xrand.Reader.Read(n[:]); err != nil {
		panic(err)
	}
	return n
}

// NewNonceHash computes one of the three dh_gen_{ok,retry,fail} hash
// variants: SHA256(new_nonce || marker || auth_key_aux_hash-derived byte
// string), truncated to its low 128 bits, per MTProto 2.0's handshake
// completion check.
func NewNonceHash(newNonce [32]byte, marker byte, authKeyAuxHash []byte) [16]byte {
	h := sha256.New()
	h.Write(newNonce[:])
	h.Write([]byte{marker})
	h.Write(authKeyAuxHash)
	sum := h.Sum(nil)
	var out [16]byte
	copy(out[:], sum[len(sum)-16:])
	return out
}

// FactorizePQ finds the two prime factors of pq using Pollard's rho with
// Brent's cycle-detection improvement, grounded on the factorization
// pylogram's authorize() delegates to pyrogram.crypto.prime. Telegram's
// pq is always the product of two primes under 2^32, so this completes
// in microseconds against a real server; ctx bounds it against anything
// else.
func FactorizePQ(ctx context.Context, pq uint64) (p, q uint64, err error) {
	if pq%2 == 0 {
		return 2, pq / 2, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	n := new(big.Int).SetUint64(pq)
	factor, err := pollardRhoBrent(ctx, n)
	if err != nil {
		return 0, 0, err
	}
	p = factor.Uint64()
	q = pq / p
	if p > q {
		p, q = q, p
	}
	return p, q, nil
}

func pollardRhoBrent(ctx context.Context, n *big.Int) (*big.Int, error) {
	one := big.NewInt(1)
	if n.Cmp(one) == 0 {
		return nil, errors.New("mtproto: pq must be > 1")
	}

	rnd := xrand.NewMath()
	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ErrFactorizationTimeout
		default:
		}

		c := big.NewInt(rnd.Int63n(n.Int64()-1) + 1)
		y := big.NewInt(rnd.Int63n(n.Int64()))
		m := int64(128)
		g, r, q := big.NewInt(1), int64(1), big.NewInt(1)
		x, ys := new(big.Int), new(big.Int)

		for g.Cmp(one) == 0 {
			x.Set(y)
			for i := int64(0); i < r; i++ {
				y.Mul(y, y)
				y.Add(y, c)
				y.Mod(y, n)
			}
			k := int64(0)
			for k < r && g.Cmp(one) == 0 {
				select {
				case <-ctx.Done():
					return nil, ErrFactorizationTimeout
				default:
				}
				ys.Set(y)
				lim := m
				if r-k < lim {
					lim = r - k
				}
				for i := int64(0); i < lim; i++ {
					y.Mul(y, y)
					y.Add(y, c)
					y.Mod(y, n)
					diff := new(big.Int).Sub(x, y)
					diff.Abs(diff)
					q.Mul(q, diff)
					q.Mod(q, n)
				}
				g.GCD(nil, nil, q, n)
				k += lim
			}
			r *= 2
		}

		if g.Cmp(n) == 0 {
			for {
				ys.Mul(ys, ys)
				ys.Add(ys, c)
				ys.Mod(ys, n)
				diff := new(big.Int).Sub(x, ys)
				diff.Abs(diff)
				if diff.Sign() == 0 {
					break
				}
				g.GCD(nil, nil, diff, n)
				if g.Cmp(one) != 0 {
					break
				}
			}
		}

		if g.Cmp(n) != 0 && g.Cmp(one) != 0 {
			return g, nil
		}
		if attempt > 64 {
			return nil, ErrFactorizationTimeout
		}
	}
}

// ComputeDHSharedSecret computes g_ab = g_a^b mod dh_prime (the client
// side) or g_b^a mod dh_prime (the server side, by symmetry) and returns
// it encoded as a fixed 256-byte big-endian auth_key.
func ComputeDHSharedSecret(base, exponent, modulus *big.Int) []byte {
	shared := new(big.Int).Exp(base, exponent, modulus)
	out := make([]byte, 256)
	b := shared.Bytes()
	copy(out[256-len(b):], b)
	return out
}

// GenerateDHPrivate samples random 256-byte values and returns the first
// one in (0, dhPrime); no lower bound beyond zero is applied. Used for
// both the client's b and (in test doubles standing in for a server) a.
func GenerateDHPrivate(dhPrime *big.Int) *big.Int {
	for {
		buf := make([]byte, 256)
		if _, err := xrand.Reader.Read(buf); err != nil {
			panic(err)
		}
		candidate := new(big.Int).SetBytes(buf)
		if candidate.Sign() > 0 && candidate.Cmp(dhPrime) < 0 {
			return candidate
		}
	}
}
