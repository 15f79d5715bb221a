// Package schema models the "typed API surface" spec.md treats as an
// external collaborator: thousands of request/response constructor
// classes generated from Telegram's TL schema. The core only needs a
// closed-enum codec contract (spec.md §9 "Runtime reflection of typed
// requests") — this package supplies that contract plus the handful of
// real constructors needed to drive the auth-key handshake, the message
// layer's service messages, and a couple of update/file RPCs end to end.
//
// Encoding follows the real TL bare-serialization rules (little-endian
// ints, length-prefixed byte strings padded to a 4-byte boundary) so the
// round-trip tests in this package exercise genuine wire shapes, not a
// made-up stand-in format.
package schema

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned when a Reader runs out of bytes mid-decode.
var ErrShortBuffer = errors.New("schema: short buffer")

// Writer accumulates a TL bare-serialized payload.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer with capacity hinted by size.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// Bytes returns the accumulated payload.
func (w *Writer) Bytes() []byte { return w.buf }

// Int writes a 4-byte little-endian signed int.
func (w *Writer) Int(v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	w.buf = append(w.buf, b[:]...)
}

// UInt writes a 4-byte little-endian unsigned int (constructor ids).
func (w *Writer) UInt(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// Long writes an 8-byte little-endian signed long.
func (w *Writer) Long(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	w.buf = append(w.buf, b[:]...)
}

// Raw writes b verbatim without a length prefix (used for fixed-size
// nonces and already-encoded bodies).
func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// StringBytes writes a length-prefixed, 4-byte-padded byte string per TL
// bare serialization rules.
func (w *Writer) StringBytes(data []byte) {
	n := len(data)
	if n < 254 {
		w.buf = append(w.buf, byte(n))
		w.buf = append(w.buf, data...)
		pad := (4 - (1+n)%4) % 4
		w.buf = append(w.buf, make([]byte, pad)...)
		return
	}
	w.buf = append(w.buf, 0xfe, byte(n), byte(n>>8), byte(n>>16))
	w.buf = append(w.buf, data...)
	pad := (4 - n%4) % 4
	w.buf = append(w.buf, make([]byte, pad)...)
}

// Reader consumes a TL bare-serialized payload.
type Reader struct {
	buf []byte
	off int
}

// NewReader wraps buf for sequential decoding.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return ErrShortBuffer
	}
	return nil
}

// Int reads a 4-byte little-endian signed int.
func (r *Reader) Int() (int32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.LittleEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	return v, nil
}

// UInt reads a 4-byte little-endian unsigned int (constructor ids).
func (r *Reader) UInt() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

// Long reads an 8-byte little-endian signed long.
func (r *Reader) Long() (int64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := int64(binary.LittleEndian.Uint64(r.buf[r.off:]))
	r.off += 8
	return v, nil
}

// Raw reads exactly n raw bytes (for fixed-size nonces).
func (r *Reader) Raw(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := append([]byte{}, r.buf[r.off:r.off+n]...)
	r.off += n
	return out, nil
}

// StringBytes reads a length-prefixed, 4-byte-padded byte string.
func (r *Reader) StringBytes() ([]byte, error) {
	if err := r.need(1); err != nil {
		return nil, err
	}
	first := r.buf[r.off]
	var n, headerLen int
	if first < 254 {
		n = int(first)
		headerLen = 1
	} else {
		if err := r.need(4); err != nil {
			return nil, err
		}
		n = int(r.buf[r.off+1]) | int(r.buf[r.off+2])<<8 | int(r.buf[r.off+3])<<16
		headerLen = 4
	}
	if err := r.need(headerLen + n); err != nil {
		return nil, err
	}
	start := r.off + headerLen
	out := append([]byte{}, r.buf[start:start+n]...)
	total := headerLen + n
	pad := (4 - total%4) % 4
	if err := r.need(total + pad); err != nil {
		return nil, err
	}
	r.off += total + pad
	return out, nil
}
