package mtproto

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/dstainton-labs/gomtproto/cryptoutil"
	"github.com/dstainton-labs/gomtproto/internal/xrand"
	"github.com/dstainton-labs/gomtproto/mtperrors"
)

// ErrEnvelopeTooShort is returned when decrypting a frame shorter than
// the fixed envelope header.
var ErrEnvelopeTooShort = errors.New("mtproto: envelope shorter than header")

// sides the msg_key derivation's "x" offset is keyed on (spec.md §4.2
// msg_key/key/iv derivation, MTProto 2.0).
const (
	sideClient = 0  // outbound: client encrypting for the server
	sideServer = 8  // inbound: client decrypting what the server sent
)

// Envelope is the decoded plaintext of one encrypted message, before the
// payload is handed to the schema registry.
type Envelope struct {
	ServerSalt int64
	SessionID  int64
	MsgID      int64
	SeqNo      int32
	Body       []byte
}

// deriveKeyIV implements MTProto 2.0's msg_key -> (aes_key, aes_iv)
// derivation. side is sideClient when encrypting an outbound message,
// sideServer when decrypting an inbound one.
func deriveKeyIV(authKey []byte, msgKey [16]byte, side int) (key, iv []byte) {
	sha256A := sha256.Sum256(concat(msgKey[:], authKey[side:side+36]))
	sha256B := sha256.Sum256(concat(authKey[40+side:40+side+36], msgKey[:]))

	key = concat(sha256A[0:8], sha256B[8:24], sha256A[24:32])
	iv = concat(sha256B[0:8], sha256A[8:24], sha256B[24:32])
	return key, iv
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// msgKeyLarge computes SHA256(substr(auth_key, 88+side, 32) || plaintext)
// and returns its middle 128 bits.
func msgKeyLarge(authKey []byte, plaintext []byte, side int) [16]byte {
	h := sha256.Sum256(concat(authKey[88+side:88+side+32], plaintext))
	var out [16]byte
	copy(out[:], h[8:24])
	return out
}

// paddingLength returns a random padding length of at least 12 bytes,
// adjusted so that innerLen plus the padding is a multiple of 16 as
// MTProto 2.0 requires.
func paddingLength(innerLen int) int {
	base := 12 + int(xrand.Int63n(1024-12))
	base -= base % 16
	total := innerLen + base
	for total%16 != 0 {
		base++
		total++
	}
	if base < 12 {
		base += 16
	}
	return base
}

// Encrypt packs (serverSalt, sessionID, msgID, seqNo, body) into an
// MTProto 2.0 encrypted message: auth_key_id || msg_key || AES-256-IGE(
// plaintext). authKey is the full 256-byte shared secret.
func Encrypt(authKey *AuthKey, serverSalt, sessionID, msgID int64, seqNo int32, body []byte) ([]byte, error) {
	inner := make([]byte, 32+len(body))
	binary.LittleEndian.PutUint64(inner[0:8], uint64(serverSalt))
	binary.LittleEndian.PutUint64(inner[8:16], uint64(sessionID))
	binary.LittleEndian.PutUint64(inner[16:24], uint64(msgID))
	binary.LittleEndian.PutUint32(inner[24:28], uint32(seqNo))
	binary.LittleEndian.PutUint32(inner[28:32], uint32(len(body)))
	copy(inner[32:], body)

	padLen := paddingLength(len(inner))
	plaintext := make([]byte, len(inner)+padLen)
	copy(plaintext, inner)
	if _, err := xrand.Reader.Read(plaintext[len(inner):]); err != nil {
		return nil, err
	}

	key := authKey.Bytes()
	defer zero(key)

	mKey := msgKeyLarge(key, plaintext, sideClient)
	aesKey, aesIV := deriveKeyIV(key, mKey, sideClient)

	ciphertext, err := cryptoutil.IGEEncrypt(aesKey, aesIV, plaintext)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 8+16+len(ciphertext))
	binary.LittleEndian.PutUint64(out[0:8], uint64(authKey.ID()))
	copy(out[8:24], mKey[:])
	copy(out[24:], ciphertext)
	return out, nil
}

// Decrypt reverses Encrypt, validating that auth_key_id matches and
// recomputing msg_key over the decrypted plaintext to detect tampering
// (spec.md §4.4 "msg_key mismatch is fatal to the session"). It assumes
// frame was sent by the server (side=sideServer): the client only ever
// decrypts inbound traffic, never its own outbound messages.
func Decrypt(authKey *AuthKey, frame []byte) (*Envelope, error) {
	return decrypt(authKey, frame, sideServer)
}

// decryptSide is Decrypt generalized over the msg_key "x" direction, so
// tests can exercise the encrypt/decrypt round trip from a single side
// without pretending to be both ends of the connection.
func decryptSide(authKey *AuthKey, frame []byte, side int) (*Envelope, error) {
	return decrypt(authKey, frame, side)
}

func decrypt(authKey *AuthKey, frame []byte, side int) (*Envelope, error) {
	if len(frame) < 24+16 {
		return nil, ErrEnvelopeTooShort
	}
	keyID := int64(binary.LittleEndian.Uint64(frame[0:8]))
	if keyID != authKey.ID() {
		return nil, mtperrors.ErrAuthKeyMismatch
	}

	var mKey [16]byte
	copy(mKey[:], frame[8:24])
	ciphertext := frame[24:]

	key := authKey.Bytes()
	defer zero(key)

	aesKey, aesIV := deriveKeyIV(key, mKey, side)
	plaintext, err := cryptoutil.IGEDecrypt(aesKey, aesIV, ciphertext)
	if err != nil {
		return nil, err
	}

	recomputed := msgKeyLarge(key, plaintext, side)
	if recomputed != mKey {
		return nil, mtperrors.ErrMsgKeyMismatch
	}
	if len(plaintext) < 32 {
		return nil, ErrEnvelopeTooShort
	}

	bodyLen := binary.LittleEndian.Uint32(plaintext[28:32])
	if int(32+bodyLen) > len(plaintext) {
		return nil, ErrEnvelopeTooShort
	}

	return &Envelope{
		ServerSalt: int64(binary.LittleEndian.Uint64(plaintext[0:8])),
		SessionID:  int64(binary.LittleEndian.Uint64(plaintext[8:16])),
		MsgID:      int64(binary.LittleEndian.Uint64(plaintext[16:24])),
		SeqNo:      int32(binary.LittleEndian.Uint32(plaintext[24:28])),
		Body:       append([]byte{}, plaintext[32:32+bodyLen]...),
	}, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// EncodeUnencrypted wraps body in the plaintext envelope used before an
// auth_key exists: auth_key_id=0 || msg_id || length || body. Only the
// handshake ever sends this shape.
func EncodeUnencrypted(msgID int64, body []byte) []byte {
	out := make([]byte, 20+len(body))
	// auth_key_id left zero
	binary.LittleEndian.PutUint64(out[8:16], uint64(msgID))
	binary.LittleEndian.PutUint32(out[16:20], uint32(len(body)))
	copy(out[20:], body)
	return out
}

// DecodeUnencrypted reverses EncodeUnencrypted, rejecting anything whose
// auth_key_id isn't zero.
func DecodeUnencrypted(frame []byte) (msgID int64, body []byte, err error) {
	if len(frame) < 20 {
		return 0, nil, ErrEnvelopeTooShort
	}
	keyID := int64(binary.LittleEndian.Uint64(frame[0:8]))
	if keyID != 0 {
		return 0, nil, mtperrors.ErrAuthKeyMismatch
	}
	msgID = int64(binary.LittleEndian.Uint64(frame[8:16]))
	length := binary.LittleEndian.Uint32(frame[16:20])
	if int(20+length) > len(frame) {
		return 0, nil, ErrEnvelopeTooShort
	}
	body = append([]byte{}, frame[20:20+length]...)
	return msgID, body, nil
}
