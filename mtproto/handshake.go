package mtproto

import (
	"context"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"math/big"

	"github.com/dstainton-labs/gomtproto/cryptoutil"
	"github.com/dstainton-labs/gomtproto/internal/xrand"
	"github.com/dstainton-labs/gomtproto/schema"
)

// ErrDHGenFail is returned when the server rejects the completed
// Diffie-Hellman exchange (dh_gen_fail); Negotiate treats it as terminal
// and does not retry.
var ErrDHGenFail = errors.New("mtproto: server returned dh_gen_fail")

// ErrDHGenRetryExhausted is returned when the server keeps requesting
// dh_gen_retry past maxDHGenRetries step-3 attempts.
var ErrDHGenRetryExhausted = errors.New("mtproto: exceeded dh_gen_retry attempts")

// maxDHGenRetries bounds the number of times step 3 (generate b, send
// set_client_DH_params) is retried on dh_gen_retry, matching the
// handshake's overall 5-attempt budget (spec.md §4.5).
const maxDHGenRetries = 5

// ErrRSAPublicKeyTooLarge is returned when a trusted RSA key's modulus
// is wider than 2048 bits, i.e. larger than the 256-byte block
// rsaPadEncrypt builds.
var ErrRSAPublicKeyTooLarge = errors.New("mtproto: rsa modulus larger than 256 bytes")

// ServerRSAKey is one of Telegram's long-lived, publicly published RSA
// keys, identified by its 64-bit fingerprint (the low 64 bits of
// SHA1(DER-encoded public key)). A production deployment supplies the
// current set via config; none are compiled in here since they rotate
// independently of this module's release cadence.
type ServerRSAKey struct {
	Fingerprint int64
	PublicKey   *rsa.PublicKey
}

// Transport is the minimal send/receive contract the handshake needs
// from whatever has already established a raw connection to a
// datacenter. Session supplies this over its wire.Codec once connected;
// keeping it as an interface here lets the handshake be exercised
// without a real socket.
type Transport interface {
	Send(obj schema.Object) error
	Recv() (schema.Object, error)
}

// Negotiate drives the full auth-key exchange (spec.md §4.3) over t,
// trying each of the server's offered RSA fingerprints against keys
// until one matches. On success it returns the derived AuthKey and the
// server_salt computed from the exchange's nonces.
func Negotiate(t Transport, keys []ServerRSAKey) (*AuthKey, int64, error) {
	nonce := GenerateNonce()
	if err := t.Send(schema.ReqPqMulti{Nonce: nonce}); err != nil {
		return nil, 0, err
	}

	respObj, err := t.Recv()
	if err != nil {
		return nil, 0, err
	}
	resPQ, ok := respObj.(schema.ResPQ)
	if !ok {
		return nil, 0, errors.New("mtproto: expected resPQ")
	}

	rsaKey, err := selectRSAKey(resPQ.Fingerprints, keys)
	if err != nil {
		return nil, 0, err
	}

	pq := bytesToUint64(resPQ.PQ)
	p, q, err := FactorizePQ(context.Background(), pq)
	if err != nil {
		return nil, 0, err
	}

	newNonce := GenerateNewNonce()
	innerData := encodePQInnerData(resPQ.PQ, p, q, nonce, resPQ.ServerNonce, newNonce)
	encryptedData, err := rsaPadEncrypt(rsaKey.PublicKey, innerData)
	if err != nil {
		return nil, 0, err
	}

	if err := t.Send(schema.ReqDHParams{
		Nonce:         nonce,
		ServerNonce:   resPQ.ServerNonce,
		P:             uint32ToBytes(p),
		Q:             uint32ToBytes(q),
		Fingerprint:   rsaKey.Fingerprint,
		EncryptedData: encryptedData,
	}); err != nil {
		return nil, 0, err
	}

	dhObj, err := t.Recv()
	if err != nil {
		return nil, 0, err
	}
	dhOk, ok := dhObj.(schema.ServerDHParamsOk)
	if !ok {
		return nil, 0, errors.New("mtproto: expected server_DH_params_ok")
	}

	tmpKey, tmpIV := deriveTmpAESKeyIV(newNonce, resPQ.ServerNonce)
	answerPlaintext, err := cryptoutil.IGEDecrypt(tmpKey, tmpIV, dhOk.EncryptedAnswer)
	if err != nil {
		return nil, 0, err
	}
	inner, err := decodeServerDHInnerData(answerPlaintext)
	if err != nil {
		return nil, 0, err
	}

	// Step 3: generate b, send set_client_DH_params, and react to the
	// server's dh_gen_* verdict. dh_gen_retry restarts this step with a
	// fresh b (and a retry_id chaining back to the previous attempt's
	// auth_key_aux_hash); dh_gen_fail and an exhausted retry budget are
	// both terminal (spec.md §4.3, §4.5).
	var retryID int64
	for attempt := 0; attempt < maxDHGenRetries; attempt++ {
		gB := GenerateDHPrivate(inner.DHPrime)
		gExp := new(big.Int).Exp(inner.G, gB, inner.DHPrime)
		authKeyBytes := ComputeDHSharedSecret(inner.GA, gB, inner.DHPrime)
		authKey := NewAuthKey(authKeyBytes)

		clientInner := encodeClientDHInnerData(nonce, resPQ.ServerNonce, retryID, gExp)
		clientEncrypted, err := igeEncryptPadded(tmpKey, tmpIV, clientInner)
		if err != nil {
			return nil, 0, err
		}

		if err := t.Send(schema.SetClientDHParams{
			Nonce:         nonce,
			ServerNonce:   resPQ.ServerNonce,
			EncryptedData: clientEncrypted,
		}); err != nil {
			return nil, 0, err
		}

		genObj, err := t.Recv()
		if err != nil {
			return nil, 0, err
		}

		authKeyAuxHash := sha1.Sum(authKeyBytes)
		switch r := genObj.(type) {
		case schema.DhGenOk:
			want := NewNonceHash(newNonce, 1, authKeyAuxHash[:8])
			if want != r.NewNonceHash1 {
				return nil, 0, errors.New("mtproto: new_nonce_hash1 mismatch")
			}
			serverSalt := deriveServerSalt(newNonce, resPQ.ServerNonce)
			return authKey, serverSalt, nil
		case schema.DhGenRetry:
			retryID = bytesToInt64(authKeyAuxHash[:8])
			continue
		case schema.DhGenFail:
			return nil, 0, ErrDHGenFail
		default:
			return nil, 0, errors.New("mtproto: unexpected dh_gen response")
		}
	}
	return nil, 0, ErrDHGenRetryExhausted
}

// bytesToInt64 reads b as a little-endian long, matching schema.Writer's
// Long encoding, so retry_id round-trips the same way every other long
// field in the handshake does.
func bytesToInt64(b []byte) int64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return int64(v)
}

func selectRSAKey(fingerprints []int64, keys []ServerRSAKey) (ServerRSAKey, error) {
	for _, fp := range fingerprints {
		for _, k := range keys {
			if k.Fingerprint == fp {
				return k, nil
			}
		}
	}
	return ServerRSAKey{}, errors.New("mtproto: no trusted RSA key matches server fingerprints")
}

// deriveServerSalt computes the initial server_salt as the XOR of the
// first 8 bytes of new_nonce and server_nonce, per MTProto's handshake
// completion step.
func deriveServerSalt(newNonce [32]byte, serverNonce [16]byte) int64 {
	var salt int64
	for i := 0; i < 8; i++ {
		salt |= int64(newNonce[i]^serverNonce[i]) << (8 * i)
	}
	return salt
}

// deriveTmpAESKeyIV derives the temporary AES key/iv used to decrypt the
// server's DH answer and encrypt the client's DH params, per MTProto
// 2.0's handshake (nonce-derived, not part of the final auth_key).
func deriveTmpAESKeyIV(newNonce [32]byte, serverNonce [16]byte) (key, iv []byte) {
	nnsn := sha1.Sum(concat(newNonce[:], serverNonce[:]))
	snnn := sha1.Sum(concat(serverNonce[:], newNonce[:]))
	nnnn := sha1.Sum(concat(newNonce[:], newNonce[:]))

	key = concat(nnsn[:], snnn[0:12])
	iv = concat(snnn[12:20], nnnn[:], newNonce[0:4])
	return key, iv
}

func bytesToUint64(b []byte) uint64 {
	var v uint64
	for _, by := range b {
		v = v<<8 | uint64(by)
	}
	return v
}

func uint32ToBytes(v uint64) []byte {
	n := new(big.Int).SetUint64(v)
	b := n.Bytes()
	if len(b) == 0 {
		return []byte{0}
	}
	return b
}

func encodePQInnerData(pq []byte, p, q uint64, nonce [16]byte, serverNonce [16]byte, newNonce [32]byte) []byte {
	const constructorPQInnerData = 0x83c95aec
	w := schema.NewWriter(256)
	w.UInt(constructorPQInnerData)
	w.StringBytes(pq)
	w.StringBytes(uint32ToBytes(p))
	w.StringBytes(uint32ToBytes(q))
	w.Raw(nonce[:])
	w.Raw(serverNonce[:])
	w.Raw(newNonce[:])
	return w.Bytes()
}

// serverDHInnerData is the decoded form of server_DH_params_ok's
// encrypted answer.
type serverDHInnerData struct {
	Nonce, ServerNonce [16]byte
	G                  *big.Int
	DHPrime            *big.Int
	GA                 *big.Int
	ServerTime         int32
}

func decodeServerDHInnerData(plaintext []byte) (*serverDHInnerData, error) {
	r := schema.NewReader(plaintext)
	if _, err := r.UInt(); err != nil { // constructor id, unchecked
		return nil, err
	}
	nonce, err := r.Raw(16)
	if err != nil {
		return nil, err
	}
	serverNonce, err := r.Raw(16)
	if err != nil {
		return nil, err
	}
	g, err := r.Int()
	if err != nil {
		return nil, err
	}
	dhPrime, err := r.StringBytes()
	if err != nil {
		return nil, err
	}
	gA, err := r.StringBytes()
	if err != nil {
		return nil, err
	}
	serverTime, err := r.Int()
	if err != nil {
		return nil, err
	}

	out := &serverDHInnerData{
		G:          big.NewInt(int64(g)),
		DHPrime:    new(big.Int).SetBytes(dhPrime),
		GA:         new(big.Int).SetBytes(gA),
		ServerTime: serverTime,
	}
	copy(out.Nonce[:], nonce)
	copy(out.ServerNonce[:], serverNonce)
	return out, nil
}

func encodeClientDHInnerData(nonce, serverNonce [16]byte, retryID int64, gB *big.Int) []byte {
	const constructorClientDHInnerData = 0x6643b654
	w := schema.NewWriter(256)
	w.UInt(constructorClientDHInnerData)
	w.Raw(nonce[:])
	w.Raw(serverNonce[:])
	w.Long(retryID)
	w.StringBytes(gB.Bytes())
	return w.Bytes()
}

// igeEncryptPadded pads data to a 16-byte boundary with random bytes (as
// MTProto requires for client_DH_inner_data) before IGE-encrypting it.
func igeEncryptPadded(key, iv, data []byte) ([]byte, error) {
	pad := (16 - len(data)%16) % 16
	padded := make([]byte, len(data)+pad)
	copy(padded, data)
	if pad > 0 {
		if _, err := xrand.Reader.Read(padded[len(data):]); err != nil {
			return nil, err
		}
	}
	return cryptoutil.IGEEncrypt(key, iv, padded)
}

// rsaPadEncrypt implements MTProto 2.0's RSA padding scheme (the
// "RSA-pad" construction from the protocol docs): the inner data is
// reversed, hashed, AES-256-IGE wrapped under a random one-time key, and
// that key is folded back in by XOR with a hash of the ciphertext before
// the whole 256-byte block is RSA-encrypted with no further padding.
// This defends against Bleichenbacher-style attacks on naive RSA
// encryption of short, structured plaintexts.
func rsaPadEncrypt(pub *rsa.PublicKey, data []byte) ([]byte, error) {
	if pub.N.BitLen() > 2048 {
		return nil, ErrRSAPublicKeyTooLarge
	}
	if len(data) > 144 {
		return nil, errors.New("mtproto: inner data too large for rsa-pad")
	}

	padded := make([]byte, 192)
	copy(padded, data)
	if _, err := xrand.Reader.Read(padded[len(data):]); err != nil {
		return nil, err
	}
	reversed := make([]byte, len(padded))
	for i, b := range padded {
		reversed[len(padded)-1-i] = b
	}

	for attempt := 0; attempt < 16; attempt++ {
		tempKey := make([]byte, 32)
		if _, err := xrand.Reader.Read(tempKey); err != nil {
			return nil, err
		}
		h := sha256.Sum256(concat(tempKey, padded))
		dataWithHash := concat(reversed, h[:])

		iv := make([]byte, cryptoutil.IVSize)
		aesEncrypted, err := cryptoutil.IGEEncrypt(tempKey, iv, dataWithHash)
		if err != nil {
			return nil, err
		}

		hash2 := sha256.Sum256(aesEncrypted)
		tempKeyXor := make([]byte, 32)
		for i := range tempKeyXor {
			tempKeyXor[i] = tempKey[i] ^ hash2[i]
		}

		keyAesEncrypted := concat(tempKeyXor, aesEncrypted)
		n := new(big.Int).SetBytes(keyAesEncrypted)
		if n.Cmp(pub.N) >= 0 {
			continue
		}

		encrypted := new(big.Int).Exp(n, big.NewInt(int64(pub.E)), pub.N)
		out := make([]byte, 256)
		b := encrypted.Bytes()
		copy(out[256-len(b):], b)
		return out, nil
	}
	return nil, errors.New("mtproto: rsa-pad failed to find a fitting encoding")
}
