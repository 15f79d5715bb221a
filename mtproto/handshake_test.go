package mtproto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dstainton-labs/gomtproto/cryptoutil"
	"github.com/dstainton-labs/gomtproto/schema"
)

// chanTransport is a Transport backed by two channels, standing in for
// a real wire.Codec connection so the handshake state machine can be
// exercised without a socket.
type chanTransport struct {
	send chan schema.Object
	recv chan schema.Object
}

func (c *chanTransport) Send(obj schema.Object) error {
	c.send <- obj
	return nil
}

func (c *chanTransport) Recv() (schema.Object, error) {
	return <-c.recv, nil
}

// fakeServer plays the server side of the handshake against the real
// client-side Negotiate implementation, using the same primitives
// (ComputeDHSharedSecret, deriveTmpAESKeyIV, NewNonceHash) so a passing
// test demonstrates the client and server halves agree on every
// derivation.
func fakeServer(t *testing.T, priv *rsa.PrivateKey, fingerprint int64, clientOut, clientIn chan schema.Object) {
	t.Helper()

	req := (<-clientOut).(schema.ReqPqMulti)
	serverNonce := GenerateNonce()
	const p, q uint64 = 104723, 104729
	pq := p * q

	clientIn <- schema.ResPQ{
		Nonce:        req.Nonce,
		ServerNonce:  serverNonce,
		PQ:           uint32ToBytes(pq),
		Fingerprints: []int64{fingerprint},
	}

	dhReq := (<-clientOut).(schema.ReqDHParams)
	inner := rsaPadDecrypt(t, priv, dhReq.EncryptedData)
	newNonce := extractNewNonce(t, inner)

	dhPrime := smallTestDHPrime()
	g := big.NewInt(3)
	a := GenerateDHPrivate(dhPrime)
	gA := new(big.Int).Exp(g, a, dhPrime)

	answerPlaintext := encodeServerDHInnerDataForTest(dhReq.Nonce, serverNonce, g, dhPrime, gA)
	tmpKey, tmpIV := deriveTmpAESKeyIV(newNonce, serverNonce)
	encryptedAnswer, err := igeEncryptPadded(tmpKey, tmpIV, answerPlaintext)
	require.NoError(t, err)

	clientIn <- schema.ServerDHParamsOk{
		Nonce:           dhReq.Nonce,
		ServerNonce:     serverNonce,
		EncryptedAnswer: encryptedAnswer,
	}

	setParams := (<-clientOut).(schema.SetClientDHParams)
	clientInnerPlain, err := cryptoutil.IGEDecrypt(tmpKey, tmpIV, setParams.EncryptedData)
	require.NoError(t, err)
	gB := extractGB(t, clientInnerPlain)

	authKeyBytes := ComputeDHSharedSecret(gB, a, dhPrime)
	authKeyAuxHash := sha1.Sum(authKeyBytes)
	newNonceHash1 := NewNonceHash(newNonce, 1, authKeyAuxHash[:8])

	clientIn <- schema.DhGenOk{
		Nonce:         setParams.Nonce,
		ServerNonce:   setParams.ServerNonce,
		NewNonceHash1: newNonceHash1,
	}
}

// fakeServerWithOneRetry behaves like fakeServer but answers the first
// set_client_DH_params with dh_gen_retry before accepting the second
// attempt, exercising Negotiate's step-3 restart (spec.md §4.3).
func fakeServerWithOneRetry(t *testing.T, priv *rsa.PrivateKey, fingerprint int64, clientOut, clientIn chan schema.Object) {
	t.Helper()

	req := (<-clientOut).(schema.ReqPqMulti)
	serverNonce := GenerateNonce()
	const p, q uint64 = 104723, 104729
	pq := p * q

	clientIn <- schema.ResPQ{
		Nonce:        req.Nonce,
		ServerNonce:  serverNonce,
		PQ:           uint32ToBytes(pq),
		Fingerprints: []int64{fingerprint},
	}

	dhReq := (<-clientOut).(schema.ReqDHParams)
	inner := rsaPadDecrypt(t, priv, dhReq.EncryptedData)
	newNonce := extractNewNonce(t, inner)

	dhPrime := smallTestDHPrime()
	g := big.NewInt(3)
	a := GenerateDHPrivate(dhPrime)
	gA := new(big.Int).Exp(g, a, dhPrime)

	answerPlaintext := encodeServerDHInnerDataForTest(dhReq.Nonce, serverNonce, g, dhPrime, gA)
	tmpKey, tmpIV := deriveTmpAESKeyIV(newNonce, serverNonce)
	encryptedAnswer, err := igeEncryptPadded(tmpKey, tmpIV, answerPlaintext)
	require.NoError(t, err)

	clientIn <- schema.ServerDHParamsOk{
		Nonce:           dhReq.Nonce,
		ServerNonce:     serverNonce,
		EncryptedAnswer: encryptedAnswer,
	}

	// First attempt: reject with dh_gen_retry regardless of the offered b.
	firstAttempt := (<-clientOut).(schema.SetClientDHParams)
	clientIn <- schema.DhGenRetry{
		Nonce:       firstAttempt.Nonce,
		ServerNonce: firstAttempt.ServerNonce,
	}

	// Second attempt: accept, verifying the client actually resent with a
	// fresh b rather than reusing the first attempt's body.
	setParams := (<-clientOut).(schema.SetClientDHParams)
	require.NotEqual(t, firstAttempt.EncryptedData, setParams.EncryptedData)

	clientInnerPlain, err := cryptoutil.IGEDecrypt(tmpKey, tmpIV, setParams.EncryptedData)
	require.NoError(t, err)
	gB := extractGB(t, clientInnerPlain)

	authKeyBytes := ComputeDHSharedSecret(gB, a, dhPrime)
	authKeyAuxHash := sha1.Sum(authKeyBytes)
	newNonceHash1 := NewNonceHash(newNonce, 1, authKeyAuxHash[:8])

	clientIn <- schema.DhGenOk{
		Nonce:         setParams.Nonce,
		ServerNonce:   setParams.ServerNonce,
		NewNonceHash1: newNonceHash1,
	}
}

func TestNegotiateRestartsStep3OnDhGenRetry(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	const fingerprint = int64(0x1234567812345678)

	clientOut := make(chan schema.Object, 1)
	clientIn := make(chan schema.Object, 1)

	go fakeServerWithOneRetry(t, priv, fingerprint, clientOut, clientIn)

	transport := &chanTransport{send: clientOut, recv: clientIn}
	keys := []ServerRSAKey{{Fingerprint: fingerprint, PublicKey: &priv.PublicKey}}

	authKey, serverSalt, err := Negotiate(transport, keys)
	require.NoError(t, err)
	require.NotNil(t, authKey)
	require.NotZero(t, serverSalt)
}

func TestNegotiateEndToEnd(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	const fingerprint = int64(0x1234567812345678)

	clientOut := make(chan schema.Object, 1)
	clientIn := make(chan schema.Object, 1)

	go fakeServer(t, priv, fingerprint, clientOut, clientIn)

	transport := &chanTransport{send: clientOut, recv: clientIn}
	keys := []ServerRSAKey{{Fingerprint: fingerprint, PublicKey: &priv.PublicKey}}

	authKey, serverSalt, err := Negotiate(transport, keys)
	require.NoError(t, err)
	require.NotNil(t, authKey)
	require.NotZero(t, serverSalt)
	require.NotZero(t, authKey.ID())
}

// --- test-only helpers mirroring the server side of the protocol ---

func rsaPadDecrypt(t *testing.T, priv *rsa.PrivateKey, encrypted []byte) []byte {
	t.Helper()
	c := new(big.Int).SetBytes(encrypted)
	m := new(big.Int).Exp(c, priv.D, priv.N)
	keyAesEncrypted := make([]byte, 256)
	b := m.Bytes()
	copy(keyAesEncrypted[256-len(b):], b)

	tempKeyXor := keyAesEncrypted[0:32]
	aesEncrypted := keyAesEncrypted[32:256]

	hash2 := sha256.Sum256(aesEncrypted)
	tempKey := make([]byte, 32)
	for i := range tempKey {
		tempKey[i] = tempKeyXor[i] ^ hash2[i]
	}

	iv := make([]byte, cryptoutil.IVSize)
	dataWithHash, err := cryptoutil.IGEDecrypt(tempKey, iv, aesEncrypted)
	require.NoError(t, err)

	reversed := dataWithHash[0:192]
	padded := make([]byte, 192)
	for i, bb := range reversed {
		padded[len(reversed)-1-i] = bb
	}
	return padded
}

func extractNewNonce(t *testing.T, padded []byte) [32]byte {
	t.Helper()
	r := schema.NewReader(padded)
	_, err := r.UInt() // constructor
	require.NoError(t, err)
	_, err = r.StringBytes() // pq
	require.NoError(t, err)
	_, err = r.StringBytes() // p
	require.NoError(t, err)
	_, err = r.StringBytes() // q
	require.NoError(t, err)
	_, err = r.Raw(16) // nonce
	require.NoError(t, err)
	_, err = r.Raw(16) // server_nonce
	require.NoError(t, err)
	nn, err := r.Raw(32)
	require.NoError(t, err)
	var out [32]byte
	copy(out[:], nn)
	return out
}

func extractGB(t *testing.T, padded []byte) *big.Int {
	t.Helper()
	r := schema.NewReader(padded)
	_, err := r.UInt() // constructor
	require.NoError(t, err)
	_, err = r.Raw(16) // nonce
	require.NoError(t, err)
	_, err = r.Raw(16) // server_nonce
	require.NoError(t, err)
	_, err = r.Long() // retry_id
	require.NoError(t, err)
	gB, err := r.StringBytes()
	require.NoError(t, err)
	return new(big.Int).SetBytes(gB)
}

func encodeServerDHInnerDataForTest(nonce, serverNonce [16]byte, g, dhPrime, gA *big.Int) []byte {
	const constructorServerDHInnerData = 0xb5890dba
	w := schema.NewWriter(512)
	w.UInt(constructorServerDHInnerData)
	w.Raw(nonce[:])
	w.Raw(serverNonce[:])
	w.Int(int32(g.Int64()))
	w.StringBytes(dhPrime.Bytes())
	w.StringBytes(gA.Bytes())
	w.Int(0) // server_time
	return w.Bytes()
}

// smallTestDHPrime returns RFC 3526's 2048-bit MODP Group 14 prime, the
// same well-known safe prime Telegram's production DCs use as dh_prime.
// Using the real constant (rather than a shrunk stand-in) keeps
// GenerateDHPrivate's uniform-over-2048-bits sampling valid: a modulus
// much smaller than the sampled range would make "candidate < dhPrime"
// vanishingly rare, whereas with this prime (its top 64 bits all ones)
// nearly every candidate is accepted.
func smallTestDHPrime() *big.Int {
	p, _ := new(big.Int).SetString(
		"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD"+
			"129024E088A67CC74020BBEA63B139B22514A08798E3404"+
			"DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C"+
			"245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406"+
			"B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE"+
			"45B3DC2007CB8A163BF0598DA48361C55D39A69163FA8FD"+
			"24CF5F83655D23DCA3AD961C62F356208552BB9ED529077"+
			"096966D670C354E4ABC9804F1746C08CA18217C32905E46"+
			"2E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF"+
			"06F4C52C9DE2BCBF6955817183995497CEA956AE515D226"+
			"1898FA051015728E5A8AACAA68FFFFFFFFFFFFFFFF",
		16)
	return p
}
