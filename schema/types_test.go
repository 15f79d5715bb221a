package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryRoundTripsHandshakeTypes(t *testing.T) {
	reg := DefaultRegistry()

	var nonce, serverNonce [16]byte
	nonce[0] = 1
	serverNonce[0] = 2

	cases := []Object{
		ReqPqMulti{Nonce: nonce},
		ResPQ{Nonce: nonce, ServerNonce: serverNonce, PQ: []byte{1, 2, 3}, Fingerprints: []int64{1, 2}},
		ReqDHParams{Nonce: nonce, ServerNonce: serverNonce, P: []byte{1}, Q: []byte{2}, Fingerprint: 7, EncryptedData: make([]byte, 256)},
		ServerDHParamsOk{Nonce: nonce, ServerNonce: serverNonce, EncryptedAnswer: make([]byte, 256)},
		SetClientDHParams{Nonce: nonce, ServerNonce: serverNonce, EncryptedData: make([]byte, 256)},
		DhGenOk{Nonce: nonce, ServerNonce: serverNonce, NewNonceHash1: nonce},
		DhGenRetry{Nonce: nonce, ServerNonce: serverNonce, NewNonceHash2: nonce},
		DhGenFail{Nonce: nonce, ServerNonce: serverNonce, NewNonceHash3: nonce},
	}

	for _, obj := range cases {
		encoded := Encode(obj)
		decoded, err := reg.Decode(encoded)
		require.NoError(t, err)
		require.Equal(t, obj, decoded)
	}
}

func TestRegistryRoundTripsServiceMessages(t *testing.T) {
	reg := DefaultRegistry()

	cases := []Object{
		MsgsAck{MsgIDs: []int64{1, 2, 3}},
		BadServerSalt{BadMsgID: 1, BadMsgSeqno: 2, ErrorCode: 48, NewServerSalt: 99},
		BadMsgNotification{BadMsgID: 1, BadMsgSeqno: 2, ErrorCode: 16},
		NewSessionCreated{FirstMsgID: 1, UniqueID: 2, ServerSalt: 3},
		Ping{PingID: 42},
		Pong{MsgID: 1, PingID: 42},
		GzipPacked{PackedData: []byte("compressed")},
		RpcError{ErrorCode: 420, ErrorMessage: "FLOOD_WAIT_3"},
	}

	for _, obj := range cases {
		encoded := Encode(obj)
		decoded, err := reg.Decode(encoded)
		require.NoError(t, err)
		require.Equal(t, obj, decoded)
	}
}

func TestRpcResultCarriesRawInnerPayload(t *testing.T) {
	reg := DefaultRegistry()

	inner := Encode(HelpGetConfig{})
	result := RpcResult{ReqMsgID: 123, Result: inner}

	encoded := Encode(result)
	decoded, err := reg.Decode(encoded)
	require.NoError(t, err)

	got := decoded.(RpcResult)
	require.Equal(t, int64(123), got.ReqMsgID)

	innerObj, err := reg.Decode(got.Result)
	require.NoError(t, err)
	require.Equal(t, HelpGetConfig{}, innerObj)
}

func TestMsgContainerRoundTrip(t *testing.T) {
	reg := DefaultRegistry()

	container := MsgContainer{Messages: []InnerMessage{
		{MsgID: 1, SeqNo: 1, Body: Encode(HelpGetConfig{})},
		{MsgID: 3, SeqNo: 3, Body: Encode(MsgsAck{MsgIDs: []int64{1}})},
	}}

	encoded := Encode(container)
	decoded, err := reg.Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, container, decoded)
}

func TestConfigRoundTrip(t *testing.T) {
	reg := DefaultRegistry()

	cfg := Config{
		ThisDC: 2,
		DCOptions: []DCOption{
			{ID: 2, IPAddress: "149.154.167.51", Port: 443},
			{ID: 2, IPAddress: "2001:67c:4e8:f002::a", Port: 443, IPv6: true, MediaOnly: true},
		},
	}

	encoded := Encode(cfg)
	decoded, err := reg.Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, cfg, decoded)
}

func TestCDNRoundTrip(t *testing.T) {
	reg := DefaultRegistry()

	cases := []Object{
		UploadGetCdnFile{FileToken: []byte("tok"), Offset: 0, Limit: 1024},
		UploadCdnFile{Bytes: []byte("ciphertext")},
		UploadFileCdnRedirect{
			DCID:          203,
			FileToken:     []byte("tok"),
			EncryptionKey: make([]byte, 32),
			EncryptionIV:  make([]byte, 16),
			FileHashes: []FileHash{
				{Offset: 0, Limit: 1024, Hash: make([]byte, 32)},
			},
		},
		UploadGetCdnFileHashes{FileToken: []byte("tok"), Offset: 0},
		FileHash{Offset: 0, Limit: 1024, Hash: make([]byte, 32)},
		UploadReuploadCdnFile{FileToken: []byte("tok"), RequestToken: []byte("req")},
		CdnFileReuploadNeeded{RequestToken: []byte("req")},
	}

	for _, obj := range cases {
		encoded := Encode(obj)
		decoded, err := reg.Decode(encoded)
		require.NoError(t, err)
		require.Equal(t, obj, decoded)
	}
}

func TestAuthExportImportRoundTrip(t *testing.T) {
	reg := DefaultRegistry()

	cases := []Object{
		AuthExportAuthorization{DCID: 2},
		AuthExportedAuthorization{ID: 1, Bytes: []byte("token")},
		AuthImportAuthorization{ID: 1, Bytes: []byte("token")},
		AuthAuthorization{User: []byte("user-bytes")},
	}

	for _, obj := range cases {
		encoded := Encode(obj)
		decoded, err := reg.Decode(encoded)
		require.NoError(t, err)
		require.Equal(t, obj, decoded)
	}
}

func TestUpdateTypesRoundTrip(t *testing.T) {
	reg := DefaultRegistry()

	msg := Message{ID: 1, PeerID: 42, Message: "hello", Date: 100}
	newMsg := UpdateNewMessage{Message: msg, Pts: 10, PtsCount: 1}

	cases := []Object{
		msg,
		newMsg,
		UpdateShort{UpdateBytes: Encode(newMsg), Date: 100},
		UpdateShortMessage{ID: 1, UserID: 42, Message: "hi", Pts: 10, PtsCount: 1, Date: 100},
		Updates{UpdateBytes: [][]byte{Encode(newMsg)}, Date: 100, Seq: 5},
	}

	for _, obj := range cases {
		encoded := Encode(obj)
		decoded, err := reg.Decode(encoded)
		require.NoError(t, err)
		require.Equal(t, obj, decoded)
	}
}

func TestDecodeUnknownConstructorIsNonFatal(t *testing.T) {
	reg := DefaultRegistry()

	w := NewWriter(8)
	w.UInt(0xdeadbeef)
	w.Int(1)

	_, err := reg.Decode(w.Bytes())
	require.Error(t, err)

	var unknown *ErrUnknownConstructor
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, ConstructorID(0xdeadbeef), unknown.ID)
}
