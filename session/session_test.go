package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dstainton-labs/gomtproto/mtperrors"
	"github.com/dstainton-labs/gomtproto/schema"
)

func TestParseFloodWait(t *testing.T) {
	n, ok := parseFloodWait("FLOOD_WAIT_42")
	require.True(t, ok)
	require.Equal(t, 42, n)

	_, ok = parseFloodWait("AUTH_KEY_UNREGISTERED")
	require.False(t, ok)

	_, ok = parseFloodWait("FLOOD_WAIT_")
	require.False(t, ok)
}

func TestTranslateRpcErrorFloodWait(t *testing.T) {
	err := translateRpcError(schema.RpcError{ErrorCode: 420, ErrorMessage: "FLOOD_WAIT_7"})
	var rpcErr *mtperrors.RpcError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, 7, rpcErr.FloodWaitSeconds)
	require.True(t, rpcErr.IsFloodWait())
}

func TestTranslateRpcErrorNonFloodWait(t *testing.T) {
	err := translateRpcError(schema.RpcError{ErrorCode: 401, ErrorMessage: mtperrors.RpcAuthKeyUnregistered})
	var rpcErr *mtperrors.RpcError
	require.ErrorAs(t, err, &rpcErr)
	require.False(t, rpcErr.IsFloodWait())
}

func TestStateString(t *testing.T) {
	require.Equal(t, "idle", StateIdle.String())
	require.Equal(t, "started", StateStarted.String())
	require.Equal(t, "unknown", State(99).String())
}

func TestNewSessionDefaultsAndDispatchesServiceMessages(t *testing.T) {
	s := New(Config{Registry: schema.DefaultRegistry()})
	require.Equal(t, StateIdle, s.State())
	require.NotNil(t, s.cfg.Logger)
	require.Equal(t, int64(0), s.serverSalt)

	s.dispatchObject(1, schema.NewSessionCreated{FirstMsgID: 4, UniqueID: 99, ServerSalt: 777})
	require.Equal(t, int64(777), s.serverSalt)

	s.dispatchObject(2, schema.BadServerSalt{NewServerSalt: 888})
	require.Equal(t, int64(888), s.serverSalt)
}

func TestDispatchObjectRoutesUpdatesToChannel(t *testing.T) {
	s := New(Config{Registry: schema.DefaultRegistry()})
	s.dispatchObject(1, schema.UpdateShortMessage{ID: 1, UserID: 2, Message: "hi"})

	select {
	case obj := <-s.Updates():
		_, ok := obj.(schema.UpdateShortMessage)
		require.True(t, ok)
	default:
		t.Fatal("expected an update on the updates channel")
	}
}

func TestHandleBodyUnwrapsContainer(t *testing.T) {
	s := New(Config{Registry: schema.DefaultRegistry()})

	container := schema.MsgContainer{Messages: []schema.InnerMessage{
		{MsgID: 1, SeqNo: 1, Body: schema.Encode(schema.UpdateShortMessage{ID: 1, UserID: 2, Message: "hi"})},
	}}
	s.handleBody(0, schema.Encode(container))

	select {
	case obj := <-s.Updates():
		_, ok := obj.(schema.UpdateShortMessage)
		require.True(t, ok)
	default:
		t.Fatal("expected the contained update to be unwrapped and dispatched")
	}
}

func TestHandleBodyDropsUnknownConstructor(t *testing.T) {
	s := New(Config{Registry: schema.DefaultRegistry()})

	w := schema.NewWriter(8)
	w.UInt(0xdeadbeef)
	w.Int(1)

	// Should not panic and should simply be dropped.
	s.handleBody(0, w.Bytes())
}
