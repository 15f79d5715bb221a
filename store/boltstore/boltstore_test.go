package boltstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dstainton-labs/gomtproto/store"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.db")
	s, err := Open(path, []byte("test passphrase"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMetaRoundTripsWithAuthKey(t *testing.T) {
	s := openTest(t)

	meta, err := s.LoadMeta()
	require.NoError(t, err)
	require.Equal(t, &store.Meta{}, meta)

	want := &store.Meta{DCID: 2, APIID: 12345, TestMode: true, UserID: 999, IsBot: false, Date: 1700000000}
	for i := range want.AuthKey {
		want.AuthKey[i] = byte(i)
	}
	require.NoError(t, s.SaveMeta(want))

	got, err := s.LoadMeta()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestPeerLookupsByPrimaryAndSecondaryIndexes(t *testing.T) {
	s := openTest(t)

	p := store.Peer{ID: 42, AccessHash: 777, Type: store.PeerUser, Username: "alice", Phone: "+15551234"}
	require.NoError(t, s.PutPeer(p))

	byID, err := s.PeerByID(42)
	require.NoError(t, err)
	require.Equal(t, p, *byID)

	byUsername, err := s.PeerByUsername("alice")
	require.NoError(t, err)
	require.Equal(t, p, *byUsername)

	byPhone, err := s.PeerByPhone("+15551234")
	require.NoError(t, err)
	require.Equal(t, p, *byPhone)

	_, err = s.PeerByUsername("bob")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateStateAndSecretChatsBlobs(t *testing.T) {
	s := openTest(t)

	state, err := s.UpdateState()
	require.NoError(t, err)
	require.Nil(t, state)

	require.NoError(t, s.SaveUpdateState([]byte("pts=7")))
	state, err = s.UpdateState()
	require.NoError(t, err)
	require.Equal(t, []byte("pts=7"), state)

	require.NoError(t, s.SaveSecretChats([]byte("opaque")))
	blob, err := s.SecretChats()
	require.NoError(t, err)
	require.Equal(t, []byte("opaque"), blob)
}
