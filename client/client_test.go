package client

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dstainton-labs/gomtproto/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		API: config.API{ID: 12345, Hash: "deadbeef", TestMode: true},
		Session: config.Session{
			DCID:                  2,
			PingIntervalSeconds:   60,
			RequestTimeoutSeconds: 30,
			FloodSleepThreshold:   10,
		},
		Store: config.Store{
			Bolt: &config.BoltStore{
				Path:       filepath.Join(t.TempDir(), "session.db"),
				Passphrase: "hunter2",
			},
		},
		Dispatcher: config.Dispatcher{
			Workers:                 4,
			QueueSize:               64,
			WatchdogIntervalSeconds: 300,
		},
	}
}

func TestNewWiresDependenciesFromConfig(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(cfg, Deps{})
	require.NoError(t, err)
	t.Cleanup(func() { c.store.Close() })

	require.NotNil(t, c.session)
	require.NotNil(t, c.rpc)
	require.NotNil(t, c.disp)
	require.NotNil(t, c.store)
	require.NotEqual(t, c.InstallID.String(), "")
}

func TestNewRejectsUnknownDatacenter(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.DCID = 999

	_, err := New(cfg, Deps{})
	require.Error(t, err)
}
