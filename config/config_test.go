package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[api]
id = 12345
hash = "deadbeef"

[session]
dc_id = 2

[store.bolt]
path = "session.db"
passphrase = "hunter2"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 60, cfg.Session.PingIntervalSeconds)
	require.Equal(t, 10, cfg.Session.FloodSleepThreshold)
	require.Equal(t, 8, cfg.Dispatcher.Workers)
	require.Equal(t, "en", cfg.API.LangCode)
	require.Equal(t, "session.db", cfg.Store.Bolt.Path)
}

func TestLoadRejectsMissingAPIID(t *testing.T) {
	path := writeConfig(t, `
[api]
hash = "deadbeef"

[session]
dc_id = 2

[store.bolt]
path = "session.db"
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBothStoresConfigured(t *testing.T) {
	path := writeConfig(t, `
[api]
id = 12345
hash = "deadbeef"

[session]
dc_id = 2

[store.bolt]
path = "session.db"

[store.postgres]
dsn = "postgres://localhost/gomtproto"
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnrecognizedKeys(t *testing.T) {
	path := writeConfig(t, `
[api]
id = 12345
hash = "deadbeef"
bogus_field = "nope"

[session]
dc_id = 2

[store.bolt]
path = "session.db"
`)

	_, err := Load(path)
	require.Error(t, err)
}
