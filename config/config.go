// Package config loads the TOML configuration file a gomtproto client
// boots from (spec.md §4.11/C11), the same ambient pattern the katzenpost
// client tree uses: a typed Config struct, a thin Load wrapper around
// github.com/BurntSushi/toml, and a Validate pass that rejects an
// unusable config before anything touches the network.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level document a gomtproto client reads from disk.
type Config struct {
	API       API
	Session   Session
	Store     Store
	Dispatcher Dispatcher
	Proxy     *Proxy
	Logging   Logging
}

// API carries the Telegram application identity spec.md §4.6's
// initConnection wrapping needs.
type API struct {
	ID            int32
	Hash          string
	DeviceModel   string
	SystemVersion string
	LangCode      string
	TestMode      bool
}

// Session configures the underlying MTProto Session (component C5).
type Session struct {
	DCID                int32 `toml:"dc_id"`
	PingIntervalSeconds  int
	RequestTimeoutSeconds int
	FloodSleepThreshold int
}

// Store picks and configures the persistence backend (component C8).
// Exactly one of Bolt/Postgres should be set; Validate enforces this.
type Store struct {
	Bolt     *BoltStore
	Postgres *PostgresStore
}

// BoltStore configures store/boltstore.
type BoltStore struct {
	Path       string
	Passphrase string
}

// PostgresStore configures store/pgstore.
type PostgresStore struct {
	DSN            string
	MaxConnections int
}

// Dispatcher configures component C7.
type Dispatcher struct {
	Workers                    int
	QueueSize                  int
	WatchdogIntervalSeconds    int
	IgnoreChannelUpdatesExcept []int64
}

// Proxy configures an optional outbound SOCKS5 proxy (spec.md's ambient
// networking concerns, surfaced via rpc.SOCKS5Dialer).
type Proxy struct {
	Address  string
	User     string
	Password string
}

// Logging holds the configured log level (default "info"). client.New
// does not apply it: the charmbracelet/log loggers it builds keep that
// package's default level.
type Logging struct {
	Level string
}

// Load reads and parses the TOML file at path.
func Load(path string) (*Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unrecognized keys: %v", undecoded)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Session.PingIntervalSeconds == 0 {
		c.Session.PingIntervalSeconds = 60
	}
	if c.Session.RequestTimeoutSeconds == 0 {
		c.Session.RequestTimeoutSeconds = 30
	}
	if c.Session.FloodSleepThreshold == 0 {
		c.Session.FloodSleepThreshold = 10
	}
	if c.Dispatcher.Workers == 0 {
		c.Dispatcher.Workers = 8
	}
	if c.Dispatcher.QueueSize == 0 {
		c.Dispatcher.QueueSize = 256
	}
	if c.Dispatcher.WatchdogIntervalSeconds == 0 {
		c.Dispatcher.WatchdogIntervalSeconds = 300
	}
	if c.API.LangCode == "" {
		c.API.LangCode = "en"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects a Config that can't be used to start a client.
func (c *Config) Validate() error {
	if c.API.ID == 0 {
		return errors.New("config: api.id is required")
	}
	if c.API.Hash == "" {
		return errors.New("config: api.hash is required")
	}
	if c.Session.DCID == 0 {
		return errors.New("config: session.dc_id is required")
	}
	if (c.Store.Bolt == nil) == (c.Store.Postgres == nil) {
		return errors.New("config: exactly one of store.bolt or store.postgres must be set")
	}
	if c.Store.Bolt != nil && c.Store.Bolt.Path == "" {
		return errors.New("config: store.bolt.path is required")
	}
	if c.Store.Postgres != nil && c.Store.Postgres.DSN == "" {
		return errors.New("config: store.postgres.dsn is required")
	}
	return nil
}

// PingInterval returns Session.PingIntervalSeconds as a time.Duration.
func (s Session) PingInterval() time.Duration {
	return time.Duration(s.PingIntervalSeconds) * time.Second
}

// RequestTimeout returns Session.RequestTimeoutSeconds as a
// time.Duration.
func (s Session) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// WatchdogInterval returns Dispatcher.WatchdogIntervalSeconds as a
// time.Duration.
func (d Dispatcher) WatchdogInterval() time.Duration {
	return time.Duration(d.WatchdogIntervalSeconds) * time.Second
}
