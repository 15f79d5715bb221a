// Package client is the top-level facade (spec.md §4.11, component C11)
// that wires a Session, the RPC invoke layer, the update Dispatcher, a
// persistence Store, the compiled-in Datacenter table, and Prometheus
// metrics into one object an application constructs once and calls
// Connect/Invoke/Stop on — the Go-native shape of pylogram's
// Client.__init__ wiring its own Dispatcher, Storage, and Session
// together.
package client

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gofrs/uuid"

	"github.com/dstainton-labs/gomtproto/config"
	"github.com/dstainton-labs/gomtproto/datacenter"
	"github.com/dstainton-labs/gomtproto/dispatcher"
	"github.com/dstainton-labs/gomtproto/metrics"
	"github.com/dstainton-labs/gomtproto/mtproto"
	"github.com/dstainton-labs/gomtproto/rpc"
	"github.com/dstainton-labs/gomtproto/schema"
	"github.com/dstainton-labs/gomtproto/session"
	"github.com/dstainton-labs/gomtproto/store"
)

// Client is the assembled, ready-to-run MTProto client.
type Client struct {
	cfg     *config.Config
	store   store.Store
	table   *datacenter.Table
	session *session.Session
	rpc     *rpc.Client
	disp    *dispatcher.Dispatcher
	logger  *log.Logger

	// InstallID is a per-process random identifier (spec.md's ambient
	// device-identity concern); generated fresh every run via
	// github.com/gofrs/uuid rather than persisted, since the DCs only
	// ever see it inside diagnostic fields, not as a stable device key.
	InstallID uuid.UUID
}

// Deps lets tests and advanced callers substitute any of a Client's
// collaborators; New fills in defaults for whatever is left nil.
type Deps struct {
	Store    store.Store
	Table    *datacenter.Table
	RSAKeys  []mtproto.ServerRSAKey
	Registry *schema.Registry
	Dialer   session.Dialer
}

// New assembles a Client from cfg without connecting. Call Connect to
// perform the handshake and start the background loops.
func New(cfg *config.Config, deps Deps) (*Client, error) {
	installID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("client: generating install id: %w", err)
	}

	logger := log.NewWithOptions(nil, log.Options{Prefix: "client"})

	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	if deps.Store != nil {
		st = deps.Store
	}

	table := deps.Table
	if table == nil {
		if cfg.API.TestMode {
			table = datacenter.Test
		} else {
			table = datacenter.Production
		}
	}

	registry := deps.Registry
	if registry == nil {
		registry = schema.DefaultRegistry()
	}

	dc, ok := table.Get(cfg.Session.DCID)
	if !ok {
		return nil, fmt.Errorf("client: unknown datacenter %d", cfg.Session.DCID)
	}

	dialer := deps.Dialer
	if dialer == nil && cfg.Proxy != nil {
		dialer, err = rpc.SOCKS5Dialer(cfg.Proxy.Address, cfg.Proxy.User, cfg.Proxy.Password)
		if err != nil {
			return nil, fmt.Errorf("client: configuring proxy: %w", err)
		}
	}

	sessionCfg := session.Config{
		DC:                  dc,
		RSAKeys:             deps.RSAKeys,
		Registry:            registry,
		Dialer:              dialer,
		Metrics:             metrics.NewSession(),
		Logger:              logger,
		PingInterval:        cfg.Session.PingInterval(),
		RequestTimeout:      cfg.Session.RequestTimeout(),
		FloodSleepThreshold: cfg.Session.FloodSleepThreshold,
	}

	primary := session.New(sessionCfg)

	rpcClient := rpc.New(rpc.AppInfo{
		APIID:         cfg.API.ID,
		DeviceModel:   cfg.API.DeviceModel,
		SystemVersion: cfg.API.SystemVersion,
		LangCode:      cfg.API.LangCode,
	}, primary, sessionCfg)

	disp := dispatcher.New(dispatcher.Config{
		Workers:                    cfg.Dispatcher.Workers,
		QueueSize:                  cfg.Dispatcher.QueueSize,
		Invoker:                    primary,
		Store:                      st,
		IgnoreChannelUpdatesExcept: cfg.Dispatcher.IgnoreChannelUpdatesExcept,
		WatchdogInterval:           cfg.Dispatcher.WatchdogInterval(),
		Logger:                     logger,
	})

	return &Client{
		cfg:       cfg,
		store:     st,
		table:     table,
		session:   primary,
		rpc:       rpcClient,
		disp:      disp,
		logger:    logger,
		InstallID: installID,
	}, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch {
	case cfg.Store.Bolt != nil:
		return openBoltStore(cfg.Store.Bolt)
	case cfg.Store.Postgres != nil:
		return openPostgresStore(cfg.Store.Postgres)
	default:
		return nil, fmt.Errorf("client: no store backend configured")
	}
}

// Connect loads persisted session state and logs whether it holds an
// auth key, starts the Session's connect/handshake/send/recv loops, and
// starts the Dispatcher's worker pool against the Session's update
// channel. A persisted auth key is not handed to the Session: Start
// always negotiates a fresh key, which Connect then saves.
func (c *Client) Connect(ctx context.Context) error {
	meta, err := c.store.LoadMeta()
	if err != nil {
		return fmt.Errorf("client: loading session state: %w", err)
	}
	if meta.AuthKey != ([256]byte{}) {
		c.logger.Info("found persisted auth key", "dc", meta.DCID)
	}

	if err := c.session.Start(ctx); err != nil {
		return fmt.Errorf("client: starting session: %w", err)
	}

	c.disp.Start(ctx)
	c.disp.Pump(ctx, c.session.Updates(), c.sessionRegistry())

	return c.persistMeta()
}

func (c *Client) sessionRegistry() *schema.Registry {
	return schema.DefaultRegistry()
}

func (c *Client) persistMeta() error {
	authKey := c.session.AuthKey()
	if authKey == nil {
		return nil
	}
	meta := &store.Meta{
		DCID:     c.cfg.Session.DCID,
		APIID:    c.cfg.API.ID,
		TestMode: c.cfg.API.TestMode,
	}
	copy(meta.AuthKey[:], authKey.Bytes())
	return c.store.SaveMeta(meta)
}

// AddHandler registers h with the Dispatcher in group.
func (c *Client) AddHandler(h *dispatcher.Handler, group int) {
	c.disp.AddHandler(h, group)
}

// Invoke sends req through the RPC facade (layer wrapping + cross-DC
// handling).
func (c *Client) Invoke(ctx context.Context, layer int32, req schema.Object) (schema.Object, error) {
	return c.rpc.Invoke(ctx, layer, req)
}

// Store exposes the underlying persistence backend, for callers that
// need direct peer lookups outside the dispatch path.
func (c *Client) Store() store.Store { return c.store }

// Stop halts the Dispatcher and Session and closes the Store.
func (c *Client) Stop() {
	c.disp.Stop()
	c.rpc.Close()
	c.session.Stop()
	if err := c.store.Close(); err != nil {
		c.logger.Error("closing store", "err", err)
	}
}
