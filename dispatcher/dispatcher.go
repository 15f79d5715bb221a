// Package dispatcher implements the update fan-out described by spec.md
// §4.7 (component C7): handler groups, a bounded worker pool, middleware
// composition, and propagation control, re-expressed in Go from
// pylogram/dispatcher.py's asyncio.Lock-per-worker design.
package dispatcher

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/exp/slices"

	"github.com/dstainton-labs/gomtproto/internal/worker"
	"github.com/dstainton-labs/gomtproto/mtperrors"
	"github.com/dstainton-labs/gomtproto/schema"
	"github.com/dstainton-labs/gomtproto/store"
)

// Invoker is the subset of session.Session the dispatcher needs to drive
// peer-min recovery and the updates watchdog. *session.Session satisfies
// it structurally; tests can supply a fake.
type Invoker interface {
	Invoke(ctx context.Context, req schema.Object) (schema.Object, error)
}

// Filter reports whether a handler is interested in obj.
type Filter func(obj schema.Object) bool

// Callback runs when a Handler's Filter matches. Returning
// mtperrors.ErrStopPropagation aborts the whole update; returning
// mtperrors.ErrContinuePropagation skips to the next matching handler in
// the same group; any other error is logged and treated like success
// (stop this group, move to the next), matching handler_worker's
// `except Exception: log.exception(e)` falling through to `break`.
type Callback func(ctx context.Context, obj schema.Object) error

// Handler pairs a Filter with the Callback to run when it matches.
type Handler struct {
	Filter   Filter
	Callback Callback
}

// Middleware wraps the whole per-update dispatch. next is the next
// middleware (or the terminal dispatch) in the chain, as in call_next's
// `update_wrapper(partial(m, call_next=call_next))` composition. Start
// snapshots the middleware list once; the wrapper closures around it are
// composed again for every update.
type Middleware func(ctx context.Context, obj schema.Object, next func(ctx context.Context, obj schema.Object) error) error

// Config configures a Dispatcher.
type Config struct {
	// Workers is the worker pool size. Zero selects min(8, NumCPU()+4),
	// spec.md §4.7's default.
	Workers int
	// QueueSize bounds the update work queue. Zero selects 256.
	QueueSize int
	// Invoker drives updates.getChannelDifference / updates.getState for
	// peer-min recovery and the watchdog. Nil disables both.
	Invoker Invoker
	// PeerResolver decodes the raw user/chat blobs an Updates envelope
	// carries; nil disables peer-min recovery regardless of Invoker.
	PeerResolver PeerResolver
	// Store persists peers resolved by peer-min recovery. May be nil;
	// recovery still happens, but resolved peers aren't cached.
	Store store.Store
	// IgnoreChannelUpdatesExcept, when non-empty, limits peer-min
	// recovery to the listed channel ids (spec.md §4.7
	// "ignore_channel_updates_except").
	IgnoreChannelUpdatesExcept []int64
	// WatchdogInterval is UPDATES_WATCHDOG_INTERVAL. Zero selects 5
	// minutes.
	WatchdogInterval time.Duration
	Logger           *log.Logger
}

func (c *Config) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU() + 4
		if c.Workers > 8 {
			c.Workers = 8
		}
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.WatchdogInterval <= 0 {
		c.WatchdogInterval = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = log.NewWithOptions(nil, log.Options{Prefix: "dispatcher"})
	} else {
		c.Logger = c.Logger.WithPrefix("dispatcher")
	}
}

type queueItem struct {
	obj   schema.Object
	users [][]byte
	chats [][]byte
}

// Dispatcher fans updates out to registered handlers. Zero value is not
// usable; construct with New.
type Dispatcher struct {
	worker.Worker

	cfg Config

	mu       sync.RWMutex
	groups   map[int][]*Handler
	groupIDs []int

	middlewaresMu sync.Mutex
	middlewares   []Middleware
	chain         func(ctx context.Context, obj schema.Object, terminal func(context.Context, schema.Object) error) error

	queue chan queueItem

	allowedChannels map[int64]bool

	lastUpdateMu sync.Mutex
	lastUpdate   time.Time
}

// New returns a Dispatcher configured per cfg. Call Start to begin
// processing.
func New(cfg Config) *Dispatcher {
	cfg.setDefaults()
	allowed := make(map[int64]bool, len(cfg.IgnoreChannelUpdatesExcept))
	for _, id := range cfg.IgnoreChannelUpdatesExcept {
		allowed[id] = true
	}
	return &Dispatcher{
		cfg:             cfg,
		groups:          make(map[int][]*Handler),
		queue:           make(chan queueItem, cfg.QueueSize),
		allowedChannels: allowed,
	}
}

// AddHandler registers h in group, re-sorting the group index by
// ascending id the way `self.groups = OrderedDict(sorted(...))` does.
func (d *Dispatcher) AddHandler(h *Handler, group int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.groups[group]; !exists {
		d.groupIDs = append(d.groupIDs, group)
		slices.Sort(d.groupIDs)
	}
	d.groups[group] = append(d.groups[group], h)
}

// RemoveHandler unregisters h from group, if present.
func (d *Dispatcher) RemoveHandler(h *Handler, group int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	handlers := d.groups[group]
	for i, cand := range handlers {
		if cand == h {
			d.groups[group] = append(handlers[:i], handlers[i+1:]...)
			return
		}
	}
}

// Use appends mw to the middleware chain; innermost is the most
// recently added, matching pylogram's `reversed(self.middlewares)`
// composition order. Must be called before Start.
func (d *Dispatcher) Use(mw Middleware) {
	d.middlewaresMu.Lock()
	defer d.middlewaresMu.Unlock()
	d.middlewares = append(d.middlewares, mw)
}

// Enqueue submits one decoded update envelope for dispatch, called by the
// Session's update consumer loop. It never blocks indefinitely: a full
// queue drops the update and logs a warning, matching the session's own
// backpressure policy on its updates channel.
func (d *Dispatcher) Enqueue(obj schema.Object, users, chats [][]byte) {
	select {
	case d.queue <- queueItem{obj: obj, users: users, chats: chats}:
	default:
		d.cfg.Logger.Warn("dispatch queue full, dropping update")
	}
}

// Start launches the worker pool and, if an Invoker is configured, the
// updates watchdog. Call Stop to shut both down.
func (d *Dispatcher) Start(ctx context.Context) {
	d.chain = d.buildChain()

	for i := 0; i < d.cfg.Workers; i++ {
		var workerMu sync.Mutex
		d.Go(func() { d.runWorker(ctx, &workerMu) })
	}

	if d.cfg.Invoker != nil {
		d.Go(func() { d.watchdog(ctx) })
	}
}

// Stop halts the worker pool and watchdog and waits for both to exit.
func (d *Dispatcher) Stop() {
	d.Halt()
	d.Wait()
}

func (d *Dispatcher) buildChain() func(context.Context, schema.Object, func(context.Context, schema.Object) error) error {
	d.middlewaresMu.Lock()
	mws := append([]Middleware{}, d.middlewares...)
	d.middlewaresMu.Unlock()

	return func(ctx context.Context, obj schema.Object, terminal func(context.Context, schema.Object) error) error {
		call := terminal
		for i := len(mws) - 1; i >= 0; i-- {
			mw, next := mws[i], call
			call = func(ctx context.Context, obj schema.Object) error {
				return mw(ctx, obj, next)
			}
		}
		return call(ctx, obj)
	}
}

// runWorker is the per-goroutine loop, one sync.Mutex per worker
// standing in for pylogram's per-task asyncio.Lock.
func (d *Dispatcher) runWorker(ctx context.Context, mu *sync.Mutex) {
	for {
		select {
		case <-d.HaltCh():
			return
		case item, ok := <-d.queue:
			if !ok {
				return
			}
			d.process(ctx, mu, item)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, mu *sync.Mutex, item queueItem) {
	d.lastUpdateMu.Lock()
	d.lastUpdate = time.Now()
	d.lastUpdateMu.Unlock()

	if d.cfg.Invoker != nil {
		d.recoverPeerMin(ctx, item)
	}

	mu.Lock()
	defer mu.Unlock()

	err := d.chain(ctx, item.obj, d.dispatch)
	if err != nil && err != mtperrors.ErrStopPropagation {
		d.cfg.Logger.Error("dispatch failed", "err", err)
	}
}

// dispatch runs the group/handler matching loop: spec.md §4.7's
// propagation rules. For each group in ascending order, run the first
// matching handler; a nil or generic-error return stops this group and
// moves to the next; ErrContinuePropagation continues within the group;
// ErrStopPropagation aborts the whole update.
func (d *Dispatcher) dispatch(ctx context.Context, obj schema.Object) error {
	d.mu.RLock()
	groupIDs := append([]int{}, d.groupIDs...)
	groupsCopy := make(map[int][]*Handler, len(d.groups))
	for id, hs := range d.groups {
		groupsCopy[id] = append([]*Handler{}, hs...)
	}
	d.mu.RUnlock()

	for _, gid := range groupIDs {
		for _, h := range groupsCopy[gid] {
			if !h.Filter(obj) {
				continue
			}
			err := h.Callback(ctx, obj)
			if err == mtperrors.ErrStopPropagation {
				return err
			}
			if err == mtperrors.ErrContinuePropagation {
				continue
			}
			if err != nil {
				d.cfg.Logger.Error("handler failed", "err", err)
			}
			break
		}
	}
	return nil
}
