package dispatcher

import (
	"context"
	"time"

	"github.com/dstainton-labs/gomtproto/schema"
)

// watchdog implements spec.md §4.7 "updates watchdog": if nothing has
// come in within WatchdogInterval, poke updates.getState to confirm the
// connection is merely quiet rather than stalled.
func (d *Dispatcher) watchdog(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.HaltCh():
			return
		case <-ticker.C:
			d.lastUpdateMu.Lock()
			quiet := time.Since(d.lastUpdate)
			d.lastUpdateMu.Unlock()
			if quiet < d.cfg.WatchdogInterval {
				continue
			}
			if _, err := d.cfg.Invoker.Invoke(ctx, schema.UpdatesGetState{}); err != nil {
				d.cfg.Logger.Warn("updates watchdog: getState failed", "err", err)
			}
		}
	}
}
