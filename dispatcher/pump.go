package dispatcher

import (
	"context"

	"github.com/dstainton-labs/gomtproto/schema"
)

// Pump launches a goroutine that drains updates (typically
// (*session.Session).Updates()) and feeds them into the dispatcher,
// unwrapping the Updates/UpdateShort envelopes into the individual
// update objects handlers actually filter on. It stops when either
// updates closes or the Dispatcher is halted.
func (d *Dispatcher) Pump(ctx context.Context, updates <-chan schema.Object, registry *schema.Registry) {
	d.Go(func() {
		for {
			select {
			case <-d.HaltCh():
				return
			case env, ok := <-updates:
				if !ok {
					return
				}
				d.ingest(env, registry)
			}
		}
	})
}

func (d *Dispatcher) ingest(env schema.Object, registry *schema.Registry) {
	switch v := env.(type) {
	case schema.Updates:
		for _, raw := range v.UpdateBytes {
			obj, err := registry.Decode(raw)
			if err != nil {
				d.cfg.Logger.Debug("dropping undecodable update", "err", err)
				continue
			}
			d.Enqueue(obj, v.Users, v.Chats)
		}
	case schema.UpdateShort:
		obj, err := registry.Decode(v.UpdateBytes)
		if err != nil {
			d.cfg.Logger.Debug("dropping undecodable update", "err", err)
			return
		}
		d.Enqueue(obj, nil, nil)
	default:
		// UpdateShortMessage and anything else the session hands us
		// directly is already a concrete, dispatchable object.
		d.Enqueue(env, nil, nil)
	}
}
