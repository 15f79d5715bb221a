package dispatcher

import (
	"context"

	"github.com/dstainton-labs/gomtproto/schema"
	"github.com/dstainton-labs/gomtproto/store"
)

// PeerResolver decodes one opaque user/chat blob from an Updates
// envelope into a Peer record. The core schema registry doesn't carry
// real User/Chat constructors (spec.md §6 keeps the schema a closed,
// minimal set), so the caller supplies the decoder that knows the real
// wire layout; Config.PeerResolver left nil disables peer-min recovery
// even when an Invoker is set.
type PeerResolver func(raw []byte) (store.Peer, bool)

// recoverPeerMin implements spec.md §4.7 "peer-min recovery": if any
// peer referenced by this update batch is a min peer (no access_hash)
// for a channel or supergroup, fetch updates.getChannelDifference before
// the update reaches handlers, and fold the resolved peers into Store so
// later lookups don't min out again.
func (d *Dispatcher) recoverPeerMin(ctx context.Context, item queueItem) {
	if d.cfg.PeerResolver == nil {
		return
	}

	seen := make(map[int64]bool)
	for _, raw := range append(append([][]byte{}, item.users...), item.chats...) {
		peer, ok := d.cfg.PeerResolver(raw)
		if !ok || !peer.IsMin() {
			continue
		}
		if peer.Type != store.PeerChannel && peer.Type != store.PeerSupergroup {
			continue
		}
		if len(d.allowedChannels) > 0 && !d.allowedChannels[peer.ID] {
			continue
		}
		if seen[peer.ID] {
			continue
		}
		seen[peer.ID] = true
		d.resolveChannel(ctx, peer.ID)
	}
}

func (d *Dispatcher) resolveChannel(ctx context.Context, channelID int64) {
	resp, err := d.cfg.Invoker.Invoke(ctx, schema.UpdatesGetChannelDifference{ChannelID: channelID, Limit: 100})
	if err != nil {
		d.cfg.Logger.Warn("peer-min recovery failed", "channel_id", channelID, "err", err)
		return
	}
	diff, ok := resp.(schema.UpdatesChannelDifference)
	if !ok {
		return
	}
	if d.cfg.Store == nil || d.cfg.PeerResolver == nil {
		return
	}
	for _, raw := range append(append([][]byte{}, diff.Users...), diff.Chats...) {
		peer, ok := d.cfg.PeerResolver(raw)
		if !ok || peer.IsMin() {
			continue
		}
		if err := d.cfg.Store.PutPeer(peer); err != nil {
			d.cfg.Logger.Error("peer-min recovery: failed to save resolved peer", "peer_id", peer.ID, "err", err)
		}
	}
}
