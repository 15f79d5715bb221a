package mtproto

import (
	"sync"
	"time"

	"github.com/yawning/bloom"
	"gitlab.com/yawning/avl.git"
)

// MsgIDGenerator produces monotonically increasing msg-ids per MTProto's
// rule: msg_id is derived from the current unix time with its low two
// bits cleared (divisible by 4, the client-origin marker), and must
// always exceed the previous msg_id generated on this session (spec.md
// §3 "msg-id monotonicity invariant").
type MsgIDGenerator struct {
	mu   sync.Mutex
	last int64
}

// Every msg-id the client generates must be divisible by 4 (spec.md §3,
// invariant 1): only server-generated msg-ids carry the low bits 0b01.
// Content and non-content client messages (acks, pings, containers,
// handshake steps) are therefore indistinguishable at the msg-id layer;
// the content/non-content split lives entirely in seq_no parity
// (SeqNoGenerator below), matching pylogram's session.get_new_msg_id.
const msgIDLowBitsMask = ^int64(3)

// Next returns the next msg-id for a content message (an RPC request or
// any message expecting a response).
func (g *MsgIDGenerator) Next() int64 {
	return g.next()
}

// NextNonContent returns the next msg-id for a message that carries no
// response expectation (msgs_ack, ping, msg_container, handshake steps).
// It is identical to Next: both must land on a multiple of 4.
func (g *MsgIDGenerator) NextNonContent() int64 {
	return g.next()
}

func (g *MsgIDGenerator) next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixNano()
	candidate := ((now/1000000000)<<32 | (now%1000000000)&0xfffffffc) & msgIDLowBitsMask

	if candidate <= g.last {
		candidate = (g.last + 4) & msgIDLowBitsMask
	}
	g.last = candidate
	return candidate
}

// SeqNoGenerator tracks the session's seq_no counter: it increments by 2
// for every content message, stamping the result's low bit set (odd),
// and is used as-is (no increment, even) for non-content messages, per
// MTProto 2.0's seq_no parity rule (spec.md §3, invariant 2: "low bit is
// 1 for content-related messages").
type SeqNoGenerator struct {
	mu  sync.Mutex
	cur int32
}

// Next returns the seq_no for a content message and advances the
// counter.
func (s *SeqNoGenerator) Next() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.cur | 1
	s.cur += 2
	return v
}

// Current returns the seq_no to stamp on a non-content message, without
// advancing the counter.
func (s *SeqNoGenerator) Current() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// PendingResponse is one outstanding request awaiting its rpc_result.
// Body is kept so bad_server_salt handling can resend the same content
// under a fresh msg_id without the caller re-encoding anything (spec.md
// §4.4); new_session_created instead fails the waiter with
// mtperrors.ErrInvalidatedByNewSession.
type PendingResponse struct {
	MsgID   int64
	SentAt  time.Time
	Body    []byte
	RespCh  chan []byte
	ErrCh   chan error

	node *avl.Node
}

// PendingTable tracks outstanding requests ordered by msg_id, the way
// katzenpost's decoy worker orders outstanding SURBs by ETA in an
// avl.Tree: ordered iteration lets the sweep/timeout path walk oldest
// to newest instead of scanning an unordered map.
type PendingTable struct {
	mu   sync.Mutex
	tree *avl.Tree
	byID map[int64]*PendingResponse
}

// NewPendingTable returns an empty PendingTable.
func NewPendingTable() *PendingTable {
	return &PendingTable{
		tree: avl.New(func(a, b interface{}) int {
			pa, pb := a.(*PendingResponse), b.(*PendingResponse)
			switch {
			case pa.MsgID < pb.MsgID:
				return -1
			case pa.MsgID > pb.MsgID:
				return 1
			default:
				return 0
			}
		}),
		byID: make(map[int64]*PendingResponse),
	}
}

// Insert registers p as outstanding.
func (t *PendingTable) Insert(p *PendingResponse) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p.node = t.tree.Insert(p)
	t.byID[p.MsgID] = p
}

// Resolve removes and returns the PendingResponse for msgID, if any.
func (t *PendingTable) Resolve(msgID int64) (*PendingResponse, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byID[msgID]
	if !ok {
		return nil, false
	}
	delete(t.byID, msgID)
	t.tree.Remove(p.node)
	return p, true
}

// Len returns the number of outstanding requests.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tree.Len()
}

// SweepOlderThan removes and returns every pending request sent before
// cutoff, oldest first, for the reconnect path to resend or time out.
func (t *PendingTable) SweepOlderThan(cutoff time.Time) []*PendingResponse {
	t.mu.Lock()
	defer t.mu.Unlock()

	var stale []*PendingResponse
	iter := t.tree.Iterator(avl.Forward)
	for node := iter.First(); node != nil; {
		p := node.Value.(*PendingResponse)
		next := iter.Next()
		if p.SentAt.Before(cutoff) {
			stale = append(stale, p)
			delete(t.byID, p.MsgID)
			t.tree.Remove(node)
		}
		node = next
	}
	return stale
}

// SweepBelow removes and returns every pending request whose msg_id is
// strictly less than firstMsgID, for new_session_created handling: the
// server has discarded its view of anything it sent before that id, so
// those waiters must be invalidated and resent by the caller.
func (t *PendingTable) SweepBelow(firstMsgID int64) []*PendingResponse {
	t.mu.Lock()
	defer t.mu.Unlock()

	var stale []*PendingResponse
	iter := t.tree.Iterator(avl.Forward)
	for node := iter.First(); node != nil; {
		p := node.Value.(*PendingResponse)
		next := iter.Next()
		if p.MsgID >= firstMsgID {
			break
		}
		stale = append(stale, p)
		delete(t.byID, p.MsgID)
		t.tree.Remove(node)
		node = next
	}
	return stale
}

// replayWindowFalsePositiveRate bounds the bloom filter's false-positive
// rate for inbound msg-id replay detection; a false positive at worst
// drops one legitimate message and relies on the server's own resend
// behavior, so a loose bound is acceptable.
const replayWindowFalsePositiveRate = 0.0001

// ReplayWindow deduplicates inbound msg-ids using a bloom filter that
// holds up to its capacity of ids and is then replaced by a fresh, empty
// filter, rather than a map that would grow unbounded. spec.md §9 calls out bounded-memory replay protection as a
// design requirement; katzenpost's closest analogue is the decoy
// package's SURB-ID bookkeeping, but a straight membership test is a
// better fit here than an ordered tree.
type ReplayWindow struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	seen   int
	cap    int
}

// NewReplayWindow returns a ReplayWindow sized to deduplicate up to cap
// msg-ids before it is reset.
func NewReplayWindow(capacity int) *ReplayWindow {
	return &ReplayWindow{
		filter: bloom.NewWithEstimates(uint(capacity), replayWindowFalsePositiveRate),
		cap:    capacity,
	}
}

// Seen reports whether msgID has already been observed (and therefore
// should be dropped as a replay), recording it as seen either way.
func (w *ReplayWindow) Seen(msgID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.seen >= w.cap {
		w.filter = bloom.NewWithEstimates(uint(w.cap), replayWindowFalsePositiveRate)
		w.seen = 0
	}

	var key [8]byte
	for i := 0; i < 8; i++ {
		key[i] = byte(msgID >> (8 * i))
	}

	if w.filter.Test(key[:]) {
		return true
	}
	w.filter.Add(key[:])
	w.seen++
	return false
}
