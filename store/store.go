// Package store defines the session-persistence contract spec.md §6
// describes (component C8): the durable fields a client needs to avoid
// re-running the auth-key handshake on every process start, plus the
// peer table the update pipeline populates as it learns about users and
// chats.
//
// Two backends implement this interface: store/boltstore (a single
// local file, grounded on the teacher's own disk.go statefile writer)
// and store/pgstore (a shared Postgres table, for operators who already
// run one instead of shipping a file per account).
package store

import "errors"

// ErrNotFound is returned by the By* lookups when no matching row
// exists.
var ErrNotFound = errors.New("store: not found")

// PeerType classifies a Peer record (spec.md §3 "Peer record").
type PeerType string

const (
	PeerUser       PeerType = "user"
	PeerBot        PeerType = "bot"
	PeerGroup      PeerType = "group"
	PeerSupergroup PeerType = "supergroup"
	PeerChannel    PeerType = "channel"
)

// Peer is one row of the peer table: id is the primary key, username
// and phone are secondary unique indexes (spec.md §6). AccessHash is
// zero for a "min" peer — one the update pipeline has only seen
// referenced, never fully resolved.
type Peer struct {
	ID         int64
	AccessHash int64
	Type       PeerType
	Username   string
	Phone      string
}

// IsMin reports whether this peer lacks the access hash needed to call
// most methods against it, per spec.md §4.7 "peer-min recovery".
func (p Peer) IsMin() bool { return p.AccessHash == 0 }

// Meta is the durable, individually addressable client identity spec.md
// §6 requires.
type Meta struct {
	DCID     int32
	APIID    int32
	TestMode bool
	AuthKey  [256]byte
	UserID   int64
	IsBot    bool
	Date     int64
}

// Store is the durable persistence contract: meta fields, the peer
// table (with username/phone secondary indexes), an opaque update-state
// blob, and an opaque secret-chats blob (both out of this module's
// scope to interpret — spec.md §6 "opaque to the core").
type Store interface {
	LoadMeta() (*Meta, error)
	SaveMeta(*Meta) error

	PeerByID(id int64) (*Peer, error)
	PeerByUsername(username string) (*Peer, error)
	PeerByPhone(phone string) (*Peer, error)
	PutPeer(p Peer) error

	UpdateState() ([]byte, error)
	SaveUpdateState(state []byte) error

	SecretChats() ([]byte, error)
	SaveSecretChats(blob []byte) error

	Close() error
}
