// Package pgstore implements store.Store over Postgres via
// github.com/jackc/pgx, the teacher's own (otherwise unused in the
// retrieved katzenpost files) database driver dependency — given a home
// here for operators who already run Postgres for everything else and
// want one peer table shared across several processes instead of a
// bbolt file per account.
//
// Schema (migrated externally; this package only issues DML):
//
//	CREATE TABLE meta (
//	    id SMALLINT PRIMARY KEY DEFAULT 1,
//	    dc_id INT, api_id INT, test_mode BOOLEAN,
//	    auth_key BYTEA, user_id BIGINT, is_bot BOOLEAN, date BIGINT
//	);
//	CREATE TABLE peers (
//	    id BIGINT PRIMARY KEY, access_hash BIGINT, peer_type TEXT,
//	    username TEXT UNIQUE, phone TEXT UNIQUE
//	);
//	CREATE TABLE update_state (id SMALLINT PRIMARY KEY DEFAULT 1, blob BYTEA);
//	CREATE TABLE secret_chats (id SMALLINT PRIMARY KEY DEFAULT 1, blob BYTEA);
package pgstore

import (
	"github.com/jackc/pgx"
	"gopkg.in/op/go-logging.v1"

	"github.com/dstainton-labs/gomtproto/store"
)

var log = logging.MustGetLogger("pgstore")

// Store is a Postgres-backed store.Store.
type Store struct {
	pool *pgx.ConnPool
}

// Open connects to Postgres using config and returns a ready Store.
func Open(config pgx.ConnConfig, maxConnections int) (*Store, error) {
	if maxConnections <= 0 {
		maxConnections = 5
	}
	pool, err := pgx.NewConnPool(pgx.ConnPoolConfig{
		ConnConfig:     config,
		MaxConnections: maxConnections,
	})
	if err != nil {
		return nil, err
	}
	log.Debugf("opened postgres store, max_connections=%d", maxConnections)
	return &Store{pool: pool}, nil
}

// LoadMeta reads the singleton meta row. A store with no row yet
// returns a zero-valued Meta, not an error, matching boltstore's
// first-run behavior.
func (s *Store) LoadMeta() (*store.Meta, error) {
	meta := &store.Meta{}
	var authKey []byte
	row := s.pool.QueryRow(`SELECT dc_id, api_id, test_mode, auth_key, user_id, is_bot, date FROM meta WHERE id = 1`)
	err := row.Scan(&meta.DCID, &meta.APIID, &meta.TestMode, &authKey, &meta.UserID, &meta.IsBot, &meta.Date)
	if err == pgx.ErrNoRows {
		return meta, nil
	}
	if err != nil {
		return nil, err
	}
	copy(meta.AuthKey[:], authKey)
	return meta, nil
}

// SaveMeta upserts the singleton meta row.
func (s *Store) SaveMeta(meta *store.Meta) error {
	_, err := s.pool.Exec(`
		INSERT INTO meta (id, dc_id, api_id, test_mode, auth_key, user_id, is_bot, date)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			dc_id = EXCLUDED.dc_id, api_id = EXCLUDED.api_id, test_mode = EXCLUDED.test_mode,
			auth_key = EXCLUDED.auth_key, user_id = EXCLUDED.user_id, is_bot = EXCLUDED.is_bot,
			date = EXCLUDED.date`,
		meta.DCID, meta.APIID, meta.TestMode, meta.AuthKey[:], meta.UserID, meta.IsBot, meta.Date)
	return err
}

// PutPeer upserts p; the unique indexes on username/phone are enforced
// by the schema itself.
func (s *Store) PutPeer(p store.Peer) error {
	_, err := s.pool.Exec(`
		INSERT INTO peers (id, access_hash, peer_type, username, phone)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		ON CONFLICT (id) DO UPDATE SET
			access_hash = EXCLUDED.access_hash, peer_type = EXCLUDED.peer_type,
			username = EXCLUDED.username, phone = EXCLUDED.phone`,
		p.ID, p.AccessHash, string(p.Type), p.Username, p.Phone)
	return err
}

func (s *Store) scanPeer(row *pgx.Row) (*store.Peer, error) {
	var p store.Peer
	var peerType string
	var username, phone *string
	if err := row.Scan(&p.ID, &p.AccessHash, &peerType, &username, &phone); err != nil {
		if err == pgx.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.Type = store.PeerType(peerType)
	if username != nil {
		p.Username = *username
	}
	if phone != nil {
		p.Phone = *phone
	}
	return &p, nil
}

// PeerByID looks up a peer by its primary key.
func (s *Store) PeerByID(id int64) (*store.Peer, error) {
	row := s.pool.QueryRow(`SELECT id, access_hash, peer_type, username, phone FROM peers WHERE id = $1`, id)
	return s.scanPeer(row)
}

// PeerByUsername looks up a peer by its username secondary index.
func (s *Store) PeerByUsername(username string) (*store.Peer, error) {
	row := s.pool.QueryRow(`SELECT id, access_hash, peer_type, username, phone FROM peers WHERE username = $1`, username)
	return s.scanPeer(row)
}

// PeerByPhone looks up a peer by its phone secondary index.
func (s *Store) PeerByPhone(phone string) (*store.Peer, error) {
	row := s.pool.QueryRow(`SELECT id, access_hash, peer_type, username, phone FROM peers WHERE phone = $1`, phone)
	return s.scanPeer(row)
}

func (s *Store) readBlob(table string) ([]byte, error) {
	var blob []byte
	row := s.pool.QueryRow(`SELECT blob FROM ` + table + ` WHERE id = 1`)
	err := row.Scan(&blob)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return blob, err
}

func (s *Store) writeBlob(table string, blob []byte) error {
	_, err := s.pool.Exec(`
		INSERT INTO `+table+` (id, blob) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET blob = EXCLUDED.blob`, blob)
	return err
}

// UpdateState returns the opaque update-state blob.
func (s *Store) UpdateState() ([]byte, error) { return s.readBlob("update_state") }

// SaveUpdateState overwrites the opaque update-state blob.
func (s *Store) SaveUpdateState(state []byte) error { return s.writeBlob("update_state", state) }

// SecretChats returns the opaque secret-chats blob.
func (s *Store) SecretChats() ([]byte, error) { return s.readBlob("secret_chats") }

// SaveSecretChats overwrites the opaque secret-chats blob.
func (s *Store) SaveSecretChats(blob []byte) error { return s.writeBlob("secret_chats", blob) }

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	log.Debug("closing postgres store")
	s.pool.Close()
	return nil
}
