package client

import (
	"fmt"

	"github.com/jackc/pgx"

	"github.com/dstainton-labs/gomtproto/config"
	"github.com/dstainton-labs/gomtproto/store"
	"github.com/dstainton-labs/gomtproto/store/boltstore"
	"github.com/dstainton-labs/gomtproto/store/pgstore"
)

func openBoltStore(cfg *config.BoltStore) (store.Store, error) {
	s, err := boltstore.Open(cfg.Path, []byte(cfg.Passphrase))
	if err != nil {
		return nil, fmt.Errorf("client: opening bolt store: %w", err)
	}
	return s, nil
}

func openPostgresStore(cfg *config.PostgresStore) (store.Store, error) {
	connConfig, err := pgx.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("client: parsing postgres dsn: %w", err)
	}
	s, err := pgstore.Open(connConfig, cfg.MaxConnections)
	if err != nil {
		return nil, fmt.Errorf("client: opening postgres store: %w", err)
	}
	return s, nil
}
