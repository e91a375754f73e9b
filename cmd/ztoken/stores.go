package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"ztoken-ledger/internal/config"
	"ztoken-ledger/internal/storage"
	chstore "ztoken-ledger/internal/storage/clickhouse"
	"ztoken-ledger/internal/storage/memory"
	pgstore "ztoken-ledger/internal/storage/postgres"
)

// ledgerStores holds the storage implementations behind the engine.
type ledgerStores struct {
	tokens   storage.TokenStore
	accounts storage.AccountStore
	holdings storage.HoldingStore
	close    func()
}

// openStores connects the configured backend.
func openStores(ctx context.Context, conf config.Storage, pg config.Postgres, logger zerolog.Logger) (*ledgerStores, error) {
	if conf.Backend == config.BackendMemory {
		logger.Warn().Msg("using in-memory storage, state is lost on exit")
		return &ledgerStores{
			tokens:   memory.NewTokenStore(),
			accounts: memory.NewAccountStore(),
			holdings: memory.NewHoldingStore(),
			close:    func() {},
		}, nil
	}

	pool, err := pgstore.NewPool(ctx, pg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return &ledgerStores{
		tokens:   pgstore.NewTokenStore(pool),
		accounts: pgstore.NewAccountStore(pool),
		holdings: pgstore.NewHoldingStore(pool),
		close:    pool.Close,
	}, nil
}

// openJournal connects the clickhouse commit journal, or returns nil when no
// DSN is configured.
func openJournal(ctx context.Context, conf config.ClickHouse) (storage.CommitJournal, func(), error) {
	if conf.DSN == "" {
		return nil, func() {}, nil
	}
	conn, err := chstore.NewConn(ctx, conf.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	return chstore.NewCommitJournal(conn), func() { conn.Close() }, nil
}
