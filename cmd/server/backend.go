package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"escrow-sale/internal/config"
	"escrow-sale/internal/storage"
	chstore "escrow-sale/internal/storage/clickhouse"
	"escrow-sale/internal/storage/memory"
	"escrow-sale/internal/storage/migrations"
	pgstore "escrow-sale/internal/storage/postgres"
	"escrow-sale/internal/storage/sqlite"
)

// backend is the ledger host and event journals selected by configuration.
type backend struct {
	ledger storage.Ledger
	// events is the journal served by the API.
	events storage.EventStore
	// analytics is the optional ClickHouse journal, write-only from the engine.
	analytics storage.EventStore
	closers   []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*backend, error) {
	b := &backend{}

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		b.ledger = memory.NewLedger().ForSale(cfg.Sale.ID)
		b.events = memory.NewEventStore()
		log.Warn("using in-memory ledger, state is lost on exit")

	case config.BackendSqlite:
		db, err := sqlite.Open(ctx, cfg.Storage.SqlitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		b.closers = append(b.closers, func() { _ = db.Close() })
		b.ledger = sqlite.NewLedger(db, cfg.Sale.ID)
		b.events = sqlite.NewEventStore(db)
		log.Infof("using sqlite ledger at %s", cfg.Storage.SqlitePath)

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			b.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		b.ledger = pgstore.NewLedger(pool, cfg.Sale.ID)
		b.events = pgstore.NewEventStore(pool)
		log.Info("using postgres ledger")

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if cfg.Storage.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		b.closers = append(b.closers, func() { _ = conn.Close() })
		b.analytics = chstore.NewEventStore(conn)
		log.Info("clickhouse event journal enabled")
	}

	return b, nil
}
