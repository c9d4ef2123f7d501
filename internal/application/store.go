package application

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/cockroachdb/pebble"

	"github.com/v-starostin/tacbridge/internal/bridge"
	"github.com/v-starostin/tacbridge/internal/config"
	"github.com/v-starostin/tacbridge/internal/jobs/broadcaster"
	"github.com/v-starostin/tacbridge/internal/service"
	"github.com/v-starostin/tacbridge/internal/storage/kv"
	"github.com/v-starostin/tacbridge/internal/storage/pg"
)

// Store is everything the application needs from a ledger backend.
type Store interface {
	bridge.Store
	service.Storage
	broadcaster.Outbox
	Close() error
}

// OpenStore connects to Postgres and migrates it when DATABASE_URI is set,
// otherwise it opens the embedded store in StoreDir.
func OpenStore(ctx context.Context, logger *slog.Logger, cfg *config.Config) (Store, error) {
	if cfg.DatabaseURI == "" {
		store, err := kv.Open(logger, cfg.StoreDir, &pebble.Options{})
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	db, err := ConnectDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("Postgres store opened")
	return &pgStore{Storage: pg.New(logger, db), db: db}, nil
}

// ConnectDB opens the database and applies pending migrations.
func ConnectDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := pg.Connect(ctx, cfg.DatabaseURI)
	if err != nil {
		return nil, err
	}

	if err := pg.Migrate(db, cfg.Migrations); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

type pgStore struct {
	*pg.Storage
	db *sql.DB
}

func (s *pgStore) Close() error {
	return s.db.Close()
}
