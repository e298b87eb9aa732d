package postgres

import (
	"context"

	"github.com/aussiebroadwan/pulse/internal/pulse/store"
	"github.com/aussiebroadwan/pulse/internal/pulse/store/drivers/postgres/migrations"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// ApplyMigrations runs the embedded goose migrations over a database/sql
// handle borrowed from the pool.
func (s *Store) ApplyMigrations(ctx context.Context) (store.MigrationStatus, error) {
	// The pool keeps ownership of the connections, nothing to close here.
	db := stdlib.OpenDBFromPool(s.pool)

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.Migrations)
	if err != nil {
		return "", err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return store.MigrationAlreadyExists, nil
	}
	return store.MigrationCreated, nil
}
