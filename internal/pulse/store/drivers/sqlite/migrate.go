package sqlite

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/pulse/internal/pulse/store"
	"github.com/aussiebroadwan/pulse/internal/pulse/store/drivers/sqlite/migrations"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ApplyMigrations applies any pending migrations from the embedded files.
// It reports MigrationAlreadyExists when there was nothing to do.
func (s *Store) ApplyMigrations(ctx context.Context) (store.MigrationStatus, error) {
	// 1. Create the SQLite migration driver
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return "", err
	}

	// 2. Create the iofs (embedded filesystem) source driver
	migrationsFilesystem, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return "", err
	}

	// 3. Create the migrate instance to run migrations
	instance, err := migrate.NewWithInstance("iofs", migrationsFilesystem, "sqlite", driver)
	if err != nil {
		return "", err
	}

	// 4. Apply all up migrations. Closing the instance would close s.db.
	err = instance.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return store.MigrationAlreadyExists, nil
	}
	if err != nil {
		return "", err
	}

	return store.MigrationCreated, nil
}
