package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/srvmarket/srvchat/internal/store/migrations"
)

// MigrateResult reports the schema version after Migrate.
type MigrateResult struct {
	Version uint
	// Changed is set when at least one migration ran.
	Changed bool
	// Recovered is set when a dirty schema left by an interrupted run was replayed.
	Recovered bool
}

func (db *DB) migrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("snapshot migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("snapshot migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("snapshot migrator: %w", err)
	}
	return m, nil
}

// Migrate brings the snapshot schema up to date. Migrations are written with
// IF [NOT] EXISTS so a dirty schema is recovered by replaying them from scratch.
func (db *DB) Migrate() (*MigrateResult, error) {
	m, err := db.migrator()
	if err != nil {
		return nil, err
	}

	res := &MigrateResult{}
	if _, dirty, err := m.Version(); err == nil && dirty {
		if err := m.Force(database.NilVersion); err != nil {
			return nil, fmt.Errorf("reset dirty snapshot schema: %w", err)
		}
		res.Recovered = true
	}

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
	case err != nil:
		return nil, fmt.Errorf("migrate snapshot: %w", err)
	default:
		res.Changed = true
	}

	v, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("snapshot schema version: %w", err)
	}
	res.Version = v
	return res, nil
}
