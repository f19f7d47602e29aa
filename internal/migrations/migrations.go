// Package migrations embeds and applies the Postgres schema for events,
// alerts, alert triggers and goals.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var files embed.FS

// State describes the schema version recorded in the database.
type State struct {
	Version uint
	Dirty   bool
	// Empty is true when no migration has ever been applied.
	Empty bool
}

func open(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(files, ".")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("open migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("init migrator: %w", err)
	}
	return m, nil
}

func state(m *migrate.Migrate) (State, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return State{Empty: true}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read schema version: %w", err)
	}
	return State{Version: v, Dirty: dirty}, nil
}

// Status reports the schema version without changing anything.
func Status(db *sql.DB) (State, error) {
	m, err := open(db)
	if err != nil {
		return State{}, err
	}
	return state(m)
}

// RunMigrations brings the schema up to date. With autoMigrate false it only
// logs the current version.
//
// A dirty version left by an interrupted run is forced back one step and
// re-applied; every statement is idempotent (IF NOT EXISTS).
func RunMigrations(db *sql.DB, autoMigrate bool) error {
	m, err := open(db)
	if err != nil {
		return err
	}

	st, err := state(m)
	if err != nil {
		return err
	}

	if st.Dirty {
		back := int(st.Version) - 1
		if back < 1 {
			back = -1 // nil version
		}
		slog.Warn("[Migrations] Dirty schema version, re-applying", "version", st.Version)
		if err := m.Force(back); err != nil {
			return fmt.Errorf("force schema version %d: %w", back, err)
		}
	}

	if !autoMigrate {
		slog.Info("[Migrations] Auto-migration disabled", "version", st.Version, "empty", st.Empty)
		return nil
	}

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		slog.Info("[Migrations] Schema is up to date", "version", st.Version)
		return nil
	case err != nil:
		return fmt.Errorf("apply migrations: %w", err)
	}

	after, err := state(m)
	if err != nil {
		return err
	}
	slog.Info("[Migrations] Schema migrated", "from", st.Version, "to", after.Version)
	return nil
}
