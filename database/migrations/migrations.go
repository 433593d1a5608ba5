// Copyright (c) 2025 Justin Cranford

// Package migrations embeds the versioned SQL schema for the core tables
// (users, magiclinks, user_privkey_context, user_ed25519_keys,
// user_x25519_keys) and applies it with golang-migrate. Only Postgres goes
// through migrate; SQLite is a dev/test convenience schema-managed by GORM
// AutoMigrate in internal/repository.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed *.sql
var migrationFiles embed.FS

// NewSource returns the embedded migration set as a golang-migrate source
// driver. Exposed separately from Apply so tests can validate the embedded
// files parse without needing a live database.
func NewSource() (source.Driver, error) {
	driver, err := iofs.New(migrationFiles, ".")
	if err != nil {
		return nil, fmt.Errorf("init embedded migration source: %w", err)
	}
	return driver, nil
}

// Apply brings the database at databaseURL (postgres://... form) up to the
// latest schema version. A database already at the latest version is not an
// error.
func Apply(databaseURL string) error {
	source, err := NewSource()
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("open migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		_, _ = m.Close()
		return fmt.Errorf("apply migrations: %w", err)
	}

	srcErr, dbErr := m.Close()
	if srcErr != nil {
		return fmt.Errorf("close migration source: %w", srcErr)
	}
	if dbErr != nil {
		return fmt.Errorf("close migration database handle: %w", dbErr)
	}
	return nil
}
