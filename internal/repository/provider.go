// Copyright (c) 2025 Justin Cranford

// Package repository wraps GORM access to the five core tables (users,
// magiclinks, user_privkey_context, user_ed25519_keys, user_x25519_keys)
// behind a transaction-scoped API.
package repository

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arkaitz-dev/hashrand-sub003/database/migrations"
	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
	"github.com/arkaitz-dev/hashrand-sub003/internal/domain"
)

// DBType selects the GORM dialector a Provider opens.
type DBType string

const (
	DBTypeSQLite   DBType = "sqlite"
	DBTypePostgres DBType = "postgres"
)

// TransactionMode selects the access mode a transaction runs under.
// SQLite (used for fast unit tests) doesn't support true read-only
// transactions; Postgres does.
type TransactionMode int

const (
	AutoCommit TransactionMode = iota
	ReadWrite
	ReadOnly
)

// Provider owns the *gorm.DB connection pool for one of the two supported
// database types.
type Provider struct {
	db     *gorm.DB
	dbType DBType
}

// NewProvider opens dsn with GORM using the dialector for dbType. Postgres
// schemas are owned by the versioned migrations in database/migrations and
// applied before the pool opens; SQLite (dev/test only) is AutoMigrated by
// GORM since golang-migrate's SQLite drivers need cgo.
func NewProvider(ctx context.Context, dbType DBType, dsn string) (*Provider, error) {
	var dialector gorm.Dialector
	switch dbType {
	case DBTypeSQLite:
		dialector = sqlite.Open(dsn)
	case DBTypePostgres:
		if err := migrations.Apply(dsn); err != nil {
			return nil, apperr.Wrap(apperr.KindStorageError, "repository: apply migrations", err)
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, apperr.New(apperr.KindStorageError, fmt.Sprintf("repository: unsupported database type %q", dbType))
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageError, "repository: open database", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageError, "repository: access underlying sql.DB", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, apperr.Wrap(apperr.KindStorageError, "repository: ping database", err)
	}

	if dbType == DBTypeSQLite {
		if err := db.AutoMigrate(
			&domain.User{},
			&domain.MagicLink{},
			&domain.PrivkeyContext{},
			&domain.UserEd25519Key{},
			&domain.UserX25519Key{},
		); err != nil {
			return nil, apperr.Wrap(apperr.KindStorageError, "repository: automigrate", err)
		}
	}

	return &Provider{db: db, dbType: dbType}, nil
}

// RequireNewForTest opens an in-memory SQLite database for fast unit tests,
// panicking on failure (test-only helper).
func RequireNewForTest(ctx context.Context) *Provider {
	provider, err := NewProvider(ctx, DBTypeSQLite, "file::memory:?cache=shared")
	if err != nil {
		panic(err)
	}
	return provider
}

// Shutdown closes the underlying connection pool.
func (p *Provider) Shutdown() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return apperr.Wrap(apperr.KindStorageError, "repository: access underlying sql.DB on shutdown", err)
	}
	return sqlDB.Close()
}

// Transaction is the handle passed into a WithTransaction callback.
type Transaction struct {
	tx   *gorm.DB
	mode TransactionMode
}

// Mode reports the transaction's access mode.
func (t *Transaction) Mode() TransactionMode { return t.mode }

// WithTransaction runs fn inside a database transaction, committing on a nil
// return and rolling back (and re-panicking) otherwise. ReadOnly is rejected
// outright on SQLite, which has no read-only transaction mode.
func (p *Provider) WithTransaction(ctx context.Context, mode TransactionMode, fn func(*Transaction) error) (err error) {
	if mode == ReadOnly && p.dbType == DBTypeSQLite {
		return apperr.New(apperr.KindStorageError, "repository: database sqlite doesn't support read-only transactions")
	}

	gormTx := p.db.WithContext(ctx).Begin()
	if gormTx.Error != nil {
		return apperr.Wrap(apperr.KindStorageError, "repository: begin transaction", gormTx.Error)
	}

	if mode == ReadOnly {
		if execErr := gormTx.Exec("SET TRANSACTION READ ONLY").Error; execErr != nil {
			gormTx.Rollback()
			return apperr.Wrap(apperr.KindStorageError, "repository: set transaction read only", execErr)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			gormTx.Rollback()
			err = apperr.New(apperr.KindStorageError, fmt.Sprintf("repository: panic during transaction: %v", r))
		}
	}()

	if fnErr := fn(&Transaction{tx: gormTx, mode: mode}); fnErr != nil {
		gormTx.Rollback()
		return fnErr
	}

	if commitErr := gormTx.Commit().Error; commitErr != nil {
		return apperr.Wrap(apperr.KindStorageError, "repository: commit transaction", commitErr)
	}
	return nil
}
