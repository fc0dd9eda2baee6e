package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/simple-wamp-api/pkg/depends"
)

// ErrEmptyDSN is returned by Open for an empty DSN.
var ErrEmptyDSN = errors.New("storage: empty dsn")

// Open connects to dsn and configures its pool. DSNs starting with
// postgres:// or postgresql://, or written as key=value pairs with a host,
// use PostgreSQL; anything else is a SQLite path. ":memory:" gets a single
// connection that never expires, since every SQLite memory connection is a
// separate database.
func Open(dsn string, opts ...PoolOption) (*gorm.DB, error) {
	if dsn == "" {
		return nil, ErrEmptyDSN
	}
	db, err := gorm.Open(dialector(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	if dsn == ":memory:" {
		opts = append(opts, WithPoolConfig(PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}))
	}
	if err := ConfigurePool(db, opts...); err != nil {
		return nil, err
	}
	return db, nil
}

func dialector(dsn string) gorm.Dialector {
	if isPostgres(dsn) {
		return postgres.Open(dsn)
	}
	return sqlite.Open(dsn)
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

// Migrate creates or updates the tables of models.
func Migrate(ctx context.Context, db *gorm.DB, models ...any) error {
	return db.WithContext(ctx).AutoMigrate(models...)
}

// Session returns a dependency yielding a transaction per call. The
// transaction commits when the call succeeds and rolls back otherwise.
func Session(db *gorm.DB) *depends.Dependency {
	return depends.Provide(func(ctx context.Context) (*gorm.DB, depends.Release, error) {
		tx := db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return nil, nil, fmt.Errorf("storage: begin: %w", tx.Error)
		}
		return tx, func(callErr error) error {
			if callErr != nil {
				// A cancelled call context has already rolled the
				// transaction back.
				if err := tx.Rollback().Error; err != nil && !errors.Is(err, sql.ErrTxDone) {
					return err
				}
				return nil
			}
			return tx.Commit().Error
		}, nil
	})
}

// Conn returns a dependency yielding db bound to the call context, without
// a transaction.
func Conn(db *gorm.DB) *depends.Dependency {
	return depends.Provide(func(ctx context.Context) (*gorm.DB, depends.Release, error) {
		return db.WithContext(ctx), nil, nil
	})
}
