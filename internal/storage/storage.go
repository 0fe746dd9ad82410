// Package storage is the relational side of the service: the card catalog and
// user display identities, kept in SQLite through bun.
package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/unkn0wn-root/tarotcache"
)

var ErrNotFound = errors.New("storage: not found")

const DefaultDSN = "file:data/tarot.db?cache=shared"

type DB struct {
	bun *bun.DB
	log tarotcache.Logger
}

// Open connects, creates missing tables and seeds the card catalog when empty.
func Open(ctx context.Context, dsn string, log tarotcache.Logger) (*DB, error) {
	if log == nil {
		log = tarotcache.NopLogger{}
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = DefaultDSN
	}
	if err := ensureSQLiteDir(dsn); err != nil {
		return nil, errors.Wrap(err, "storage: create sqlite dir")
	}

	sqldb, err := sql.Open(sqliteshim.DriverName(), dsn)
	if err != nil {
		return nil, errors.Wrap(err, "storage: open sqlite")
	}
	if isMemory(dsn) {
		// every new connection would get its own empty in-memory database
		sqldb.SetMaxOpenConns(1)
	}
	db := &DB{bun: bun.NewDB(sqldb, sqlitedialect.New()), log: log}

	if err := db.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.seedCards(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error { return db.bun.Close() }

func (db *DB) Ping(ctx context.Context) error { return db.bun.PingContext(ctx) }

func isMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func ensureSQLiteDir(dsn string) error {
	if !strings.HasPrefix(dsn, "file:") {
		return nil
	}
	path := strings.TrimPrefix(dsn, "file:")
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (db *DB) ensureSchema(ctx context.Context) error {
	models := []any{
		(*Card)(nil),
		(*User)(nil),
	}
	for _, model := range models {
		if _, err := db.bun.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return errors.Wrapf(err, "storage: create table for %T", model)
		}
	}
	return nil
}
