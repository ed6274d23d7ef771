// Package store holds the server-side backends for per-day score distributions.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/MJE43/coindle/internal/stats"
)

// DB is a stats.Store with a lifecycle.
type DB interface {
	stats.Store
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
	RedisURL    string
}

// Open connects to the configured backend and migrates it.
func Open(ctx context.Context, opts Options) (DB, error) {
	var (
		db  DB
		err error
	)

	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case DriverMemory:
		db = NewMemoryDB()
	case DriverSQLite, "":
		db, err = NewSQLiteDB(opts.SQLitePath)
	case DriverPostgres:
		db, err = NewPostgresDB(opts.PostgresDSN)
	case DriverRedis:
		db, err = NewRedisDBFromURL(opts.RedisURL)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// MemoryDB adapts stats.MemoryStore to DB. Scores are lost on restart.
type MemoryDB struct {
	*stats.MemoryStore
}

// NewMemoryDB creates an empty in-process backend.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{MemoryStore: stats.NewMemoryStore()}
}

func (MemoryDB) Migrate(context.Context) error { return nil }
func (MemoryDB) Ping(context.Context) error    { return nil }
func (MemoryDB) Close() error                  { return nil }
