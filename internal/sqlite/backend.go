// Package sqlite implements the arcstore storage engine on SQLite. Each
// collection is a document table keyed by the encoded primary key plus an
// index table holding one row per secondary index entry.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/arcstore/internal/schema"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

// DBFileName is the database file created inside the data directory.
const DBFileName = "arcstore.db"

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Backend is a types.Engine backed by a single SQLite connection.
type Backend struct {
	mu     sync.RWMutex
	closed bool
	db     *sql.DB
	desc   schema.Descriptor
	log    *zap.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.log = l
		}
	}
}

// Open opens or creates the database at path and applies the collection
// layout. Use MemoryPath for a throwaway database.
func Open(path string, desc schema.Descriptor, opts ...Option) (*Backend, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("validate schema: %w", err)
	}
	b := &Backend{desc: desc, log: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}

	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// One connection: SQLite has a single writer and an in-memory database
	// exists only on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db, desc); err != nil {
		db.Close()
		return nil, err
	}

	b.db = db
	b.log.Info("sqlite_engine_opened", zap.String("path", path), zap.Int("layout_version", desc.Version))
	return b, nil
}

// OpenDir opens the database file inside dataDir.
func OpenDir(dataDir string, desc schema.Descriptor, opts ...Option) (*Backend, error) {
	return Open(filepath.Join(dataDir, DBFileName), desc, opts...)
}

// Update runs fn in a read-write transaction.
func (b *Backend) Update(ctx context.Context, fn func(tx types.Tx) error) error {
	return b.run(ctx, true, fn)
}

// View runs fn in a transaction that is always rolled back.
func (b *Backend) View(ctx context.Context, fn func(tx types.Tx) error) error {
	return b.run(ctx, false, fn)
}

func (b *Backend) run(ctx context.Context, writable bool, fn func(tx types.Tx) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return types.ErrEngineClosed
	}

	sqlTx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return &types.StorageError{Op: "begin", Err: err}
	}
	defer sqlTx.Rollback()

	if err := fn(&tx{ctx: ctx, sqlTx: sqlTx, desc: b.desc, writable: writable}); err != nil {
		return err
	}
	if !writable {
		return nil
	}
	if err := sqlTx.Commit(); err != nil {
		return &types.StorageError{Op: "commit", Err: err}
	}
	return nil
}

// Close releases the database handle. Close is idempotent.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.log.Info("sqlite_engine_closed")
	return b.db.Close()
}
