// Package pebble implements the arcstore storage engine on a Pebble
// key-value store.
//
// Key layout:
//
//	d\x00<collection>\x00<pk>                    document
//	i\x00<collection>\x00<index>\x00<value>\x00<pk>  index entry, value = pk
//	s\x00<collection>                            auto-increment sequence
//	m\x00version                                 layout version
//
// Writers are serialized and run inside an indexed batch committed with
// pebble.Sync. Readers run against a snapshot.
package pebble

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/arcstore/internal/schema"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

// DirName is the store directory created inside the data directory.
const DirName = "arcstore.pebble"

var versionKey = []byte("m\x00version")

// Engine is a types.Engine backed by Pebble.
type Engine struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	closed  bool
	db      *pebble.DB
	desc    schema.Descriptor
	log     *zap.Logger
	opts    *pebble.Options
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// InMemory keeps the store in memory. The path passed to Open is only a
// name.
func InMemory() Option {
	return func(e *Engine) { e.opts.FS = vfs.NewMem() }
}

// Open opens or creates the store at path.
func Open(path string, desc schema.Descriptor, opts ...Option) (*Engine, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("validate schema: %w", err)
	}
	e := &Engine{desc: desc, log: zap.NewNop(), opts: &pebble.Options{}}
	for _, opt := range opts {
		opt(e)
	}

	db, err := pebble.Open(path, e.opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	if err := checkVersion(db, desc.Version); err != nil {
		db.Close()
		return nil, err
	}
	e.db = db
	e.log.Info("pebble_engine_opened", zap.String("path", path), zap.Int("layout_version", desc.Version))
	return e, nil
}

func checkVersion(db *pebble.DB, want int) error {
	v, closer, err := db.Get(versionKey)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		return fmt.Errorf("read layout version: %w", err)
	default:
		got := binary.BigEndian.Uint64(v)
		closer.Close()
		if got > uint64(want) {
			return fmt.Errorf("store layout version %d is newer than %d", got, want)
		}
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(want))
	if err := db.Set(versionKey, buf, pebble.Sync); err != nil {
		return fmt.Errorf("write layout version: %w", err)
	}
	return nil
}

// Update runs fn in a batch that is committed when fn returns nil.
func (e *Engine) Update(ctx context.Context, fn func(tx types.Tx) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return types.ErrEngineClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	batch := e.db.NewIndexedBatch()
	defer batch.Close()

	if err := fn(&tx{r: batch, batch: batch, desc: e.desc}); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return &types.StorageError{Op: "commit", Err: err}
	}
	return nil
}

// View runs fn against a snapshot of the committed state.
func (e *Engine) View(ctx context.Context, fn func(tx types.Tx) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return types.ErrEngineClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	snap := e.db.NewSnapshot()
	defer snap.Close()
	return fn(&tx{r: snap, desc: e.desc})
}

// Close flushes and releases the store. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.log.Info("pebble_engine_closed")
	return e.db.Close()
}

// reader is satisfied by *pebble.Batch and *pebble.Snapshot.
type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}
