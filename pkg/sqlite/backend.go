// Package sqlite provides the public API for the SQLite storage engine.
// This package exposes the factory functions while keeping the
// implementation internal.
//
// Example:
//
//	engine, err := sqlite.NewEngine("/var/lib/arcstore", logger)
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
package sqlite

import (
	"go.uber.org/zap"

	"github.com/mesh-intelligence/arcstore/internal/schema"
	"github.com/mesh-intelligence/arcstore/internal/sqlite"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

// NewEngine opens the SQLite database inside dataDir with the current
// collection layout.
func NewEngine(dataDir string, log *zap.Logger) (types.Engine, error) {
	return sqlite.OpenDir(dataDir, schema.Define(), sqlite.WithLogger(log))
}

// NewMemoryEngine opens a throwaway in-memory database.
func NewMemoryEngine() (types.Engine, error) {
	return sqlite.Open(sqlite.MemoryPath, schema.Define())
}
