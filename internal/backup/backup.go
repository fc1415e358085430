// Package backup dumps every collection to JSON Lines files and loads them
// back. One file per collection, named <collection>.jsonl.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/arcstore/pkg/types"
)

// Ext is the backup file extension.
const Ext = ".jsonl"

// FileName returns the backup file name of collection.
func FileName(collection string) string {
	return collection + Ext
}

// Summary counts documents per collection.
type Summary struct {
	Documents map[string]int `json:"documents"`
	Skipped   map[string]int `json:"skipped,omitempty"`
}

// Dump writes every collection to dir from a single consistent read.
func Dump(ctx context.Context, engine types.Engine, dir string, log *zap.Logger) (Summary, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("creating backup dir: %w", err)
	}

	docs := make(map[string][]json.RawMessage, len(types.Collections))
	err := engine.View(ctx, func(tx types.Tx) error {
		for _, c := range types.Collections {
			list, err := tx.Query(c, types.Query{})
			if err != nil {
				return err
			}
			docs[c] = list
		}
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("reading collections: %w", err)
	}

	sum := Summary{Documents: make(map[string]int, len(docs))}
	for _, c := range types.Collections {
		if err := writeJSONL(filepath.Join(dir, FileName(c)), docs[c]); err != nil {
			return sum, fmt.Errorf("dump %s: %w", c, err)
		}
		sum.Documents[c] = len(docs[c])
	}
	log.Info("backup_dumped", zap.String("dir", dir), zap.Any("documents", sum.Documents))
	return sum, nil
}

// Restore loads every backup file found in dir in one transaction. Stored
// documents with the same key are replaced. Missing files are skipped, as
// are lines that are not JSON or that a collection rejects.
func Restore(ctx context.Context, engine types.Engine, dir string, log *zap.Logger) (Summary, error) {
	if log == nil {
		log = zap.NewNop()
	}
	files := make(map[string][]json.RawMessage, len(types.Collections))
	sum := Summary{Documents: map[string]int{}, Skipped: map[string]int{}}
	for _, c := range types.Collections {
		docs, skipped, err := readJSONL(filepath.Join(dir, FileName(c)))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Summary{}, err
		}
		files[c] = docs
		if skipped > 0 {
			sum.Skipped[c] = skipped
		}
	}

	err := engine.Update(ctx, func(tx types.Tx) error {
		for _, c := range types.Collections {
			sum.Documents[c] = 0
			for _, doc := range files[c] {
				if _, err := tx.Put(c, doc); err != nil {
					if errors.Is(err, types.ErrInvalidData) {
						sum.Skipped[c]++
						log.Warn("backup_document_skipped", zap.String("collection", c), zap.Error(err))
						continue
					}
					return err
				}
				sum.Documents[c]++
			}
		}
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("restoring backup: %w", err)
	}
	log.Info("backup_restored", zap.String("dir", dir), zap.Any("documents", sum.Documents))
	return sum, nil
}
