// Package legacy reads the flat relational store written by earlier client
// releases. The store is only ever opened read-only.
package legacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"
)

// Legacy table names.
const (
	TableURLs     = "urls"
	TableSockets  = "websocket_data"
	TableHistory  = "history"
	TableProjects = "projects"
	TableRequests = "request_data"
	TableExported = "exported"
)

// ErrStoreMissing reports that there is no legacy store to read, which is
// the case on a fresh install.
var ErrStoreMissing = errors.New("legacy store not found")

// Snapshot holds every row of the six legacy tables.
type Snapshot struct {
	URLs     []Row
	Sockets  []Row
	History  []Row
	Requests []Row
	Projects []Row
	Exported []Row
}

// Empty reports whether the snapshot holds no rows at all.
func (s *Snapshot) Empty() bool {
	return len(s.URLs)+len(s.Sockets)+len(s.History)+len(s.Requests)+len(s.Projects)+len(s.Exported) == 0
}

// Source produces a legacy snapshot.
type Source interface {
	Extract(ctx context.Context) (*Snapshot, error)
}

// Reader extracts a Snapshot from a legacy SQLite file.
type Reader struct {
	path string
	log  *zap.Logger
}

// NewReader returns a Reader for the file at path. An empty path means no
// legacy store exists.
func NewReader(path string, log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{path: path, log: log}
}

// Extract opens the store read-only, reads the six tables concurrently, and
// closes the store before returning. A missing file yields ErrStoreMissing;
// a missing table yields no rows.
func (r *Reader) Extract(ctx context.Context) (*Snapshot, error) {
	if r.path == "" {
		return nil, ErrStoreMissing
	}
	if _, err := os.Stat(r.path); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrStoreMissing
		}
		return nil, fmt.Errorf("stat legacy store: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+r.path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open legacy store: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("connect legacy store: %w", err)
	}

	snap := &Snapshot{}
	targets := []struct {
		table string
		dst   *[]Row
	}{
		{TableURLs, &snap.URLs},
		{TableSockets, &snap.Sockets},
		{TableHistory, &snap.History},
		{TableProjects, &snap.Projects},
		{TableRequests, &snap.Requests},
		{TableExported, &snap.Exported},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		g.Go(func() error {
			rows, err := r.readTable(gctx, db, target.table)
			if err != nil {
				return fmt.Errorf("read %s: %w", target.table, err)
			}
			*target.dst = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.log.Info("legacy_snapshot_extracted",
		zap.String("path", r.path),
		zap.Int("urls", len(snap.URLs)),
		zap.Int("sockets", len(snap.Sockets)),
		zap.Int("history", len(snap.History)),
		zap.Int("requests", len(snap.Requests)),
		zap.Int("projects", len(snap.Projects)),
		zap.Int("exported", len(snap.Exported)))
	return snap, nil
}

func (r *Reader) readTable(ctx context.Context, db *sql.DB, table string) ([]Row, error) {
	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		r.log.Debug("legacy_table_missing", zap.String("table", table))
		return []Row{}, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM "%s"`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []Row{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
