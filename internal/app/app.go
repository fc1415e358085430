// Package app is the startup context: it opens the storage engine, fills
// reference data, runs the legacy migration, and owns every handle until
// Close.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/arcstore/internal/bootstrap"
	"github.com/mesh-intelligence/arcstore/internal/legacy"
	"github.com/mesh-intelligence/arcstore/internal/migrate"
	"github.com/mesh-intelligence/arcstore/internal/pebble"
	"github.com/mesh-intelligence/arcstore/internal/prefs"
	"github.com/mesh-intelligence/arcstore/internal/schema"
	"github.com/mesh-intelligence/arcstore/internal/store"
	"github.com/mesh-intelligence/arcstore/pkg/sqlite"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

// App holds an open store and the migration state that belongs to it.
type App struct {
	Config   types.Config
	Engine   types.Engine
	Store    *store.Store
	Migrator *migrate.Migrator

	// Migration is the outcome of the run performed by Open.
	Migration    migrate.Result
	MigrationErr error

	log       *zap.Logger
	closeOnce sync.Once
	closeErr  error
}

type options struct {
	log         *zap.Logger
	flags       migrate.FlagStore
	source      legacy.Source
	httpClient  *http.Client
	skipMigrate bool
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger handed to every component.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithFlagStore replaces the preference file flag store.
func WithFlagStore(f migrate.FlagStore) Option {
	return func(o *options) { o.flags = f }
}

// WithLegacySource replaces the legacy store reader.
func WithLegacySource(s legacy.Source) Option {
	return func(o *options) { o.source = s }
}

// WithHTTPClient sets the client used to fetch reference definitions.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithoutMigration opens the store without running the legacy migration.
func WithoutMigration() Option {
	return func(o *options) { o.skipMigrate = true }
}

// Open validates cfg and brings the store up. A failed migration does not
// fail Open: the store stays usable and the error is kept in MigrationErr.
func Open(ctx context.Context, cfg types.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.DataDir == "" {
		return nil, &types.ValidationError{Entity: "config", Field: "data_dir", Reason: "is required"}
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	engine, err := openEngine(cfg, o.log)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Engine: engine, log: o.log}

	s, err := store.New(engine, schema.Define(), o.log)
	if err != nil {
		engine.Close()
		return nil, err
	}
	a.Store = s

	var loaderOpts []bootstrap.Option
	if o.httpClient != nil {
		loaderOpts = append(loaderOpts, bootstrap.WithHTTPClient(o.httpClient))
	}
	if _, err := bootstrap.EnsurePopulated(ctx, engine, bootstrap.NewLoader(cfg.Definitions, loaderOpts...), o.log); err != nil {
		engine.Close()
		return nil, err
	}

	flags := o.flags
	if flags == nil {
		path := cfg.PrefsPath
		if path == "" {
			path = filepath.Join(cfg.DataDir, prefs.FileName)
		}
		flags = prefs.NewFile(path)
	}
	source := o.source
	if source == nil {
		source = legacy.NewReader(cfg.LegacyPath, o.log)
	}
	a.Migrator = migrate.New(engine, source, flags, migrate.WithLogger(o.log))

	if !o.skipMigrate {
		a.Migration, a.MigrationErr = a.Migrator.Run(ctx)
		if a.MigrationErr != nil {
			o.log.Error("startup_migration_failed", zap.Error(a.MigrationErr))
		}
	}
	o.log.Info("store_opened",
		zap.String("backend", cfg.Backend),
		zap.String("data_dir", cfg.DataDir),
		zap.Stringer("migration", a.Migrator.State()))
	return a, nil
}

func openEngine(cfg types.Config, log *zap.Logger) (types.Engine, error) {
	switch cfg.Backend {
	case types.BackendSQLite:
		e, err := sqlite.NewEngine(cfg.DataDir, log)
		if err != nil {
			return nil, fmt.Errorf("open sqlite engine: %w", err)
		}
		return e, nil
	case types.BackendPebble:
		e, err := pebble.Open(filepath.Join(cfg.DataDir, pebble.DirName), schema.Define(), pebble.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("open pebble engine: %w", err)
		}
		return e, nil
	default:
		return nil, types.ErrBackendUnknown
	}
}

// Migrate runs the legacy migration. After a completed run it reports
// AlreadyMigrated without touching the flag store.
func (a *App) Migrate(ctx context.Context) (migrate.Result, error) {
	res, err := a.Migrator.Run(ctx)
	a.Migration, a.MigrationErr = res, err
	return res, err
}

// Close releases the engine. It is safe to call more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.Engine.Close()
		if errors.Is(a.closeErr, types.ErrEngineClosed) {
			a.closeErr = nil
		}
		a.log.Info("store_closed")
	})
	return a.closeErr
}
