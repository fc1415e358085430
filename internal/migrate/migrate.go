// Package migrate moves data from the legacy relational store into the
// current collections. A completed run is recorded in a flag store so the
// migration happens at most once per install.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/arcstore/internal/legacy"
	"github.com/mesh-intelligence/arcstore/internal/normalize"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

// FlagStore persists whether the migration has completed.
type FlagStore interface {
	Upgraded() (bool, error)
	SetUpgraded() error
}

// Counts tallies what a run wrote.
type Counts struct {
	URLs           int `json:"urls"`
	Sockets        int `json:"sockets"`
	Saved          int `json:"saved"`
	History        int `json:"history"`
	Existing       int `json:"existing"`
	Projects       int `json:"projects"`
	MergedProjects int `json:"mergedProjects"`
	Exports        int `json:"exports"`
}

// Skipped describes a legacy row that was not migrated.
type Skipped struct {
	Table    string `json:"table"`
	LegacyID int64  `json:"legacyId,omitempty"`
	Reason   string `json:"reason"`
}

// Result reports the outcome of Run.
type Result struct {
	RunID   uuid.UUID `json:"runId"`
	State   State     `json:"state"`
	Counts  Counts    `json:"counts"`
	Skipped []Skipped `json:"skipped"`
}

// Migrator runs the legacy migration. A Migrator remembers a completed run
// or a set flag for its whole life and never consults the flag store again.
type Migrator struct {
	engine     types.Engine
	source     legacy.Source
	flags      FlagStore
	normalizer normalize.Normalizer
	log        *zap.Logger

	running atomic.Bool

	mu       sync.Mutex
	state    State
	migrated bool
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Migrator) { m.log = log }
}

// WithNormalizer replaces the transaction log builder.
func WithNormalizer(n normalize.Normalizer) Option {
	return func(m *Migrator) { m.normalizer = n }
}

// New returns a Migrator that reads from source and writes into engine.
func New(engine types.Engine, source legacy.Source, flags FlagStore, opts ...Option) *Migrator {
	m := &Migrator{
		engine:     engine,
		source:     source,
		flags:      flags,
		normalizer: normalize.New(),
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	return m
}

// State returns the state of the latest run.
func (m *Migrator) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Migrator) transition(res *Result, s State) {
	m.mu.Lock()
	from := m.state
	m.state = s
	m.mu.Unlock()
	res.State = s
	m.log.Info("migration_state",
		zap.String("run_id", res.RunID.String()),
		zap.Stringer("from", from),
		zap.Stringer("to", s))
}

func (m *Migrator) fail(res *Result, step string, err error) (Result, error) {
	m.transition(res, Failed)
	m.log.Error("migration_failed",
		zap.String("run_id", res.RunID.String()),
		zap.String("step", step),
		zap.Error(err))
	var merr *types.MigrationError
	if errors.As(err, &merr) {
		return *res, err
	}
	return *res, &types.MigrationError{Step: step, Err: err}
}

// Run migrates the legacy store unless the flag says it already happened.
// A missing legacy store is a fresh install: nothing is copied and the flag
// is set. The flag is written only after every write has committed. Run
// is not re-entrant; a concurrent call returns ErrMigrationInProgress.
func (m *Migrator) Run(ctx context.Context) (Result, error) {
	if !m.running.CompareAndSwap(false, true) {
		return Result{State: m.State()}, types.ErrMigrationInProgress
	}
	defer m.running.Store(false)

	res := Result{RunID: newRunID(), Skipped: []Skipped{}}

	m.mu.Lock()
	migrated := m.migrated
	m.mu.Unlock()
	if migrated {
		m.transition(&res, AlreadyMigrated)
		return res, nil
	}

	m.transition(&res, CheckingFlag)
	upgraded, err := m.flags.Upgraded()
	if err != nil {
		return m.fail(&res, "check flag", err)
	}
	if upgraded {
		m.markMigrated()
		m.transition(&res, AlreadyMigrated)
		return res, nil
	}

	m.transition(&res, Extracting)
	snap, err := m.source.Extract(ctx)
	switch {
	case errors.Is(err, legacy.ErrStoreMissing):
		m.log.Info("legacy_store_missing", zap.String("run_id", res.RunID.String()))
		snap = &legacy.Snapshot{}
	case err != nil:
		return m.fail(&res, "extract", err)
	}

	m.transition(&res, Transforming)
	p := m.transform(snap, &res)

	m.transition(&res, Loading)
	if err := m.load(ctx, p, &res); err != nil {
		return m.fail(&res, "load", err)
	}

	if err := m.flags.SetUpgraded(); err != nil {
		return m.fail(&res, "set flag", err)
	}
	m.markMigrated()
	m.transition(&res, Done)
	m.log.Info("migration_complete",
		zap.String("run_id", res.RunID.String()),
		zap.Int("saved", res.Counts.Saved),
		zap.Int("history", res.Counts.History),
		zap.Int("projects", res.Counts.Projects),
		zap.Int("exports", res.Counts.Exports),
		zap.Int("skipped", len(res.Skipped)))
	return res, nil
}

func (m *Migrator) markMigrated() {
	m.mu.Lock()
	m.migrated = true
	m.mu.Unlock()
}

func newRunID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

func (r *Result) skip(table string, legacyID int64, reason string) {
	r.Skipped = append(r.Skipped, Skipped{Table: table, LegacyID: legacyID, Reason: reason})
}

func (r Result) String() string {
	return fmt.Sprintf("%s: %d saved, %d history, %d projects, %d exports, %d skipped",
		r.State, r.Counts.Saved, r.Counts.History, r.Counts.Projects, r.Counts.Exports, len(r.Skipped))
}
