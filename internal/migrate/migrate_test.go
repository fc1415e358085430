package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mesh-intelligence/arcstore/internal/legacy"
	"github.com/mesh-intelligence/arcstore/internal/legacy/legacytest"
	"github.com/mesh-intelligence/arcstore/internal/prefs"
	"github.com/mesh-intelligence/arcstore/internal/records"
	"github.com/mesh-intelligence/arcstore/internal/schema"
	"github.com/mesh-intelligence/arcstore/internal/sqlite"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

var at = time.Date(2016, 3, 1, 10, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) types.Engine {
	t.Helper()
	e, err := sqlite.Open(sqlite.MemoryPath, schema.Define())
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func fixture() legacytest.Fixture {
	return legacytest.Fixture{
		URLs:    []legacy.URLRow{{URL: "http://a.com", Time: at}, {URL: "http://b.com", Time: at}},
		Sockets: []legacy.URLRow{{URL: "ws://echo", Time: at}},
		Projects: []legacy.ProjectRow{
			{ID: 1, Name: "api", Time: at},
			{ID: 2, Name: "unused", Time: at},
		},
		Requests: []legacy.RequestRow{
			{ID: 1, ProjectID: 1, Name: "create", URL: "http://a.com/users", Method: "POST", Payload: "a=1", Time: at},
			{ID: 2, ProjectID: 1, Name: "list", URL: "http://a.com/users", Method: "GET", Time: at},
			{ID: 3, Name: "loose", URL: "http://c.com", Method: "GET", Time: at},
			{ID: 4, Name: "broken", Method: "GET", Time: at},
		},
		History: []legacy.RequestRow{{ID: 1, URL: "http://h.com", Method: "GET", Time: at}},
		Exported: []legacy.ExportRow{
			{ID: 10, RequestID: 2, ServerID: "agx"},
			{ID: 11, RequestID: 2, ServerID: "later"},
			{ID: 12, RequestID: 0, ServerID: "orphan"},
		},
	}
}

func legacySource(t *testing.T) legacy.Source {
	t.Helper()
	return legacy.NewReader(legacytest.Write(t, t.TempDir(), fixture()), nil)
}

func count(t *testing.T, e types.Engine, collection string) int {
	t.Helper()
	var n int
	require.NoError(t, e.View(context.Background(), func(tx types.Tx) error {
		var err error
		n, err = tx.Count(collection)
		return err
	}))
	return n
}

func TestRunMigratesLegacyStore(t *testing.T) {
	e := newEngine(t)
	flags := &prefs.Memory{}
	m := New(e, legacySource(t), flags, WithLogger(zaptest.NewLogger(t)))

	res, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Done, res.State)
	assert.Equal(t, Done, m.State())
	assert.NotEqual(t, [16]byte{}, [16]byte(res.RunID))

	assert.Equal(t, Counts{URLs: 2, Sockets: 1, Saved: 3, History: 1, Projects: 1, Exports: 1}, res.Counts)
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, Skipped{Table: legacy.TableExported, LegacyID: 12, Reason: "missing request reference or server key"}, res.Skipped[0])
	assert.Equal(t, legacy.TableRequests, res.Skipped[1].Table)
	assert.Equal(t, int64(4), res.Skipped[1].LegacyID)

	ok, err := flags.Upgraded()
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, e.View(context.Background(), func(tx types.Tx) error {
		reqs, err := records.Query[types.RequestRecord](tx, types.CollectionRequests, types.Query{})
		require.NoError(t, err)
		require.Len(t, reqs, 4)
		for i, want := range []struct {
			legacyID int64
			kind     string
		}{{1, types.RequestTypeSaved}, {2, types.RequestTypeSaved}, {3, types.RequestTypeSaved}, {1, types.RequestTypeHistory}} {
			assert.Equal(t, int64(i+1), reqs[i].ID)
			assert.Equal(t, want.legacyID, reqs[i].LegacyID)
			assert.Equal(t, want.kind, reqs[i].Type)
		}
		assert.Nil(t, reqs[1].Har.Entries[0].Request.PostData, "GET keeps no body")
		require.NotNil(t, reqs[0].Har.Entries[0].Request.PostData)

		projects, err := records.Query[types.ProjectRecord](tx, types.CollectionProjects, types.Query{})
		require.NoError(t, err)
		require.Len(t, projects, 1)
		assert.Equal(t, "api", projects[0].Name)
		assert.Equal(t, int64(1), projects[0].LegacyID)
		assert.Equal(t, []int64{1, 2}, projects[0].RequestIDs)
		assert.True(t, at.Equal(projects[0].CreatedAt))

		exports, err := records.Query[types.ExportRecord](tx, types.CollectionServerExports, types.Query{})
		require.NoError(t, err)
		assert.Equal(t, []types.ExportRecord{{ServerID: "agx", RequestID: 2, LegacyID: 10}}, exports)

		urls, err := records.Query[types.URLHistoryRecord](tx, types.CollectionURLHistory, types.Query{})
		require.NoError(t, err)
		require.Len(t, urls, 2)
		assert.Equal(t, "http://a.com", urls[0].URL)
		return nil
	}))
}

func TestRunIsIdempotent(t *testing.T) {
	e := newEngine(t)
	flags := &prefs.Memory{}
	src := legacySource(t)
	ctx := context.Background()

	m := New(e, src, flags)
	_, err := m.Run(ctx)
	require.NoError(t, err)

	res, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, AlreadyMigrated, res.State)

	res, err = New(e, src, flags).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, AlreadyMigrated, res.State)
	assert.Equal(t, Counts{}, res.Counts)

	assert.Equal(t, 4, count(t, e, types.CollectionRequests))
	assert.Equal(t, 1, count(t, e, types.CollectionProjects))
}

func TestRunFreshInstall(t *testing.T) {
	e := newEngine(t)
	flags := prefs.NewFile(filepath.Join(t.TempDir(), prefs.FileName))
	src := legacy.NewReader(filepath.Join(t.TempDir(), "missing.db"), nil)

	res, err := New(e, src, flags).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Done, res.State)
	assert.Equal(t, Counts{}, res.Counts)
	assert.Empty(t, res.Skipped)

	ok, err := flags.Upgraded()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, count(t, e, types.CollectionRequests))
}

type fakeSource struct {
	snap    *legacy.Snapshot
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeSource) Extract(ctx context.Context) (*legacy.Snapshot, error) {
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	return f.snap, f.err
}

type failingFlags struct {
	prefs.Memory
	readErr  error
	writeErr error
}

func (f *failingFlags) Upgraded() (bool, error) {
	if f.readErr != nil {
		return false, f.readErr
	}
	return f.Memory.Upgraded()
}

func (f *failingFlags) SetUpgraded() error {
	if f.writeErr != nil {
		return f.writeErr
	}
	return f.Memory.SetUpgraded()
}

func TestRunExtractFailure(t *testing.T) {
	e := newEngine(t)
	flags := &prefs.Memory{}
	boom := errors.New("disk on fire")

	res, err := New(e, &fakeSource{err: boom}, flags).Run(context.Background())
	require.ErrorIs(t, err, boom)
	var merr *types.MigrationError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "extract", merr.Step)
	assert.Equal(t, Failed, res.State)

	ok, _ := flags.Upgraded()
	assert.False(t, ok)
}

func TestRunFlagReadFailure(t *testing.T) {
	boom := errors.New("unreadable")
	res, err := New(newEngine(t), &fakeSource{snap: &legacy.Snapshot{}}, &failingFlags{readErr: boom}).Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Failed, res.State)
}

func TestRunFlagWriteFailureKeepsData(t *testing.T) {
	e := newEngine(t)
	src := legacySource(t)
	ctx := context.Background()
	boom := errors.New("read-only prefs")

	res, err := New(e, src, &failingFlags{writeErr: boom}).Run(ctx)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, Failed, res.State)
	assert.Equal(t, 4, count(t, e, types.CollectionRequests))

	res, err = New(e, src, &prefs.Memory{}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Done, res.State)
	assert.Equal(t, 4, res.Counts.Existing)
	assert.Equal(t, 1, res.Counts.MergedProjects)
	assert.Equal(t, 4, count(t, e, types.CollectionRequests))
	assert.Equal(t, 1, count(t, e, types.CollectionProjects))
	assert.Equal(t, 1, count(t, e, types.CollectionServerExports))
}

func TestRunNotReentrant(t *testing.T) {
	src := &fakeSource{
		snap:    &legacy.Snapshot{},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	m := New(newEngine(t), src, &prefs.Memory{})

	done := make(chan error, 1)
	go func() {
		_, err := m.Run(context.Background())
		done <- err
	}()
	<-src.started

	res, err := m.Run(context.Background())
	assert.ErrorIs(t, err, types.ErrMigrationInProgress)
	assert.Equal(t, Extracting, res.State)

	close(src.release)
	require.NoError(t, <-done)
	assert.Equal(t, Done, m.State())
}

func TestRunUnnamedProject(t *testing.T) {
	e := newEngine(t)
	src := &fakeSource{snap: &legacy.Snapshot{
		Projects: []legacy.Row{{"id": int64(5), "name": "", "time": int64(0)}},
		Requests: []legacy.Row{{"id": int64(1), "project": int64(5), "url": "http://a.com", "method": "GET"}},
	}}
	res, err := New(e, src, &prefs.Memory{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts.Projects)

	require.NoError(t, e.View(context.Background(), func(tx types.Tx) error {
		projects, err := records.Query[types.ProjectRecord](tx, types.CollectionProjects, types.Query{})
		require.NoError(t, err)
		require.Len(t, projects, 1)
		assert.Equal(t, "Project 5", projects[0].Name)
		return nil
	}))
}

func TestRunMissingProjectIsIgnored(t *testing.T) {
	e := newEngine(t)
	src := &fakeSource{snap: &legacy.Snapshot{
		Requests: []legacy.Row{{"id": int64(1), "project": int64(9), "url": "http://a.com", "method": "GET"}},
	}}
	res, err := New(e, src, &prefs.Memory{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts.Saved)
	assert.Equal(t, 0, res.Counts.Projects)
}

// failingEngine hands out transactions whose Add fails on one collection.
type failingEngine struct {
	types.Engine
	collection string
	err        error
}

func (f *failingEngine) Update(ctx context.Context, fn func(tx types.Tx) error) error {
	return f.Engine.Update(ctx, func(tx types.Tx) error {
		return fn(&failingTx{Tx: tx, collection: f.collection, err: f.err})
	})
}

type failingTx struct {
	types.Tx
	collection string
	err        error
}

func (f *failingTx) Add(collection string, doc json.RawMessage) (types.Key, error) {
	if collection == f.collection {
		return nil, f.err
	}
	return f.Tx.Add(collection, doc)
}

func TestRunLoadFailureCommitsNothing(t *testing.T) {
	e := newEngine(t)
	src := legacySource(t)
	flags := &prefs.Memory{}
	ctx := context.Background()
	boom := errors.New("projects unavailable")

	broken := &failingEngine{Engine: e, collection: types.CollectionProjects, err: boom}
	res, err := New(broken, src, flags, WithLogger(zaptest.NewLogger(t))).Run(ctx)
	require.ErrorIs(t, err, boom)
	var merr *types.MigrationError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "load", merr.Step)
	assert.Equal(t, Failed, res.State)

	ok, err := flags.Upgraded()
	require.NoError(t, err)
	assert.False(t, ok)

	for _, c := range []string{
		types.CollectionURLHistory,
		types.CollectionSocketHistory,
		types.CollectionRequests,
		types.CollectionProjects,
		types.CollectionServerExports,
	} {
		assert.Zero(t, count(t, e, c), c)
	}

	res, err = New(e, src, flags).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Done, res.State)
	assert.Equal(t, Counts{URLs: 2, Sockets: 1, Saved: 3, History: 1, Projects: 1, Exports: 1}, res.Counts)
	ok, err = flags.Upgraded()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunSkipsRowsWithoutID(t *testing.T) {
	e := newEngine(t)
	src := &fakeSource{snap: &legacy.Snapshot{
		Requests: []legacy.Row{
			{"name": "no id", "url": "http://a.com", "method": "GET"},
			{"id": int64(2), "url": "http://b.com", "method": "GET"},
		},
		History: []legacy.Row{{"url": "http://c.com", "method": "GET"}},
	}}
	res, err := New(e, src, &prefs.Memory{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts.Saved)
	assert.Equal(t, 0, res.Counts.History)
	assert.Equal(t, []Skipped{
		{Table: legacy.TableRequests, Reason: reasonMissingID},
		{Table: legacy.TableHistory, Reason: reasonMissingID},
	}, res.Skipped)

	require.NoError(t, e.View(context.Background(), func(tx types.Tx) error {
		reqs, err := records.Query[types.RequestRecord](tx, types.CollectionRequests, types.Query{})
		require.NoError(t, err)
		require.Len(t, reqs, 1)
		assert.Equal(t, int64(2), reqs[0].LegacyID)
		return nil
	}))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "already_migrated", AlreadyMigrated.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, Done.Terminal())
	assert.False(t, Loading.Terminal())

	text, err := Failed.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "failed", string(text))
}
