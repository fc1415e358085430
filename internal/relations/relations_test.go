package relations

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/arcstore/internal/records"
	"github.com/mesh-intelligence/arcstore/internal/schema"
	"github.com/mesh-intelligence/arcstore/internal/sqlite"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

func newEngine(t *testing.T) types.Engine {
	t.Helper()
	e, err := sqlite.Open(sqlite.MemoryPath, schema.Define())
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func request(url, method string) types.RequestRecord {
	return types.RequestRecord{URL: url, Method: method, Type: types.RequestTypeSaved}
}

func project(name string) types.ProjectRecord {
	return types.ProjectRecord{Name: name, CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
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

func getProject(t *testing.T, e types.Engine, id int64) (types.ProjectRecord, bool) {
	t.Helper()
	var (
		p  types.ProjectRecord
		ok bool
	)
	require.NoError(t, e.View(context.Background(), func(tx types.Tx) error {
		var err error
		p, ok, err = records.Get[types.ProjectRecord](tx, types.CollectionProjects, types.IntKey(id))
		return err
	}))
	return p, ok
}

func TestCreateProjectWithRequests(t *testing.T) {
	e := newEngine(t)
	in := New(e, nil)
	ctx := context.Background()

	id, err := in.CreateProjectWithRequests(ctx, project("api"), []types.RequestRecord{
		request("http://a.com/1", "GET"),
		request("http://a.com/2", "POST"),
	})
	require.NoError(t, err)

	p, ok := getProject(t, e, id)
	require.True(t, ok)
	assert.Equal(t, []int64{1, 2}, p.RequestIDs)
	assert.Equal(t, 2, count(t, e, types.CollectionRequests))
}

func TestCreateProjectWithRequestsMergesExisting(t *testing.T) {
	e := newEngine(t)
	in := New(e, nil)
	ctx := context.Background()

	first := project("api")
	first.LegacyID = 8
	id, err := in.CreateProjectWithRequests(ctx, first, []types.RequestRecord{request("http://a.com/1", "GET")})
	require.NoError(t, err)

	again := project("api v2")
	again.LegacyID = 8
	id2, err := in.CreateProjectWithRequests(ctx, again, []types.RequestRecord{request("http://a.com/2", "GET")})
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	p, _ := getProject(t, e, id)
	assert.Equal(t, "api v2", p.Name)
	assert.Equal(t, []int64{1, 2}, p.RequestIDs)
	assert.Equal(t, 1, count(t, e, types.CollectionProjects))
}

func TestCreateProjectWithRequestsAbortsOnFailure(t *testing.T) {
	e := newEngine(t)
	in := New(e, nil)
	ctx := context.Background()

	dup := request("http://a.com/1", "GET")
	dup.ID = 1
	_, err := in.CreateProjectWithRequests(ctx, project("api"), []types.RequestRecord{dup, dup})
	require.ErrorIs(t, err, types.ErrConstraint)

	assert.Equal(t, 0, count(t, e, types.CollectionRequests))
	assert.Equal(t, 0, count(t, e, types.CollectionProjects))
}

func TestCreateProjectWithRequestsValidates(t *testing.T) {
	in := New(newEngine(t), nil)
	_, err := in.CreateProjectWithRequests(context.Background(), project(""), nil)
	assert.ErrorIs(t, err, types.ErrInvalidData)

	_, err = in.CreateProjectWithRequests(context.Background(), project("api"), []types.RequestRecord{{URL: "x"}})
	assert.ErrorIs(t, err, types.ErrInvalidData)

	p := project("api")
	p.RequestIDs = []int64{42}
	_, err = in.CreateProjectWithRequests(context.Background(), p, nil)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestDeleteProjectCascade(t *testing.T) {
	e := newEngine(t)
	in := New(e, nil)
	ctx := context.Background()

	id, err := in.CreateProjectWithRequests(ctx, project("api"), []types.RequestRecord{
		request("http://a.com/1", "GET"),
		request("http://a.com/2", "GET"),
	})
	require.NoError(t, err)
	other, err := in.CreateProjectWithRequests(ctx, project("other"), []types.RequestRecord{request("http://b.com", "GET")})
	require.NoError(t, err)
	_, err = in.AddRequestToProject(ctx, other, 1)
	require.NoError(t, err)

	require.NoError(t, in.RecordServerExport(ctx, types.ExportRecord{ServerID: "gae-1", RequestID: 1}))
	require.NoError(t, in.RecordDriveExport(ctx, types.DriveRecord{DriveFileID: "drive-1", RequestID: 2}))
	require.NoError(t, in.RecordServerExport(ctx, types.ExportRecord{ServerID: "gae-3", RequestID: 3}))

	n, err := in.DeleteProjectCascade(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok := getProject(t, e, id)
	assert.False(t, ok)
	assert.Equal(t, 1, count(t, e, types.CollectionRequests))
	assert.Equal(t, 1, count(t, e, types.CollectionServerExports))
	assert.Equal(t, 0, count(t, e, types.CollectionDriveExports))

	p, ok := getProject(t, e, other)
	require.True(t, ok)
	assert.Equal(t, []int64{3}, p.RequestIDs)
}

func TestDeleteProjectCascadeNotFound(t *testing.T) {
	in := New(newEngine(t), nil)
	_, err := in.DeleteProjectCascade(context.Background(), 5)
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = in.DeleteProjectCascadeByLegacyID(context.Background(), 5)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestDeleteProjectCascadeByLegacyID(t *testing.T) {
	e := newEngine(t)
	in := New(e, nil)
	ctx := context.Background()

	p := project("api")
	p.LegacyID = 3
	_, err := in.CreateProjectWithRequests(ctx, p, []types.RequestRecord{request("http://a.com", "GET")})
	require.NoError(t, err)

	n, err := in.DeleteProjectCascadeByLegacyID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, count(t, e, types.CollectionProjects))
}

func TestAddRequestToProject(t *testing.T) {
	e := newEngine(t)
	in := New(e, nil)
	ctx := context.Background()

	id, err := in.CreateProjectWithRequests(ctx, project("api"), []types.RequestRecord{request("http://a.com", "GET")})
	require.NoError(t, err)

	added, err := in.AddRequestToProject(ctx, id, 1)
	require.NoError(t, err)
	assert.False(t, added)

	_, err = in.AddRequestToProject(ctx, id, 99)
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = in.AddRequestToProject(ctx, 99, 1)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRecordExportRejectsUnknownRequest(t *testing.T) {
	in := New(newEngine(t), nil)
	ctx := context.Background()

	err := in.RecordServerExport(ctx, types.ExportRecord{ServerID: "gae", RequestID: 7})
	assert.ErrorIs(t, err, types.ErrNotFound)
	err = in.RecordDriveExport(ctx, types.DriveRecord{DriveFileID: "d", RequestID: 7})
	assert.ErrorIs(t, err, types.ErrNotFound)
	err = in.RecordServerExport(ctx, types.ExportRecord{RequestID: 7})
	assert.ErrorIs(t, err, types.ErrInvalidData)
}

func TestLookupByLegacyID(t *testing.T) {
	e := newEngine(t)
	in := New(e, nil)
	ctx := context.Background()

	r := request("http://a.com", "GET")
	r.LegacyID = 12
	p := project("api")
	p.LegacyID = 4
	_, err := in.CreateProjectWithRequests(ctx, p, []types.RequestRecord{r})
	require.NoError(t, err)

	reqs, err := in.RequestsByLegacyID(ctx, 12)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "http://a.com", reqs[0].URL)

	got, ok, err := in.ProjectByLegacyID(ctx, 4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "api", got.Name)

	_, ok, err = in.ProjectByLegacyID(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	docs, err := in.LookupByLegacyID(ctx, types.CollectionRequests, 12)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	_, err = in.LookupByLegacyID(ctx, types.CollectionStatuses, 1)
	assert.ErrorIs(t, err, types.ErrUnknownIndex)
}

func TestBatch(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	b := NewBatch(nil)
	first := project("api")
	first.LegacyID = 1
	assert.True(t, b.AddProject(first))
	dup := project("api copy")
	dup.LegacyID = 1
	assert.False(t, b.AddProject(dup))
	empty := project("empty")
	empty.LegacyID = 2
	assert.True(t, b.AddProject(empty))

	var res FlushResult
	require.NoError(t, e.Update(ctx, func(tx types.Tx) error {
		for i := 0; i < 2; i++ {
			key, err := records.Add(tx, types.CollectionRequests, request("http://a.com", "GET"))
			if err != nil {
				return err
			}
			id, err := records.ID(key)
			if err != nil {
				return err
			}
			assert.True(t, b.Attach(1, id))
			b.AddExport(types.ExportRecord{ServerID: "gae", RequestID: id, LegacyID: 30 + id})
		}
		assert.False(t, b.Attach(9, 1))
		var err error
		res, err = b.Flush(tx)
		return err
	}))
	assert.Equal(t, FlushResult{Projects: 2, Exports: 2}, res)

	projects := b.Projects()
	require.Len(t, projects, 2)
	assert.Equal(t, "api", projects[0].Name)
	assert.Equal(t, []int64{1, 2}, projects[0].RequestIDs)
	assert.Len(t, b.Exports(), 2)
	assert.Equal(t, 2, count(t, e, types.CollectionProjects))
	assert.Equal(t, 2, count(t, e, types.CollectionServerExports))
}

func TestBatchMergesStoredProject(t *testing.T) {
	e := newEngine(t)
	in := New(e, nil)
	ctx := context.Background()

	stored := project("api")
	stored.LegacyID = 1
	id, err := in.CreateProjectWithRequests(ctx, stored, []types.RequestRecord{request("http://a.com", "GET")})
	require.NoError(t, err)

	b := NewBatch(nil)
	require.True(t, b.AddProject(stored))
	var res FlushResult
	require.NoError(t, e.Update(ctx, func(tx types.Tx) error {
		key, err := records.Add(tx, types.CollectionRequests, request("http://a.com/2", "GET"))
		if err != nil {
			return err
		}
		rid, err := records.ID(key)
		if err != nil {
			return err
		}
		b.Attach(1, rid)
		res, err = b.Flush(tx)
		return err
	}))
	assert.Equal(t, 1, res.Merged)

	p, _ := getProject(t, e, id)
	assert.Equal(t, []int64{1, 2}, p.RequestIDs)
	assert.Equal(t, 1, count(t, e, types.CollectionProjects))
}

func TestBatchFlushRejectsDanglingRequest(t *testing.T) {
	e := newEngine(t)
	b := NewBatch(nil)
	p := project("api")
	p.LegacyID = 1
	b.AddProject(p)
	b.Attach(1, 77)

	err := e.Update(context.Background(), func(tx types.Tx) error {
		_, err := b.Flush(tx)
		return err
	})
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, 0, count(t, e, types.CollectionProjects))
}

func TestDeleteRequestUnlinks(t *testing.T) {
	e := newEngine(t)
	in := New(e, nil)
	ctx := context.Background()

	id, err := in.CreateProjectWithRequests(ctx, project("api"), []types.RequestRecord{
		request("http://a.com/1", "GET"),
		request("http://a.com/2", "GET"),
	})
	require.NoError(t, err)
	require.NoError(t, in.RecordDriveExport(ctx, types.DriveRecord{DriveFileID: "d", RequestID: 1}))

	ok, err := in.DeleteRequest(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	p, _ := getProject(t, e, id)
	assert.Equal(t, []int64{2}, p.RequestIDs)
	assert.Equal(t, 0, count(t, e, types.CollectionDriveExports))

	ok, err = in.DeleteRequest(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
