package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/arcstore/internal/pebble"
	"github.com/mesh-intelligence/arcstore/internal/schema"
	"github.com/mesh-intelligence/arcstore/internal/sqlite"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

var engines = []struct {
	name string
	open func(t *testing.T) types.Engine
}{
	{"sqlite", func(t *testing.T) types.Engine {
		e, err := sqlite.Open(sqlite.MemoryPath, schema.Define())
		require.NoError(t, err)
		return e
	}},
	{"pebble", func(t *testing.T) types.Engine {
		e, err := pebble.Open("mem", schema.Define(), pebble.InMemory())
		require.NoError(t, err)
		return e
	}},
}

// eachEngine runs fn once per storage engine with a fresh Store.
func eachEngine(t *testing.T, fn func(t *testing.T, s *Store)) {
	for _, eng := range engines {
		t.Run(eng.name, func(t *testing.T) {
			e := eng.open(t)
			t.Cleanup(func() { e.Close() })
			s, err := New(e, schema.Define(), nil)
			require.NoError(t, err)
			fn(t, s)
		})
	}
}

func saved(url, method string) types.RequestRecord {
	return types.RequestRecord{URL: url, Method: method, Type: types.RequestTypeSaved}
}

func TestNewRequiresIndexes(t *testing.T) {
	e, err := sqlite.Open(sqlite.MemoryPath, schema.Define())
	require.NoError(t, err)
	defer e.Close()

	desc := schema.Define()
	for i, c := range desc.Collections {
		if c.Name == types.CollectionRequests {
			desc.Collections[i] = schema.MustParse(types.CollectionRequests, "++id,url,method")
		}
	}
	_, err = New(e, desc, nil)
	assert.ErrorIs(t, err, types.ErrUnknownIndex)
}

func TestRequests(t *testing.T) {
	eachEngine(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		id, err := s.PutRequest(ctx, saved("http://a.com", "GET"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), id)

		ids, err := s.AddRequests(ctx, []types.RequestRecord{
			saved("http://a.com", "POST"),
			{URL: "http://b.com", Method: "GET", Type: types.RequestTypeHistory, LegacyID: 4},
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 3}, ids)

		r, ok, err := s.GetRequest(ctx, 2)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "POST", r.Method)

		r.Method = "PUT"
		_, err = s.PutRequest(ctx, r)
		require.NoError(t, err)

		_, ok, err = s.GetRequest(ctx, 42)
		require.NoError(t, err)
		assert.False(t, ok)

		byURL, err := s.RequestsByURL(ctx, "http://a.com")
		require.NoError(t, err)
		assert.Len(t, byURL, 2)

		byPair, err := s.RequestsByURLMethod(ctx, "http://a.com", "PUT")
		require.NoError(t, err)
		require.Len(t, byPair, 1)
		assert.Equal(t, int64(2), byPair[0].ID)

		none, err := s.RequestsByURLMethod(ctx, "http://a.com", "POST")
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)

		legacy, err := s.RequestsByLegacyID(ctx, 4)
		require.NoError(t, err)
		assert.Len(t, legacy, 1)

		history, err := s.ListRequests(ctx, types.RequestTypeHistory)
		require.NoError(t, err)
		assert.Len(t, history, 1)
		all, err := s.ListRequests(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		ok, err = s.DeleteRequest(ctx, 3)
		require.NoError(t, err)
		assert.True(t, ok)
		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats[types.CollectionRequests])
	})
}

func TestAddRequestsIsAtomic(t *testing.T) {
	eachEngine(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		_, err := s.AddRequests(ctx, []types.RequestRecord{saved("http://a.com", "GET"), {URL: "http://b.com"}})
		assert.ErrorIs(t, err, types.ErrInvalidData)

		dup := saved("http://a.com", "GET")
		dup.ID = 7
		_, err = s.AddRequests(ctx, []types.RequestRecord{dup, dup})
		assert.ErrorIs(t, err, types.ErrConstraint)

		all, err := s.ListRequests(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestProjects(t *testing.T) {
	eachEngine(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		created := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

		rid, err := s.PutRequest(ctx, saved("http://a.com", "GET"))
		require.NoError(t, err)

		pid, err := s.AddProject(ctx, "api", created, rid)
		require.NoError(t, err)
		_, err = s.AddProject(ctx, "dangling", created, 99)
		assert.ErrorIs(t, err, types.ErrNotFound)

		require.NoError(t, s.RenameProject(ctx, pid, "api v2"))
		assert.ErrorIs(t, s.RenameProject(ctx, 99, "x"), types.ErrNotFound)
		assert.ErrorIs(t, s.RenameProject(ctx, pid, " "), types.ErrInvalidData)

		p, ok, err := s.GetProject(ctx, pid)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "api v2", p.Name)
		assert.True(t, created.Equal(p.CreatedAt))

		members, err := s.ProjectRequests(ctx, pid)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, rid, members[0].ID)
		missing, err := s.ProjectRequests(ctx, 99)
		require.NoError(t, err)
		assert.NotNil(t, missing)
		assert.Empty(t, missing)

		legacyID, err := s.CreateProjectWithRequests(ctx,
			types.ProjectRecord{Name: "old", LegacyID: 5, CreatedAt: created},
			[]types.RequestRecord{saved("http://b.com", "GET")})
		require.NoError(t, err)
		renamed := created.Add(48 * time.Hour)
		require.NoError(t, s.RenameProjectByLegacyID(ctx, 5, "renamed", renamed))
		lp, ok, err := s.ProjectByLegacyID(ctx, 5)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, legacyID, lp.ID)
		assert.Equal(t, "renamed", lp.Name)
		assert.True(t, renamed.Equal(lp.CreatedAt))

		before := time.Now().UTC().Add(-time.Second)
		require.NoError(t, s.RenameProjectByLegacyID(ctx, 5, "renamed again", time.Time{}))
		lp, _, err = s.ProjectByLegacyID(ctx, 5)
		require.NoError(t, err)
		assert.True(t, lp.CreatedAt.After(before), "zero time stamps now")
		assert.ErrorIs(t, s.RenameProjectByLegacyID(ctx, 6, "x", time.Time{}), types.ErrNotFound)

		list, err := s.ListProjects(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 2)

		ok, err = s.DeleteProject(ctx, pid)
		require.NoError(t, err)
		assert.True(t, ok)
		_, ok, err = s.GetRequest(ctx, rid)
		require.NoError(t, err)
		assert.True(t, ok, "plain delete keeps requests")

		n, err := s.DeleteProjectCascade(ctx, legacyID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		all, err := s.ListRequests(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestDeleteProjectVariants(t *testing.T) {
	tests := []struct {
		name         string
		del          func(ctx context.Context, s *Store, id, legacyID int64) (bool, error)
		wantDeleted  bool
		wantRequests int
	}{
		{
			name: "by id",
			del: func(ctx context.Context, s *Store, id, _ int64) (bool, error) {
				return s.DeleteProject(ctx, id)
			},
			wantDeleted:  true,
			wantRequests: 2,
		},
		{
			name: "by legacy id",
			del: func(ctx context.Context, s *Store, _, legacyID int64) (bool, error) {
				return s.DeleteProjectByLegacyID(ctx, legacyID)
			},
			wantDeleted:  true,
			wantRequests: 2,
		},
		{
			name: "unknown legacy id",
			del: func(ctx context.Context, s *Store, _, legacyID int64) (bool, error) {
				return s.DeleteProjectByLegacyID(ctx, legacyID+1)
			},
			wantRequests: 2,
		},
		{
			name: "cascade by legacy id",
			del: func(ctx context.Context, s *Store, _, legacyID int64) (bool, error) {
				n, err := s.DeleteProjectCascadeByLegacyID(ctx, legacyID)
				return n > 0, err
			},
			wantDeleted:  true,
			wantRequests: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eachEngine(t, func(t *testing.T, s *Store) {
				ctx := context.Background()
				id, err := s.CreateProjectWithRequests(ctx,
					types.ProjectRecord{Name: "old", LegacyID: 7, CreatedAt: time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)},
					[]types.RequestRecord{saved("http://a.com", "GET"), saved("http://b.com", "POST")})
				require.NoError(t, err)

				deleted, err := tt.del(ctx, s, id, 7)
				require.NoError(t, err)
				assert.Equal(t, tt.wantDeleted, deleted)

				_, ok, err := s.GetProject(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, !tt.wantDeleted, ok)

				all, err := s.ListRequests(ctx, "")
				require.NoError(t, err)
				assert.Len(t, all, tt.wantRequests)
			})
		})
	}
}

func TestHistorySearch(t *testing.T) {
	eachEngine(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		for _, u := range []string{"http://z.com", "http://a.com/b", "HTTP://A.com", "https://a.com"} {
			require.NoError(t, s.PutURLHistory(ctx, u, at))
		}
		require.NoError(t, s.PutURLHistory(ctx, "http://z.com", at.Add(time.Hour)))
		assert.ErrorIs(t, s.PutURLHistory(ctx, "", at), types.ErrInvalidData)

		got, err := s.SearchURLHistory(ctx, "http://a")
		require.NoError(t, err)
		urls := make([]string, 0, len(got))
		for _, h := range got {
			urls = append(urls, h.URL)
		}
		assert.Equal(t, []string{"HTTP://A.com", "http://a.com/b"}, urls)

		z, err := s.SearchURLHistory(ctx, "http://z")
		require.NoError(t, err)
		require.Len(t, z, 1)
		assert.True(t, at.Add(time.Hour).Equal(z[0].LastAccess))

		require.NoError(t, s.PutSocketHistory(ctx, "ws://echo.example", at))
		sockets, err := s.SearchSocketHistory(ctx, "WS://")
		require.NoError(t, err)
		assert.Len(t, sockets, 1)

		empty, err := s.SearchSocketHistory(ctx, "wss://")
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)
	})
}

func TestReferenceData(t *testing.T) {
	eachEngine(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		require.NoError(t, s.engine.Update(ctx, func(tx types.Tx) error {
			for _, doc := range []string{
				`{"code":404,"label":"Not Found"}`,
				`{"code":200,"label":"OK"}`,
			} {
				if _, err := tx.Put(types.CollectionStatuses, []byte(doc)); err != nil {
					return err
				}
			}
			for _, doc := range []string{
				`{"name":"Content-Type","kind":"request"}`,
				`{"name":"Content-Type","kind":"response"}`,
				`{"name":"content-length","kind":"response"}`,
				`{"name":"Accept","kind":"request"}`,
			} {
				if _, err := tx.Put(types.CollectionHeaders, []byte(doc)); err != nil {
					return err
				}
			}
			return nil
		}))

		st, ok, err := s.GetStatus(ctx, 404)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Not Found", st.Label)
		_, ok, err = s.GetStatus(ctx, 418)
		require.NoError(t, err)
		assert.False(t, ok)

		statuses, err := s.ListStatuses(ctx)
		require.NoError(t, err)
		require.Len(t, statuses, 2)
		assert.Equal(t, 200, statuses[0].Code)

		h, ok, err := s.GetHeader(ctx, "Content-Type", types.HeaderKindResponse)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, types.HeaderKindResponse, h.Kind)

		found, err := s.SearchHeaders(ctx, "CONTENT", types.HeaderKindResponse)
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "Content-Type", found[0].Name)
		assert.Equal(t, "content-length", found[1].Name)

		both, err := s.SearchHeaders(ctx, "content-t", "")
		require.NoError(t, err)
		assert.Len(t, both, 2)
	})
}

func TestExports(t *testing.T) {
	eachEngine(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		rid, err := s.PutRequest(ctx, saved("http://a.com", "GET"))
		require.NoError(t, err)

		require.NoError(t, s.RecordServerExport(ctx, types.ExportRecord{ServerID: "agx", RequestID: rid}))
		require.NoError(t, s.RecordServerExport(ctx, types.ExportRecord{ServerID: "agx", RequestID: rid}))
		require.NoError(t, s.RecordDriveExport(ctx, types.DriveRecord{DriveFileID: "f1", RequestID: rid}))
		assert.ErrorIs(t, s.RecordDriveExport(ctx, types.DriveRecord{DriveFileID: "f2", RequestID: 9}), types.ErrNotFound)

		server, err := s.ServerExportsForRequest(ctx, rid)
		require.NoError(t, err)
		assert.Equal(t, []types.ExportRecord{{ServerID: "agx", RequestID: rid}}, server)

		drive, err := s.DriveExportsForRequest(ctx, rid)
		require.NoError(t, err)
		assert.Equal(t, []types.DriveRecord{{DriveFileID: "f1", RequestID: rid}}, drive)
	})
}
