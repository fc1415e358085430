// Package store is the query and CRUD surface over the collections. Single
// lookups return (value, found, error); list queries return an empty slice
// when nothing matches.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/arcstore/internal/records"
	"github.com/mesh-intelligence/arcstore/internal/relations"
	"github.com/mesh-intelligence/arcstore/internal/schema"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

// requiredIndexes are the indexes queried by Store. New fails when the
// descriptor lacks one of them.
var requiredIndexes = []struct{ collection, index string }{
	{types.CollectionRequests, schema.IndexURL},
	{types.CollectionRequests, schema.IndexURLMethod},
	{types.CollectionRequests, schema.IndexLegacyID},
	{types.CollectionProjects, schema.IndexRequestIDs},
	{types.CollectionProjects, schema.IndexLegacyID},
	{types.CollectionHeaders, schema.IndexName},
	{types.CollectionServerExports, schema.IndexRequestID},
	{types.CollectionDriveExports, schema.IndexRequestID},
}

// Store is the façade used by the client and the CLI.
type Store struct {
	engine types.Engine
	rel    *relations.Integrity
	log    *zap.Logger
}

// New returns a Store over engine after checking that desc declares every
// index the Store queries.
func New(engine types.Engine, desc schema.Descriptor, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	for _, r := range requiredIndexes {
		if err := desc.RequireIndex(r.collection, r.index); err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
	}
	return &Store{engine: engine, rel: relations.New(engine, log), log: log}, nil
}

func view[T any](ctx context.Context, s *Store, fn func(tx types.Tx) (T, error)) (T, error) {
	var out T
	err := s.engine.View(ctx, func(tx types.Tx) error {
		var err error
		out, err = fn(tx)
		return err
	})
	return out, err
}

func update[T any](ctx context.Context, s *Store, fn func(tx types.Tx) (T, error)) (T, error) {
	var out T
	err := s.engine.Update(ctx, func(tx types.Tx) error {
		var err error
		out, err = fn(tx)
		return err
	})
	return out, err
}

func get[T any](ctx context.Context, s *Store, collection string, key types.Key) (T, bool, error) {
	var (
		out T
		ok  bool
	)
	err := s.engine.View(ctx, func(tx types.Tx) error {
		var err error
		out, ok, err = records.Get[T](tx, collection, key)
		return err
	})
	return out, ok, err
}

func query[T any](ctx context.Context, s *Store, collection string, q types.Query) ([]T, error) {
	return view(ctx, s, func(tx types.Tx) ([]T, error) {
		return records.Query[T](tx, collection, q)
	})
}

// Stats returns the number of documents in every collection.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	return view(ctx, s, func(tx types.Tx) (map[string]int, error) {
		out := make(map[string]int, len(types.Collections))
		for _, c := range types.Collections {
			n, err := tx.Count(c)
			if err != nil {
				return nil, err
			}
			out[c] = n
		}
		return out, nil
	})
}

// Requests

// GetRequest returns the request with id.
func (s *Store) GetRequest(ctx context.Context, id int64) (types.RequestRecord, bool, error) {
	return get[types.RequestRecord](ctx, s, types.CollectionRequests, types.IntKey(id))
}

// PutRequest inserts r, or replaces the stored request when r.ID is set, and
// returns its id.
func (s *Store) PutRequest(ctx context.Context, r types.RequestRecord) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	return update(ctx, s, func(tx types.Tx) (int64, error) {
		key, err := records.Put(tx, types.CollectionRequests, r)
		if err != nil {
			return 0, err
		}
		return records.ID(key)
	})
}

// AddRequests inserts every request in one transaction and returns the new
// ids in input order. The first failure aborts the import.
func (s *Store) AddRequests(ctx context.Context, rs []types.RequestRecord) ([]int64, error) {
	for i, r := range rs {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
	}
	ids, err := update(ctx, s, func(tx types.Tx) ([]int64, error) {
		ids := make([]int64, 0, len(rs))
		for i, r := range rs {
			key, err := records.Add(tx, types.CollectionRequests, r)
			if err != nil {
				return nil, fmt.Errorf("request %d: %w", i, err)
			}
			id, err := records.ID(key)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	})
	if err != nil {
		return nil, fmt.Errorf("import requests: %w", err)
	}
	s.log.Info("requests_imported", zap.Int("count", len(ids)))
	return ids, nil
}

// DeleteRequest removes the request with id along with its exports and
// project references.
func (s *Store) DeleteRequest(ctx context.Context, id int64) (bool, error) {
	return s.rel.DeleteRequest(ctx, id)
}

// ListRequests returns requests of kind, or every request when kind is
// empty, ordered by id.
func (s *Store) ListRequests(ctx context.Context, kind string) ([]types.RequestRecord, error) {
	all, err := query[types.RequestRecord](ctx, s, types.CollectionRequests, types.Query{})
	if err != nil || kind == "" {
		return all, err
	}
	out := make([]types.RequestRecord, 0, len(all))
	for _, r := range all {
		if r.Type == kind {
			out = append(out, r)
		}
	}
	return out, nil
}

// RequestsByURL returns the requests sent to url.
func (s *Store) RequestsByURL(ctx context.Context, url string) ([]types.RequestRecord, error) {
	return query[types.RequestRecord](ctx, s, types.CollectionRequests,
		types.Query{Index: schema.IndexURL, Equals: types.StringKey(url)})
}

// RequestsByURLMethod returns the requests sent to url with method.
func (s *Store) RequestsByURLMethod(ctx context.Context, url, method string) ([]types.RequestRecord, error) {
	return query[types.RequestRecord](ctx, s, types.CollectionRequests,
		types.Query{Index: schema.IndexURLMethod, Equals: types.Key{url, method}})
}

// RequestsByLegacyID returns the requests migrated from legacy row id.
func (s *Store) RequestsByLegacyID(ctx context.Context, legacyID int64) ([]types.RequestRecord, error) {
	return s.rel.RequestsByLegacyID(ctx, legacyID)
}

// Projects

// GetProject returns the project with id.
func (s *Store) GetProject(ctx context.Context, id int64) (types.ProjectRecord, bool, error) {
	return get[types.ProjectRecord](ctx, s, types.CollectionProjects, types.IntKey(id))
}

// ListProjects returns every project ordered by id.
func (s *Store) ListProjects(ctx context.Context) ([]types.ProjectRecord, error) {
	return query[types.ProjectRecord](ctx, s, types.CollectionProjects, types.Query{})
}

// AddProject creates a project. A non-zero requestID must name an existing
// request and becomes the project's first member.
func (s *Store) AddProject(ctx context.Context, name string, created time.Time, requestID int64) (int64, error) {
	p := types.ProjectRecord{Name: name, CreatedAt: created, RequestIDs: []int64{}}
	if requestID != 0 {
		p.AddRequest(requestID)
	}
	return s.rel.CreateProjectWithRequests(ctx, p, nil)
}

// RenameProject changes the name of the project with id.
func (s *Store) RenameProject(ctx context.Context, id int64, name string) error {
	return s.renameProject(ctx, name, time.Time{}, func(tx types.Tx) (types.ProjectRecord, bool, error) {
		return records.Get[types.ProjectRecord](tx, types.CollectionProjects, types.IntKey(id))
	}, id)
}

// RenameProjectByLegacyID changes the name of the project migrated from
// legacy row legacyID and stamps it with at. A zero at means now.
func (s *Store) RenameProjectByLegacyID(ctx context.Context, legacyID int64, name string, at time.Time) error {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return s.renameProject(ctx, name, at, projectByLegacyID(legacyID), fmt.Sprintf("legacy %d", legacyID))
}

// projectByLegacyID finds the project migrated from legacy row legacyID.
func projectByLegacyID(legacyID int64) func(types.Tx) (types.ProjectRecord, bool, error) {
	return func(tx types.Tx) (types.ProjectRecord, bool, error) {
		list, err := records.Query[types.ProjectRecord](tx, types.CollectionProjects,
			types.Query{Index: schema.IndexLegacyID, Equals: types.IntKey(legacyID), Limit: 1})
		if err != nil || len(list) == 0 {
			return types.ProjectRecord{}, false, err
		}
		return list[0], true, nil
	}
}

// renameProject sets the name of the project find returns. A non-zero at
// replaces its time as well.
func (s *Store) renameProject(ctx context.Context, name string, at time.Time, find func(types.Tx) (types.ProjectRecord, bool, error), key any) error {
	if strings.TrimSpace(name) == "" {
		return &types.ValidationError{Entity: "project", Field: "name", Reason: "is required"}
	}
	err := s.engine.Update(ctx, func(tx types.Tx) error {
		p, ok, err := find(tx)
		if err != nil {
			return err
		}
		if !ok {
			return &types.NotFoundError{Collection: types.CollectionProjects, Key: key}
		}
		p.Name = name
		if !at.IsZero() {
			p.CreatedAt = at
		}
		_, err = records.Put(tx, types.CollectionProjects, p)
		return err
	})
	if err != nil {
		return fmt.Errorf("rename project: %w", err)
	}
	return nil
}

// ProjectByLegacyID returns the project migrated from legacy row legacyID.
func (s *Store) ProjectByLegacyID(ctx context.Context, legacyID int64) (types.ProjectRecord, bool, error) {
	return s.rel.ProjectByLegacyID(ctx, legacyID)
}

// DeleteProject removes the project record only; its requests stay.
func (s *Store) DeleteProject(ctx context.Context, id int64) (bool, error) {
	return update(ctx, s, func(tx types.Tx) (bool, error) {
		return tx.Delete(types.CollectionProjects, types.IntKey(id))
	})
}

// DeleteProjectByLegacyID removes the project migrated from legacy row
// legacyID. Its requests are kept.
func (s *Store) DeleteProjectByLegacyID(ctx context.Context, legacyID int64) (bool, error) {
	return update(ctx, s, func(tx types.Tx) (bool, error) {
		p, ok, err := projectByLegacyID(legacyID)(tx)
		if err != nil || !ok {
			return false, err
		}
		return tx.Delete(types.CollectionProjects, types.IntKey(p.ID))
	})
}

// DeleteProjectCascade removes the project and everything it references.
func (s *Store) DeleteProjectCascade(ctx context.Context, id int64) (int, error) {
	return s.rel.DeleteProjectCascade(ctx, id)
}

// DeleteProjectCascadeByLegacyID is DeleteProjectCascade for the project
// migrated from legacy row legacyID.
func (s *Store) DeleteProjectCascadeByLegacyID(ctx context.Context, legacyID int64) (int, error) {
	return s.rel.DeleteProjectCascadeByLegacyID(ctx, legacyID)
}

// AddRequestToProject appends a request to a project. It reports false when
// the project already held it.
func (s *Store) AddRequestToProject(ctx context.Context, projectID, requestID int64) (bool, error) {
	return s.rel.AddRequestToProject(ctx, projectID, requestID)
}

// ProjectRequests returns the requests of a project in membership order.
// A missing project has no requests.
func (s *Store) ProjectRequests(ctx context.Context, projectID int64) ([]types.RequestRecord, error) {
	return view(ctx, s, func(tx types.Tx) ([]types.RequestRecord, error) {
		p, ok, err := records.Get[types.ProjectRecord](tx, types.CollectionProjects, types.IntKey(projectID))
		if err != nil {
			return nil, err
		}
		if !ok {
			return []types.RequestRecord{}, nil
		}
		out := make([]types.RequestRecord, 0, len(p.RequestIDs))
		for _, id := range p.RequestIDs {
			r, ok, err := records.Get[types.RequestRecord](tx, types.CollectionRequests, types.IntKey(id))
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, r)
			}
		}
		return out, nil
	})
}

// CreateProjectWithRequests stores requests and links them to project in
// one transaction.
func (s *Store) CreateProjectWithRequests(ctx context.Context, project types.ProjectRecord, requests []types.RequestRecord) (int64, error) {
	return s.rel.CreateProjectWithRequests(ctx, project, requests)
}

// History

// PutURLHistory records that url was used at t.
func (s *Store) PutURLHistory(ctx context.Context, url string, t time.Time) error {
	return s.put(ctx, types.CollectionURLHistory, types.URLHistoryRecord{URL: url, LastAccess: t})
}

// SearchURLHistory returns the URLs starting with prefix, ignoring case,
// ordered by URL.
func (s *Store) SearchURLHistory(ctx context.Context, prefix string) ([]types.URLHistoryRecord, error) {
	return query[types.URLHistoryRecord](ctx, s, types.CollectionURLHistory, types.Query{Prefix: prefix, FoldCase: true})
}

// PutSocketHistory records that a socket url was used at t.
func (s *Store) PutSocketHistory(ctx context.Context, url string, t time.Time) error {
	return s.put(ctx, types.CollectionSocketHistory, types.SocketHistoryRecord{URL: url, LastAccess: t})
}

// SearchSocketHistory returns the socket URLs starting with prefix,
// ignoring case, ordered by URL.
func (s *Store) SearchSocketHistory(ctx context.Context, prefix string) ([]types.SocketHistoryRecord, error) {
	return query[types.SocketHistoryRecord](ctx, s, types.CollectionSocketHistory, types.Query{Prefix: prefix, FoldCase: true})
}

type validator interface{ Validate() error }

func (s *Store) put(ctx context.Context, collection string, v validator) error {
	if err := v.Validate(); err != nil {
		return err
	}
	return s.engine.Update(ctx, func(tx types.Tx) error {
		_, err := records.Put(tx, collection, v)
		return err
	})
}

// Reference data

// GetStatus returns the description of a status code.
func (s *Store) GetStatus(ctx context.Context, code int) (types.HTTPStatusRecord, bool, error) {
	return get[types.HTTPStatusRecord](ctx, s, types.CollectionStatuses, types.IntKey(int64(code)))
}

// ListStatuses returns every status ordered by code.
func (s *Store) ListStatuses(ctx context.Context) ([]types.HTTPStatusRecord, error) {
	return query[types.HTTPStatusRecord](ctx, s, types.CollectionStatuses, types.Query{})
}

// GetHeader returns the header named name of kind.
func (s *Store) GetHeader(ctx context.Context, name, kind string) (types.HTTPHeaderRecord, bool, error) {
	return get[types.HTTPHeaderRecord](ctx, s, types.CollectionHeaders, types.Key{name, kind})
}

// SearchHeaders returns headers of kind whose name starts with prefix,
// ignoring case, ordered by name. An empty kind matches both kinds.
func (s *Store) SearchHeaders(ctx context.Context, prefix, kind string) ([]types.HTTPHeaderRecord, error) {
	all, err := query[types.HTTPHeaderRecord](ctx, s, types.CollectionHeaders,
		types.Query{Index: schema.IndexName, Prefix: prefix, FoldCase: true})
	if err != nil || kind == "" {
		return all, err
	}
	out := make([]types.HTTPHeaderRecord, 0, len(all))
	for _, h := range all {
		if h.Kind == kind {
			out = append(out, h)
		}
	}
	return out, nil
}

// Exports

// RecordServerExport links a request to its sharing service id.
func (s *Store) RecordServerExport(ctx context.Context, rec types.ExportRecord) error {
	return s.rel.RecordServerExport(ctx, rec)
}

// ServerExportsForRequest returns the sharing service ids of a request.
func (s *Store) ServerExportsForRequest(ctx context.Context, requestID int64) ([]types.ExportRecord, error) {
	return query[types.ExportRecord](ctx, s, types.CollectionServerExports,
		types.Query{Index: schema.IndexRequestID, Equals: types.IntKey(requestID)})
}

// RecordDriveExport links a request to a drive file.
func (s *Store) RecordDriveExport(ctx context.Context, rec types.DriveRecord) error {
	return s.rel.RecordDriveExport(ctx, rec)
}

// DriveExportsForRequest returns the drive files of a request.
func (s *Store) DriveExportsForRequest(ctx context.Context, requestID int64) ([]types.DriveRecord, error) {
	return query[types.DriveRecord](ctx, s, types.CollectionDriveExports,
		types.Query{Index: schema.IndexRequestID, Equals: types.IntKey(requestID)})
}
