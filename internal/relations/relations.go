// Package relations keeps the references between projects, requests, and
// export records consistent. Every multi-entity change runs in a single
// engine transaction.
package relations

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/arcstore/internal/records"
	"github.com/mesh-intelligence/arcstore/internal/schema"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

// Integrity performs multi-entity mutations against an engine.
type Integrity struct {
	engine types.Engine
	log    *zap.Logger
}

// New returns an Integrity layer over engine.
func New(engine types.Engine, log *zap.Logger) *Integrity {
	if log == nil {
		log = zap.NewNop()
	}
	return &Integrity{engine: engine, log: log}
}

// CreateProjectWithRequests inserts requests and adds their new ids to
// project, all in one transaction. When project names an existing project,
// by id or else by legacy id, that project is updated in place. The first
// failing request aborts the whole operation.
func (in *Integrity) CreateProjectWithRequests(ctx context.Context, project types.ProjectRecord, requests []types.RequestRecord) (int64, error) {
	if err := project.Validate(); err != nil {
		return 0, err
	}
	for i, r := range requests {
		if err := r.Validate(); err != nil {
			return 0, fmt.Errorf("request %d: %w", i, err)
		}
	}

	var id int64
	err := in.engine.Update(ctx, func(tx types.Tx) error {
		ids, err := in.insertRequests(tx, requests)
		if err != nil {
			return err
		}

		target, found, err := in.existingProject(tx, project)
		if err != nil {
			return err
		}
		if !found {
			target = project
			target.RequestIDs = nil
			for _, rid := range project.RequestIDs {
				target.AddRequest(rid)
			}
		} else {
			for _, rid := range project.RequestIDs {
				target.AddRequest(rid)
			}
			if project.Name != "" {
				target.Name = project.Name
			}
		}
		for _, rid := range ids {
			target.AddRequest(rid)
		}
		if target.RequestIDs == nil {
			target.RequestIDs = []int64{}
		}
		if err := requireRequests(tx, target.RequestIDs); err != nil {
			return err
		}

		if found {
			_, err = records.Put(tx, types.CollectionProjects, target)
			id = target.ID
			return err
		}
		key, err := records.Add(tx, types.CollectionProjects, target)
		if err != nil {
			return err
		}
		id, err = records.ID(key)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("create project with requests: %w", err)
	}
	in.log.Info("project_saved", zap.Int64("project_id", id), zap.Int("requests", len(requests)))
	return id, nil
}

func (in *Integrity) insertRequests(tx types.Tx, requests []types.RequestRecord) ([]int64, error) {
	ids := make([]int64, 0, len(requests))
	for i, r := range requests {
		key, err := records.Add(tx, types.CollectionRequests, r)
		if err == nil {
			var id int64
			id, err = records.ID(key)
			ids = append(ids, id)
		}
		if err != nil {
			in.log.Error("request_insert_failed",
				zap.Int("index", i),
				zap.String("url", r.URL),
				zap.String("method", r.Method),
				zap.Error(err))
			return nil, fmt.Errorf("insert request %d: %w", i, err)
		}
	}
	return ids, nil
}

func (in *Integrity) existingProject(tx types.Tx, p types.ProjectRecord) (types.ProjectRecord, bool, error) {
	if p.ID > 0 {
		existing, ok, err := records.Get[types.ProjectRecord](tx, types.CollectionProjects, types.IntKey(p.ID))
		if err != nil || ok {
			return existing, ok, err
		}
	}
	if p.LegacyID != 0 {
		return projectByLegacyID(tx, p.LegacyID)
	}
	return types.ProjectRecord{}, false, nil
}

// DeleteProjectCascade removes a project, every request it references, and
// the export records of those requests. It returns the number of requests
// removed.
func (in *Integrity) DeleteProjectCascade(ctx context.Context, projectID int64) (int, error) {
	var n int
	err := in.engine.Update(ctx, func(tx types.Tx) error {
		p, ok, err := records.Get[types.ProjectRecord](tx, types.CollectionProjects, types.IntKey(projectID))
		if err != nil {
			return err
		}
		if !ok {
			return &types.NotFoundError{Collection: types.CollectionProjects, Key: projectID}
		}
		n, err = deleteCascade(tx, p)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete project %d: %w", projectID, err)
	}
	in.log.Info("project_deleted", zap.Int64("project_id", projectID), zap.Int("requests", n))
	return n, nil
}

// DeleteProjectCascadeByLegacyID is DeleteProjectCascade for a project
// identified by its legacy id.
func (in *Integrity) DeleteProjectCascadeByLegacyID(ctx context.Context, legacyID int64) (int, error) {
	var n int
	err := in.engine.Update(ctx, func(tx types.Tx) error {
		p, ok, err := projectByLegacyID(tx, legacyID)
		if err != nil {
			return err
		}
		if !ok {
			return &types.NotFoundError{Collection: types.CollectionProjects, Key: fmt.Sprintf("legacy %d", legacyID)}
		}
		n, err = deleteCascade(tx, p)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete legacy project %d: %w", legacyID, err)
	}
	in.log.Info("project_deleted", zap.Int64("legacy_id", legacyID), zap.Int("requests", n))
	return n, nil
}

func deleteCascade(tx types.Tx, p types.ProjectRecord) (int, error) {
	removed := make(map[int64]bool, len(p.RequestIDs))
	n := 0
	for _, rid := range p.RequestIDs {
		ok, err := tx.Delete(types.CollectionRequests, types.IntKey(rid))
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
		removed[rid] = true
		if err := deleteExports(tx, rid); err != nil {
			return 0, err
		}
	}
	if _, err := tx.Delete(types.CollectionProjects, types.IntKey(p.ID)); err != nil {
		return 0, err
	}
	// Other projects may share the removed requests.
	if err := unlinkRequests(tx, removed); err != nil {
		return 0, err
	}
	return n, nil
}

func unlinkRequests(tx types.Tx, removed map[int64]bool) error {
	for rid := range removed {
		others, err := records.Query[types.ProjectRecord](tx, types.CollectionProjects,
			types.Query{Index: schema.IndexRequestIDs, Equals: types.IntKey(rid)})
		if err != nil {
			return err
		}
		for _, o := range others {
			kept := make([]int64, 0, len(o.RequestIDs))
			for _, id := range o.RequestIDs {
				if !removed[id] {
					kept = append(kept, id)
				}
			}
			o.RequestIDs = kept
			if _, err := records.Put(tx, types.CollectionProjects, o); err != nil {
				return err
			}
		}
	}
	return nil
}

// DeleteRequest removes a request, its export records, and every project
// reference to it. It reports whether the request existed.
func (in *Integrity) DeleteRequest(ctx context.Context, requestID int64) (bool, error) {
	var ok bool
	err := in.engine.Update(ctx, func(tx types.Tx) error {
		var err error
		if ok, err = tx.Delete(types.CollectionRequests, types.IntKey(requestID)); err != nil || !ok {
			return err
		}
		if err := deleteExports(tx, requestID); err != nil {
			return err
		}
		return unlinkRequests(tx, map[int64]bool{requestID: true})
	})
	if err != nil {
		return false, fmt.Errorf("delete request %d: %w", requestID, err)
	}
	return ok, nil
}

func deleteExports(tx types.Tx, requestID int64) error {
	q := types.Query{Index: schema.IndexRequestID, Equals: types.IntKey(requestID)}
	server, err := records.Query[types.ExportRecord](tx, types.CollectionServerExports, q)
	if err != nil {
		return err
	}
	for _, e := range server {
		if _, err := tx.Delete(types.CollectionServerExports, types.Key{e.ServerID, e.RequestID}); err != nil {
			return err
		}
	}
	drive, err := records.Query[types.DriveRecord](tx, types.CollectionDriveExports, q)
	if err != nil {
		return err
	}
	for _, d := range drive {
		if _, err := tx.Delete(types.CollectionDriveExports, types.Key{d.DriveFileID, d.RequestID}); err != nil {
			return err
		}
	}
	return nil
}

// AddRequestToProject appends requestID to the project. Both must exist. It
// reports false when the project already referenced the request.
func (in *Integrity) AddRequestToProject(ctx context.Context, projectID, requestID int64) (bool, error) {
	var added bool
	err := in.engine.Update(ctx, func(tx types.Tx) error {
		p, ok, err := records.Get[types.ProjectRecord](tx, types.CollectionProjects, types.IntKey(projectID))
		if err != nil {
			return err
		}
		if !ok {
			return &types.NotFoundError{Collection: types.CollectionProjects, Key: projectID}
		}
		if err := requireRequests(tx, []int64{requestID}); err != nil {
			return err
		}
		if added = p.AddRequest(requestID); !added {
			return nil
		}
		_, err = records.Put(tx, types.CollectionProjects, p)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("add request %d to project %d: %w", requestID, projectID, err)
	}
	return added, nil
}

// RecordServerExport stores the sharing service id of an existing request.
func (in *Integrity) RecordServerExport(ctx context.Context, rec types.ExportRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	err := in.engine.Update(ctx, func(tx types.Tx) error {
		if err := requireRequests(tx, []int64{rec.RequestID}); err != nil {
			return err
		}
		_, err := records.Put(tx, types.CollectionServerExports, rec)
		return err
	})
	if err != nil {
		return fmt.Errorf("record server export: %w", err)
	}
	return nil
}

// RecordDriveExport stores the drive file id of an existing request.
func (in *Integrity) RecordDriveExport(ctx context.Context, rec types.DriveRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	err := in.engine.Update(ctx, func(tx types.Tx) error {
		if err := requireRequests(tx, []int64{rec.RequestID}); err != nil {
			return err
		}
		_, err := records.Put(tx, types.CollectionDriveExports, rec)
		return err
	})
	if err != nil {
		return fmt.Errorf("record drive export: %w", err)
	}
	return nil
}

// LookupByLegacyID returns the raw documents of collection carrying
// legacyID. The collection must declare a legacy id index.
func (in *Integrity) LookupByLegacyID(ctx context.Context, collection string, legacyID int64) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := in.engine.View(ctx, func(tx types.Tx) error {
		var err error
		out, err = tx.Query(collection, types.Query{Index: schema.IndexLegacyID, Equals: types.IntKey(legacyID)})
		return err
	})
	return out, err
}

// RequestsByLegacyID returns the requests migrated from legacy row legacyID.
func (in *Integrity) RequestsByLegacyID(ctx context.Context, legacyID int64) ([]types.RequestRecord, error) {
	var out []types.RequestRecord
	err := in.engine.View(ctx, func(tx types.Tx) error {
		var err error
		out, err = records.Query[types.RequestRecord](tx, types.CollectionRequests,
			types.Query{Index: schema.IndexLegacyID, Equals: types.IntKey(legacyID)})
		return err
	})
	return out, err
}

// ProjectByLegacyID returns the project migrated from legacy row legacyID.
func (in *Integrity) ProjectByLegacyID(ctx context.Context, legacyID int64) (types.ProjectRecord, bool, error) {
	var (
		p  types.ProjectRecord
		ok bool
	)
	err := in.engine.View(ctx, func(tx types.Tx) error {
		var err error
		p, ok, err = projectByLegacyID(tx, legacyID)
		return err
	})
	return p, ok, err
}

func projectByLegacyID(tx types.Tx, legacyID int64) (types.ProjectRecord, bool, error) {
	list, err := records.Query[types.ProjectRecord](tx, types.CollectionProjects,
		types.Query{Index: schema.IndexLegacyID, Equals: types.IntKey(legacyID), Limit: 1})
	if err != nil || len(list) == 0 {
		return types.ProjectRecord{}, false, err
	}
	return list[0], true, nil
}

func requireRequests(tx types.Tx, ids []int64) error {
	for _, id := range ids {
		_, ok, err := tx.Get(types.CollectionRequests, types.IntKey(id))
		if err != nil {
			return err
		}
		if !ok {
			return &types.NotFoundError{Collection: types.CollectionRequests, Key: id}
		}
	}
	return nil
}
