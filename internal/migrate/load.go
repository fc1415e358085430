package migrate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/arcstore/internal/legacy"
	"github.com/mesh-intelligence/arcstore/internal/records"
	"github.com/mesh-intelligence/arcstore/internal/relations"
	"github.com/mesh-intelligence/arcstore/internal/schema"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

// load writes the plan in one transaction: history lists, requests, and
// the projects and exports they reference commit together or not at all.
func (m *Migrator) load(ctx context.Context, p plan, res *Result) error {
	var counts Counts
	err := m.engine.Update(ctx, func(tx types.Tx) error {
		counts = Counts{}
		for _, u := range p.urls {
			if _, err := records.Put(tx, types.CollectionURLHistory, u); err != nil {
				return fmt.Errorf("store url history: %w", err)
			}
		}
		for _, s := range p.sockets {
			if _, err := records.Put(tx, types.CollectionSocketHistory, s); err != nil {
				return fmt.Errorf("store socket history: %w", err)
			}
		}
		counts.URLs, counts.Sockets = len(p.urls), len(p.sockets)

		batch := relations.NewBatch(m.log)
		for _, pr := range p.requests {
			id, existed, err := m.insertRequest(tx, pr)
			if err != nil {
				return &types.MigrationError{
					Step:   "load",
					Record: fmt.Sprintf("%s %d", pr.table, pr.record.LegacyID),
					Err:    err,
				}
			}
			switch {
			case existed:
				counts.Existing++
			case pr.record.Type == types.RequestTypeSaved:
				counts.Saved++
			default:
				counts.History++
			}

			if pr.project != 0 {
				m.attachProject(batch, p.projects, pr.project, id)
			}
			if pr.export != nil {
				batch.AddExport(types.ExportRecord{
					ServerID:  pr.export.ServerID,
					RequestID: id,
					LegacyID:  pr.export.ID,
				})
			}
		}
		flushed, err := batch.Flush(tx)
		if err != nil {
			return fmt.Errorf("store projects and exports: %w", err)
		}
		counts.Projects = flushed.Projects
		counts.MergedProjects = flushed.Merged
		counts.Exports = flushed.Exports
		return nil
	})
	if err != nil {
		return err
	}
	res.Counts = counts
	return nil
}

// insertRequest adds the request unless a request of the same type with the
// same legacy id is already stored, as happens when a previous run
// committed but failed to set the flag.
func (m *Migrator) insertRequest(tx types.Tx, pr pendingRequest) (int64, bool, error) {
	stored, err := records.Query[types.RequestRecord](tx, types.CollectionRequests,
		types.Query{Index: schema.IndexLegacyID, Equals: types.IntKey(pr.record.LegacyID)})
	if err != nil {
		return 0, false, err
	}
	for _, s := range stored {
		if s.Type == pr.record.Type {
			return s.ID, true, nil
		}
	}
	key, err := records.Add(tx, types.CollectionRequests, pr.record)
	if err != nil {
		return 0, false, err
	}
	id, err := records.ID(key)
	return id, false, err
}

func (m *Migrator) attachProject(batch *relations.Batch, projects map[int64]legacy.ProjectRow, legacyProject, requestID int64) {
	if batch.Attach(legacyProject, requestID) {
		return
	}
	row, ok := projects[legacyProject]
	if !ok {
		m.log.Warn("legacy_project_missing",
			zap.Int64("legacy_project_id", legacyProject),
			zap.Int64("request_id", requestID))
		return
	}
	name := row.Name
	if name == "" {
		name = fmt.Sprintf("Project %d", row.ID)
	}
	batch.AddProject(types.ProjectRecord{
		Name:       name,
		CreatedAt:  row.Time,
		RequestIDs: []int64{requestID},
		LegacyID:   row.ID,
	})
}
