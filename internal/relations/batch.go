package relations

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/arcstore/internal/records"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

// Batch accumulates projects and export records while requests are being
// inserted, then writes them in one pass. Projects are deduplicated by
// legacy id.
type Batch struct {
	projects map[int64]*types.ProjectRecord
	order    []int64
	exports  []types.ExportRecord
	log      *zap.Logger
}

// NewBatch returns an empty Batch.
func NewBatch(log *zap.Logger) *Batch {
	if log == nil {
		log = zap.NewNop()
	}
	return &Batch{projects: make(map[int64]*types.ProjectRecord), log: log}
}

// AddProject registers a project under its legacy id. It reports false when
// a project with the same legacy id is already registered; the first one
// is kept.
func (b *Batch) AddProject(p types.ProjectRecord) bool {
	if _, ok := b.projects[p.LegacyID]; ok {
		b.log.Debug("project_duplicate_skipped", zap.Int64("legacy_id", p.LegacyID))
		return false
	}
	p.ID = 0
	if p.RequestIDs == nil {
		p.RequestIDs = []int64{}
	}
	b.projects[p.LegacyID] = &p
	b.order = append(b.order, p.LegacyID)
	return true
}

// Attach adds requestID to the project registered under legacyProjectID.
// It reports false when no such project is registered.
func (b *Batch) Attach(legacyProjectID, requestID int64) bool {
	p, ok := b.projects[legacyProjectID]
	if !ok {
		return false
	}
	p.AddRequest(requestID)
	return true
}

// AddExport queues an export record.
func (b *Batch) AddExport(rec types.ExportRecord) {
	b.exports = append(b.exports, rec)
}

// Projects returns the registered projects in registration order.
func (b *Batch) Projects() []types.ProjectRecord {
	out := make([]types.ProjectRecord, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.projects[id])
	}
	return out
}

// Exports returns the queued export records.
func (b *Batch) Exports() []types.ExportRecord {
	return b.exports
}

// FlushResult counts what Flush wrote.
type FlushResult struct {
	Projects int
	Merged   int
	Exports  int
}

// Flush writes every registered project and queued export inside tx. Every
// referenced request must already exist in tx. A project whose legacy id is
// already stored is merged into the stored project instead of duplicated.
func (b *Batch) Flush(tx types.Tx) (FlushResult, error) {
	var res FlushResult
	for _, legacyID := range b.order {
		p := *b.projects[legacyID]
		if err := p.Validate(); err != nil {
			return res, fmt.Errorf("project legacy %d: %w", legacyID, err)
		}
		if err := requireRequests(tx, p.RequestIDs); err != nil {
			return res, fmt.Errorf("project legacy %d: %w", legacyID, err)
		}

		if legacyID != 0 {
			stored, ok, err := projectByLegacyID(tx, legacyID)
			if err != nil {
				return res, err
			}
			if ok {
				for _, rid := range p.RequestIDs {
					stored.AddRequest(rid)
				}
				if _, err := records.Put(tx, types.CollectionProjects, stored); err != nil {
					return res, fmt.Errorf("merge project legacy %d: %w", legacyID, err)
				}
				res.Merged++
				continue
			}
		}
		if _, err := records.Add(tx, types.CollectionProjects, p); err != nil {
			return res, fmt.Errorf("add project legacy %d: %w", legacyID, err)
		}
		res.Projects++
	}

	for _, e := range b.exports {
		if err := e.Validate(); err != nil {
			return res, err
		}
		if err := requireRequests(tx, []int64{e.RequestID}); err != nil {
			return res, fmt.Errorf("export %s: %w", e.ServerID, err)
		}
		if _, err := records.Put(tx, types.CollectionServerExports, e); err != nil {
			return res, fmt.Errorf("add export %s: %w", e.ServerID, err)
		}
		res.Exports++
	}
	b.log.Debug("batch_flushed",
		zap.Int("projects", res.Projects),
		zap.Int("merged", res.Merged),
		zap.Int("exports", res.Exports))
	return res, nil
}
