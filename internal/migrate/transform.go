package migrate

import (
	"go.uber.org/zap"

	"github.com/mesh-intelligence/arcstore/internal/legacy"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

// pendingRequest carries the hints that link a request to its legacy project
// and export row. The hints never reach the stored record.
type pendingRequest struct {
	table   string
	record  types.RequestRecord
	project int64
	export  *legacy.ExportRow
}

// reasonMissingID is reported for request rows without a legacy id. Such a
// row could not be recognized on a rerun and would be stored twice.
const reasonMissingID = "missing legacy id"

type plan struct {
	urls     []types.URLHistoryRecord
	sockets  []types.SocketHistoryRecord
	requests []pendingRequest
	projects map[int64]legacy.ProjectRow
}

// transform converts the snapshot into records. Saved requests come first,
// then history. Rows that cannot be converted are recorded in res.Skipped.
func (m *Migrator) transform(snap *legacy.Snapshot, res *Result) plan {
	p := plan{projects: make(map[int64]legacy.ProjectRow, len(snap.Projects))}

	for _, row := range snap.Projects {
		pr := legacy.ParseProject(row)
		if _, dup := p.projects[pr.ID]; dup {
			m.log.Warn("legacy_project_duplicate", zap.Int64("legacy_id", pr.ID))
			continue
		}
		p.projects[pr.ID] = pr
	}

	exports := make(map[int64]legacy.ExportRow, len(snap.Exported))
	for _, row := range snap.Exported {
		e := legacy.ParseExport(row)
		if e.RequestID == 0 || e.ServerID == "" {
			res.skip(legacy.TableExported, e.ID, "missing request reference or server key")
			continue
		}
		if _, ok := exports[e.RequestID]; !ok {
			exports[e.RequestID] = e
		}
	}

	for _, row := range snap.Requests {
		rr := legacy.ParseRequest(row)
		if rr.ID <= 0 {
			res.skip(legacy.TableRequests, 0, reasonMissingID)
			continue
		}
		rec, err := m.normalizer.Normalize(rr)
		if err != nil {
			res.skip(legacy.TableRequests, rr.ID, err.Error())
			continue
		}
		rec.Type = types.RequestTypeSaved
		pr := pendingRequest{table: legacy.TableRequests, record: rec, project: rr.ProjectID}
		if e, ok := exports[rr.ID]; ok {
			pr.export = &e
		}
		p.requests = append(p.requests, pr)
	}

	for _, row := range snap.History {
		rr := legacy.ParseRequest(row)
		if rr.ID <= 0 {
			res.skip(legacy.TableHistory, 0, reasonMissingID)
			continue
		}
		rec, err := m.normalizer.Normalize(rr)
		if err != nil {
			res.skip(legacy.TableHistory, rr.ID, err.Error())
			continue
		}
		p.requests = append(p.requests, pendingRequest{table: legacy.TableHistory, record: rec})
	}

	for _, row := range snap.URLs {
		u := legacy.ParseURL(row)
		if u.URL == "" {
			res.skip(legacy.TableURLs, 0, "missing url")
			continue
		}
		p.urls = append(p.urls, types.URLHistoryRecord{URL: u.URL, LastAccess: u.Time})
	}
	for _, row := range snap.Sockets {
		u := legacy.ParseURL(row)
		if u.URL == "" {
			res.skip(legacy.TableSockets, 0, "missing url")
			continue
		}
		p.sockets = append(p.sockets, types.SocketHistoryRecord{URL: u.URL, LastAccess: u.Time})
	}

	m.log.Debug("migration_transformed",
		zap.Int("requests", len(p.requests)),
		zap.Int("urls", len(p.urls)),
		zap.Int("sockets", len(p.sockets)),
		zap.Int("skipped", len(res.Skipped)))
	return p
}
