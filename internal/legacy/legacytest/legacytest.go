// Package legacytest writes legacy store files for tests.
package legacytest

import (
	"database/sql"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/arcstore/internal/legacy"
)

// Table DDL as written by the legacy client.
var tableDDL = map[string]string{
	legacy.TableURLs:     `CREATE TABLE urls (url TEXT NOT NULL, time INTEGER NOT NULL, UNIQUE(url) ON CONFLICT REPLACE)`,
	legacy.TableSockets:  `CREATE TABLE websocket_data (url TEXT NOT NULL, time INTEGER NOT NULL, UNIQUE(url) ON CONFLICT REPLACE)`,
	legacy.TableHistory:  `CREATE TABLE history (id INTEGER PRIMARY KEY AUTOINCREMENT, url TEXT, method TEXT, encoding TEXT NULL, headers TEXT NULL, payload TEXT NULL, time INTEGER)`,
	legacy.TableProjects: `CREATE TABLE projects (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, time INTEGER)`,
	legacy.TableRequests: `CREATE TABLE request_data (id INTEGER PRIMARY KEY AUTOINCREMENT, project INTEGER NULL, name TEXT, url TEXT, method TEXT, encoding TEXT NULL, headers TEXT NULL, payload TEXT NULL, skipProtocol INTEGER, skipServer INTEGER, skipParams INTEGER, skipHistory INTEGER, skipMethod INTEGER, skipPayload INTEGER, skipHeaders INTEGER, skipPath INTEGER, time INTEGER)`,
	legacy.TableExported: `CREATE TABLE exported (id INTEGER PRIMARY KEY AUTOINCREMENT, reference_id INTEGER NOT NULL, type TEXT NOT NULL, gaeKey TEXT NULL, time INTEGER)`,
}

// Fixture is the content of a legacy store.
type Fixture struct {
	URLs     []legacy.URLRow
	Sockets  []legacy.URLRow
	History  []legacy.RequestRow
	Requests []legacy.RequestRow
	Projects []legacy.ProjectRow
	Exported []legacy.ExportRow

	// OmitTables lists tables that are not created.
	OmitTables []string
}

// Write creates a legacy store at dir/legacy.db and returns its path.
func Write(t testing.TB, dir string, f Fixture) string {
	t.Helper()
	path := filepath.Join(dir, "legacy.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{
		legacy.TableURLs, legacy.TableSockets, legacy.TableHistory,
		legacy.TableProjects, legacy.TableRequests, legacy.TableExported,
	} {
		if slices.Contains(f.OmitTables, table) {
			continue
		}
		_, err := db.Exec(tableDDL[table])
		require.NoError(t, err)
	}

	exec := func(q string, args ...any) {
		t.Helper()
		_, err := db.Exec(q, args...)
		require.NoError(t, err)
	}
	for _, u := range f.URLs {
		exec(`INSERT INTO urls (url, time) VALUES (?, ?)`, u.URL, millis(u.Time))
	}
	for _, u := range f.Sockets {
		exec(`INSERT INTO websocket_data (url, time) VALUES (?, ?)`, u.URL, millis(u.Time))
	}
	for _, h := range f.History {
		exec(`INSERT INTO history (id, url, method, encoding, headers, payload, time) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			h.ID, h.URL, h.Method, h.Encoding, h.Headers, h.Payload, millis(h.Time))
	}
	for _, p := range f.Projects {
		exec(`INSERT INTO projects (id, name, time) VALUES (?, ?, ?)`, p.ID, p.Name, millis(p.Time))
	}
	for _, r := range f.Requests {
		var project any
		if r.ProjectID != 0 {
			project = r.ProjectID
		}
		exec(`INSERT INTO request_data (id, project, name, url, method, encoding, headers, payload, time) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, project, r.Name, r.URL, r.Method, r.Encoding, r.Headers, r.Payload, millis(r.Time))
	}
	for _, e := range f.Exported {
		typ := e.Type
		if typ == "" {
			typ = "form"
		}
		exec(`INSERT INTO exported (id, reference_id, type, gaeKey) VALUES (?, ?, ?, ?)`,
			e.ID, e.RequestID, typ, e.ServerID)
	}
	return path
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
