package legacy_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/arcstore/internal/legacy"
	"github.com/mesh-intelligence/arcstore/internal/legacy/legacytest"
)

func TestExtract(t *testing.T) {
	at := time.Date(2016, 3, 1, 10, 0, 0, 0, time.UTC)
	path := legacytest.Write(t, t.TempDir(), legacytest.Fixture{
		URLs:     []legacy.URLRow{{URL: "http://a.com", Time: at}},
		Sockets:  []legacy.URLRow{{URL: "ws://echo", Time: at}},
		History:  []legacy.RequestRow{{ID: 1, URL: "http://h.com", Method: "GET", Time: at}},
		Requests: []legacy.RequestRow{{ID: 5, ProjectID: 2, Name: "saved", URL: "http://s.com", Method: "POST", Payload: "a=1", Encoding: "text/plain", Headers: "X: 1", Time: at}},
		Projects: []legacy.ProjectRow{{ID: 2, Name: "proj", Time: at}},
		Exported: []legacy.ExportRow{{ID: 9, RequestID: 5, ServerID: "agx"}},
	})

	snap, err := legacy.NewReader(path, nil).Extract(context.Background())
	require.NoError(t, err)
	require.False(t, snap.Empty())

	require.Len(t, snap.URLs, 1)
	assert.Equal(t, legacy.URLRow{URL: "http://a.com", Time: at}, legacy.ParseURL(snap.URLs[0]))
	require.Len(t, snap.Sockets, 1)

	require.Len(t, snap.Requests, 1)
	assert.Equal(t, legacy.RequestRow{
		ID: 5, ProjectID: 2, Name: "saved", URL: "http://s.com", Method: "POST",
		Headers: "X: 1", Payload: "a=1", Encoding: "text/plain", Time: at,
	}, legacy.ParseRequest(snap.Requests[0]))

	require.Len(t, snap.History, 1)
	h := legacy.ParseRequest(snap.History[0])
	assert.Equal(t, int64(0), h.ProjectID)
	assert.Equal(t, "", h.Name)

	require.Len(t, snap.Projects, 1)
	assert.Equal(t, legacy.ProjectRow{ID: 2, Name: "proj", Time: at}, legacy.ParseProject(snap.Projects[0]))

	require.Len(t, snap.Exported, 1)
	assert.Equal(t, legacy.ExportRow{ID: 9, RequestID: 5, ServerID: "agx", Type: "form"}, legacy.ParseExport(snap.Exported[0]))
}

func TestExtractMissingStore(t *testing.T) {
	_, err := legacy.NewReader(filepath.Join(t.TempDir(), "none.db"), nil).Extract(context.Background())
	assert.ErrorIs(t, err, legacy.ErrStoreMissing)

	_, err = legacy.NewReader("", nil).Extract(context.Background())
	assert.ErrorIs(t, err, legacy.ErrStoreMissing)
}

func TestExtractMissingTable(t *testing.T) {
	path := legacytest.Write(t, t.TempDir(), legacytest.Fixture{
		URLs:       []legacy.URLRow{{URL: "http://a.com"}},
		OmitTables: []string{legacy.TableExported, legacy.TableSockets},
	})

	snap, err := legacy.NewReader(path, nil).Extract(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.URLs, 1)
	assert.NotNil(t, snap.Exported)
	assert.Empty(t, snap.Exported)
	assert.Empty(t, snap.Sockets)
}

func TestRowAccessors(t *testing.T) {
	r := legacy.Row{"i": int64(3), "f": float64(4), "s": "12", "b": []byte("7"), "n": nil}
	assert.Equal(t, int64(3), r.Int("i"))
	assert.Equal(t, int64(4), r.Int("f"))
	assert.Equal(t, int64(12), r.Int("s"))
	assert.Equal(t, int64(7), r.Int("b"))
	assert.Equal(t, int64(0), r.Int("n"))
	assert.Equal(t, "3", r.String("i"))
	assert.Equal(t, "", r.String("missing"))
	assert.True(t, r.Time("n").IsZero())
	assert.Equal(t, time.UnixMilli(3).UTC(), r.Time("i"))
}
