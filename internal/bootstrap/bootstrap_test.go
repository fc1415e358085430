package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mesh-intelligence/arcstore/internal/records"
	"github.com/mesh-intelligence/arcstore/internal/schema"
	"github.com/mesh-intelligence/arcstore/internal/sqlite"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

const smallDefinitions = `{
  "codes": [{"key": 200, "label": "OK", "desc": "fine"}, {"key": 42, "label": "bogus"}],
  "requests": [{"key": "Accept", "desc": "types", "example": "Accept: */*"}],
  "responses": [{"key": "Accept", "desc": "not really"}, {"key": "ETag", "desc": "version"}]
}`

func newEngine(t *testing.T) types.Engine {
	t.Helper()
	e, err := sqlite.Open(sqlite.MemoryPath, schema.Define())
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
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

func TestDefault(t *testing.T) {
	d := Default()
	assert.NotEmpty(t, d.Codes)
	assert.NotEmpty(t, d.Requests)
	assert.NotEmpty(t, d.Responses)
	for _, s := range d.Statuses() {
		assert.NoError(t, s.Validate())
	}
	for _, h := range d.Headers() {
		assert.NoError(t, h.Validate())
	}
}

func TestLoadSources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/definitions.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(smallDefinitions))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "definitions.json")
	require.NoError(t, os.WriteFile(path, []byte(smallDefinitions), 0o644))

	tests := []struct {
		name    string
		source  string
		codes   int
		wantErr bool
	}{
		{"embedded", "", len(Default().Codes), false},
		{"file", path, 2, false},
		{"http", srv.URL + "/definitions.json", 2, false},
		{"http not found", srv.URL + "/missing.json", 0, true},
		{"missing file", filepath.Join(t.TempDir(), "none.json"), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewLoader(tt.source, WithHTTPClient(srv.Client())).Load(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, d.Codes, tt.codes)
		})
	}
}

func TestEnsurePopulated(t *testing.T) {
	e := newEngine(t)
	path := filepath.Join(t.TempDir(), "definitions.json")
	require.NoError(t, os.WriteFile(path, []byte(smallDefinitions), 0o644))
	ctx := context.Background()

	wrote, err := EnsurePopulated(ctx, e, NewLoader(path), nil)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, 1, count(t, e, types.CollectionStatuses))
	assert.Equal(t, 3, count(t, e, types.CollectionHeaders))

	require.NoError(t, e.View(ctx, func(tx types.Tx) error {
		h, ok, err := records.Get[types.HTTPHeaderRecord](tx, types.CollectionHeaders, types.Key{"Accept", types.HeaderKindResponse})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "not really", h.Description)
		return nil
	}))

	wrote, err = EnsurePopulated(ctx, e, NewLoader(""), nil)
	require.NoError(t, err)
	assert.False(t, wrote, "populated collections are left alone")
	assert.Equal(t, 1, count(t, e, types.CollectionStatuses))
}

func TestEnsurePopulatedFetchFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	core, logs := observer.New(zap.WarnLevel)
	e := newEngine(t)

	wrote, err := EnsurePopulated(context.Background(), e, NewLoader(srv.URL), zap.New(core))
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.Equal(t, 0, count(t, e, types.CollectionStatuses))
	assert.Equal(t, 1, logs.FilterMessage("definitions_unavailable").Len())

	wrote, err = EnsurePopulated(context.Background(), e, NewLoader(""), nil)
	require.NoError(t, err)
	assert.True(t, wrote)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("not json"))
	assert.Error(t, err)
}
