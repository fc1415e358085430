// Package enginetest holds the behavior every types.Engine implementation
// must share. Engine packages call Run from their own tests.
package enginetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/arcstore/internal/schema"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

// Opener returns a fresh, empty engine using the layout from schema.Define.
// The suite closes it.
type Opener func(t *testing.T) types.Engine

// Run executes the conformance suite.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, e types.Engine)
	}{
		{"AddAssignsIncreasingIDs", testAddAssignsIDs},
		{"AddRejectsExistingKey", testAddRejectsExistingKey},
		{"ExplicitIDAdvancesSequence", testExplicitIDAdvancesSequence},
		{"PutReplacesIndexEntries", testPutReplacesIndexEntries},
		{"DeleteRemovesDocument", testDelete},
		{"PrefixSearchOrdering", testPrefixOrdering},
		{"FoldCasePrefix", testFoldCasePrefix},
		{"CompoundKeys", testCompoundKeys},
		{"MultiEntryIndex", testMultiEntry},
		{"RollbackOnError", testRollback},
		{"ViewIsReadOnly", testViewReadOnly},
		{"UnknownNames", testUnknownNames},
		{"CountAndLimit", testCountAndLimit},
		{"ClosedEngine", testClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := open(t)
			defer e.Close()
			tt.fn(t, e)
		})
	}
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func decode(t *testing.T, doc json.RawMessage) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(doc, &m))
	return m
}

func urls(t *testing.T, docs []json.RawMessage) []string {
	t.Helper()
	out := []string{}
	for _, d := range docs {
		out = append(out, decode(t, d)["url"].(string))
	}
	return out
}

func testAddAssignsIDs(t *testing.T, e types.Engine) {
	ctx := context.Background()
	var keys []types.Key
	err := e.Update(ctx, func(tx types.Tx) error {
		for _, u := range []string{"http://a.com", "http://b.com"} {
			k, err := tx.Add(types.CollectionRequests, raw(`{"url":"`+u+`","method":"GET","type":"history"}`))
			if err != nil {
				return err
			}
			keys = append(keys, k)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []types.Key{{int64(1)}, {int64(2)}}, keys)

	err = e.View(ctx, func(tx types.Tx) error {
		doc, ok, err := tx.Get(types.CollectionRequests, types.IntKey(2))
		require.NoError(t, err)
		require.True(t, ok)
		m := decode(t, doc)
		assert.Equal(t, float64(2), m["id"], "assigned id is written into the document")
		assert.Equal(t, "http://b.com", m["url"])

		_, ok, err = tx.Get(types.CollectionRequests, types.IntKey(3))
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func testAddRejectsExistingKey(t *testing.T, e types.Engine) {
	ctx := context.Background()
	doc := raw(`{"url":"http://a.com","time":"2024-01-01T00:00:00Z"}`)

	require.NoError(t, e.Update(ctx, func(tx types.Tx) error {
		_, err := tx.Add(types.CollectionURLHistory, doc)
		return err
	}))

	err := e.Update(ctx, func(tx types.Tx) error {
		_, err := tx.Add(types.CollectionURLHistory, doc)
		return err
	})
	assert.ErrorIs(t, err, types.ErrConstraint)

	require.NoError(t, e.Update(ctx, func(tx types.Tx) error {
		_, err := tx.Put(types.CollectionURLHistory, raw(`{"url":"http://a.com","time":"2025-01-01T00:00:00Z"}`))
		return err
	}))
	require.NoError(t, e.View(ctx, func(tx types.Tx) error {
		got, ok, err := tx.Get(types.CollectionURLHistory, types.StringKey("http://a.com"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "2025-01-01T00:00:00Z", decode(t, got)["time"])
		n, err := tx.Count(types.CollectionURLHistory)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return nil
	}))

	err = e.Update(ctx, func(tx types.Tx) error {
		if _, err := tx.Add(types.CollectionRequests, raw(`{"url":"u","method":"GET","type":"history"}`)); err != nil {
			return err
		}
		_, err := tx.Add(types.CollectionRequests, raw(`{"id":1,"url":"v","method":"GET","type":"history"}`))
		return err
	})
	assert.ErrorIs(t, err, types.ErrConstraint, "surrogate id reuse is rejected")
}

func testExplicitIDAdvancesSequence(t *testing.T, e types.Engine) {
	ctx := context.Background()
	var next types.Key
	require.NoError(t, e.Update(ctx, func(tx types.Tx) error {
		if _, err := tx.Add(types.CollectionProjects, raw(`{"id":10,"name":"ten","requestIds":[]}`)); err != nil {
			return err
		}
		var err error
		next, err = tx.Add(types.CollectionProjects, raw(`{"name":"next","requestIds":[]}`))
		return err
	}))
	assert.Equal(t, types.Key{int64(11)}, next)
}

func testPutReplacesIndexEntries(t *testing.T, e types.Engine) {
	ctx := context.Background()
	require.NoError(t, e.Update(ctx, func(tx types.Tx) error {
		if _, err := tx.Add(types.CollectionRequests, raw(`{"url":"http://old","method":"GET","type":"saved"}`)); err != nil {
			return err
		}
		_, err := tx.Put(types.CollectionRequests, raw(`{"id":1,"url":"http://new","method":"POST","type":"saved"}`))
		return err
	}))

	require.NoError(t, e.View(ctx, func(tx types.Tx) error {
		old, err := tx.Query(types.CollectionRequests, types.Query{Index: schema.IndexURL, Equals: types.StringKey("http://old")})
		require.NoError(t, err)
		assert.Empty(t, old)

		got, err := tx.Query(types.CollectionRequests, types.Query{
			Index:  schema.IndexURLMethod,
			Equals: types.Key{"http://new", "POST"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"http://new"}, urls(t, got))
		return nil
	}))
}

func testDelete(t *testing.T, e types.Engine) {
	ctx := context.Background()
	require.NoError(t, e.Update(ctx, func(tx types.Tx) error {
		_, err := tx.Add(types.CollectionRequests, raw(`{"url":"http://a","method":"GET","type":"history","legacyId":7}`))
		return err
	}))

	require.NoError(t, e.Update(ctx, func(tx types.Tx) error {
		ok, err := tx.Delete(types.CollectionRequests, types.IntKey(1))
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = tx.Delete(types.CollectionRequests, types.IntKey(1))
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))

	require.NoError(t, e.View(ctx, func(tx types.Tx) error {
		got, err := tx.Query(types.CollectionRequests, types.Query{Index: schema.IndexLegacyID, Equals: types.IntKey(7)})
		require.NoError(t, err)
		assert.Empty(t, got)
		return nil
	}))
}

func putURLs(t *testing.T, e types.Engine, collection string, list ...string) {
	t.Helper()
	require.NoError(t, e.Update(context.Background(), func(tx types.Tx) error {
		for _, u := range list {
			if _, err := tx.Put(collection, raw(`{"url":"`+u+`","time":"2024-01-01T00:00:00Z"}`)); err != nil {
				return err
			}
		}
		return nil
	}))
}

func testPrefixOrdering(t *testing.T, e types.Engine) {
	putURLs(t, e, types.CollectionURLHistory, "http://z.com", "http://a.com/b", "http://a.com")

	require.NoError(t, e.View(context.Background(), func(tx types.Tx) error {
		got, err := tx.Query(types.CollectionURLHistory, types.Query{Prefix: "http://a"})
		require.NoError(t, err)
		assert.Equal(t, []string{"http://a.com", "http://a.com/b"}, urls(t, got))

		all, err := tx.Query(types.CollectionURLHistory, types.Query{})
		require.NoError(t, err)
		assert.Equal(t, []string{"http://a.com", "http://a.com/b", "http://z.com"}, urls(t, all))

		none, err := tx.Query(types.CollectionURLHistory, types.Query{Prefix: "ftp"})
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
		return nil
	}))
}

func testFoldCasePrefix(t *testing.T, e types.Engine) {
	putURLs(t, e, types.CollectionSocketHistory, "ws://Echo.org", "WS://echo.net", "ws://other")

	require.NoError(t, e.View(context.Background(), func(tx types.Tx) error {
		got, err := tx.Query(types.CollectionSocketHistory, types.Query{Prefix: "ws://ECHO", FoldCase: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"WS://echo.net", "ws://Echo.org"}, urls(t, got))

		exact, err := tx.Query(types.CollectionSocketHistory, types.Query{Prefix: "ws://ECHO"})
		require.NoError(t, err)
		assert.Empty(t, exact)
		return nil
	}))
}

func testCompoundKeys(t *testing.T, e types.Engine) {
	ctx := context.Background()
	require.NoError(t, e.Update(ctx, func(tx types.Tx) error {
		for _, doc := range []string{
			`{"name":"Accept","kind":"request","description":"media types"}`,
			`{"name":"Accept","kind":"response","description":"not really"}`,
			`{"name":"Accept-Encoding","kind":"request"}`,
		} {
			if _, err := tx.Add(types.CollectionHeaders, raw(doc)); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, e.View(ctx, func(tx types.Tx) error {
		doc, ok, err := tx.Get(types.CollectionHeaders, types.Key{"Accept", "response"})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "not really", decode(t, doc)["description"])

		_, ok, err = tx.Get(types.CollectionHeaders, types.Key{"Accept", "other"})
		require.NoError(t, err)
		assert.False(t, ok)

		byName, err := tx.Query(types.CollectionHeaders, types.Query{Index: schema.IndexName, Prefix: "accept", FoldCase: true})
		require.NoError(t, err)
		assert.Len(t, byName, 3)

		reqs, err := tx.Query(types.CollectionHeaders, types.Query{Index: schema.IndexKind, Equals: types.StringKey("request")})
		require.NoError(t, err)
		assert.Len(t, reqs, 2)
		return nil
	}))
}

func testMultiEntry(t *testing.T, e types.Engine) {
	ctx := context.Background()
	require.NoError(t, e.Update(ctx, func(tx types.Tx) error {
		for _, doc := range []string{
			`{"name":"one","requestIds":[1,2]}`,
			`{"name":"two","requestIds":[2,3]}`,
			`{"name":"three","requestIds":[]}`,
		} {
			if _, err := tx.Add(types.CollectionProjects, raw(doc)); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, e.View(ctx, func(tx types.Tx) error {
		got, err := tx.Query(types.CollectionProjects, types.Query{Index: schema.IndexRequestIDs, Equals: types.IntKey(2)})
		require.NoError(t, err)
		var names []string
		for _, d := range got {
			names = append(names, decode(t, d)["name"].(string))
		}
		assert.Equal(t, []string{"one", "two"}, names)
		return nil
	}))
}

func testRollback(t *testing.T, e types.Engine) {
	ctx := context.Background()
	boom := errors.New("boom")
	err := e.Update(ctx, func(tx types.Tx) error {
		if _, err := tx.Add(types.CollectionRequests, raw(`{"url":"u","method":"GET","type":"history"}`)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, e.View(ctx, func(tx types.Tx) error {
		n, err := tx.Count(types.CollectionRequests)
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	}))

	var key types.Key
	require.NoError(t, e.Update(ctx, func(tx types.Tx) error {
		var err error
		key, err = tx.Add(types.CollectionRequests, raw(`{"url":"u","method":"GET","type":"history"}`))
		return err
	}))
	assert.Equal(t, types.Key{int64(1)}, key, "rolled back sequence is reused")
}

func testViewReadOnly(t *testing.T, e types.Engine) {
	err := e.View(context.Background(), func(tx types.Tx) error {
		_, err := tx.Put(types.CollectionStatuses, raw(`{"code":200,"label":"OK"}`))
		return err
	})
	assert.Error(t, err)
}

func testUnknownNames(t *testing.T, e types.Engine) {
	err := e.View(context.Background(), func(tx types.Tx) error {
		_, _, err := tx.Get("cookies", types.StringKey("x"))
		assert.ErrorIs(t, err, types.ErrUnknownCollection)

		_, err = tx.Query(types.CollectionStatuses, types.Query{Index: schema.IndexName})
		assert.ErrorIs(t, err, types.ErrUnknownIndex)
		return nil
	})
	require.NoError(t, err)

	err = e.Update(context.Background(), func(tx types.Tx) error {
		_, err := tx.Add(types.CollectionStatuses, raw(`{"label":"no code"}`))
		return err
	})
	assert.ErrorIs(t, err, types.ErrInvalidData)
}

func testCountAndLimit(t *testing.T, e types.Engine) {
	putURLs(t, e, types.CollectionURLHistory, "http://1", "http://2", "http://3")
	require.NoError(t, e.View(context.Background(), func(tx types.Tx) error {
		n, err := tx.Count(types.CollectionURLHistory)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		got, err := tx.Query(types.CollectionURLHistory, types.Query{Prefix: "http://", Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"http://1", "http://2"}, urls(t, got))
		return nil
	}))
}

func testClosed(t *testing.T, e types.Engine) {
	require.NoError(t, e.Close())
	require.NoError(t, e.Close(), "Close is idempotent")
	err := e.View(context.Background(), func(tx types.Tx) error { return nil })
	assert.ErrorIs(t, err, types.ErrEngineClosed)
}
