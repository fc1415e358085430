package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/arcstore/internal/schema"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

var errReadOnly = errors.New("write in read-only transaction")

type tx struct {
	ctx      context.Context
	sqlTx    *sql.Tx
	desc     schema.Descriptor
	writable bool
}

func (t *tx) collection(op, name string) (schema.Collection, error) {
	c, ok := t.desc.Collection(name)
	if !ok {
		return schema.Collection{}, &types.StorageError{Op: op, Collection: name, Err: types.ErrUnknownCollection}
	}
	return c, nil
}

func (t *tx) Add(collection string, doc json.RawMessage) (types.Key, error) {
	return t.write("add", collection, doc, false)
}

func (t *tx) Put(collection string, doc json.RawMessage) (types.Key, error) {
	return t.write("put", collection, doc, true)
}

func (t *tx) write(op, collection string, doc json.RawMessage, replace bool) (types.Key, error) {
	c, err := t.collection(op, collection)
	if err != nil {
		return nil, err
	}
	if !t.writable {
		return nil, &types.StorageError{Op: op, Collection: collection, Err: errReadOnly}
	}
	fail := func(err error) (types.Key, error) {
		return nil, &types.StorageError{Op: op, Collection: collection, Err: err}
	}

	m, err := schema.Decode(doc)
	if err != nil {
		return fail(err)
	}
	key, ok, err := c.PrimaryKeyOf(m)
	if err != nil {
		return fail(err)
	}
	switch {
	case !ok && !c.PrimaryKey.AutoIncrement:
		return fail(fmt.Errorf("%w: missing primary key", types.ErrInvalidData))
	case !ok:
		id, err := t.nextSequence(collection)
		if err != nil {
			return fail(err)
		}
		if doc, err = c.SetAutoIncrement(m, id); err != nil {
			return fail(err)
		}
		key = types.IntKey(id)
	case c.PrimaryKey.AutoIncrement:
		id, isInt := key[0].(int64)
		if !isInt {
			return fail(fmt.Errorf("%w: %s key must be an integer", types.ErrInvalidData, collection))
		}
		if err := t.bumpSequence(collection, id); err != nil {
			return fail(err)
		}
	}

	pk, err := schema.EncodeKey(key)
	if err != nil {
		return fail(err)
	}
	exists, err := t.exists(c.Name, pk)
	if err != nil {
		return fail(err)
	}
	if exists && !replace {
		return fail(fmt.Errorf("%w: key %v exists", types.ErrConstraint, key))
	}

	entries, err := c.Entries(m)
	if err != nil {
		return fail(err)
	}
	q := fmt.Sprintf("INSERT INTO %s (pk, doc) VALUES (?, ?) ON CONFLICT(pk) DO UPDATE SET doc = excluded.doc", docTable(c.Name))
	if _, err := t.sqlTx.ExecContext(t.ctx, q, pk, string(doc)); err != nil {
		return fail(err)
	}
	if err := t.replaceEntries(c.Name, pk, entries); err != nil {
		return fail(err)
	}
	return key, nil
}

func (t *tx) replaceEntries(collection, pk string, entries []schema.Entry) error {
	del := fmt.Sprintf("DELETE FROM %s WHERE pk = ?", indexTable(collection))
	if _, err := t.sqlTx.ExecContext(t.ctx, del, pk); err != nil {
		return fmt.Errorf("clear index entries: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}
	ins := fmt.Sprintf("INSERT OR IGNORE INTO %s (index_name, value, pk) VALUES (?, ?, ?)", indexTable(collection))
	stmt, err := t.sqlTx.PrepareContext(t.ctx, ins)
	if err != nil {
		return fmt.Errorf("prepare index insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.ExecContext(t.ctx, e.Index, e.Value, pk); err != nil {
			return fmt.Errorf("insert index entry %s: %w", e.Index, err)
		}
	}
	return nil
}

func (t *tx) exists(collection, pk string) (bool, error) {
	var one int
	q := fmt.Sprintf("SELECT 1 FROM %s WHERE pk = ?", docTable(collection))
	err := t.sqlTx.QueryRowContext(t.ctx, q, pk).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *tx) nextSequence(collection string) (int64, error) {
	var current int64
	err := t.sqlTx.QueryRowContext(t.ctx,
		"SELECT value FROM arcstore_sequences WHERE collection = ?", collection).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("read sequence: %w", err)
	}
	next := current + 1
	if err := t.bumpSequence(collection, next); err != nil {
		return 0, err
	}
	return next, nil
}

func (t *tx) bumpSequence(collection string, value int64) error {
	_, err := t.sqlTx.ExecContext(t.ctx,
		`INSERT INTO arcstore_sequences (collection, value) VALUES (?, ?)
		 ON CONFLICT(collection) DO UPDATE SET value = max(value, excluded.value)`,
		collection, value)
	if err != nil {
		return fmt.Errorf("update sequence: %w", err)
	}
	return nil
}

func (t *tx) Get(collection string, key types.Key) (json.RawMessage, bool, error) {
	c, err := t.collection("get", collection)
	if err != nil {
		return nil, false, err
	}
	pk, err := schema.EncodeKey(key)
	if err != nil {
		return nil, false, &types.StorageError{Op: "get", Collection: collection, Err: err}
	}
	var doc string
	q := fmt.Sprintf("SELECT doc FROM %s WHERE pk = ?", docTable(c.Name))
	err = t.sqlTx.QueryRowContext(t.ctx, q, pk).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &types.StorageError{Op: "get", Collection: collection, Err: err}
	}
	return json.RawMessage(doc), true, nil
}

func (t *tx) Delete(collection string, key types.Key) (bool, error) {
	c, err := t.collection("delete", collection)
	if err != nil {
		return false, err
	}
	fail := func(err error) (bool, error) {
		return false, &types.StorageError{Op: "delete", Collection: collection, Err: err}
	}
	if !t.writable {
		return fail(errReadOnly)
	}
	pk, err := schema.EncodeKey(key)
	if err != nil {
		return fail(err)
	}
	res, err := t.sqlTx.ExecContext(t.ctx, fmt.Sprintf("DELETE FROM %s WHERE pk = ?", docTable(c.Name)), pk)
	if err != nil {
		return fail(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fail(err)
	}
	if err := t.replaceEntries(c.Name, pk, nil); err != nil {
		return fail(err)
	}
	return n > 0, nil
}

func (t *tx) Count(collection string) (int, error) {
	c, err := t.collection("count", collection)
	if err != nil {
		return 0, err
	}
	var n int
	if err := t.sqlTx.QueryRowContext(t.ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", docTable(c.Name))).Scan(&n); err != nil {
		return 0, &types.StorageError{Op: "count", Collection: collection, Err: err}
	}
	return n, nil
}

// Query walks the primary key or an index table in value order. Prefix
// scans seek to the first candidate and stop at the first value past the
// prefix; case-folded scans visit the whole index.
func (t *tx) Query(collection string, q types.Query) ([]json.RawMessage, error) {
	c, err := t.collection("query", collection)
	if err != nil {
		return nil, err
	}
	fail := func(err error) ([]json.RawMessage, error) {
		return nil, &types.StorageError{Op: "query", Collection: collection, Err: err}
	}
	if err := c.CheckQuery(q); err != nil {
		return fail(err)
	}

	var (
		where []string
		args  []any
		sqlQ  string
	)
	if q.Index == "" {
		sqlQ = fmt.Sprintf("SELECT pk, pk, doc FROM %s", docTable(c.Name))
	} else {
		sqlQ = fmt.Sprintf("SELECT i.value, i.pk, d.doc FROM %s i JOIN %s d ON d.pk = i.pk",
			indexTable(c.Name), docTable(c.Name))
		where = append(where, "i.index_name = ?")
		args = append(args, q.Index)
	}
	valueCol := "i.value"
	if q.Index == "" {
		valueCol = "pk"
	}

	var encodedPrefix string
	switch {
	case q.Equals != nil:
		enc, err := schema.EncodeKey(q.Equals)
		if err != nil {
			return fail(err)
		}
		where = append(where, valueCol+" = ?")
		args = append(args, enc)
	case q.Prefix != "" && !q.FoldCase:
		encodedPrefix = schema.EncodePrefix(q.Prefix)
		where = append(where, valueCol+" >= ?")
		args = append(args, encodedPrefix)
	}
	if len(where) > 0 {
		sqlQ += " WHERE " + strings.Join(where, " AND ")
	}
	if q.Index == "" {
		sqlQ += " ORDER BY pk"
	} else {
		sqlQ += " ORDER BY i.value, i.pk"
	}

	rows, err := t.sqlTx.QueryContext(t.ctx, sqlQ, args...)
	if err != nil {
		return fail(err)
	}
	defer rows.Close()

	var match func(string) bool
	if q.Prefix != "" && q.FoldCase {
		match = schema.PrefixMatcher(q.Prefix, true)
	}

	out := []json.RawMessage{}
	seen := make(map[string]bool)
	for rows.Next() {
		var value, pk, doc string
		if err := rows.Scan(&value, &pk, &doc); err != nil {
			return fail(err)
		}
		if encodedPrefix != "" && !strings.HasPrefix(value, encodedPrefix) {
			break
		}
		if match != nil {
			s, ok := schema.DecodeString(value)
			if !ok || !match(s) {
				continue
			}
		}
		if seen[pk] {
			continue
		}
		seen[pk] = true
		out = append(out, json.RawMessage(doc))
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return fail(err)
	}
	return out, nil
}
