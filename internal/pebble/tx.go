package pebble

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"

	"github.com/mesh-intelligence/arcstore/internal/schema"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

var errReadOnly = errors.New("write in read-only transaction")

type tx struct {
	r     reader
	batch *pebble.Batch
	desc  schema.Descriptor
}

func (t *tx) collection(op, name string) (schema.Collection, error) {
	c, ok := t.desc.Collection(name)
	if !ok {
		return schema.Collection{}, &types.StorageError{Op: op, Collection: name, Err: types.ErrUnknownCollection}
	}
	return c, nil
}

func (t *tx) get(key []byte) ([]byte, bool, error) {
	v, closer, err := t.r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	return bytes.Clone(v), true, nil
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
	fail := func(err error) (types.Key, error) {
		return nil, &types.StorageError{Op: op, Collection: collection, Err: err}
	}
	if t.batch == nil {
		return fail(errReadOnly)
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
	old, exists, err := t.get(docKey(c.Name, pk))
	if err != nil {
		return fail(err)
	}
	if exists && !replace {
		return fail(fmt.Errorf("%w: key %v exists", types.ErrConstraint, key))
	}
	if exists {
		if err := t.deleteEntries(c, pk, old); err != nil {
			return fail(err)
		}
	}

	entries, err := c.Entries(m)
	if err != nil {
		return fail(err)
	}
	if err := t.batch.Set(docKey(c.Name, pk), doc, nil); err != nil {
		return fail(err)
	}
	for _, e := range entries {
		if err := t.batch.Set(indexKey(c.Name, e.Index, e.Value, pk), []byte(pk), nil); err != nil {
			return fail(err)
		}
	}
	return key, nil
}

func (t *tx) deleteEntries(c schema.Collection, pk string, doc []byte) error {
	m, err := schema.Decode(doc)
	if err != nil {
		return err
	}
	entries, err := c.Entries(m)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := t.batch.Delete(indexKey(c.Name, e.Index, e.Value, pk), nil); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) nextSequence(collection string) (int64, error) {
	v, ok, err := t.get(sequenceKey(collection))
	if err != nil {
		return 0, fmt.Errorf("read sequence: %w", err)
	}
	var current int64
	if ok {
		current = int64(binary.BigEndian.Uint64(v))
	}
	next := current + 1
	if err := t.setSequence(collection, next); err != nil {
		return 0, err
	}
	return next, nil
}

func (t *tx) bumpSequence(collection string, value int64) error {
	v, ok, err := t.get(sequenceKey(collection))
	if err != nil {
		return fmt.Errorf("read sequence: %w", err)
	}
	if ok && int64(binary.BigEndian.Uint64(v)) >= value {
		return nil
	}
	return t.setSequence(collection, value)
}

func (t *tx) setSequence(collection string, value int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(value))
	if err := t.batch.Set(sequenceKey(collection), buf, nil); err != nil {
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
	doc, ok, err := t.get(docKey(c.Name, pk))
	if err != nil {
		return nil, false, &types.StorageError{Op: "get", Collection: collection, Err: err}
	}
	return json.RawMessage(doc), ok, nil
}

func (t *tx) Delete(collection string, key types.Key) (bool, error) {
	c, err := t.collection("delete", collection)
	if err != nil {
		return false, err
	}
	fail := func(err error) (bool, error) {
		return false, &types.StorageError{Op: "delete", Collection: collection, Err: err}
	}
	if t.batch == nil {
		return fail(errReadOnly)
	}
	pk, err := schema.EncodeKey(key)
	if err != nil {
		return fail(err)
	}
	old, ok, err := t.get(docKey(c.Name, pk))
	if err != nil {
		return fail(err)
	}
	if !ok {
		return false, nil
	}
	if err := t.deleteEntries(c, pk, old); err != nil {
		return fail(err)
	}
	if err := t.batch.Delete(docKey(c.Name, pk), nil); err != nil {
		return fail(err)
	}
	return true, nil
}

func (t *tx) Count(collection string) (int, error) {
	c, err := t.collection("count", collection)
	if err != nil {
		return 0, err
	}
	prefix := docPrefix(c.Name)
	iter, err := t.r.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return 0, &types.StorageError{Op: "count", Collection: collection, Err: err}
	}
	defer iter.Close()
	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n, nil
}

// Query scans the document range for primary key queries and the index range
// otherwise. Index entries carry the pk as their value, so each hit costs
// one point read.
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

	var prefix []byte
	if q.Index == "" {
		prefix = docPrefix(c.Name)
	} else {
		prefix = indexPrefix(c.Name, q.Index)
	}
	lower, upper := prefix, upperBound(prefix)

	var encodedPrefix string
	switch {
	case q.Equals != nil:
		enc, err := schema.EncodeKey(q.Equals)
		if err != nil {
			return fail(err)
		}
		if q.Index == "" {
			lower = append(bytes.Clone(prefix), enc...)
			upper = append(bytes.Clone(lower), 0)
		} else {
			lower = append(append(bytes.Clone(prefix), enc...), 0)
			upper = upperBound(lower)
		}
	case q.Prefix != "" && !q.FoldCase:
		encodedPrefix = schema.EncodePrefix(q.Prefix)
		lower = append(bytes.Clone(prefix), encodedPrefix...)
	}

	iter, err := t.r.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return fail(err)
	}
	defer iter.Close()

	var match func(string) bool
	if q.Prefix != "" && q.FoldCase {
		match = schema.PrefixMatcher(q.Prefix, true)
	}

	out := []json.RawMessage{}
	seen := make(map[string]bool)
	for iter.First(); iter.Valid(); iter.Next() {
		var value, pk string
		var doc []byte
		if q.Index == "" {
			value = string(iter.Key()[len(prefix):])
			pk = value
			doc = bytes.Clone(iter.Value())
		} else {
			value = indexValue(prefix, iter.Key())
			pk = string(iter.Value())
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

		if doc == nil {
			var ok bool
			doc, ok, err = t.get(docKey(c.Name, pk))
			if err != nil {
				return fail(err)
			}
			if !ok {
				return fail(fmt.Errorf("index %s references missing document", q.Index))
			}
		}
		out = append(out, json.RawMessage(doc))
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return fail(err)
	}
	return out, nil
}
