// Package records moves typed entities in and out of a types.Tx.
package records

import (
	"encoding/json"
	"fmt"

	"github.com/mesh-intelligence/arcstore/pkg/types"
)

// Add encodes v and inserts it into collection.
func Add[T any](tx types.Tx, collection string, v T) (types.Key, error) {
	doc, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s record: %w", collection, err)
	}
	return tx.Add(collection, doc)
}

// Put encodes v and upserts it into collection.
func Put[T any](tx types.Tx, collection string, v T) (types.Key, error) {
	doc, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s record: %w", collection, err)
	}
	return tx.Put(collection, doc)
}

// Get loads the record stored under key.
func Get[T any](tx types.Tx, collection string, key types.Key) (T, bool, error) {
	var v T
	doc, ok, err := tx.Get(collection, key)
	if err != nil || !ok {
		return v, ok, err
	}
	if err := json.Unmarshal(doc, &v); err != nil {
		return v, false, fmt.Errorf("decode %s record: %w", collection, err)
	}
	return v, true, nil
}

// Query loads every record matching q. The result is never nil.
func Query[T any](tx types.Tx, collection string, q types.Query) ([]T, error) {
	docs, err := tx.Query(collection, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", collection, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ID extracts the surrogate id from an auto-increment key.
func ID(key types.Key) (int64, error) {
	if len(key) != 1 {
		return 0, fmt.Errorf("%w: key %v is not a surrogate id", types.ErrInvalidData, key)
	}
	id, ok := key[0].(int64)
	if !ok {
		return 0, fmt.Errorf("%w: key %v is not a surrogate id", types.ErrInvalidData, key)
	}
	return id, nil
}
