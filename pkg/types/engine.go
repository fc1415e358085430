package types

import (
	"context"
	"encoding/json"
)

// Key identifies a document or an index value. Single-field keys have one
// element; compound keys have one element per field, in declaration order.
// Elements are strings or integers.
type Key []any

// IntKey returns a single-field integer key.
func IntKey(id int64) Key { return Key{id} }

// StringKey returns a single-field string key.
func StringKey(s string) Key { return Key{s} }

// Query selects documents of one collection through an index. An empty Index
// selects by primary key. With no Equals and no Prefix every document is
// returned. Results are ordered by index value, then primary key.
type Query struct {
	Index    string
	Equals   Key
	Prefix   string
	FoldCase bool
	Limit    int
}

// Tx is the unit of work handed to Engine.Update and Engine.View. A Tx is
// not safe for concurrent use and is invalid once the callback returns.
type Tx interface {
	// Add inserts doc. Auto-increment collections assign the next id when the
	// document has none and write it back into the stored document. Add
	// fails with ErrConstraint when the key already exists.
	Add(collection string, doc json.RawMessage) (Key, error)

	// Put inserts or replaces doc by its primary key.
	Put(collection string, doc json.RawMessage) (Key, error)

	// Get returns the document stored under key.
	Get(collection string, key Key) (json.RawMessage, bool, error)

	// Delete removes the document under key and reports whether it existed.
	Delete(collection string, key Key) (bool, error)

	// Query returns the documents matching q.
	Query(collection string, q Query) ([]json.RawMessage, error)

	// Count returns the number of documents in the collection.
	Count(collection string) (int, error)
}

// Engine is a transactional document store keyed by the collection schema.
// Update runs fn in a read-write transaction that commits when fn returns
// nil and rolls back otherwise. View runs fn against a consistent read.
type Engine interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
