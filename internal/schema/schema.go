// Package schema declares the collections arcstore persists: their primary
// keys, auto-increment behavior, and secondary indexes. Both storage engines
// derive their physical layout from the Descriptor returned by Define.
package schema

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/arcstore/pkg/types"
)

// Version of the collection layout. Engines record it on creation.
const Version = 1

// Index names used by queries.
const (
	IndexURL         = "url"
	IndexMethod      = "method"
	IndexURLMethod   = "url+method"
	IndexLegacyID    = "legacyId"
	IndexName        = "name"
	IndexKind        = "kind"
	IndexRequestID   = "requestId"
	IndexRequestIDs  = "requestIds"
	IndexServerID    = "serverId"
	IndexDriveFileID = "driveFileId"
)

// KeyPath is a primary key declaration.
type KeyPath struct {
	Fields        []string
	AutoIncrement bool
}

// Index is a secondary index declaration. A multi-entry index stores one
// entry per element of an array field.
type Index struct {
	Name       string
	Fields     []string
	MultiEntry bool
}

// Compound reports whether the index spans more than one field.
func (i Index) Compound() bool { return len(i.Fields) > 1 }

// Collection is the declaration of one collection.
type Collection struct {
	Name       string
	PrimaryKey KeyPath
	Indexes    []Index
}

// Index returns the named secondary index.
func (c Collection) Index(name string) (Index, bool) {
	for _, idx := range c.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return Index{}, false
}

// primaryIndex presents the primary key as an index for query planning.
func (c Collection) primaryIndex() Index {
	return Index{Name: "", Fields: c.PrimaryKey.Fields}
}

// Descriptor is the full collection layout.
type Descriptor struct {
	Version     int
	Collections []Collection
}

var collectionSpecs = []struct {
	name string
	spec string
}{
	{types.CollectionHeaders, "&[name+kind],name,kind"},
	{types.CollectionStatuses, "&code"},
	{types.CollectionURLHistory, "&url"},
	{types.CollectionSocketHistory, "&url"},
	{types.CollectionRequests, "++id,url,method,[url+method],legacyId"},
	{types.CollectionDriveExports, "[driveFileId+requestId],driveFileId,requestId"},
	{types.CollectionServerExports, "[serverId+requestId],serverId,requestId,legacyId"},
	{types.CollectionProjects, "++id,*requestIds,legacyId"},
}

// Define returns the collection layout. It is deterministic and has no side
// effects.
func Define() Descriptor {
	d := Descriptor{Version: Version}
	for _, cs := range collectionSpecs {
		d.Collections = append(d.Collections, MustParse(cs.name, cs.spec))
	}
	return d
}

// Collection returns the named collection.
func (d Descriptor) Collection(name string) (Collection, bool) {
	for _, c := range d.Collections {
		if c.Name == name {
			return c, true
		}
	}
	return Collection{}, false
}

// RequireIndex fails when the collection or the index is not declared. An
// empty index names the primary key.
func (d Descriptor) RequireIndex(collection, index string) error {
	c, ok := d.Collection(collection)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownCollection, collection)
	}
	if index == "" {
		return nil
	}
	if _, ok := c.Index(index); !ok {
		return fmt.Errorf("%w: %s.%s", types.ErrUnknownIndex, collection, index)
	}
	return nil
}

// Validate checks the layout for duplicate names and unsupported index shapes.
func (d Descriptor) Validate() error {
	seen := make(map[string]bool, len(d.Collections))
	for _, c := range d.Collections {
		if c.Name == "" {
			return fmt.Errorf("collection name must not be empty")
		}
		if seen[c.Name] {
			return fmt.Errorf("collection %s declared twice", c.Name)
		}
		seen[c.Name] = true
		if err := c.validate(); err != nil {
			return fmt.Errorf("collection %s: %w", c.Name, err)
		}
	}
	return nil
}

func (c Collection) validate() error {
	if len(c.PrimaryKey.Fields) == 0 {
		return fmt.Errorf("primary key has no fields")
	}
	if c.PrimaryKey.AutoIncrement && len(c.PrimaryKey.Fields) != 1 {
		return fmt.Errorf("auto-increment key must be a single field")
	}
	names := make(map[string]bool, len(c.Indexes))
	for _, idx := range c.Indexes {
		if idx.Name == "" || len(idx.Fields) == 0 {
			return fmt.Errorf("index without fields")
		}
		if names[idx.Name] {
			return fmt.Errorf("index %s declared twice", idx.Name)
		}
		names[idx.Name] = true
		if idx.MultiEntry && idx.Compound() {
			return fmt.Errorf("index %s: multi-entry index must be a single field", idx.Name)
		}
		for _, f := range idx.Fields {
			if strings.TrimSpace(f) == "" {
				return fmt.Errorf("index %s: empty field name", idx.Name)
			}
		}
	}
	return nil
}
