package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"

	"github.com/mesh-intelligence/arcstore/pkg/types"
)

// Encoded key layout: every part is a one-byte type tag followed by an
// order-preserving body. Compound parts are joined with partSep.
const (
	tagString = 's'
	tagInt    = 'n'
	tagFloat  = 'f'
	partSep   = "\x1f"
)

// Document is a decoded stored document.
type Document map[string]any

// Decode parses raw JSON keeping numbers exact.
func Decode(raw json.RawMessage) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document must be an object", types.ErrInvalidData)
	}
	return doc, nil
}

// PrimaryKeyOf returns the document's primary key. It reports false when a
// key field is missing or null, which is only legal for auto-increment keys.
func (c Collection) PrimaryKeyOf(doc Document) (types.Key, bool, error) {
	key := make(types.Key, 0, len(c.PrimaryKey.Fields))
	for _, f := range c.PrimaryKey.Fields {
		v, ok := doc[f]
		if !ok || v == nil {
			return nil, false, nil
		}
		nv, err := normalize(v)
		if err != nil {
			return nil, false, fmt.Errorf("%s.%s: %w", c.Name, f, err)
		}
		if c.PrimaryKey.AutoIncrement {
			if n, isInt := nv.(int64); isInt && n == 0 {
				return nil, false, nil
			}
		}
		key = append(key, nv)
	}
	return key, true, nil
}

// Entry is one secondary index entry of a document.
type Entry struct {
	Index string
	Value string
}

// Entries returns the encoded index entries of doc. Fields that are missing
// or null produce no entry; multi-entry indexes produce one entry per
// distinct array element.
func (c Collection) Entries(doc Document) ([]Entry, error) {
	var out []Entry
	for _, idx := range c.Indexes {
		if idx.MultiEntry {
			arr, ok := doc[idx.Fields[0]].([]any)
			if !ok {
				continue
			}
			seen := make(map[string]bool, len(arr))
			for _, el := range arr {
				enc, err := EncodeKey(types.Key{el})
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", c.Name, idx.Name, err)
				}
				if !seen[enc] {
					seen[enc] = true
					out = append(out, Entry{Index: idx.Name, Value: enc})
				}
			}
			continue
		}
		key := make(types.Key, 0, len(idx.Fields))
		for _, f := range idx.Fields {
			v, ok := doc[f]
			if !ok || v == nil {
				key = nil
				break
			}
			key = append(key, v)
		}
		if key == nil {
			continue
		}
		enc, err := EncodeKey(key)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", c.Name, idx.Name, err)
		}
		out = append(out, Entry{Index: idx.Name, Value: enc})
	}
	return out, nil
}

// CheckQuery verifies that q can be answered from the declared indexes.
func (c Collection) CheckQuery(q types.Query) error {
	idx := c.primaryIndex()
	if q.Index != "" {
		var ok bool
		if idx, ok = c.Index(q.Index); !ok {
			return fmt.Errorf("%w: %s.%s", types.ErrUnknownIndex, c.Name, q.Index)
		}
	}
	if q.Equals != nil && q.Prefix != "" {
		return fmt.Errorf("%w: equals and prefix are exclusive", types.ErrInvalidQuery)
	}
	if q.Equals != nil && len(q.Equals) != len(idx.Fields) {
		return fmt.Errorf("%w: %s.%s takes %d key parts", types.ErrInvalidQuery, c.Name, idx.Name, len(idx.Fields))
	}
	if q.Prefix != "" && idx.Compound() {
		return fmt.Errorf("%w: prefix search on compound index %s", types.ErrInvalidQuery, idx.Name)
	}
	return nil
}

// EncodeKey renders a key so that byte order matches value order within
// each type.
func EncodeKey(key types.Key) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("%w: empty key", types.ErrInvalidQuery)
	}
	parts := make([]string, len(key))
	for i, v := range key {
		nv, err := normalize(v)
		if err != nil {
			return "", err
		}
		switch x := nv.(type) {
		case string:
			parts[i] = string(tagString) + x
		case int64:
			parts[i] = fmt.Sprintf("%c%016x", tagInt, uint64(x)^(1<<63))
		case float64:
			bits := math.Float64bits(x)
			if x >= 0 {
				bits ^= 1 << 63
			} else {
				bits = ^bits
			}
			parts[i] = fmt.Sprintf("%c%016x", tagFloat, bits)
		}
	}
	return strings.Join(parts, partSep), nil
}

// EncodePrefix renders a string prefix for a range scan over a
// single-field string index.
func EncodePrefix(prefix string) string {
	return string(tagString) + prefix
}

// DecodeString returns the string body of an encoded single-field string
// value. It reports false for other types.
func DecodeString(enc string) (string, bool) {
	if len(enc) == 0 || enc[0] != tagString {
		return "", false
	}
	return enc[1:], true
}

// PrefixMatcher returns a function reporting whether a string starts with
// prefix. With fold set the comparison uses Unicode case folding.
func PrefixMatcher(prefix string, fold bool) func(string) bool {
	if !fold {
		return func(s string) bool { return strings.HasPrefix(s, prefix) }
	}
	caser := cases.Fold()
	folded := caser.String(prefix)
	return func(s string) bool {
		return strings.HasPrefix(caser.String(s), folded)
	}
}

// SetAutoIncrement writes id into the key field of an auto-increment
// document and returns the re-encoded JSON.
func (c Collection) SetAutoIncrement(doc Document, id int64) (json.RawMessage, error) {
	doc[c.PrimaryKey.Fields[0]] = id
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s document: %w", c.Name, err)
	}
	return raw, nil
}

func normalize(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint32:
		return int64(x), nil
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x), nil
		}
		return x, nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %s", types.ErrInvalidData, x)
		}
		return normalize(f)
	default:
		return nil, fmt.Errorf("%w: unsupported key type %T", types.ErrInvalidData, v)
	}
}
