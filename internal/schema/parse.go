package schema

import (
	"fmt"
	"strings"
)

// Parse reads a compact collection declaration. The first item is the
// primary key, the rest are secondary indexes:
//
//	++id          auto-increment key on field id
//	&url, url     natural key on field url
//	&[a+b], [a+b] compound key or index on fields a and b
//	*tags         multi-entry index on array field tags
func Parse(name, spec string) (Collection, error) {
	items := strings.Split(spec, ",")
	c := Collection{Name: name}

	pk := strings.TrimSpace(items[0])
	if pk == "" {
		return Collection{}, fmt.Errorf("parse %s: empty primary key", name)
	}
	switch {
	case strings.HasPrefix(pk, "++"):
		c.PrimaryKey.AutoIncrement = true
		pk = pk[2:]
	case strings.HasPrefix(pk, "&"):
		pk = pk[1:]
	}
	fields, err := parseFields(pk)
	if err != nil {
		return Collection{}, fmt.Errorf("parse %s primary key: %w", name, err)
	}
	c.PrimaryKey.Fields = fields

	for _, raw := range items[1:] {
		item := strings.TrimSpace(raw)
		if item == "" {
			continue
		}
		var idx Index
		switch {
		case strings.HasPrefix(item, "*"):
			idx.MultiEntry = true
			item = item[1:]
		case strings.HasPrefix(item, "&"), strings.HasPrefix(item, "++"):
			return Collection{}, fmt.Errorf("parse %s: unsupported index modifier in %q", name, raw)
		}
		idx.Fields, err = parseFields(item)
		if err != nil {
			return Collection{}, fmt.Errorf("parse %s index: %w", name, err)
		}
		idx.Name = strings.Join(idx.Fields, "+")
		c.Indexes = append(c.Indexes, idx)
	}

	if err := c.validate(); err != nil {
		return Collection{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return c, nil
}

// MustParse is Parse for declarations known at compile time.
func MustParse(name, spec string) Collection {
	c, err := Parse(name, spec)
	if err != nil {
		panic(err)
	}
	return c
}

func parseFields(s string) ([]string, error) {
	if strings.HasPrefix(s, "[") {
		if !strings.HasSuffix(s, "]") {
			return nil, fmt.Errorf("unterminated compound %q", s)
		}
		parts := strings.Split(s[1:len(s)-1], "+")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
			if parts[i] == "" {
				return nil, fmt.Errorf("empty field in %q", s)
			}
		}
		return parts, nil
	}
	if s == "" || strings.ContainsAny(s, "[]+*&") {
		return nil, fmt.Errorf("bad field %q", s)
	}
	return []string{s}, nil
}
