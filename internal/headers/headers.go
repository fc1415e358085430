// Package headers handles header blocks stored by the legacy client as a
// single "Name: value" string per request.
package headers

import (
	"strings"

	"github.com/mesh-intelligence/arcstore/pkg/types"
)

const contentType = "Content-Type"

// Parse splits a raw header block into headers, one per non-blank line.
// Names keep their original spelling. A line without a colon becomes a
// header with an empty value.
func Parse(raw string) []types.HARHeader {
	out := []types.HARHeader{}
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, value, _ := strings.Cut(line, ":")
		out = append(out, types.HARHeader{
			Name:  strings.TrimSpace(name),
			Value: strings.TrimSpace(value),
		})
	}
	return out
}

// String renders headers back into a raw block.
func String(hs []types.HARHeader) string {
	var b strings.Builder
	for i, h := range hs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
	}
	return b.String()
}

// Get returns the value of the first header named name, ignoring case.
func Get(hs []types.HARHeader, name string) (string, bool) {
	for _, h := range hs {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// ContentType returns the Content-Type value or "".
func ContentType(hs []types.HARHeader) string {
	v, _ := Get(hs, contentType)
	return v
}

// CombineEncoding folds the legacy per-request encoding field into the
// header list: it becomes the Content-Type unless one is already present.
func CombineEncoding(hs []types.HARHeader, encoding string) []types.HARHeader {
	encoding = strings.TrimSpace(encoding)
	if encoding == "" {
		return hs
	}
	if _, ok := Get(hs, contentType); ok {
		return hs
	}
	return append(hs, types.HARHeader{Name: contentType, Value: encoding})
}
