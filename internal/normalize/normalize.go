// Package normalize turns legacy request rows into request records carrying
// a one-entry transaction log.
package normalize

import (
	"strings"
	"time"

	"github.com/mesh-intelligence/arcstore/internal/headers"
	"github.com/mesh-intelligence/arcstore/internal/legacy"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

// DefaultMimeType is the body type used when a request has a body but no
// content type.
const DefaultMimeType = "application/x-www-form-urlencoded"

// Placeholder response of a request that was never answered.
const (
	NoResponseStatus = 0
	NoResponseText   = "No response"
)

// Normalizer builds transaction logs. The zero value is usable and stamps
// logs with the current arcstore version.
type Normalizer struct {
	Creator types.HARCreator
	Browser types.HARCreator
	Comment string
}

// New returns a Normalizer for logs produced during migration.
func New() Normalizer {
	return Normalizer{
		Creator: types.HARCreator{
			Name:    types.ToolName,
			Version: types.Version,
			Comment: "Created during legacy store migration",
		},
		Browser: types.HARCreator{Name: "arcstore", Version: types.Version},
		Comment: "Imported from legacy store",
	}
}

// RequestKey identifies a request inside a transaction log.
func RequestKey(method, url string) string {
	return method + ":" + url
}

// HasBody reports whether requests with method carry a body.
func HasBody(method string) bool {
	switch strings.ToUpper(method) {
	case "GET", "HEAD":
		return false
	}
	return true
}

// Normalize converts row into a history request. Callers set Type to saved
// for rows of the saved request table. A row without url or method is
// rejected with a *types.ValidationError and nothing is produced.
func (n Normalizer) Normalize(row legacy.RequestRow) (types.RequestRecord, error) {
	if row.URL == "" {
		return types.RequestRecord{}, &types.ValidationError{Entity: "legacy request", Field: "url", Reason: "is required"}
	}
	if row.Method == "" {
		return types.RequestRecord{}, &types.ValidationError{Entity: "legacy request", Field: "method", Reason: "is required"}
	}

	started := formatTime(row.Time)
	req := types.HARRequest{
		Method:      row.Method,
		URL:         row.URL,
		HTTPVersion: "HTTP/1.1",
		Cookies:     []types.HARCookie{},
		Headers:     headers.Parse(row.Headers),
		QueryString: []types.HARNameValue{},
		HeadersSize: -1,
		BodySize:    -1,
	}
	if HasBody(row.Method) {
		req.Headers = headers.CombineEncoding(req.Headers, row.Encoding)
		mime := headers.ContentType(req.Headers)
		if mime == "" {
			mime = DefaultMimeType
		}
		req.PostData = &types.HARPostData{MimeType: mime, Text: row.Payload}
		req.BodySize = len(row.Payload)
	}

	page := types.HARPage{
		StartedDateTime: started,
		ID:              RequestKey(row.Method, row.URL),
		Title:           row.Name,
		PageTimings:     types.HARPageTimings{OnContentLoad: -1, OnLoad: -1},
	}
	entry := types.HAREntry{
		Pageref:         page.ID,
		StartedDateTime: started,
		Request:         req,
		Response: types.HARResponse{
			Status:      NoResponseStatus,
			StatusText:  NoResponseText,
			HTTPVersion: "HTTP/1.1",
			Cookies:     []types.HARCookie{},
			Headers:     []types.HARHeader{},
			HeadersSize: -1,
			BodySize:    -1,
		},
		Timings: types.HARTimings{Send: -1, Wait: -1, Receive: -1},
	}

	return types.RequestRecord{
		URL:    row.URL,
		Method: row.Method,
		Type:   types.RequestTypeHistory,
		Har: types.HARLog{
			Version: "1.2",
			Creator: n.Creator,
			Browser: n.Browser,
			Pages:   []types.HARPage{page},
			Entries: []types.HAREntry{entry},
			Comment: n.Comment,
		},
		LegacyID: row.ID,
	}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Unix(0, 0)
	}
	return t.UTC().Format(time.RFC3339Nano)
}
