package legacy

import (
	"strconv"
	"strings"
	"time"
)

// Row is one legacy table row as column name to value.
type Row map[string]any

// String returns the column as text. Missing and NULL columns are "".
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// Int returns the column as an integer. Non-numeric values are 0.
func (r Row) Int(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		return n
	default:
		return 0
	}
}

// Time reads a millisecond epoch column. 0 or missing is the zero time.
func (r Row) Time(col string) time.Time {
	ms := r.Int(col)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// RequestRow is a row of the saved request or history table. History rows
// have no name and no project.
type RequestRow struct {
	ID        int64
	ProjectID int64
	Name      string
	URL       string
	Method    string
	Headers   string
	Payload   string
	Encoding  string
	Time      time.Time
}

// ParseRequest reads a request_data or history row.
func ParseRequest(r Row) RequestRow {
	return RequestRow{
		ID:        r.Int("id"),
		ProjectID: r.Int("project"),
		Name:      r.String("name"),
		URL:       r.String("url"),
		Method:    r.String("method"),
		Headers:   r.String("headers"),
		Payload:   r.String("payload"),
		Encoding:  r.String("encoding"),
		Time:      r.Time("time"),
	}
}

// ProjectRow is a row of the projects table.
type ProjectRow struct {
	ID   int64
	Name string
	Time time.Time
}

// ParseProject reads a projects row.
func ParseProject(r Row) ProjectRow {
	return ProjectRow{ID: r.Int("id"), Name: r.String("name"), Time: r.Time("time")}
}

// ExportRow links a saved request to its id on the sharing service.
type ExportRow struct {
	ID        int64
	RequestID int64
	ServerID  string
	Type      string
}

// ParseExport reads an exported row.
func ParseExport(r Row) ExportRow {
	return ExportRow{
		ID:        r.Int("id"),
		RequestID: r.Int("reference_id"),
		ServerID:  r.String("gaeKey"),
		Type:      r.String("type"),
	}
}

// URLRow is a row of the URL or socket history tables.
type URLRow struct {
	URL  string
	Time time.Time
}

// ParseURL reads a urls or websocket_data row.
func ParseURL(r Row) URLRow {
	return URLRow{URL: r.String("url"), Time: r.Time("time")}
}
