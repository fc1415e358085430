package types

import "time"

// URLHistoryRecord is an autocomplete entry for request URLs.
type URLHistoryRecord struct {
	URL        string    `json:"url"`
	LastAccess time.Time `json:"time"`
}

// Validate reports whether the record can be stored.
func (r URLHistoryRecord) Validate() error {
	if r.URL == "" {
		return &ValidationError{Entity: "url history", Field: "url", Reason: "is required"}
	}
	return nil
}

// SocketHistoryRecord is an autocomplete entry for socket endpoints.
type SocketHistoryRecord struct {
	URL        string    `json:"url"`
	LastAccess time.Time `json:"time"`
}

// Validate reports whether the record can be stored.
func (r SocketHistoryRecord) Validate() error {
	if r.URL == "" {
		return &ValidationError{Entity: "socket history", Field: "url", Reason: "is required"}
	}
	return nil
}
