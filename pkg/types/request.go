package types

// Request kinds.
const (
	RequestTypeHistory = "history"
	RequestTypeSaved   = "saved"
)

// RequestRecord is a stored request with its transaction log. ID is assigned
// by the engine on first insert. LegacyID carries the identifier the request
// had in the legacy store and is used only to reconcile imports.
type RequestRecord struct {
	ID       int64  `json:"id,omitempty"`
	URL      string `json:"url"`
	Method   string `json:"method"`
	Type     string `json:"type"`
	Har      HARLog `json:"har"`
	LegacyID int64  `json:"legacyId,omitempty"`
}

// Validate reports whether the record can be stored.
func (r RequestRecord) Validate() error {
	if r.URL == "" {
		return &ValidationError{Entity: "request", Field: "url", Reason: "is required"}
	}
	if r.Method == "" {
		return &ValidationError{Entity: "request", Field: "method", Reason: "is required"}
	}
	switch r.Type {
	case RequestTypeHistory, RequestTypeSaved:
	default:
		return &ValidationError{Entity: "request", Field: "type", Reason: "must be history or saved"}
	}
	return nil
}
