package types

// Header kinds.
const (
	HeaderKindRequest  = "request"
	HeaderKindResponse = "response"
)

// HTTPStatusRecord describes an HTTP status code.
type HTTPStatusRecord struct {
	Code        int    `json:"code"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// Validate reports whether the record can be stored.
func (r HTTPStatusRecord) Validate() error {
	if r.Code < 100 || r.Code > 999 {
		return &ValidationError{Entity: "status", Field: "code", Reason: "out of range"}
	}
	return nil
}

// HTTPHeaderRecord describes a request or response header name.
type HTTPHeaderRecord struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
	Example     string `json:"example,omitempty"`
}

// Validate reports whether the record can be stored.
func (r HTTPHeaderRecord) Validate() error {
	if r.Name == "" {
		return &ValidationError{Entity: "header", Field: "name", Reason: "is required"}
	}
	if r.Kind != HeaderKindRequest && r.Kind != HeaderKindResponse {
		return &ValidationError{Entity: "header", Field: "kind", Reason: "must be request or response"}
	}
	return nil
}
