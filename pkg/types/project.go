package types

import (
	"slices"
	"time"
)

// ProjectRecord is a named group of saved requests. RequestIDs only grows
// through AddRequest and never holds the same id twice.
type ProjectRecord struct {
	ID         int64     `json:"id,omitempty"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"time"`
	RequestIDs []int64   `json:"requestIds"`
	LegacyID   int64     `json:"legacyId,omitempty"`
}

// AddRequest appends id to the project's request list. It reports false when
// the id was already present.
func (p *ProjectRecord) AddRequest(id int64) bool {
	if slices.Contains(p.RequestIDs, id) {
		return false
	}
	p.RequestIDs = append(p.RequestIDs, id)
	return true
}

// HasRequest reports whether id is referenced by the project.
func (p ProjectRecord) HasRequest(id int64) bool {
	return slices.Contains(p.RequestIDs, id)
}

// Validate reports whether the record can be stored.
func (p ProjectRecord) Validate() error {
	if p.Name == "" {
		return &ValidationError{Entity: "project", Field: "name", Reason: "is required"}
	}
	seen := make(map[int64]bool, len(p.RequestIDs))
	for _, id := range p.RequestIDs {
		if id <= 0 {
			return &ValidationError{Entity: "project", Field: "requestIds", Reason: "must hold positive ids"}
		}
		if seen[id] {
			return &ValidationError{Entity: "project", Field: "requestIds", Reason: "must not repeat an id"}
		}
		seen[id] = true
	}
	return nil
}
