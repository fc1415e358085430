package types

// ExportRecord links a request to the identifier it was given by the remote
// sharing service.
type ExportRecord struct {
	ServerID  string `json:"serverId"`
	RequestID int64  `json:"requestId"`
	LegacyID  int64  `json:"legacyId,omitempty"`
}

// Validate reports whether the record can be stored.
func (r ExportRecord) Validate() error {
	if r.ServerID == "" {
		return &ValidationError{Entity: "server export", Field: "serverId", Reason: "is required"}
	}
	if r.RequestID <= 0 {
		return &ValidationError{Entity: "server export", Field: "requestId", Reason: "is required"}
	}
	return nil
}

// DriveRecord links a request to a cloud drive file.
type DriveRecord struct {
	DriveFileID string `json:"driveFileId"`
	RequestID   int64  `json:"requestId"`
}

// Validate reports whether the record can be stored.
func (r DriveRecord) Validate() error {
	if r.DriveFileID == "" {
		return &ValidationError{Entity: "drive export", Field: "driveFileId", Reason: "is required"}
	}
	if r.RequestID <= 0 {
		return &ValidationError{Entity: "drive export", Field: "requestId", Reason: "is required"}
	}
	return nil
}
