package models

// SyncRecord is the envelope exchanged with the central server.
// Data holds the record snapshot in legacy field names
type SyncRecord struct {
	SyncID     string         `json:"SyncID"`
	RecordType string         `json:"RecordType"` // legacy table name
	RecordID   string         `json:"RecordID"`
	SyncType   string         `json:"SyncType"` // I, U, D
	StoreID    string         `json:"StoreID,omitempty"`
	Data       map[string]any `json:"Data,omitempty"`
}
