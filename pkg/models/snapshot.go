package models

import "time"

// SnapshotVersion tags the persisted document format. Loaders migrate
// older versions forward by backfilling defaulted fields.
const SnapshotVersion = "2.0"

// Snapshot is the full persisted state of the store.
type Snapshot struct {
	Version   string              `json:"version"`
	Threads   map[string]*Thread  `json:"threads"`
	Messages  map[string]*Message `json:"messages"`
	Settings  Settings            `json:"settings"`
	LastSaved time.Time           `json:"lastSaved"`
	// Export metadata, present only on exported documents.
	ExportedAt    *time.Time `json:"exportedAt,omitempty"`
	ExportVersion string     `json:"exportVersion,omitempty"`
}
