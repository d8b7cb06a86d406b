package models

import "time"

// BackupVersion is the format version written into session backups
const BackupVersion = 1

// SessionDocument is the durable snapshot of tabs, groups, layout and the active tab
type SessionDocument struct {
	Tabs        []Tab    `json:"tabs"`
	Groups      []Group  `json:"groups"`
	Layout      []string `json:"layout"`
	ActiveTabID string   `json:"activeTabId"`
}

// Backup wraps a session document for export
type Backup struct {
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"createdAt"`
	Session   SessionDocument `json:"session"`
}

// RestoreResponse tells the client what a successful restore requires
type RestoreResponse struct {
	Restored        bool `json:"restored"`
	RestartRequired bool `json:"restartRequired"`
	Tabs            int  `json:"tabs"`
}
