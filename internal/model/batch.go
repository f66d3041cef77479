package model

// SyncItem is one entry of a batch sync request. Items carrying only a
// LocalID are created; items carrying an ID patch the existing task.
type SyncItem struct {
	LocalID string `json:"_localId,omitempty"`
	ID      int64  `json:"id,omitempty"`
	TaskPatch
}

type SyncRequest struct {
	Tasks []SyncItem `json:"tasks"`
}

// SyncMapping pairs a device-local identifier with the id the server assigned.
type SyncMapping struct {
	LocalID  string `json:"localId"`
	ServerID int64  `json:"serverId"`
}

type SyncResult struct {
	Created []Task        `json:"created"`
	Updated []Task        `json:"updated"`
	Mapping []SyncMapping `json:"mapping"`
}
