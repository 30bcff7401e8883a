package coordinator

import "time"

// SyncState 同步状态
type SyncState string

const (
	StateIdle       SyncState = "idle"
	StateSyncing    SyncState = "syncing"
	StateSynced     SyncState = "synced"
	StateSaving     SyncState = "saving"
	StateSaved      SyncState = "saved"
	StateSaveFailed SyncState = "save_failed"
	StateSyncError  SyncState = "sync_error"
)

// Status 同步状态快照
type Status struct {
	State          SyncState  `json:"state"`
	Mode           string     `json:"mode"`
	Backend        string     `json:"backend"`
	RecordCount    int        `json:"recordCount"`
	PayloadBytes   int        `json:"payloadBytes"`
	SoftLimitBytes int        `json:"softLimitBytes,omitempty"`
	HardLimitBytes int        `json:"hardLimitBytes,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
	LastSyncedAt   *time.Time `json:"lastSyncedAt,omitempty"`
}

// setState 调用方需持有 stateMu
func (c *Coordinator) setState(state SyncState, err error) {
	c.status.State = state
	if err != nil {
		c.status.LastError = err.Error()
		return
	}
	c.status.LastError = ""
	if state == StateSynced || state == StateSaved {
		now := c.now()
		c.status.LastSyncedAt = &now
	}
}
