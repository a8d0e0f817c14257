package models

import (
	"time"
)

// Sync cycle outcomes recorded in sync_control.last_status.
const (
	SyncStatusIdle      = "IDLE"
	SyncStatusRunning   = "RUNNING"
	SyncStatusSucceeded = "SUCCEEDED"
	SyncStatusPartial   = "PARTIAL"
	SyncStatusFailed    = "FAILED"
)

// Sync log entry types.
const (
	SyncLogInfo  = "INFO"
	SyncLogError = "ERROR"
)

// SyncControl is the per-company sync cursor: exactly one row per company,
// mutated only by the sync worker. LastSync is the incremental watermark;
// it only advances on a fully successful cycle so a PARTIAL cycle retries
// the same window.
type SyncControl struct {
	CompanyID  int64      `gorm:"primaryKey;autoIncrement:false" json:"company_id"`
	LastSync   *time.Time `json:"last_sync,omitempty"`
	NextSync   *time.Time `json:"next_sync,omitempty"`
	LastStatus string     `gorm:"type:varchar(16);default:'IDLE'" json:"last_status"`
	LastError  *string    `json:"last_error,omitempty"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SyncControl) TableName() string {
	return "sync_control"
}

// SyncLog is the append-only audit trail of sync attempts and outcomes.
// Operators reconstruct history from here, not from process output.
type SyncLog struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	CompanyID int64     `gorm:"index" json:"company_id"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
	Type      string    `gorm:"type:varchar(16)" json:"type"`
	Message   string    `json:"message"`
}

func (SyncLog) TableName() string {
	return "sync_logs"
}
