package models

import (
	"time"
)

// KommoConfig holds the per-company CRM credentials and sync settings.
// Rows are written by the operator (or the admin UI); the sync core only
// backfills company_id when a row arrives without one.
type KommoConfig struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	CompanyID   int64  `gorm:"uniqueIndex" json:"company_id"` // Kommo account id
	APIURL      string `gorm:"not null" json:"api_url"`
	AccessToken string `gorm:"not null" json:"-"`

	// SyncIntervalMin is the normal delay between cycles, in minutes.
	SyncIntervalMin int `gorm:"default:5" json:"sync_interval_min"`

	// BackfillFrom bounds the first historical pull. Nil = full history.
	BackfillFrom *time.Time `json:"backfill_from,omitempty"`

	Active    bool      `gorm:"default:true" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (KommoConfig) TableName() string {
	return "kommo_config"
}

// SyncInterval returns the configured interval as a duration, clamped to a
// one minute floor so a misconfigured row cannot hot-loop a tenant.
func (c *KommoConfig) SyncInterval() time.Duration {
	if c.SyncIntervalMin < 1 {
		return time.Minute
	}
	return time.Duration(c.SyncIntervalMin) * time.Minute
}
