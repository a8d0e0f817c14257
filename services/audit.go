package services

import (
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"crm-gamification-system/models"
)

// InsertSyncLog appends one entry to the sync_logs audit trail. Failures are
// logged and swallowed: losing an audit line must never abort a cycle.
func InsertSyncLog(db *gorm.DB, companyID int64, logType, message string) {
	entry := models.SyncLog{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		Timestamp: time.Now().UTC(),
		Type:      logType,
		Message:   message,
	}
	if err := db.Create(&entry).Error; err != nil {
		log.Printf("⚠️ Failed to insert sync log for company %d: %v", companyID, err)
	}
}
