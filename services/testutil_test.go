package services

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"crm-gamification-system/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.KommoConfig{},
		&models.Broker{},
		&models.Lead{},
		&models.Activity{},
		&models.Rule{},
		&models.BrokerPoints{},
		&models.SyncControl{},
		&models.SyncLog{},
		&models.WeeklyLog{},
		&models.MonthlyLog{},
	))
	return db
}

func timePtr(t time.Time) *time.Time { return &t }

func floatPtr(f float64) *float64 { return &f }

func int64Ptr(i int64) *int64 { return &i }

func strPtr(s string) *string { return &s }
