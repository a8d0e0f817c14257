package models

import (
	"time"
)

// Rollup period types.
const (
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// RollupSnapshot is the common shape of a periodic aggregate snapshot.
// One row per company per period; re-running a period supersedes the prior
// snapshot (upsert on company_id + period_start). The unique index uses the
// composite form so each embedding table gets its own index name; a shared
// literal name would collide between weekly_logs and monthly_logs.
type RollupSnapshot struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	CompanyID   int64     `gorm:"index:,unique,composite:period;not null" json:"company_id"`
	PeriodStart time.Time `gorm:"index:,unique,composite:period;not null" json:"period_start"`
	PeriodEnd   time.Time `gorm:"not null" json:"period_end"`

	// Leads created in the period, and how many of them closed as won.
	TotalLeads  int64 `gorm:"default:0" json:"total_leads"`
	LeadsGanhos int64 `gorm:"default:0" json:"leads_ganhos"`

	// Aggregate standings at snapshot time.
	TotalPontos  int64 `gorm:"default:0" json:"total_pontos"`
	TotalBrokers int64 `gorm:"default:0" json:"total_brokers"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// WeeklyLog is a Monday-to-Monday snapshot.
type WeeklyLog struct {
	RollupSnapshot `gorm:"embedded"`
}

func (WeeklyLog) TableName() string {
	return "weekly_logs"
}

// MonthlyLog is a first-of-month-to-first-of-month snapshot.
type MonthlyLog struct {
	RollupSnapshot `gorm:"embedded"`
}

func (MonthlyLog) TableName() string {
	return "monthly_logs"
}
