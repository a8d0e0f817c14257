package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crm-gamification-system/models"
)

// SnapshotArchiver persists a copy of a rollup snapshot outside the
// database. Optional; a nil archiver means snapshots live only in Postgres.
type SnapshotArchiver interface {
	ArchiveSnapshot(ctx context.Context, companyID int64, period string, snapshot models.RollupSnapshot) error
}

// RollupService materializes the weekly and monthly aggregate snapshots.
// Periods are fixed: weeks run Monday 00:00 UTC to Monday, months run from
// the first of the month. Re-running a period supersedes the stored row.
type RollupService struct {
	DB       *gorm.DB
	Archiver SnapshotArchiver
	Now      func() time.Time
}

func NewRollupService(db *gorm.DB) *RollupService {
	return &RollupService{DB: db, Now: time.Now}
}

// RollupWeekly snapshots the most recently completed Monday-to-Monday week
// for one company.
func (s *RollupService) RollupWeekly(ctx context.Context, companyID int64) error {
	start, end := previousWeek(s.Now())
	snapshot, err := s.buildSnapshot(ctx, companyID, start, end)
	if err != nil {
		return err
	}
	row := models.WeeklyLog{RollupSnapshot: snapshot}
	if err := s.upsert(ctx, &row); err != nil {
		return fmt.Errorf("failed to store weekly rollup: %w", err)
	}
	s.archive(ctx, companyID, models.PeriodWeekly, snapshot)
	InsertSyncLog(s.DB, companyID, models.SyncLogInfo,
		fmt.Sprintf("Rollup semanal gravado (%s a %s)", start.Format("2006-01-02"), end.Format("2006-01-02")))
	return nil
}

// RollupMonthly snapshots the most recently completed calendar month for
// one company.
func (s *RollupService) RollupMonthly(ctx context.Context, companyID int64) error {
	start, end := previousMonth(s.Now())
	snapshot, err := s.buildSnapshot(ctx, companyID, start, end)
	if err != nil {
		return err
	}
	row := models.MonthlyLog{RollupSnapshot: snapshot}
	if err := s.upsert(ctx, &row); err != nil {
		return fmt.Errorf("failed to store monthly rollup: %w", err)
	}
	s.archive(ctx, companyID, models.PeriodMonthly, snapshot)
	InsertSyncLog(s.DB, companyID, models.SyncLogInfo,
		fmt.Sprintf("Rollup mensal gravado (%s)", start.Format("2006-01")))
	return nil
}

func (s *RollupService) buildSnapshot(ctx context.Context, companyID int64, start, end time.Time) (models.RollupSnapshot, error) {
	snapshot := models.RollupSnapshot{
		ID:          uuid.NewString(),
		CompanyID:   companyID,
		PeriodStart: start,
		PeriodEnd:   end,
	}

	db := s.DB.WithContext(ctx)
	err := db.Model(&models.Lead{}).
		Where("company_id = ? AND criado_em >= ? AND criado_em < ?", companyID, start, end).
		Count(&snapshot.TotalLeads).Error
	if err != nil {
		return snapshot, fmt.Errorf("failed to count leads: %w", err)
	}
	err = db.Model(&models.Lead{}).
		Where("company_id = ? AND criado_em >= ? AND criado_em < ? AND status_id = ?",
			companyID, start, end, models.StatusIDWon).
		Count(&snapshot.LeadsGanhos).Error
	if err != nil {
		return snapshot, fmt.Errorf("failed to count won leads: %w", err)
	}

	type standings struct {
		Total   int64
		Brokers int64
	}
	var agg standings
	err = db.Model(&models.BrokerPoints{}).
		Select("COALESCE(SUM(pontos), 0) AS total, COUNT(*) AS brokers").
		Where("company_id = ?", companyID).
		Scan(&agg).Error
	if err != nil {
		return snapshot, fmt.Errorf("failed to aggregate standings: %w", err)
	}
	snapshot.TotalPontos = agg.Total
	snapshot.TotalBrokers = agg.Brokers
	return snapshot, nil
}

// upsert supersedes any prior snapshot of the same company and period.
func (s *RollupService) upsert(ctx context.Context, row any) error {
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "company_id"}, {Name: "period_start"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"period_end", "total_leads", "leads_ganhos", "total_pontos", "total_brokers", "created_at",
		}),
	}).Create(row).Error
}

func (s *RollupService) archive(ctx context.Context, companyID int64, period string, snapshot models.RollupSnapshot) {
	if s.Archiver == nil {
		return
	}
	if err := s.Archiver.ArchiveSnapshot(ctx, companyID, period, snapshot); err != nil {
		log.Printf("[ROLLUP] ⚠️ Failed to archive %s snapshot for company %d: %v", period, companyID, err)
	}
}

// previousWeek returns the Monday-to-Monday window ending at or before now.
func previousWeek(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	thisMonday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -daysSinceMonday)
	return thisMonday.AddDate(0, 0, -7), thisMonday
}

// previousMonth returns the calendar month window ending at the first of
// the current month.
func previousMonth(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	firstOfThis := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return firstOfThis.AddDate(0, -1, 0), firstOfThis
}
