package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-gamification-system/models"
)

// Wednesday, so the previous week is Monday the 17th through Monday the 24th.
var rollupNow = time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)

func newRollupFixture(t *testing.T) *RollupService {
	t.Helper()
	db := newTestDB(t)
	s := NewRollupService(db)
	s.Now = func() time.Time { return rollupNow }
	return s
}

func TestPeriodWindows(t *testing.T) {
	start, end := previousWeek(rollupNow)
	assert.Equal(t, time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), end)

	// A Monday rolls up the week that just ended, not the week starting.
	start, end = previousWeek(time.Date(2026, 8, 24, 0, 5, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), end)

	start, end = previousMonth(rollupNow)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestRollupWeekly(t *testing.T) {
	s := newRollupFixture(t)
	inWindow := time.Date(2026, 8, 19, 10, 0, 0, 0, time.UTC)
	outOfWindow := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.DB.Create(&models.Lead{
		ID: 1, CompanyID: 7, StatusID: models.StatusIDWon, Status: models.LeadStatusWon,
		CriadoEm: &inWindow,
	}).Error)
	require.NoError(t, s.DB.Create(&models.Lead{
		ID: 2, CompanyID: 7, StatusID: 10, Status: models.LeadStatusInProgress,
		CriadoEm: &inWindow,
	}).Error)
	require.NoError(t, s.DB.Create(&models.Lead{
		ID: 3, CompanyID: 7, StatusID: 10, Status: models.LeadStatusInProgress,
		CriadoEm: &outOfWindow,
	}).Error)
	require.NoError(t, s.DB.Create(&models.BrokerPoints{ID: 1, CompanyID: 7, Pontos: 130}).Error)
	require.NoError(t, s.DB.Create(&models.BrokerPoints{ID: 2, CompanyID: 7, Pontos: 70}).Error)

	require.NoError(t, s.RollupWeekly(context.Background(), 7))

	var row models.WeeklyLog
	require.NoError(t, s.DB.Where("company_id = ?", 7).First(&row).Error)
	assert.Equal(t, int64(2), row.TotalLeads)
	assert.Equal(t, int64(1), row.LeadsGanhos)
	assert.Equal(t, int64(200), row.TotalPontos)
	assert.Equal(t, int64(2), row.TotalBrokers)
}

func TestRollupSupersedesPriorSnapshot(t *testing.T) {
	s := newRollupFixture(t)
	inWindow := time.Date(2026, 8, 19, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.DB.Create(&models.Lead{
		ID: 1, CompanyID: 7, StatusID: 10, Status: models.LeadStatusInProgress, CriadoEm: &inWindow,
	}).Error)

	require.NoError(t, s.RollupWeekly(context.Background(), 7))

	// Late-arriving data changes the picture; re-running replaces the row.
	require.NoError(t, s.DB.Create(&models.Lead{
		ID: 2, CompanyID: 7, StatusID: models.StatusIDWon, Status: models.LeadStatusWon, CriadoEm: &inWindow,
	}).Error)
	require.NoError(t, s.RollupWeekly(context.Background(), 7))

	var rows []models.WeeklyLog
	require.NoError(t, s.DB.Where("company_id = ?", 7).Find(&rows).Error)
	require.Len(t, rows, 1, "one snapshot per company per period")
	assert.Equal(t, int64(2), rows[0].TotalLeads)
	assert.Equal(t, int64(1), rows[0].LeadsGanhos)
}

func TestWeeklyAndMonthlyTablesCoexist(t *testing.T) {
	// Both period tables live in one schema, each with its own unique
	// index, and each supersedes independently.
	s := newRollupFixture(t)
	ctx := context.Background()

	require.NoError(t, s.RollupWeekly(ctx, 7))
	require.NoError(t, s.RollupMonthly(ctx, 7))
	require.NoError(t, s.RollupWeekly(ctx, 7))
	require.NoError(t, s.RollupMonthly(ctx, 7))

	var weekly, monthly int64
	require.NoError(t, s.DB.Model(&models.WeeklyLog{}).Count(&weekly).Error)
	require.NoError(t, s.DB.Model(&models.MonthlyLog{}).Count(&monthly).Error)
	assert.Equal(t, int64(1), weekly)
	assert.Equal(t, int64(1), monthly)
}

func TestRollupMonthly(t *testing.T) {
	s := newRollupFixture(t)
	july := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.DB.Create(&models.Lead{
		ID: 1, CompanyID: 7, StatusID: models.StatusIDWon, Status: models.LeadStatusWon, CriadoEm: &july,
	}).Error)

	require.NoError(t, s.RollupMonthly(context.Background(), 7))

	var row models.MonthlyLog
	require.NoError(t, s.DB.Where("company_id = ?", 7).First(&row).Error)
	assert.WithinDuration(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), row.PeriodStart, time.Second)
	assert.Equal(t, int64(1), row.TotalLeads)
	assert.Equal(t, int64(1), row.LeadsGanhos)
}

type recordingArchiver struct {
	calls []string
}

func (r *recordingArchiver) ArchiveSnapshot(_ context.Context, companyID int64, period string, _ models.RollupSnapshot) error {
	r.calls = append(r.calls, period)
	return nil
}

func TestRollupArchivesWhenConfigured(t *testing.T) {
	s := newRollupFixture(t)
	archiver := &recordingArchiver{}
	s.Archiver = archiver

	require.NoError(t, s.RollupWeekly(context.Background(), 7))
	require.NoError(t, s.RollupMonthly(context.Background(), 7))
	assert.Equal(t, []string{models.PeriodWeekly, models.PeriodMonthly}, archiver.calls)
}
