// workers/scheduler.go
package workers

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"

	"crm-gamification-system/models"
	"crm-gamification-system/services"
)

// Scheduler drives the recurring work: the per-company sync tick, and the
// weekly and monthly rollup jobs. Companies are re-read from kommo_config on
// every tick, so adding or deactivating a tenant needs no restart.
type Scheduler struct {
	DB     *gorm.DB
	Worker *SyncWorker
	Rollup *services.RollupService

	sched gocron.Scheduler
}

func NewScheduler(db *gorm.DB, worker *SyncWorker, rollup *services.RollupService) *Scheduler {
	return &Scheduler{DB: db, Worker: worker, Rollup: rollup}
}

// Start registers the jobs and begins ticking. Jobs inherit ctx so shutdown
// cancels in-flight cycles.
func (s *Scheduler) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	s.sched = sched

	// Every minute: run the cycle for every company that is due.
	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() { s.tick(ctx) }),
	)
	if err != nil {
		return err
	}

	// Mondays 00:05 UTC: weekly rollups for the week just ended.
	_, err = sched.NewJob(
		gocron.WeeklyJob(1, gocron.NewWeekdays(time.Monday), gocron.NewAtTimes(gocron.NewAtTime(0, 5, 0))),
		gocron.NewTask(func() { s.rollups(ctx, models.PeriodWeekly) }),
	)
	if err != nil {
		return err
	}

	// First of the month 00:10 UTC: monthly rollups.
	_, err = sched.NewJob(
		gocron.MonthlyJob(1, gocron.NewDaysOfTheMonth(1), gocron.NewAtTimes(gocron.NewAtTime(0, 10, 0))),
		gocron.NewTask(func() { s.rollups(ctx, models.PeriodMonthly) }),
	)
	if err != nil {
		return err
	}

	sched.Start()
	log.Println("🔁 Scheduler started (sync tick + weekly/monthly rollups)")
	return nil
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() {
	if s.sched != nil {
		if err := s.sched.Shutdown(); err != nil {
			log.Printf("[Scheduler] Shutdown error: %v", err)
		}
	}
}

// tick runs one cycle for every active company whose next_sync has passed
// (or that has never synced).
func (s *Scheduler) tick(ctx context.Context) {
	configs, err := s.activeConfigs()
	if err != nil {
		log.Printf("[Scheduler] DB error: %v", err)
		return
	}

	now := time.Now().UTC()
	for _, cfg := range configs {
		// A config row saved without its account id gets it resolved from
		// the CRM before its first cycle.
		if cfg.CompanyID == 0 {
			accountID, err := s.Worker.NewClient(cfg).AccountID(ctx)
			if err != nil {
				log.Printf("[Scheduler] Failed to resolve account id for config %s: %v", cfg.ID, err)
				continue
			}
			if err := s.DB.Model(&models.KommoConfig{}).Where("id = ?", cfg.ID).
				Update("company_id", accountID).Error; err != nil {
				log.Printf("[Scheduler] Failed to store account id for config %s: %v", cfg.ID, err)
				continue
			}
			cfg.CompanyID = accountID
		}

		var ctrl models.SyncControl
		err := s.DB.Where("company_id = ?", cfg.CompanyID).First(&ctrl).Error
		if err == nil && ctrl.NextSync != nil && ctrl.NextSync.After(now) {
			continue
		}
		if err := s.Worker.RunCycle(ctx, cfg); err != nil {
			log.Printf("[Scheduler] Cycle error for company %d: %v", cfg.CompanyID, err)
		}
	}
}

func (s *Scheduler) rollups(ctx context.Context, period string) {
	configs, err := s.activeConfigs()
	if err != nil {
		log.Printf("[Scheduler] DB error: %v", err)
		return
	}
	for _, cfg := range configs {
		var err error
		switch period {
		case models.PeriodWeekly:
			err = s.Rollup.RollupWeekly(ctx, cfg.CompanyID)
		case models.PeriodMonthly:
			err = s.Rollup.RollupMonthly(ctx, cfg.CompanyID)
		}
		if err != nil {
			log.Printf("[Scheduler] %s rollup failed for company %d: %v", period, cfg.CompanyID, err)
		}
	}
}

func (s *Scheduler) activeConfigs() ([]models.KommoConfig, error) {
	var configs []models.KommoConfig
	err := s.DB.Where("active = ?", true).Find(&configs).Error
	return configs, err
}
