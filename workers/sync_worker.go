// workers/sync_worker.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crm-gamification-system/models"
	"crm-gamification-system/services"
)

// CRMClient is the slice of the CRM API the worker drives. Satisfied by
// services.KommoClient; tests substitute a fake.
type CRMClient interface {
	FetchPage(ctx context.Context, entity services.EntityType, since *time.Time, page int) ([]map[string]any, error)
	StatusNames(ctx context.Context) (map[int64]string, error)
	AccountID(ctx context.Context) (int64, error)
}

// recoveryInterval is the next-sync delay after a PARTIAL cycle: retry
// soon, but never tighter than the global floor.
const recoveryInterval = time.Minute

// staleClaimAge is how long a RUNNING claim stays valid. A claim older than
// this belongs to a process that died mid-cycle and may be taken over.
const staleClaimAge = 30 * time.Minute

// SyncWorker runs the per-company sync cycle: pull changed CRM records,
// mirror them, then recompute scores. One cycle per company at a time; the
// sync_control row is both cursor and reentrancy guard.
type SyncWorker struct {
	DB        *gorm.DB
	Cache     *services.ChangeCache
	Scoring   *services.ScoringService
	NewClient func(cfg models.KommoConfig) CRMClient
	Now       func() time.Time
}

func NewSyncWorker(db *gorm.DB, cache *services.ChangeCache, scoring *services.ScoringService) *SyncWorker {
	return &SyncWorker{
		DB:      db,
		Cache:   cache,
		Scoring: scoring,
		NewClient: func(cfg models.KommoConfig) CRMClient {
			return services.NewKommoClient(cfg.APIURL, cfg.AccessToken, 2)
		},
		Now: time.Now,
	}
}

// refState tracks which parent rows exist so forward references can be
// nulled at insert time and backfilled once the parent arrives.
type refState struct {
	knownBrokers map[int64]bool
	knownLeads   map[int64]bool

	pendingLeadBroker   map[int64]int64  // lead id -> unsynced responsible broker
	pendingActivityLead map[string]int64 // activity id -> unsynced lead
	pendingActivityUser map[string]int64 // activity id -> unsynced author
}

// RunCycle executes one full sync cycle for one company. It never returns
// an error for per-record or per-entity trouble; the outcome lands in
// sync_control and sync_logs. The returned error covers only cycle setup
// failures (database unreachable, reentrancy skip).
func (w *SyncWorker) RunCycle(ctx context.Context, cfg models.KommoConfig) error {
	companyID := cfg.CompanyID

	var ctrl models.SyncControl
	err := w.DB.Where("company_id = ?", companyID).
		Attrs(models.SyncControl{CompanyID: companyID, LastStatus: models.SyncStatusIdle}).
		FirstOrCreate(&ctrl).Error
	if err != nil {
		return fmt.Errorf("failed to load sync_control for company %d: %w", companyID, err)
	}

	// A FAILED company stays halted until its credentials row changes.
	if ctrl.LastStatus == models.SyncStatusFailed && !cfg.UpdatedAt.After(ctrl.UpdatedAt) {
		log.Printf("[SYNC] ⏸️ Company %d halted after auth failure, waiting for a config update", companyID)
		return nil
	}

	// Claim the cycle. Zero rows affected means another cycle is running;
	// a RUNNING row past the stale window is an orphan and is reclaimed.
	claim := w.DB.Model(&models.SyncControl{}).
		Where("company_id = ? AND (last_status <> ? OR updated_at < ?)",
			companyID, models.SyncStatusRunning, time.Now().Add(-staleClaimAge)).
		Updates(map[string]any{"last_status": models.SyncStatusRunning})
	if claim.Error != nil {
		return fmt.Errorf("failed to claim sync cycle for company %d: %w", companyID, claim.Error)
	}
	if claim.RowsAffected == 0 {
		log.Printf("[SYNC] ⏭️ Company %d already syncing, skipping", companyID)
		return nil
	}

	// A tenant that appeared at runtime gets its default rule set here.
	if err := w.Scoring.Rules.SeedDefaultRules(companyID); err != nil {
		log.Printf("[SYNC] ⚠️ Failed to seed default rules for company %d: %v", companyID, err)
	}

	cycleStart := w.Now().UTC()
	since := ctrl.LastSync
	if since == nil {
		since = cfg.BackfillFrom
	}
	sinceStr := "full history"
	if since != nil {
		sinceStr = since.Format(time.RFC3339)
	}
	log.Printf("[SYNC] 📡 Company %d cycle starting (since=%s)", companyID, sinceStr)
	services.InsertSyncLog(w.DB, companyID, models.SyncLogInfo, "Sincronização iniciada (desde "+sinceStr+")")

	client := w.NewClient(cfg)

	statusNames, err := client.StatusNames(ctx)
	if authErr := asAuthError(err); authErr != nil {
		w.finishCycle(ctx, cfg, ctrl, models.SyncStatusFailed, cycleStart, authErr.Error())
		return nil
	}
	if err != nil {
		// Degraded but survivable: leads map their stage to "Desconhecido".
		log.Printf("[SYNC] ⚠️ Company %d pipelines unavailable: %v", companyID, err)
		statusNames = map[int64]string{}
	}

	refs, err := w.loadRefState(companyID)
	if err != nil {
		w.finishCycle(ctx, cfg, ctrl, models.SyncStatusPartial, cycleStart, err.Error())
		return nil
	}

	var failedEntities []string
	for _, entity := range services.SyncOrder {
		processed, err := w.syncEntity(ctx, client, companyID, entity, since, statusNames, refs)
		if authErr := asAuthError(err); authErr != nil {
			w.finishCycle(ctx, cfg, ctrl, models.SyncStatusFailed, cycleStart, authErr.Error())
			return nil
		}
		if err != nil {
			failedEntities = append(failedEntities, string(entity))
			log.Printf("[SYNC] ❌ Company %d %s sync failed: %v", companyID, entity, err)
			services.InsertSyncLog(w.DB, companyID, models.SyncLogError,
				fmt.Sprintf("Falha ao sincronizar %s: %v", entity, err))
			continue
		}
		log.Printf("[SYNC] ✅ Company %d synced %d %s record(s)", companyID, processed, entity)
	}

	w.reconcileRefs(companyID, refs)

	if len(failedEntities) > 0 {
		msg := fmt.Sprintf("entities failed: %v", failedEntities)
		w.finishCycle(ctx, cfg, ctrl, models.SyncStatusPartial, cycleStart, msg)
		return nil
	}

	if err := w.Scoring.Score(ctx, companyID); err != nil {
		log.Printf("[SYNC] ❌ Company %d scoring failed: %v", companyID, err)
		w.finishCycle(ctx, cfg, ctrl, models.SyncStatusPartial, cycleStart, "scoring failed: "+err.Error())
		return nil
	}

	w.finishCycle(ctx, cfg, ctrl, models.SyncStatusSucceeded, cycleStart, "")
	return nil
}

// syncEntity pages through one collection, mapping and upserting every
// changed record. Malformed records are logged and skipped; a page that
// cannot be fetched, or any record that fails to store, fails the entity so
// the watermark does not advance past data the mirror never received.
func (w *SyncWorker) syncEntity(ctx context.Context, client CRMClient, companyID int64, entity services.EntityType, since *time.Time, statusNames map[int64]string, refs *refState) (int, error) {
	processed := 0
	storeFailures := 0
	for page := 1; ; page++ {
		records, err := client.FetchPage(ctx, entity, since, page)
		if err != nil {
			return processed, err
		}
		if len(records) == 0 {
			if storeFailures > 0 {
				return processed, fmt.Errorf("%d %s record(s) failed to store", storeFailures, entity)
			}
			return processed, nil
		}

		for _, record := range records {
			if err := w.upsertRecord(ctx, companyID, entity, record, statusNames, refs); err != nil {
				var mapErr *services.MappingError
				if errors.As(err, &mapErr) {
					services.InsertSyncLog(w.DB, companyID, models.SyncLogError,
						fmt.Sprintf("Registro de %s ignorado: %v", entity, mapErr))
					continue
				}
				storeFailures++
				log.Printf("[SYNC] ⚠️ Company %d failed to upsert %s record: %v", companyID, entity, err)
				continue
			}
			processed++
		}
	}
}

func (w *SyncWorker) upsertRecord(ctx context.Context, companyID int64, entity services.EntityType, record map[string]any, statusNames map[int64]string, refs *refState) error {
	switch entity {
	case services.EntityBrokers:
		broker, err := services.MapBroker(record, companyID)
		if err != nil {
			return err
		}
		if w.Cache != nil && !w.Cache.Changed(ctx, companyID, entity, strconv.FormatInt(broker.ID, 10), record) {
			refs.knownBrokers[broker.ID] = true
			return nil
		}
		err = w.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"nome", "email", "foto_url", "cargo", "ativo", "criado_em",
			}),
		}).Create(broker).Error
		if err != nil {
			return err
		}
		refs.knownBrokers[broker.ID] = true
		if w.Cache != nil {
			w.Cache.Remember(ctx, companyID, entity, strconv.FormatInt(broker.ID, 10), record)
		}
		return nil

	case services.EntityLeads:
		lead, err := services.MapLead(record, companyID, statusNames)
		if err != nil {
			return err
		}
		if w.Cache != nil && !w.Cache.Changed(ctx, companyID, entity, strconv.FormatInt(lead.ID, 10), record) {
			refs.knownLeads[lead.ID] = true
			// The stored row may hold a nulled reference from a cycle where
			// the broker had not arrived yet; reconcile re-asserts it.
			if lead.ResponsavelID != nil {
				refs.pendingLeadBroker[lead.ID] = *lead.ResponsavelID
			}
			return nil
		}
		if lead.ResponsavelID != nil && !refs.knownBrokers[*lead.ResponsavelID] {
			refs.pendingLeadBroker[lead.ID] = *lead.ResponsavelID
			lead.ResponsavelID = nil
		}
		// tempo_medio and ticket_medio are derived by scoring and never
		// overwritten by the mirror.
		err = w.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"nome", "responsavel_id", "contato_nome", "valor", "status_id",
				"pipeline_id", "etapa", "status", "fechado", "criado_em", "atualizado_em",
			}),
		}).Create(lead).Error
		if err != nil {
			return err
		}
		refs.knownLeads[lead.ID] = true
		if w.Cache != nil {
			w.Cache.Remember(ctx, companyID, entity, strconv.FormatInt(lead.ID, 10), record)
		}
		return nil

	case services.EntityActivities:
		activity, err := services.MapActivity(record, companyID)
		if err != nil {
			return err
		}
		if w.Cache != nil && !w.Cache.Changed(ctx, companyID, entity, activity.ID, record) {
			if activity.LeadID != nil {
				refs.pendingActivityLead[activity.ID] = *activity.LeadID
			}
			if activity.UserID != nil {
				refs.pendingActivityUser[activity.ID] = *activity.UserID
			}
			return nil
		}
		if activity.LeadID != nil && !refs.knownLeads[*activity.LeadID] {
			refs.pendingActivityLead[activity.ID] = *activity.LeadID
			activity.LeadID = nil
		}
		if activity.UserID != nil && !refs.knownBrokers[*activity.UserID] {
			refs.pendingActivityUser[activity.ID] = *activity.UserID
			activity.UserID = nil
		}
		err = w.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"lead_id", "user_id", "tipo", "valor_anterior", "valor_novo",
				"texto", "criado_em", "dia_semana", "hora",
			}),
		}).Create(activity).Error
		if err != nil {
			return err
		}
		if w.Cache != nil {
			w.Cache.Remember(ctx, companyID, entity, activity.ID, record)
		}
		return nil

	default:
		return fmt.Errorf("unknown entity type %q", entity)
	}
}

// loadRefState seeds the known-id sets from the mirror so incremental
// cycles can resolve references to rows synced in earlier cycles.
func (w *SyncWorker) loadRefState(companyID int64) (*refState, error) {
	refs := &refState{
		knownBrokers:        make(map[int64]bool),
		knownLeads:          make(map[int64]bool),
		pendingLeadBroker:   make(map[int64]int64),
		pendingActivityLead: make(map[string]int64),
		pendingActivityUser: make(map[string]int64),
	}

	var brokerIDs []int64
	if err := w.DB.Model(&models.Broker{}).Where("company_id = ?", companyID).Pluck("id", &brokerIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to load broker ids: %w", err)
	}
	for _, id := range brokerIDs {
		refs.knownBrokers[id] = true
	}

	var leadIDs []int64
	if err := w.DB.Model(&models.Lead{}).Where("company_id = ?", companyID).Pluck("id", &leadIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to load lead ids: %w", err)
	}
	for _, id := range leadIDs {
		refs.knownLeads[id] = true
	}
	return refs, nil
}

// reconcileRefs backfills references that were nulled because their parent
// had not been synced yet but arrived later in the same cycle. References
// still unresolved stay null until a future cycle delivers the parent.
func (w *SyncWorker) reconcileRefs(companyID int64, refs *refState) {
	for leadID, brokerID := range refs.pendingLeadBroker {
		if !refs.knownBrokers[brokerID] {
			continue
		}
		err := w.DB.Model(&models.Lead{}).
			Where("id = ? AND company_id = ?", leadID, companyID).
			Update("responsavel_id", brokerID).Error
		if err != nil {
			log.Printf("[SYNC] ⚠️ Failed to backfill broker %d on lead %d: %v", brokerID, leadID, err)
		}
	}
	for activityID, leadID := range refs.pendingActivityLead {
		if !refs.knownLeads[leadID] {
			continue
		}
		err := w.DB.Model(&models.Activity{}).
			Where("id = ? AND company_id = ?", activityID, companyID).
			Update("lead_id", leadID).Error
		if err != nil {
			log.Printf("[SYNC] ⚠️ Failed to backfill lead %d on activity %s: %v", leadID, activityID, err)
		}
	}
	for activityID, userID := range refs.pendingActivityUser {
		if !refs.knownBrokers[userID] {
			continue
		}
		err := w.DB.Model(&models.Activity{}).
			Where("id = ? AND company_id = ?", activityID, companyID).
			Update("user_id", userID).Error
		if err != nil {
			log.Printf("[SYNC] ⚠️ Failed to backfill user %d on activity %s: %v", userID, activityID, err)
		}
	}
}

// finishCycle records the terminal state of a cycle in sync_control and the
// audit trail. LastSync advances only on SUCCEEDED so a degraded cycle
// retries the same window; FAILED clears next_sync to halt the tenant.
func (w *SyncWorker) finishCycle(ctx context.Context, cfg models.KommoConfig, ctrl models.SyncControl, status string, cycleStart time.Time, errMsg string) {
	now := w.Now().UTC()
	updates := map[string]any{
		"last_status": status,
		"last_error":  nil,
	}
	if errMsg != "" {
		updates["last_error"] = errMsg
	}

	switch status {
	case models.SyncStatusSucceeded:
		next := now.Add(cfg.SyncInterval())
		updates["last_sync"] = cycleStart
		updates["next_sync"] = next
	case models.SyncStatusPartial:
		next := now.Add(recoveryInterval)
		updates["next_sync"] = next
	case models.SyncStatusFailed:
		updates["next_sync"] = nil
	}

	err := w.DB.WithContext(ctx).Model(&models.SyncControl{}).
		Where("company_id = ?", cfg.CompanyID).
		Updates(updates).Error
	if err != nil {
		log.Printf("[SYNC] ❌ Failed to record cycle outcome for company %d: %v", cfg.CompanyID, err)
	}

	switch status {
	case models.SyncStatusSucceeded:
		log.Printf("[SYNC] ✅ Company %d cycle succeeded in %s", cfg.CompanyID, now.Sub(cycleStart).Round(time.Millisecond))
		services.InsertSyncLog(w.DB, cfg.CompanyID, models.SyncLogInfo, "Sincronização concluída com sucesso")
	case models.SyncStatusPartial:
		log.Printf("[SYNC] ⚠️ Company %d cycle partial: %s", cfg.CompanyID, errMsg)
		services.InsertSyncLog(w.DB, cfg.CompanyID, models.SyncLogError, "Sincronização parcial: "+errMsg)
	case models.SyncStatusFailed:
		log.Printf("[SYNC] ❌ Company %d cycle failed: %s", cfg.CompanyID, errMsg)
		services.InsertSyncLog(w.DB, cfg.CompanyID, models.SyncLogError, "Sincronização falhou: "+errMsg)
	}
}

func asAuthError(err error) *services.AuthError {
	var authErr *services.AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return nil
}
