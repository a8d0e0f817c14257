package services

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"time"

	"gorm.io/gorm"

	"crm-gamification-system/models"
)

// Stage-name patterns used by the status-change counters.
var (
	visitStagePattern    = regexp.MustCompile(`(?i)visita|visitado|agendamento|apresentação`)
	proposalStagePattern = regexp.MustCompile(`(?i)proposta|contrato|negociação`)
)

// ActivityClassifier decides whether an activity was authored by a human
// broker. Response-time metrics only count human activities; the predicate
// is pluggable because the CRM does not flag automation reliably.
type ActivityClassifier func(a *models.Activity, brokerIDs map[int64]bool) bool

// DefaultActivityClassifier treats an activity as human when its author is a
// known broker and the type is an outbound one.
func DefaultActivityClassifier(a *models.Activity, brokerIDs map[int64]bool) bool {
	if a.UserID == nil || !brokerIDs[*a.UserID] {
		return false
	}
	return a.Tipo == models.ActivityOutgoingMessage || a.Tipo == models.ActivityTaskCompleted
}

// ScoringService recomputes the broker_points aggregates and the per-lead
// derived metrics. Score is idempotent: every counter and the total are
// re-derived from the mirrored data on each pass, never patched.
type ScoringService struct {
	DB         *gorm.DB
	Rules      *RuleService
	Classifier ActivityClassifier
	Now        func() time.Time
}

func NewScoringService(db *gorm.DB, rules *RuleService) *ScoringService {
	return &ScoringService{
		DB:         db,
		Rules:      rules,
		Classifier: DefaultActivityClassifier,
		Now:        time.Now,
	}
}

// brokerContext carries one broker's slice of the tenant data through the
// rule evaluators.
type brokerContext struct {
	broker     models.Broker
	leads      []models.Lead
	activities []models.Activity
	byLead     map[int64][]models.Activity // this broker's activities per lead, time-ordered
	now        time.Time
}

type counterFunc func(*brokerContext) int64

var counterEvaluators = map[string]counterFunc{
	"leads_respondidos_1h":        countLeadsRespondedWithinHour,
	"leads_visitados":             countLeadsVisited,
	"propostas_enviadas":          countProposalsSent,
	"vendas_realizadas":           countSalesClosed,
	"leads_atualizados_mesmo_dia": countSameDayUpdates,
	"resposta_rapida_3h":          countQuickReplies,
	"todos_leads_respondidos":     allTodaysLeadsAnswered,
	"cadastro_completo":           countCompleteRegistrations,
	"acompanhamento_pos_venda":    countPostSaleFollowups,
	"leads_sem_interacao_24h":     staleLeadCounter(24 * time.Hour),
	"leads_ignorados_48h":         staleLeadCounter(48 * time.Hour),
	"leads_perdidos":              countLeadsLost,
}

// Score recomputes every active rule's counter and the weighted total for
// each of the company's brokers, then refreshes the per-lead derived
// metrics. A broker whose evaluation fails is skipped and logged; the pass
// continues with the remaining brokers.
func (s *ScoringService) Score(ctx context.Context, companyID int64) error {
	rules, err := s.Rules.ListRules(companyID)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	if len(rules) == 0 {
		log.Printf("[SCORE] ⚠️ Company %d has no rules, nothing to compute", companyID)
		return nil
	}

	var brokers []models.Broker
	if err := s.DB.WithContext(ctx).
		Where("company_id = ? AND cargo = ?", companyID, "Corretor").
		Find(&brokers).Error; err != nil {
		return fmt.Errorf("failed to load brokers: %w", err)
	}
	var leads []models.Lead
	if err := s.DB.WithContext(ctx).Where("company_id = ?", companyID).Find(&leads).Error; err != nil {
		return fmt.Errorf("failed to load leads: %w", err)
	}
	var activities []models.Activity
	if err := s.DB.WithContext(ctx).Where("company_id = ?", companyID).Find(&activities).Error; err != nil {
		return fmt.Errorf("failed to load activities: %w", err)
	}
	sortActivities(activities)

	if err := s.ensurePointsRows(brokers, companyID); err != nil {
		return err
	}

	brokerIDs := make(map[int64]bool, len(brokers))
	for _, b := range brokers {
		brokerIDs[b.ID] = true
	}
	s.updateLeadMetrics(ctx, companyID, leads, activities, brokerIDs)

	now := s.Now()
	InsertSyncLog(s.DB, companyID, models.SyncLogInfo, "Iniciando cálculo de pontos")

	unknownColumns := map[string]bool{}
	scored := 0
	for _, broker := range brokers {
		bc := buildBrokerContext(broker, leads, activities, now)
		updates, failed := s.evaluateBroker(bc, rules, unknownColumns)
		if failed {
			InsertSyncLog(s.DB, companyID, models.SyncLogError,
				fmt.Sprintf("Falha ao calcular pontos do corretor %d (%s); registro ignorado", broker.ID, broker.Nome))
			continue
		}
		err := s.DB.WithContext(ctx).Model(&models.BrokerPoints{}).
			Where("id = ? AND company_id = ?", broker.ID, companyID).
			Updates(updates).Error
		if err != nil {
			log.Printf("[SCORE] ⚠️ Failed to write points for broker %d: %v", broker.ID, err)
			continue
		}
		scored++
	}

	InsertSyncLog(s.DB, companyID, models.SyncLogInfo,
		fmt.Sprintf("Cálculo de pontos concluído: %d corretores atualizados", scored))
	return nil
}

// evaluateBroker runs every rule against one broker. A panic from an
// evaluator (malformed stored values) marks the broker failed instead of
// aborting the whole pass.
func (s *ScoringService) evaluateBroker(bc *brokerContext, rules []models.Rule, unknownColumns map[string]bool) (updates map[string]any, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[SCORE] ❌ Evaluation panic for broker %d: %v", bc.broker.ID, r)
			failed = true
		}
	}()

	updates = map[string]any{"nome": bc.broker.Nome}
	var pontos int64
	for _, rule := range rules {
		eval, ok := counterEvaluators[rule.ColunaNome]
		if !ok {
			if !unknownColumns[rule.ColunaNome] {
				unknownColumns[rule.ColunaNome] = true
				log.Printf("[SCORE] ⚠️ Rule column %q has no evaluator, counting 0", rule.ColunaNome)
			}
			updates[rule.ColunaNome] = int64(0)
			continue
		}
		counter := eval(bc)
		updates[rule.ColunaNome] = counter
		pontos += counter * int64(rule.Pontos)
	}
	updates["pontos"] = pontos
	return updates, false
}

// ensurePointsRows creates zeroed broker_points rows for brokers that do
// not have one yet.
func (s *ScoringService) ensurePointsRows(brokers []models.Broker, companyID int64) error {
	for _, b := range brokers {
		row := models.BrokerPoints{ID: b.ID, CompanyID: companyID, Nome: b.Nome}
		var existing models.BrokerPoints
		err := s.DB.Where("id = ? AND company_id = ?", b.ID, companyID).
			Attrs(row).FirstOrCreate(&existing).Error
		if err != nil {
			return fmt.Errorf("failed to initialize broker_points for %d: %w", b.ID, err)
		}
	}
	return nil
}

// updateLeadMetrics recomputes tempo_medio per lead and the tenant-wide
// ticket_medio. tempo_medio is null when no qualifying human activity
// exists; ticket_medio is left untouched when the tenant has no won leads.
func (s *ScoringService) updateLeadMetrics(ctx context.Context, companyID int64, leads []models.Lead, activities []models.Activity, brokerIDs map[int64]bool) {
	byLead := groupByLead(activities)

	for _, lead := range leads {
		var tempo *float64
		if lead.CriadoEm != nil {
			for i := range byLead[lead.ID] {
				a := &byLead[lead.ID][i]
				if a.CriadoEm == nil || a.CriadoEm.Before(*lead.CriadoEm) {
					continue
				}
				if s.Classifier(a, brokerIDs) {
					secs := a.CriadoEm.Sub(*lead.CriadoEm).Seconds()
					tempo = &secs
					break
				}
			}
		}
		err := s.DB.WithContext(ctx).Model(&models.Lead{}).
			Where("id = ? AND company_id = ?", lead.ID, companyID).
			Update("tempo_medio", tempo).Error
		if err != nil {
			log.Printf("[SCORE] ⚠️ Failed to update tempo_medio for lead %d: %v", lead.ID, err)
		}
	}

	var total float64
	var won int64
	for _, lead := range leads {
		if lead.Status == models.LeadStatusWon && lead.Valor != nil {
			total += *lead.Valor
			won++
		}
	}
	if won == 0 {
		return
	}
	ticket := total / float64(won)
	err := s.DB.WithContext(ctx).Model(&models.Lead{}).
		Where("company_id = ?", companyID).
		Update("ticket_medio", ticket).Error
	if err != nil {
		log.Printf("[SCORE] ⚠️ Failed to update ticket_medio for company %d: %v", companyID, err)
	}
}

func buildBrokerContext(broker models.Broker, leads []models.Lead, activities []models.Activity, now time.Time) *brokerContext {
	bc := &brokerContext{
		broker: broker,
		byLead: make(map[int64][]models.Activity),
		now:    now,
	}
	for _, l := range leads {
		if l.ResponsavelID != nil && *l.ResponsavelID == broker.ID {
			bc.leads = append(bc.leads, l)
		}
	}
	for _, a := range activities {
		if a.UserID == nil || *a.UserID != broker.ID {
			continue
		}
		bc.activities = append(bc.activities, a)
		if a.LeadID != nil {
			bc.byLead[*a.LeadID] = append(bc.byLead[*a.LeadID], a)
		}
	}
	return bc
}

func groupByLead(activities []models.Activity) map[int64][]models.Activity {
	byLead := make(map[int64][]models.Activity)
	for _, a := range activities {
		if a.LeadID != nil {
			byLead[*a.LeadID] = append(byLead[*a.LeadID], a)
		}
	}
	return byLead
}

func sortActivities(activities []models.Activity) {
	sort.SliceStable(activities, func(i, j int) bool {
		ti, tj := activities[i].CriadoEm, activities[j].CriadoEm
		if ti == nil {
			return tj != nil
		}
		if tj == nil {
			return false
		}
		return ti.Before(*tj)
	})
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func leadIsOpen(l *models.Lead) bool {
	return l.StatusID != models.StatusIDWon && l.StatusID != models.StatusIDLost
}

// First outgoing message within one hour of the lead's creation.
func countLeadsRespondedWithinHour(bc *brokerContext) int64 {
	var count int64
	for i := range bc.leads {
		lead := &bc.leads[i]
		if lead.CriadoEm == nil {
			continue
		}
		for _, a := range bc.byLead[lead.ID] {
			if a.Tipo != models.ActivityOutgoingMessage || a.CriadoEm == nil {
				continue
			}
			delta := a.CriadoEm.Sub(*lead.CriadoEm)
			if delta >= 0 && delta <= time.Hour {
				count++
			}
			break // only the first outgoing message counts
		}
	}
	return count
}

func countLeadsVisited(bc *brokerContext) int64 {
	return countStageChanges(bc, visitStagePattern)
}

func countProposalsSent(bc *brokerContext) int64 {
	return countStageChanges(bc, proposalStagePattern)
}

// Distinct leads moved into a stage matching the pattern.
func countStageChanges(bc *brokerContext, pattern *regexp.Regexp) int64 {
	seen := make(map[int64]bool)
	for _, a := range bc.activities {
		if a.Tipo != models.ActivityStatusChange || a.LeadID == nil || a.ValorNovo == nil {
			continue
		}
		if pattern.MatchString(*a.ValorNovo) {
			seen[*a.LeadID] = true
		}
	}
	return int64(len(seen))
}

func countSalesClosed(bc *brokerContext) int64 {
	var count int64
	for i := range bc.leads {
		if bc.leads[i].StatusID == models.StatusIDWon {
			count++
		}
	}
	return count
}

// Leads with broker activity on the day they were created.
func countSameDayUpdates(bc *brokerContext) int64 {
	var count int64
	for i := range bc.leads {
		lead := &bc.leads[i]
		if lead.CriadoEm == nil {
			continue
		}
		for _, a := range bc.byLead[lead.ID] {
			if a.CriadoEm != nil && sameDay(*a.CriadoEm, *lead.CriadoEm) {
				count++
				break
			}
		}
	}
	return count
}

// Incoming→outgoing message pairs answered in under three hours.
func countQuickReplies(bc *brokerContext) int64 {
	var count int64
	for i := range bc.leads {
		lead := &bc.leads[i]
		var messages []models.Activity
		for _, a := range bc.byLead[lead.ID] {
			if a.Tipo == models.ActivityIncomingMessage || a.Tipo == models.ActivityOutgoingMessage {
				messages = append(messages, a)
			}
		}
		for j := 0; j+1 < len(messages); j++ {
			cur, next := messages[j], messages[j+1]
			if cur.Tipo != models.ActivityIncomingMessage || next.Tipo != models.ActivityOutgoingMessage {
				continue
			}
			if cur.CriadoEm == nil || next.CriadoEm == nil {
				continue
			}
			if next.CriadoEm.Sub(*cur.CriadoEm) < 3*time.Hour {
				count++
			}
		}
	}
	return count
}

// 1 when every lead created today got at least one outgoing message.
func allTodaysLeadsAnswered(bc *brokerContext) int64 {
	var today, answered int
	for i := range bc.leads {
		lead := &bc.leads[i]
		if lead.CriadoEm == nil || !sameDay(*lead.CriadoEm, bc.now) {
			continue
		}
		today++
		for _, a := range bc.byLead[lead.ID] {
			if a.Tipo == models.ActivityOutgoingMessage {
				answered++
				break
			}
		}
	}
	if today > 0 && answered == today {
		return 1
	}
	return 0
}

func countCompleteRegistrations(bc *brokerContext) int64 {
	var count int64
	for i := range bc.leads {
		lead := &bc.leads[i]
		if lead.Nome != "" && lead.ContatoNome != "" && lead.Valor != nil && *lead.Valor > 0 {
			count++
		}
	}
	return count
}

// Won leads contacted again after they closed.
func countPostSaleFollowups(bc *brokerContext) int64 {
	var count int64
	for i := range bc.leads {
		lead := &bc.leads[i]
		if lead.StatusID != models.StatusIDWon || lead.AtualizadoEm == nil {
			continue
		}
		for _, a := range bc.byLead[lead.ID] {
			if a.CriadoEm == nil || !a.CriadoEm.After(*lead.AtualizadoEm) {
				continue
			}
			if a.Tipo == models.ActivityOutgoingMessage || a.Tipo == models.ActivityTaskCompleted {
				count++
				break
			}
		}
	}
	return count
}

// Open leads whose last broker touch (or creation, when untouched) is older
// than the threshold.
func staleLeadCounter(threshold time.Duration) counterFunc {
	return func(bc *brokerContext) int64 {
		var count int64
		for i := range bc.leads {
			lead := &bc.leads[i]
			if !leadIsOpen(lead) {
				continue
			}
			var reference *time.Time
			if acts := bc.byLead[lead.ID]; len(acts) > 0 {
				reference = acts[len(acts)-1].CriadoEm
			}
			if reference == nil {
				reference = lead.CriadoEm
			}
			if reference != nil && bc.now.Sub(*reference) > threshold {
				count++
			}
		}
		return count
	}
}

func countLeadsLost(bc *brokerContext) int64 {
	var count int64
	for i := range bc.leads {
		if bc.leads[i].StatusID == models.StatusIDLost {
			count++
		}
	}
	return count
}
