package services

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"crm-gamification-system/models"
)

// ErrConfirmRequired is returned when RemoveRule is called without the
// explicit acknowledgment flag. Dropping a counter column is irreversible.
var ErrConfirmRequired = errors.New("removing a rule drops its counter column; pass confirm=true to acknowledge")

// columnPattern restricts counter columns to safe SQL identifiers, since
// they are interpolated into ALTER TABLE statements.
var columnPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// defaultColumns are declared on the BrokerPoints struct and managed by
// AutoMigrate; RemoveRule detaches their rules but leaves the columns in
// place, because the next migration would recreate them anyway.
var defaultColumns = func() map[string]bool {
	cols := make(map[string]bool, len(models.DefaultRules))
	for _, r := range models.DefaultRules {
		cols[r.ColunaNome] = true
	}
	return cols
}()

// RuleService is the registry of scoring rules. It owns the broker_points
// schema projection: every rule row has exactly one backing counter column,
// provisioned and dropped through here and nowhere else.
type RuleService struct {
	DB *gorm.DB
}

func NewRuleService(db *gorm.DB) *RuleService {
	return &RuleService{DB: db}
}

// SlugColumn derives a counter column name from a human rule name.
func SlugColumn(nome string) string {
	return strings.ReplaceAll(slug.Make(nome), "-", "_")
}

// SeedDefaultRules creates the default rule set for a company. Idempotent:
// existing rows keep their operator-tuned point values.
func (s *RuleService) SeedDefaultRules(companyID int64) error {
	for _, def := range models.DefaultRules {
		rule := models.Rule{
			ID:         uuid.NewString(),
			CompanyID:  companyID,
			Nome:       def.Nome,
			ColunaNome: def.ColunaNome,
			Pontos:     def.Pontos,
			Descricao:  def.Descricao,
		}
		var existing models.Rule
		err := s.DB.Where("company_id = ? AND coluna_nome = ?", companyID, def.ColunaNome).
			Attrs(rule).FirstOrCreate(&existing).Error
		if err != nil {
			return fmt.Errorf("failed to seed rule %s: %w", def.ColunaNome, err)
		}
	}
	return nil
}

// AddRule registers a scoring rule and provisions its counter column with a
// zero default. coluna defaults to a slug of nome. Re-adding an existing
// column is a no-op that returns the existing rule.
func (s *RuleService) AddRule(companyID int64, nome, coluna string, pontos int, descricao string) (*models.Rule, error) {
	if coluna == "" {
		coluna = SlugColumn(nome)
	}
	if !columnPattern.MatchString(coluna) {
		return nil, &SchemaEvolutionError{Column: coluna, Err: errors.New("invalid column name")}
	}

	var existing models.Rule
	err := s.DB.Where("company_id = ? AND coluna_nome = ?", companyID, coluna).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Provision the column before the rule row: a rule without its column
	// would break the next scoring pass, the reverse is harmless.
	if err := s.ensureColumn(coluna); err != nil {
		return nil, err
	}

	rule := models.Rule{
		ID:         uuid.NewString(),
		CompanyID:  companyID,
		Nome:       nome,
		ColunaNome: coluna,
		Pontos:     pontos,
		Descricao:  descricao,
	}
	if err := s.DB.Create(&rule).Error; err != nil {
		return nil, err
	}
	log.Printf("✅ Rule %q added (column %s, %d points)", nome, coluna, pontos)
	return &rule, nil
}

// RemoveRule deletes a rule and drops its counter column. Destructive and
// irreversible, so it refuses to run without confirm. The column survives
// when another company still has a rule backed by it.
func (s *RuleService) RemoveRule(companyID int64, coluna string, confirm bool) error {
	if !confirm {
		return ErrConfirmRequired
	}
	if !columnPattern.MatchString(coluna) {
		return &SchemaEvolutionError{Column: coluna, Err: errors.New("invalid column name")}
	}

	var rule models.Rule
	if err := s.DB.Where("company_id = ? AND coluna_nome = ?", companyID, coluna).First(&rule).Error; err != nil {
		return err
	}
	if err := s.DB.Delete(&rule).Error; err != nil {
		return err
	}

	var remaining int64
	if err := s.DB.Model(&models.Rule{}).Where("coluna_nome = ?", coluna).Count(&remaining).Error; err != nil {
		return err
	}
	if remaining > 0 || defaultColumns[coluna] {
		log.Printf("✅ Rule %s removed for company %d (column kept)", coluna, companyID)
		return nil
	}

	if s.DB.Migrator().HasColumn(&models.BrokerPoints{}, coluna) {
		if err := s.DB.Exec("ALTER TABLE broker_points DROP COLUMN " + coluna).Error; err != nil {
			return &SchemaEvolutionError{Column: coluna, Err: err}
		}
	}
	log.Printf("✅ Rule %s removed and column dropped", coluna)
	return nil
}

// ListRules returns a company's rules in creation order.
func (s *RuleService) ListRules(companyID int64) ([]models.Rule, error) {
	var rules []models.Rule
	err := s.DB.Where("company_id = ?", companyID).Order("created_at ASC").Find(&rules).Error
	return rules, err
}

func (s *RuleService) ensureColumn(coluna string) error {
	if s.DB.Migrator().HasColumn(&models.BrokerPoints{}, coluna) {
		return nil
	}
	err := s.DB.Exec("ALTER TABLE broker_points ADD COLUMN " + coluna + " bigint NOT NULL DEFAULT 0").Error
	if err != nil {
		return &SchemaEvolutionError{Column: coluna, Err: err}
	}
	return nil
}
