package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"crm-gamification-system/models"
)

func TestSeedDefaultRulesIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	rules := NewRuleService(db)

	require.NoError(t, rules.SeedDefaultRules(7))
	require.NoError(t, rules.SeedDefaultRules(7))

	list, err := rules.ListRules(7)
	require.NoError(t, err)
	assert.Len(t, list, len(models.DefaultRules))
}

func TestSeedKeepsTunedPointValues(t *testing.T) {
	db := newTestDB(t)
	rules := NewRuleService(db)
	require.NoError(t, rules.SeedDefaultRules(7))

	// Operator retunes a rule; re-seeding must not reset it.
	require.NoError(t, db.Model(&models.Rule{}).
		Where("company_id = ? AND coluna_nome = ?", 7, "vendas_realizadas").
		Update("pontos", 50).Error)
	require.NoError(t, rules.SeedDefaultRules(7))

	var rule models.Rule
	require.NoError(t, db.Where("company_id = ? AND coluna_nome = ?", 7, "vendas_realizadas").First(&rule).Error)
	assert.Equal(t, 50, rule.Pontos)
}

func TestAddRuleProvisionsColumn(t *testing.T) {
	db := newTestDB(t)
	rules := NewRuleService(db)

	rule, err := rules.AddRule(7, "Indicações de clientes", "", 15, "Lead indicado por cliente")
	require.NoError(t, err)
	assert.Equal(t, "indicacoes_de_clientes", rule.ColunaNome)
	assert.True(t, db.Migrator().HasColumn(&models.BrokerPoints{}, "indicacoes_de_clientes"))
}

func TestAddRuleIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	rules := NewRuleService(db)

	first, err := rules.AddRule(7, "Indicações", "indicacoes", 15, "")
	require.NoError(t, err)
	second, err := rules.AddRule(7, "Indicações", "indicacoes", 99, "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 15, second.Pontos, "re-adding never changes the stored rule")
}

func TestAddRuleRejectsUnsafeColumn(t *testing.T) {
	db := newTestDB(t)
	rules := NewRuleService(db)

	_, err := rules.AddRule(7, "Ruim", "drop table; --", 1, "")
	var schemaErr *SchemaEvolutionError
	require.ErrorAs(t, err, &schemaErr)
}

func TestRemoveRuleRequiresConfirm(t *testing.T) {
	db := newTestDB(t)
	rules := NewRuleService(db)
	_, err := rules.AddRule(7, "Indicações", "indicacoes", 15, "")
	require.NoError(t, err)

	err = rules.RemoveRule(7, "indicacoes", false)
	assert.ErrorIs(t, err, ErrConfirmRequired)

	// Rule and column untouched.
	var count int64
	require.NoError(t, db.Model(&models.Rule{}).Where("coluna_nome = ?", "indicacoes").Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.True(t, db.Migrator().HasColumn(&models.BrokerPoints{}, "indicacoes"))
}

func TestRemoveRuleDropsColumn(t *testing.T) {
	db := newTestDB(t)
	rules := NewRuleService(db)
	_, err := rules.AddRule(7, "Indicações", "indicacoes", 15, "")
	require.NoError(t, err)

	require.NoError(t, rules.RemoveRule(7, "indicacoes", true))
	assert.False(t, db.Migrator().HasColumn(&models.BrokerPoints{}, "indicacoes"))

	err = rules.RemoveRule(7, "indicacoes", true)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRemoveRuleKeepsColumnSharedByAnotherCompany(t *testing.T) {
	db := newTestDB(t)
	rules := NewRuleService(db)
	_, err := rules.AddRule(7, "Indicações", "indicacoes", 15, "")
	require.NoError(t, err)
	_, err = rules.AddRule(8, "Indicações", "indicacoes", 10, "")
	require.NoError(t, err)

	require.NoError(t, rules.RemoveRule(7, "indicacoes", true))
	assert.True(t, db.Migrator().HasColumn(&models.BrokerPoints{}, "indicacoes"))

	list, err := rules.ListRules(8)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAddThenRemoveLeavesRegistryUnchanged(t *testing.T) {
	db := newTestDB(t)
	rules := NewRuleService(db)
	require.NoError(t, rules.SeedDefaultRules(7))
	before, err := rules.ListRules(7)
	require.NoError(t, err)

	_, err = rules.AddRule(7, "Temporária", "regra_temporaria", 1, "")
	require.NoError(t, err)
	require.NoError(t, rules.RemoveRule(7, "regra_temporaria", true))

	after, err := rules.ListRules(7)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ColunaNome, after[i].ColunaNome)
	}
	assert.False(t, db.Migrator().HasColumn(&models.BrokerPoints{}, "regra_temporaria"))
}

func TestSlugColumn(t *testing.T) {
	assert.Equal(t, "indicacoes_de_clientes", SlugColumn("Indicações de clientes"))
	assert.Equal(t, "resposta_rapida", SlugColumn("Resposta Rápida"))
}
