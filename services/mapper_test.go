package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-gamification-system/models"
)

func TestMapBroker(t *testing.T) {
	record := map[string]any{
		"id":       float64(42),
		"name":     "Ana",
		"lastname": "Souza",
		"email":    "ana@example.com",
		"rights": map[string]any{
			"is_admin":  false,
			"is_active": true,
		},
		"created_at": float64(1700000000),
		"_links": map[string]any{
			"avatar": map[string]any{"href": "https://cdn.example.com/ana.png"},
		},
	}

	broker, err := MapBroker(record, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(42), broker.ID)
	assert.Equal(t, int64(7), broker.CompanyID)
	assert.Equal(t, "Ana Souza", broker.Nome)
	assert.Equal(t, "Corretor", broker.Cargo)
	assert.True(t, broker.Ativo)
	require.NotNil(t, broker.FotoURL)
	assert.Equal(t, "https://cdn.example.com/ana.png", *broker.FotoURL)
	require.NotNil(t, broker.CriadoEm)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), *broker.CriadoEm)
}

func TestMapBrokerAdmin(t *testing.T) {
	record := map[string]any{
		"id":     float64(9),
		"name":   "Chefe",
		"rights": map[string]any{"is_admin": true, "is_active": true},
	}
	broker, err := MapBroker(record, 7)
	require.NoError(t, err)
	assert.Equal(t, "Administrador", broker.Cargo)
}

func TestMapBrokerMissingID(t *testing.T) {
	_, err := MapBroker(map[string]any{"name": "Sem ID"}, 7)
	var mapErr *MappingError
	require.True(t, errors.As(err, &mapErr))
	assert.Equal(t, "broker", mapErr.Entity)
}

func TestMapLead(t *testing.T) {
	statusNames := map[int64]string{55: "Em negociação"}
	record := map[string]any{
		"id":                  float64(1001),
		"name":                "Apartamento Centro",
		"price":               float64(350000),
		"status_id":           float64(55),
		"pipeline_id":         float64(3),
		"responsible_user_id": float64(42),
		"created_at":          float64(1700000000),
		"updated_at":          float64(1700003600),
		"_embedded": map[string]any{
			"contacts": []any{
				map[string]any{"name": "João Pereira"},
			},
		},
	}

	lead, err := MapLead(record, 7, statusNames)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), lead.ID)
	assert.Equal(t, "Em negociação", lead.Etapa)
	assert.Equal(t, models.LeadStatusInProgress, lead.Status)
	assert.Equal(t, "João Pereira", lead.ContatoNome)
	require.NotNil(t, lead.Valor)
	assert.Equal(t, 350000.0, *lead.Valor)
	require.NotNil(t, lead.ResponsavelID)
	assert.Equal(t, int64(42), *lead.ResponsavelID)
	assert.False(t, lead.Fechado)
	assert.Nil(t, lead.TempoMedio)
	assert.Nil(t, lead.TicketMedio)
}

func TestMapLeadWonAndUnknownStage(t *testing.T) {
	record := map[string]any{
		"id":        float64(1002),
		"status_id": float64(models.StatusIDWon),
		"closed_at": float64(1700010000),
	}
	lead, err := MapLead(record, 7, map[int64]string{})
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusWon, lead.Status)
	assert.Equal(t, "Desconhecido", lead.Etapa)
	assert.True(t, lead.Fechado)
}

func TestMapLeadMissingID(t *testing.T) {
	_, err := MapLead(map[string]any{"name": "Sem ID"}, 7, nil)
	var mapErr *MappingError
	require.True(t, errors.As(err, &mapErr))
}

func TestMapActivityDerivesHeatmapColumns(t *testing.T) {
	// 2026-08-31 14:30 UTC is a Monday.
	createdAt := time.Date(2026, 8, 31, 14, 30, 0, 0, time.UTC).Unix()
	record := map[string]any{
		"id":          "evt-123",
		"type":        "outgoing_chat_message",
		"entity_type": "lead",
		"entity_id":   float64(1001),
		"created_by":  float64(42),
		"created_at":  float64(createdAt),
		"text":        "Olá, tudo bem?",
	}

	activity, err := MapActivity(record, 7)
	require.NoError(t, err)
	assert.Equal(t, "evt-123", activity.ID)
	assert.Equal(t, models.ActivityOutgoingMessage, activity.Tipo)
	require.NotNil(t, activity.LeadID)
	assert.Equal(t, int64(1001), *activity.LeadID)
	require.NotNil(t, activity.DiaSemana)
	assert.Equal(t, "Segunda", *activity.DiaSemana)
	require.NotNil(t, activity.Hora)
	assert.Equal(t, 14, *activity.Hora)
}

func TestMapActivityStructuredValues(t *testing.T) {
	record := map[string]any{
		"id":           "evt-456",
		"type":         "lead_status_changed",
		"entity_type":  "lead",
		"entity_id":    float64(1001),
		"value_before": map[string]any{"lead_status": map[string]any{"id": float64(10)}},
		"value_after":  "Visita agendada",
	}
	activity, err := MapActivity(record, 7)
	require.NoError(t, err)
	assert.Equal(t, models.ActivityStatusChange, activity.Tipo)
	require.NotNil(t, activity.ValorAnterior)
	assert.JSONEq(t, `{"lead_status":{"id":10}}`, *activity.ValorAnterior)
	require.NotNil(t, activity.ValorNovo)
	assert.Equal(t, "Visita agendada", *activity.ValorNovo)
	assert.Nil(t, activity.DiaSemana)
	assert.Nil(t, activity.Hora)
}

func TestMapActivityUnknownType(t *testing.T) {
	record := map[string]any{"id": "evt-789", "type": "lead_added"}
	activity, err := MapActivity(record, 7)
	require.NoError(t, err)
	assert.Equal(t, models.ActivityOther, activity.Tipo)
}

func TestMapActivityMissingID(t *testing.T) {
	_, err := MapActivity(map[string]any{"type": "task_completed"}, 7)
	var mapErr *MappingError
	require.True(t, errors.As(err, &mapErr))
}

func TestCoercionHelpers(t *testing.T) {
	i, ok := asInt64("123")
	assert.True(t, ok)
	assert.Equal(t, int64(123), i)

	_, ok = asInt64("abc")
	assert.False(t, ok)

	f, ok := asFloat64("3.5")
	assert.True(t, ok)
	assert.Equal(t, 3.5, f)

	assert.Nil(t, asUnixTime(float64(0)))
	assert.Nil(t, asUnixTime(nil))
	require.NotNil(t, asUnixTime(float64(1700000000)))
}
