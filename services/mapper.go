package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"crm-gamification-system/models"
)

// Portuguese weekday names for the activity heatmap columns.
var weekdayNames = map[time.Weekday]string{
	time.Monday:    "Segunda",
	time.Tuesday:   "Terça",
	time.Wednesday: "Quarta",
	time.Thursday:  "Quinta",
	time.Friday:    "Sexta",
	time.Saturday:  "Sábado",
	time.Sunday:    "Domingo",
}

var activityTypeNames = map[string]string{
	"lead_status_changed":   models.ActivityStatusChange,
	"incoming_chat_message": models.ActivityIncomingMessage,
	"outgoing_chat_message": models.ActivityOutgoingMessage,
	"task_completed":        models.ActivityTaskCompleted,
}

// MapBroker normalizes a raw CRM user record. Records missing their id are
// rejected with a MappingError and skipped by the caller; role and active
// flags are preserved so the caller can filter scored brokers.
func MapBroker(record map[string]any, companyID int64) (*models.Broker, error) {
	id, ok := asInt64(record["id"])
	if !ok || id == 0 {
		return nil, &MappingError{Entity: "broker", Reason: "missing id"}
	}

	nome := strings.TrimSpace(asString(record["name"]) + " " + asString(record["lastname"]))
	cargo := "Corretor"
	ativo := false
	if rights, ok := record["rights"].(map[string]any); ok {
		if isAdmin, _ := rights["is_admin"].(bool); isAdmin {
			cargo = "Administrador"
		}
		ativo, _ = rights["is_active"].(bool)
	}

	broker := &models.Broker{
		ID:        id,
		CompanyID: companyID,
		Nome:      nome,
		Email:     asString(record["email"]),
		Cargo:     cargo,
		Ativo:     ativo,
		CriadoEm:  asUnixTime(record["created_at"]),
	}
	if links, ok := record["_links"].(map[string]any); ok {
		if avatar, ok := links["avatar"].(map[string]any); ok {
			if href := asString(avatar["href"]); href != "" {
				broker.FotoURL = &href
			}
		}
	}
	return broker, nil
}

// MapLead normalizes a raw CRM lead record. statusNames resolves the CRM
// status id to its pipeline stage name (Etapa); unknown ids map to
// "Desconhecido". The responsible-user reference is kept even when the
// broker has not been synced yet; the sync worker nulls unknown references
// and backfills them once the parent arrives.
func MapLead(record map[string]any, companyID int64, statusNames map[int64]string) (*models.Lead, error) {
	id, ok := asInt64(record["id"])
	if !ok || id == 0 {
		return nil, &MappingError{Entity: "lead", Reason: "missing id"}
	}

	statusID, _ := asInt64(record["status_id"])
	pipelineID, _ := asInt64(record["pipeline_id"])
	etapa, ok := statusNames[statusID]
	if !ok {
		etapa = "Desconhecido"
	}

	lead := &models.Lead{
		ID:           id,
		CompanyID:    companyID,
		Nome:         asString(record["name"]),
		StatusID:     statusID,
		PipelineID:   pipelineID,
		Status:       models.StatusLabel(statusID),
		Etapa:        etapa,
		CriadoEm:     asUnixTime(record["created_at"]),
		AtualizadoEm: asUnixTime(record["updated_at"]),
		Fechado:      asUnixTime(record["closed_at"]) != nil,
	}
	if respID, ok := asInt64(record["responsible_user_id"]); ok && respID != 0 {
		lead.ResponsavelID = &respID
	}
	if valor, ok := asFloat64(record["price"]); ok {
		lead.Valor = &valor
	}
	if embedded, ok := record["_embedded"].(map[string]any); ok {
		if contacts, ok := embedded["contacts"].([]any); ok && len(contacts) > 0 {
			if contact, ok := contacts[0].(map[string]any); ok {
				lead.ContatoNome = asString(contact["name"])
			}
		}
	}
	return lead, nil
}

// MapActivity normalizes a raw CRM event record and derives the weekday and
// hour-of-day heatmap columns from its creation time.
func MapActivity(record map[string]any, companyID int64) (*models.Activity, error) {
	id := asString(record["id"])
	if id == "" {
		return nil, &MappingError{Entity: "activity", Reason: "missing id"}
	}

	tipo, ok := activityTypeNames[asString(record["type"])]
	if !ok {
		tipo = models.ActivityOther
	}

	activity := &models.Activity{
		ID:        id,
		CompanyID: companyID,
		Tipo:      tipo,
		CriadoEm:  asUnixTime(record["created_at"]),
	}
	if asString(record["entity_type"]) == "lead" {
		if leadID, ok := asInt64(record["entity_id"]); ok && leadID != 0 {
			activity.LeadID = &leadID
		}
	}
	if userID, ok := asInt64(record["created_by"]); ok && userID != 0 {
		activity.UserID = &userID
	}
	if before := asText(record["value_before"]); before != "" {
		activity.ValorAnterior = &before
	}
	if after := asText(record["value_after"]); after != "" {
		activity.ValorNovo = &after
	}
	if texto := asString(record["text"]); texto != "" {
		activity.Texto = &texto
	}
	if activity.CriadoEm != nil {
		dia := weekdayNames[activity.CriadoEm.Weekday()]
		hora := activity.CriadoEm.Hour()
		activity.DiaSemana = &dia
		activity.Hora = &hora
	}
	return activity, nil
}

// asInt64 coerces JSON numbers, numeric strings and json.Number values.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatInt(int64(s), 10)
	case json.Number:
		return s.String()
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return ""
	}
}

// asText renders scalar payloads as-is and structured payloads (the CRM
// nests status-change values inside objects) as compact JSON.
func asText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64, int64, bool, json.Number:
		return fmt.Sprintf("%v", t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

// asUnixTime converts a unix-seconds value to UTC time. Zero and missing
// values map to nil rather than the epoch.
func asUnixTime(v any) *time.Time {
	secs, ok := asInt64(v)
	if !ok || secs == 0 {
		return nil
	}
	t := time.Unix(secs, 0).UTC()
	return &t
}
