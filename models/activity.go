package models

import (
	"time"
)

// Normalized activity types, mapped from the CRM event types.
const (
	ActivityStatusChange    = "mudança_status"
	ActivityIncomingMessage = "mensagem_recebida"
	ActivityOutgoingMessage = "mensagem_enviada"
	ActivityTaskCompleted   = "tarefa_concluida"
	ActivityOther           = "outro"
)

// Activity mirrors a Kommo CRM event. Events are immutable upstream, so a
// re-upsert of the same id is always a no-op in practice.
type Activity struct {
	// The CRM event id is an opaque string, not auto-generated locally.
	ID        string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	CompanyID int64  `gorm:"index;not null" json:"company_id"`

	// LeadID cascades on lead deletion; UserID is nulled when a broker row
	// goes away so history survives its author.
	LeadID *int64  `gorm:"index" json:"lead_id,omitempty"`
	Lead   *Lead   `gorm:"foreignKey:LeadID;constraint:OnDelete:CASCADE" json:"-"`
	UserID *int64  `gorm:"index" json:"user_id,omitempty"`
	User   *Broker `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"-"`

	Tipo          string  `gorm:"type:varchar(32);index" json:"tipo"`
	ValorAnterior *string `json:"valor_anterior,omitempty"`
	ValorNovo     *string `json:"valor_novo,omitempty"`
	Texto         *string `json:"texto,omitempty"` // message/task free text

	CriadoEm *time.Time `gorm:"index" json:"criado_em,omitempty"`
	// Heatmap columns derived from CriadoEm at mapping time.
	DiaSemana *string `gorm:"type:varchar(16)" json:"dia_semana,omitempty"`
	Hora      *int    `json:"hora,omitempty"`

	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Activity) TableName() string {
	return "activities"
}
