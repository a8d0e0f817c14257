package models

import (
	"time"
)

// Lead status labels derived from the CRM's closed status ids.
const (
	LeadStatusWon        = "Ganho"
	LeadStatusLost       = "Perdido"
	LeadStatusInProgress = "Em progresso"

	StatusIDWon  = 142
	StatusIDLost = 143
)

// Lead mirrors a Kommo CRM lead. Synced columns are fully overwritten each
// cycle; TempoMedio and TicketMedio are derived by the scoring engine and
// deliberately excluded from the upsert column set.
type Lead struct {
	ID        int64  `gorm:"primaryKey;autoIncrement:false" json:"id"` // CRM-native id
	CompanyID int64  `gorm:"index;not null" json:"company_id"`
	Nome      string `json:"nome"`

	// ResponsavelID is nullable on purpose: pages may deliver a lead before
	// its owning broker, and the reference is backfilled by reconciliation.
	ResponsavelID *int64  `gorm:"index" json:"responsavel_id,omitempty"`
	Responsavel   *Broker `gorm:"foreignKey:ResponsavelID;constraint:OnDelete:SET NULL" json:"-"`

	ContatoNome string   `json:"contato_nome,omitempty"`
	Valor       *float64 `json:"valor,omitempty"`
	StatusID    int64    `gorm:"index" json:"status_id"`
	PipelineID  int64    `json:"pipeline_id"`
	Etapa       string   `json:"etapa,omitempty"`
	Status      string   `gorm:"type:varchar(16)" json:"status"` // Ganho / Perdido / Em progresso
	Fechado     bool     `json:"fechado"`

	CriadoEm     *time.Time `json:"criado_em,omitempty"`
	AtualizadoEm *time.Time `json:"atualizado_em,omitempty"`

	// TempoMedio is the first-human-response time in seconds. Nil when no
	// qualifying activity exists — never zero.
	TempoMedio *float64 `json:"tempo_medio,omitempty"`
	// TicketMedio is the tenant-wide average value of won leads, denormalized
	// onto each lead row for the dashboards. Nil until a lead is won.
	TicketMedio *float64 `json:"ticket_medio,omitempty"`

	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Lead) TableName() string {
	return "leads"
}

// StatusLabel maps a CRM status id to the stored status string.
func StatusLabel(statusID int64) string {
	switch statusID {
	case StatusIDWon:
		return LeadStatusWon
	case StatusIDLost:
		return LeadStatusLost
	default:
		return LeadStatusInProgress
	}
}
