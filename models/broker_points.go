package models

import (
	"time"
)

// BrokerPoints is the wide per-broker aggregate: one integer counter column
// per active rule plus the weighted total. The struct declares the default
// rule columns so AutoMigrate provisions them; operator-defined rules add
// further columns at runtime through the rule registry, and the scoring
// engine writes every counter through a column-keyed map so the two kinds
// are indistinguishable at scoring time. Pontos is recomputed from zero on
// every pass, never patched incrementally.
type BrokerPoints struct {
	ID        int64  `gorm:"primaryKey;autoIncrement:false" json:"id"` // broker id
	CompanyID int64  `gorm:"index;not null" json:"company_id"`
	Nome      string `json:"nome"`

	LeadsRespondidos1h        int64 `gorm:"column:leads_respondidos_1h;default:0" json:"leads_respondidos_1h"`
	LeadsVisitados            int64 `gorm:"column:leads_visitados;default:0" json:"leads_visitados"`
	PropostasEnviadas         int64 `gorm:"column:propostas_enviadas;default:0" json:"propostas_enviadas"`
	VendasRealizadas          int64 `gorm:"column:vendas_realizadas;default:0" json:"vendas_realizadas"`
	LeadsAtualizadosMesmoDia  int64 `gorm:"column:leads_atualizados_mesmo_dia;default:0" json:"leads_atualizados_mesmo_dia"`
	RespostaRapida3h          int64 `gorm:"column:resposta_rapida_3h;default:0" json:"resposta_rapida_3h"`
	TodosLeadsRespondidos     int64 `gorm:"column:todos_leads_respondidos;default:0" json:"todos_leads_respondidos"`
	CadastroCompleto          int64 `gorm:"column:cadastro_completo;default:0" json:"cadastro_completo"`
	AcompanhamentoPosVenda    int64 `gorm:"column:acompanhamento_pos_venda;default:0" json:"acompanhamento_pos_venda"`
	LeadsSemInteracao24h      int64 `gorm:"column:leads_sem_interacao_24h;default:0" json:"leads_sem_interacao_24h"`
	LeadsIgnorados48h         int64 `gorm:"column:leads_ignorados_48h;default:0" json:"leads_ignorados_48h"`
	LeadsPerdidos             int64 `gorm:"column:leads_perdidos;default:0" json:"leads_perdidos"`

	Pontos int64 `gorm:"default:0" json:"pontos"`

	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BrokerPoints) TableName() string {
	return "broker_points"
}
