package models

import (
	"time"
)

// Rule maps a scoring predicate to a counter column on broker_points and a
// point weight. ColunaNome is unique per company; creating or removing a
// rule also provisions or drops the backing column.
type Rule struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	CompanyID  int64  `gorm:"uniqueIndex:idx_rules_company_coluna;not null" json:"company_id"`
	Nome       string `gorm:"not null" json:"nome"`
	ColunaNome string `gorm:"uniqueIndex:idx_rules_company_coluna;not null" json:"coluna_nome"`
	// Pontos may be negative: penalty rules subtract from the total.
	Pontos    int    `gorm:"default:0" json:"pontos"`
	Descricao string `json:"descricao,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Rule) TableName() string {
	return "rules"
}

// DefaultRules is the rule set every new company starts with. Point values
// follow the original gamification scheme; leads_ignorados_48h is tracked
// but worth nothing.
var DefaultRules = []Rule{
	{Nome: "Leads respondidos em 1h", ColunaNome: "leads_respondidos_1h", Pontos: 60,
		Descricao: "Primeira mensagem enviada ao lead em até uma hora após a criação"},
	{Nome: "Leads visitados", ColunaNome: "leads_visitados", Pontos: 40,
		Descricao: "Leads movidos para etapa de visita, agendamento ou apresentação"},
	{Nome: "Propostas enviadas", ColunaNome: "propostas_enviadas", Pontos: 8,
		Descricao: "Leads movidos para etapa de proposta, contrato ou negociação"},
	{Nome: "Vendas realizadas", ColunaNome: "vendas_realizadas", Pontos: 20,
		Descricao: "Leads fechados como Ganho"},
	{Nome: "Leads atualizados no mesmo dia", ColunaNome: "leads_atualizados_mesmo_dia", Pontos: 2,
		Descricao: "Atividade do corretor no mesmo dia da criação do lead"},
	{Nome: "Resposta rápida em 3h", ColunaNome: "resposta_rapida_3h", Pontos: 4,
		Descricao: "Mensagem recebida respondida em menos de três horas"},
	{Nome: "Todos os leads do dia respondidos", ColunaNome: "todos_leads_respondidos", Pontos: 5,
		Descricao: "Nenhum lead criado hoje ficou sem resposta"},
	{Nome: "Cadastro completo", ColunaNome: "cadastro_completo", Pontos: 3,
		Descricao: "Lead com nome, contato e valor preenchidos"},
	{Nome: "Acompanhamento pós-venda", ColunaNome: "acompanhamento_pos_venda", Pontos: 10,
		Descricao: "Contato com o cliente após o fechamento da venda"},
	{Nome: "Leads sem interação por 24h", ColunaNome: "leads_sem_interacao_24h", Pontos: -5,
		Descricao: "Leads abertos sem atividade do corretor há mais de 24 horas"},
	{Nome: "Leads ignorados por 48h", ColunaNome: "leads_ignorados_48h", Pontos: 0,
		Descricao: "Leads abertos sem qualquer atividade há mais de 48 horas"},
	{Nome: "Leads perdidos", ColunaNome: "leads_perdidos", Pontos: -10,
		Descricao: "Leads fechados como Perdido"},
}
