package models

import (
	"time"
)

// Broker mirrors a Kommo CRM user. Owned by the sync worker; never deleted
// by this service — deactivated users are flagged via Ativo instead so that
// activity history keeps its author.
type Broker struct {
	ID        int64  `gorm:"primaryKey;autoIncrement:false" json:"id"` // CRM-native id
	CompanyID int64  `gorm:"index;not null" json:"company_id"`
	Nome      string `gorm:"not null" json:"nome"`
	Email     string `json:"email,omitempty"`
	FotoURL   *string `json:"foto_url,omitempty"`

	// Cargo is "Corretor" or "Administrador"; only Corretor rows are scored.
	Cargo string `gorm:"type:varchar(32);index" json:"cargo"`
	Ativo bool   `gorm:"default:true" json:"ativo"`

	CriadoEm  *time.Time `json:"criado_em,omitempty"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Broker) TableName() string {
	return "brokers"
}
