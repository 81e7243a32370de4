package domain

import (
	"time"
)

// PairInfo is the registry record of a tracked pair
type PairInfo struct {
	PairID      string    `gorm:"primaryKey" json:"pair_id"`
	SymbolX     string    `json:"symbol_x"`
	SymbolY     string    `json:"symbol_y"`
	IsActive    bool      `json:"is_active" gorm:"index"`
	LastState   string    `json:"last_state"`    // Position state after the latest cycle
	LastCycleAt time.Time `json:"last_cycle_at"` // Bar time of the latest cycle
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AppConfig represents user-specific configuration (Key-Value)
type AppConfig struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
