package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Email     string `gorm:"uniqueIndex;not null"`
	Password  string `gorm:"not null" json:"-"`
	Role      string `gorm:"not null;default:'user'"`

	// Balance and Reserved are mutated only by the ledger service inside a
	// versioned transaction. Invariant: Balance - Reserved >= 0.
	Balance  decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0"`
	Reserved decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0"`

	IsActive bool `gorm:"default:true"`
	Version  int  `gorm:"default:1"`
}

// Spendable returns the credits not locked by open holds.
func (a *Account) Spendable() decimal.Decimal {
	return a.Balance.Sub(a.Reserved)
}
