package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type LedgerEntryKind string

const (
	LedgerEntryHold    LedgerEntryKind = "hold"
	LedgerEntryDebit   LedgerEntryKind = "debit"
	LedgerEntryRelease LedgerEntryKind = "release"
	LedgerEntryCredit  LedgerEntryKind = "credit"
)

// LedgerEntry is one append-only accounting record. Entries are never
// updated or deleted; corrections are new entries.
type LedgerEntry struct {
	ID         uint      `gorm:"primarykey"`
	CreatedAt  time.Time `gorm:"precision:3"`
	AccountID  uint      `gorm:"index;not null"`
	InstanceID *string   `gorm:"type:varchar(36);index"`
	HoldID     *string   `gorm:"type:varchar(36);index"`

	Kind   LedgerEntryKind `gorm:"type:varchar(20);not null;index"`
	Amount decimal.Decimal `gorm:"type:decimal(20,8);not null"`

	// Balance and Reserved after this entry committed, for audit.
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	ReservedAfter decimal.Decimal `gorm:"type:decimal(20,8);not null"`

	Reason   string `gorm:"type:text"`
	Operator string `gorm:"type:varchar(100)"`
}

type HoldStatus string

const (
	HoldStatusOpen     HoldStatus = "open"
	HoldStatusSettled  HoldStatus = "settled"
	HoldStatusReleased HoldStatus = "released"
)

// Hold is the mutable index over the hold/debit/release entry chain for one
// billing interval. The ledger entries themselves stay append-only; the Hold
// row tracks whether the reservation is still outstanding.
type Hold struct {
	ID        string `gorm:"type:varchar(36);primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	AccountID  uint            `gorm:"index;not null"`
	InstanceID string          `gorm:"type:varchar(36);index;not null"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,8);not null"`

	PeriodStart time.Time  `gorm:"not null"`
	PeriodEnd   time.Time  `gorm:"not null"`
	Status      HoldStatus `gorm:"type:varchar(20);not null;index"`
}

// Invoice is an immutable aggregation of ledger activity for one account
// over one period.
type Invoice struct {
	ID        string `gorm:"type:varchar(36);primarykey"`
	CreatedAt time.Time

	AccountID   uint      `gorm:"index;not null"`
	PeriodStart time.Time `gorm:"not null"`
	PeriodEnd   time.Time `gorm:"not null"`

	TotalDebits   decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	TotalReleases decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	TotalCredits  decimal.Decimal `gorm:"type:decimal(20,8);not null"`

	// LineItems groups debits per instance: [{instance_id, amount, entries}].
	LineItems datatypes.JSON `gorm:"type:jsonb"`
}
