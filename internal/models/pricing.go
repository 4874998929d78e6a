package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PricingPolicy is a versioned markup configuration. Rows are immutable;
// changing the markup or discount rules inserts a new version. Instances
// record the version that priced them so later policy changes never touch
// running leases.
type PricingPolicy struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	Version   int             `gorm:"uniqueIndex;not null"`
	Markup    decimal.Decimal `gorm:"type:decimal(10,4);not null"`

	// DiscountRules holds an ordered list of volume discounts, see
	// DiscountRule. Stored as JSON to keep the row immutable as one unit.
	DiscountRules datatypes.JSON `gorm:"type:jsonb"`

	CreatedBy string `gorm:"type:varchar(100)"`
}

// DiscountRule grants a fractional discount when the quoted GPU count
// reaches MinCount. Rules are evaluated by descending MinCount; the first
// match wins.
type DiscountRule struct {
	MinCount int             `json:"min_count"`
	Discount decimal.Decimal `json:"discount"`
}

// PricingQuote is an immutable, time-boxed price lock for one GPU
// type/count/region combination.
type PricingQuote struct {
	ID            string `gorm:"type:varchar(36);primarykey"`
	CreatedAt     time.Time
	GPUType       string          `gorm:"type:varchar(50);not null;index"`
	Count         int             `gorm:"not null"`
	Region        string          `gorm:"type:varchar(50);not null"`
	PolicyVersion int             `gorm:"not null"`
	BackendHourly decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	HourlyPrice   decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	IssuedAt      time.Time       `gorm:"not null"`
	ExpiresAt     time.Time       `gorm:"not null;index"`
	ConsumedAt    *time.Time
}

// Expired reports whether the quote can no longer price an instance.
func (q *PricingQuote) Expired(now time.Time) bool {
	return now.After(q.ExpiresAt)
}
