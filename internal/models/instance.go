package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type InstanceStatus string

const (
	InstanceStatusRequested    InstanceStatus = "requested"
	InstanceStatusProvisioning InstanceStatus = "provisioning"
	InstanceStatusRunning      InstanceStatus = "running"
	InstanceStatusStopping     InstanceStatus = "stopping"
	InstanceStatusStopped      InstanceStatus = "stopped"
	InstanceStatusTerminating  InstanceStatus = "terminating"
	InstanceStatusTerminated   InstanceStatus = "terminated"
	InstanceStatusFailed       InstanceStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceStatusTerminated || s == InstanceStatusFailed
}

type InstanceAction string

const (
	ActionStart   InstanceAction = "start"
	ActionStop    InstanceAction = "stop"
	ActionRestart InstanceAction = "restart"
)

// Instance is a GPU lease tracked against the upstream provider. The ID is
// assigned at request time and never changes; ProviderID is set exactly once
// when upstream provisioning succeeds. HourlyPrice is copied from the quote
// that priced the creation and is never recomputed.
type Instance struct {
	ID        string `gorm:"type:varchar(36);primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	ProviderID *string `gorm:"type:varchar(100);uniqueIndex"`
	AccountID  uint    `gorm:"index;not null"`
	GPUType    string  `gorm:"type:varchar(50);not null"`
	Count      int     `gorm:"not null;default:1"`
	Region     string  `gorm:"type:varchar(50);not null"`
	Name       string  `gorm:"type:varchar(255)"`

	Status InstanceStatus `gorm:"type:varchar(20);not null;index"`

	HourlyPrice   decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	PolicyVersion int             `gorm:"not null"`
	QuoteID       string          `gorm:"type:varchar(36)"`

	// Degraded is set when upstream reports a state missing from the mapping
	// table or when reconciliation finds a divergence. RawUpstreamStatus
	// keeps the untranslated string for operators.
	Degraded          bool   `gorm:"default:false"`
	RawUpstreamStatus string `gorm:"type:varchar(50)"`

	// GraceUntil suspends billing ticks while a reconciliation window is
	// open; the client is never charged for state the gateway could not
	// observe accurately.
	GraceUntil *time.Time

	StartedAt    *time.Time
	StoppedAt    *time.Time
	LastSyncedAt *time.Time

	Version int `gorm:"default:1"`
}
