package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AvailabilityState reports how trustworthy a catalog entry is. Entries
// degrade from available/unavailable to unknown when upstream refreshes keep
// failing; unknown is never silently substituted with stale data.
type AvailabilityState string

const (
	AvailabilityAvailable   AvailabilityState = "available"
	AvailabilityUnavailable AvailabilityState = "unavailable"
	AvailabilityUnknown     AvailabilityState = "unknown"
)

// GPUOffer is one upstream catalog entry: a GPU type offered in one region.
// Offers are memory-resident and rebuilt by the catalog refresh loop.
type GPUOffer struct {
	GPUType        string          `json:"gpu_type"`
	Region         string          `json:"region"`
	VRAMGB         int             `json:"vram_gb"`
	TFLOPS         float64         `json:"tflops"`
	BackendHourly  decimal.Decimal `json:"backend_hourly"`
	AvailableCount int             `json:"available_count"`
	TotalCount     int             `json:"total_count"`

	Availability AvailabilityState `json:"availability"`
	FetchedAt    time.Time         `json:"fetched_at"`
	Stale        bool              `json:"stale"`
}
