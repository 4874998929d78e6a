package upstream

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUnavailable wraps provider timeouts and 5xx responses. Callers may
// retry idempotent operations with backoff; Create is never blindly retried.
var ErrUnavailable = errors.New("upstream provider unavailable")

// ErrNotFound is returned when the provider does not know the instance.
var ErrNotFound = errors.New("upstream instance not found")

// Offer is one availability record from the provider catalog.
type Offer struct {
	GPUType        string          `json:"gpu_type"`
	Region         string          `json:"region"`
	VRAMGB         int             `json:"vram_gb"`
	TFLOPS         float64         `json:"tflops"`
	PricePerHour   decimal.Decimal `json:"price_per_hour"`
	AvailableCount int             `json:"available_count"`
	TotalCount     int             `json:"total_count"`
}

// CreateSpec is the provisioning request sent to the provider. ClientRef is
// the gateway-assigned instance ID; it lets a timed-out create be reconciled
// instead of retried blind.
type CreateSpec struct {
	ClientRef string `json:"client_ref"`
	GPUType   string `json:"gpu_type"`
	Count     int    `json:"gpu_count"`
	Region    string `json:"region"`
	Name      string `json:"name,omitempty"`
}

// InstanceState is a raw provider status string plus the provider ID it
// belongs to. Translation to internal states happens in MapStatus.
type InstanceState struct {
	ProviderID string `json:"id"`
	Status     string `json:"status"`
}

// Provider is the outbound contract to the upstream GPU compute source.
type Provider interface {
	Availability(ctx context.Context) ([]Offer, error)
	Create(ctx context.Context, spec CreateSpec) (providerID string, err error)
	Status(ctx context.Context, providerID string) (InstanceState, error)
	Action(ctx context.Context, providerID string, action string) error
	Terminate(ctx context.Context, providerID string) error

	// FindByClientRef answers "does upstream already have this instance?"
	// after a timed-out Create. ErrNotFound means the create never landed.
	FindByClientRef(ctx context.Context, clientRef string) (InstanceState, error)
}
