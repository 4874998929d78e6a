package upstream

import "github.com/taoshinakamoto/VOLTAGEGPU/internal/models"

// statusTable is the explicit translation from provider status strings to
// internal lifecycle states. Anything absent from this table is reported as
// unmapped, never guessed.
var statusTable = map[string]models.InstanceStatus{
	"pending":    models.InstanceStatusProvisioning,
	"starting":   models.InstanceStatusProvisioning,
	"running":    models.InstanceStatusRunning,
	"stopping":   models.InstanceStatusStopping,
	"stopped":    models.InstanceStatusStopped,
	"terminated": models.InstanceStatusTerminated,
	"error":      models.InstanceStatusFailed,
}

// MapStatus translates a raw provider status. ok is false for states missing
// from the table; the caller must surface the raw string as degraded instead
// of coercing it.
func MapStatus(raw string) (models.InstanceStatus, bool) {
	s, ok := statusTable[raw]
	return s, ok
}
