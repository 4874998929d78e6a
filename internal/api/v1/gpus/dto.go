package gpus

import "github.com/taoshinakamoto/VOLTAGEGPU/internal/models"

// ListResponse wraps the catalog snapshot with a degradation flag so a
// client can tell fresh data from a catalog the refresher cannot reach.
type ListResponse struct {
	Offers   []models.GPUOffer `json:"offers"`
	Degraded bool              `json:"degraded"`
}
