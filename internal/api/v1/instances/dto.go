package instances

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
)

type CreateInput struct {
	GPUType string `json:"gpu_type" binding:"required"`
	Count   int    `json:"count" binding:"required,min=1"`
	Region  string `json:"region" binding:"required"`
	Name    string `json:"name" binding:"max=255"`
}

type ActionInput struct {
	Action string `json:"action" binding:"required,oneof=start stop restart"`
}

type InstanceResponse struct {
	ID                string                `json:"id"`
	Name              string                `json:"name"`
	GPUType           string                `json:"gpu_type"`
	Count             int                   `json:"count"`
	Region            string                `json:"region"`
	Status            models.InstanceStatus `json:"status"`
	HourlyPrice       decimal.Decimal       `json:"hourly_price"`
	PolicyVersion     int                   `json:"policy_version"`
	Degraded          bool                  `json:"degraded"`
	RawUpstreamStatus string                `json:"raw_upstream_status,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	StartedAt         *time.Time            `json:"started_at,omitempty"`
	StoppedAt         *time.Time            `json:"stopped_at,omitempty"`
	LastSyncedAt      *time.Time            `json:"last_synced_at,omitempty"`
}

func toInstanceResponse(i *models.Instance) InstanceResponse {
	return InstanceResponse{
		ID:                i.ID,
		Name:              i.Name,
		GPUType:           i.GPUType,
		Count:             i.Count,
		Region:            i.Region,
		Status:            i.Status,
		HourlyPrice:       i.HourlyPrice,
		PolicyVersion:     i.PolicyVersion,
		Degraded:          i.Degraded,
		RawUpstreamStatus: i.RawUpstreamStatus,
		CreatedAt:         i.CreatedAt,
		StartedAt:         i.StartedAt,
		StoppedAt:         i.StoppedAt,
		LastSyncedAt:      i.LastSyncedAt,
	}
}

type ListResponse struct {
	Instances []InstanceResponse `json:"instances"`
	Total     int64              `json:"total"`
	Page      int                `json:"page"`
	Limit     int                `json:"limit"`
}
