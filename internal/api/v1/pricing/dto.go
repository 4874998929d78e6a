package pricing

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
)

type QuoteInput struct {
	GPUType string `json:"gpu_type" binding:"required"`
	Count   int    `json:"count" binding:"required,min=1"`
	Region  string `json:"region" binding:"required"`
}

type QuoteResponse struct {
	ID            string          `json:"id"`
	GPUType       string          `json:"gpu_type"`
	Count         int             `json:"count"`
	Region        string          `json:"region"`
	PolicyVersion int             `json:"policy_version"`
	HourlyPrice   decimal.Decimal `json:"hourly_price"`
	IssuedAt      time.Time       `json:"issued_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

func toQuoteResponse(q *models.PricingQuote) QuoteResponse {
	return QuoteResponse{
		ID:            q.ID,
		GPUType:       q.GPUType,
		Count:         q.Count,
		Region:        q.Region,
		PolicyVersion: q.PolicyVersion,
		HourlyPrice:   q.HourlyPrice,
		IssuedAt:      q.IssuedAt,
		ExpiresAt:     q.ExpiresAt,
	}
}

type EstimateInput struct {
	QuoteID       string  `json:"quote_id" binding:"required"`
	DurationHours float64 `json:"duration_hours" binding:"required,gt=0"`
}

type EstimateResponse struct {
	QuoteID       string          `json:"quote_id"`
	DurationHours float64         `json:"duration_hours"`
	HourlyPrice   decimal.Decimal `json:"hourly_price"`
	Total         decimal.Decimal `json:"total"`
}

type TierResponse struct {
	GPUType string                     `json:"gpu_type"`
	Region  string                     `json:"region"`
	Tiers   map[string]decimal.Decimal `json:"tiers"`
}
