package billing

import (
	"time"

	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
)

type LedgerResponse struct {
	Entries []models.LedgerEntry `json:"entries"`
	Total   int64                `json:"total"`
	Page    int                  `json:"page"`
	Limit   int                  `json:"limit"`
}

type InvoiceListResponse struct {
	Invoices []models.Invoice `json:"invoices"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
}

type GenerateInvoiceInput struct {
	PeriodStart time.Time `json:"period_start" binding:"required"`
	PeriodEnd   time.Time `json:"period_end" binding:"required"`
}
