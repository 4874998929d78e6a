package services

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/database"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type invoiceLineItem struct {
	InstanceID string          `json:"instance_id"`
	Amount     decimal.Decimal `json:"amount"`
	Entries    int             `json:"entries"`
}

// GenerateInvoice aggregates ledger activity for one account over one period
// into an immutable snapshot.
func GenerateInvoice(accountID uint, periodStart, periodEnd time.Time) (*models.Invoice, error) {
	var entries []models.LedgerEntry
	err := database.DB.
		Where("account_id = ? AND created_at >= ? AND created_at < ?", accountID, periodStart, periodEnd).
		Order("created_at asc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	totalDebits := decimal.Zero
	totalReleases := decimal.Zero
	totalCredits := decimal.Zero
	perInstance := make(map[string]*invoiceLineItem)

	for _, e := range entries {
		switch e.Kind {
		case models.LedgerEntryDebit:
			totalDebits = totalDebits.Add(e.Amount)
			if e.InstanceID != nil {
				item, ok := perInstance[*e.InstanceID]
				if !ok {
					item = &invoiceLineItem{InstanceID: *e.InstanceID}
					perInstance[*e.InstanceID] = item
				}
				item.Amount = item.Amount.Add(e.Amount)
				item.Entries++
			}
		case models.LedgerEntryRelease:
			totalReleases = totalReleases.Add(e.Amount)
		case models.LedgerEntryCredit:
			totalCredits = totalCredits.Add(e.Amount)
		}
	}

	items := make([]invoiceLineItem, 0, len(perInstance))
	for _, item := range perInstance {
		items = append(items, *item)
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}

	invoice := &models.Invoice{
		ID:            uuid.New().String(),
		AccountID:     accountID,
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		TotalDebits:   totalDebits,
		TotalReleases: totalReleases,
		TotalCredits:  totalCredits,
		LineItems:     datatypes.JSON(itemsJSON),
	}
	if err := database.DB.Create(invoice).Error; err != nil {
		return nil, err
	}

	logger.Log.Info("invoice generated",
		zap.String("invoice_id", invoice.ID),
		zap.Uint("account_id", accountID),
		zap.String("total_debits", totalDebits.String()))
	return invoice, nil
}

// FindInvoices retrieves invoices for an account, newest first.
func FindInvoices(accountID uint, page, limit int) ([]models.Invoice, int64, error) {
	var invoices []models.Invoice
	var total int64

	query := database.DB.Model(&models.Invoice{}).Where("account_id = ?", accountID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&invoices).Error; err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

// generatePeriodInvoices builds the previous calendar month's invoice for
// every account with ledger activity in that window.
func generatePeriodInvoices(now time.Time) {
	periodEnd := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	periodStart := periodEnd.AddDate(0, -1, 0)

	var accountIDs []uint
	err := database.DB.Model(&models.LedgerEntry{}).
		Where("created_at >= ? AND created_at < ?", periodStart, periodEnd).
		Distinct("account_id").
		Pluck("account_id", &accountIDs).Error
	if err != nil {
		logger.Log.Error("invoice run: account scan failed", zap.Error(err))
		return
	}

	for _, id := range accountIDs {
		if _, err := GenerateInvoice(id, periodStart, periodEnd); err != nil {
			logger.Log.Error("invoice run: generation failed",
				zap.Uint("account_id", id), zap.Error(err))
		}
	}
}

// StartInvoiceCron schedules the periodic invoice run.
func StartInvoiceCron(spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		generatePeriodInvoices(time.Now())
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
