package services_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/services"
)

func TestGenerateInvoice(t *testing.T) {
	setupTestDB()
	account := createTestAccount("100.00")

	instance := &models.Instance{
		ID:          "inst-1",
		AccountID:   account.ID,
		HourlyPrice: decimal.RequireFromString("1.85"),
	}

	now := time.Now()
	_, err := services.HoldCredits(account.ID, instance.ID, decimal.RequireFromString("1.85"),
		now.Add(-time.Hour), now, "initial lease")
	require.NoError(t, err)
	_, err = services.TickInstance(instance, time.Hour)
	require.NoError(t, err)
	require.NoError(t, services.ReleaseHold(instance, 0))
	_, err = services.CreditAccount(account.ID, decimal.RequireFromString("50.00"), "top-up", "admin")
	require.NoError(t, err)

	invoice, err := services.GenerateInvoice(account.ID, now.Add(-24*time.Hour), now.Add(24*time.Hour))
	require.NoError(t, err)
	decEqual(t, "1.85", invoice.TotalDebits)
	decEqual(t, "1.85", invoice.TotalReleases)
	decEqual(t, "50.00", invoice.TotalCredits)

	var items []struct {
		InstanceID string          `json:"instance_id"`
		Amount     decimal.Decimal `json:"amount"`
		Entries    int             `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(invoice.LineItems, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "inst-1", items[0].InstanceID)
	decEqual(t, "1.85", items[0].Amount)
	assert.Equal(t, 1, items[0].Entries)
}

func TestGenerateInvoiceEmptyPeriod(t *testing.T) {
	setupTestDB()
	account := createTestAccount("100.00")

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	invoice, err := services.GenerateInvoice(account.ID, start, start.AddDate(0, 1, 0))
	require.NoError(t, err)
	decEqual(t, "0", invoice.TotalDebits)
	decEqual(t, "0", invoice.TotalReleases)
	decEqual(t, "0", invoice.TotalCredits)
}

func TestFindInvoices(t *testing.T) {
	setupTestDB()
	account := createTestAccount("100.00")

	now := time.Now()
	_, err := services.GenerateInvoice(account.ID, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	require.NoError(t, err)
	_, err = services.GenerateInvoice(account.ID, now.Add(-24*time.Hour), now)
	require.NoError(t, err)

	invoices, total, err := services.FindInvoices(account.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, invoices, 2)

	invoices, _, err = services.FindInvoices(account.ID+1, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, invoices)
}
