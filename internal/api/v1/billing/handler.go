package billing

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/services"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/utils"
)

func currentAccount(c *gin.Context) *models.Account {
	value, _ := c.Get("account")
	return value.(*models.Account)
}

func ledgerFilterFromQuery(c *gin.Context) services.LedgerFilter {
	account := currentAccount(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	filter := services.LedgerFilter{
		AccountID: &account.ID,
		Page:      page,
		Limit:     limit,
	}
	if instanceID := c.Query("instance_id"); instanceID != "" {
		filter.InstanceID = &instanceID
	}
	if raw := c.Query("kind"); raw != "" {
		kind := models.LedgerEntryKind(raw)
		filter.Kind = &kind
	}
	if raw := c.Query("start_time"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.StartTime = &t
		}
	}
	if raw := c.Query("end_time"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.EndTime = &t
		}
	}
	return filter
}

// Ledger godoc
// @Summary List ledger entries
// @Description Paginated ledger entries for the authenticated account
// @Tags billing
// @Produce  json
// @Security ApiKeyAuth
// @Param   instance_id  query  string  false  "Filter by instance"
// @Param   kind         query  string  false  "hold|debit|release|credit"
// @Param   start_time   query  string  false  "RFC3339 lower bound"
// @Param   end_time     query  string  false  "RFC3339 upper bound"
// @Param   page         query  int     false  "Page number"
// @Param   limit        query  int     false  "Page size"
// @Success 200 {object} utils.Response{data=LedgerResponse}
// @Router /billing/ledger [get]
func Ledger(c *gin.Context) {
	filter := ledgerFilterFromQuery(c)
	entries, total, err := services.FindLedgerEntries(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("INTERNAL_ERROR", "Failed to list ledger entries"))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Ledger retrieved successfully", LedgerResponse{
		Entries: entries,
		Total:   total,
		Page:    filter.Page,
		Limit:   filter.Limit,
	}))
}

// ExportLedger godoc
// @Summary Export the ledger as CSV
// @Tags billing
// @Produce  text/csv
// @Security ApiKeyAuth
// @Success 200 {string} string "CSV file"
// @Router /billing/ledger/export [get]
func ExportLedger(c *gin.Context) {
	filter := ledgerFilterFromQuery(c)
	filter.Page = 0
	filter.Limit = 0

	entries, _, err := services.FindLedgerEntries(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("INTERNAL_ERROR", "Failed to list ledger entries"))
		return
	}

	data, err := services.GenerateLedgerCSV(entries)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("INTERNAL_ERROR", "Failed to generate CSV"))
		return
	}

	filename := fmt.Sprintf("ledger_%s.csv", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/csv", data)
}

// ListInvoices godoc
// @Summary List invoices
// @Tags billing
// @Produce  json
// @Security ApiKeyAuth
// @Param   page   query  int  false  "Page number"
// @Param   limit  query  int  false  "Page size"
// @Success 200 {object} utils.Response{data=InvoiceListResponse}
// @Router /billing/invoices [get]
func ListInvoices(c *gin.Context) {
	account := currentAccount(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	invoices, total, err := services.FindInvoices(account.ID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("INTERNAL_ERROR", "Failed to list invoices"))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Invoices retrieved successfully", InvoiceListResponse{
		Invoices: invoices,
		Total:    total,
		Page:     page,
		Limit:    limit,
	}))
}

// GenerateInvoice godoc
// @Summary Generate an invoice for a period
// @Tags billing
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   input  body  GenerateInvoiceInput  true  "Invoice period"
// @Success 201 {object} utils.Response{data=models.Invoice}
// @Failure 400 {object} utils.ErrorResponse
// @Router /billing/invoices [post]
func GenerateInvoice(c *gin.Context) {
	var input GenerateInvoiceInput
	if !utils.BindAndValidate(c, &input) {
		return
	}
	if !input.PeriodEnd.After(input.PeriodStart) {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("VALIDATION_ERROR", "period_end must be after period_start"))
		return
	}

	account := currentAccount(c)
	invoice, err := services.GenerateInvoice(account.ID, input.PeriodStart, input.PeriodEnd)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("INTERNAL_ERROR", "Failed to generate invoice"))
		return
	}

	c.JSON(http.StatusCreated, utils.NewSuccessResponse("Invoice generated successfully", invoice))
}
