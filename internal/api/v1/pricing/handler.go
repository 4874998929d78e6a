package pricing

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/services"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/utils"
)

type Handler struct {
	Pricing *services.PricingService
}

func NewHandler(pricing *services.PricingService) *Handler {
	return &Handler{Pricing: pricing}
}

// CreateQuote godoc
// @Summary Request a pricing quote
// @Description Quote the hourly price for a GPU configuration, valid for a short window
// @Tags pricing
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   input  body  QuoteInput  true  "Quote Input"
// @Success 201 {object} utils.Response{data=QuoteResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Router /pricing/quotes [post]
func (h *Handler) CreateQuote(c *gin.Context) {
	var input QuoteInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	quote, err := h.Pricing.Quote(input.GPUType, input.Count, input.Region)
	if err != nil {
		c.JSON(services.HTTPStatus(err), utils.NewErrorResponse(services.ErrorCode(err), err.Error()))
		return
	}

	c.JSON(http.StatusCreated, utils.NewSuccessResponse("Quote issued successfully", toQuoteResponse(quote)))
}

// GetQuote godoc
// @Summary Get a quote by ID
// @Tags pricing
// @Produce  json
// @Security ApiKeyAuth
// @Param   id  path  string  true  "Quote ID"
// @Success 200 {object} utils.Response{data=QuoteResponse}
// @Failure 404 {object} utils.ErrorResponse
// @Router /pricing/quotes/{id} [get]
func (h *Handler) GetQuote(c *gin.Context) {
	quote, err := services.GetQuote(c.Param("id"))
	if err != nil {
		c.JSON(services.HTTPStatus(err), utils.NewErrorResponse(services.ErrorCode(err), err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Quote retrieved successfully", toQuoteResponse(quote)))
}

// Estimate godoc
// @Summary Estimate total cost for a quoted configuration
// @Tags pricing
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   input  body  EstimateInput  true  "Estimate Input"
// @Success 200 {object} utils.Response{data=EstimateResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 410 {object} utils.ErrorResponse
// @Router /pricing/estimate [post]
func (h *Handler) Estimate(c *gin.Context) {
	var input EstimateInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	quote, err := services.GetQuote(input.QuoteID)
	if err != nil {
		c.JSON(services.HTTPStatus(err), utils.NewErrorResponse(services.ErrorCode(err), err.Error()))
		return
	}

	duration := time.Duration(input.DurationHours * float64(time.Hour))
	total, err := services.Estimate(quote, duration)
	if err != nil {
		c.JSON(services.HTTPStatus(err), utils.NewErrorResponse(services.ErrorCode(err), err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Estimate computed successfully", EstimateResponse{
		QuoteID:       quote.ID,
		DurationHours: input.DurationHours,
		HourlyPrice:   quote.HourlyPrice,
		Total:         total,
	}))
}

// Tiers godoc
// @Summary Hourly prices per commitment tier
// @Description On-demand, spot and reserved prices for one GPU type
// @Tags pricing
// @Produce  json
// @Security ApiKeyAuth
// @Param   type    path   string  true   "GPU type"
// @Param   region  query  string  false  "Region"
// @Success 200 {object} utils.Response{data=TierResponse}
// @Failure 404 {object} utils.ErrorResponse
// @Router /pricing/tiers/{type} [get]
func (h *Handler) Tiers(c *gin.Context) {
	gpuType := c.Param("type")
	region := c.Query("region")

	tiers, err := h.Pricing.TierPrices(gpuType, region)
	if err != nil {
		c.JSON(services.HTTPStatus(err), utils.NewErrorResponse(services.ErrorCode(err), err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Tier prices retrieved successfully", TierResponse{
		GPUType: gpuType,
		Region:  region,
		Tiers:   tiers,
	}))
}
