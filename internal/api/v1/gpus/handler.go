package gpus

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/services"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/utils"
)

type Handler struct {
	Catalog *services.CatalogService
}

func NewHandler(catalog *services.CatalogService) *Handler {
	return &Handler{Catalog: catalog}
}

// List godoc
// @Summary List GPU offers
// @Description List cached GPU offers with availability and freshness
// @Tags gpus
// @Produce  json
// @Security ApiKeyAuth
// @Param   gpu_type  query  string  false  "Filter by GPU type"
// @Param   region    query  string  false  "Filter by region"
// @Success 200 {object} utils.Response{data=ListResponse}
// @Router /gpus [get]
func (h *Handler) List(c *gin.Context) {
	offers := h.Catalog.List(c.Query("gpu_type"), c.Query("region"))
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Offers retrieved successfully", ListResponse{
		Offers:   offers,
		Degraded: h.Catalog.Degraded(),
	}))
}

// Get godoc
// @Summary List offers for one GPU type
// @Tags gpus
// @Produce  json
// @Security ApiKeyAuth
// @Param   type    path   string  true   "GPU type"
// @Param   region  query  string  false  "Filter by region"
// @Success 200 {object} utils.Response{data=ListResponse}
// @Failure 404 {object} utils.ErrorResponse
// @Router /gpus/{type} [get]
func (h *Handler) Get(c *gin.Context) {
	offers := h.Catalog.List(c.Param("type"), c.Query("region"))
	if len(offers) == 0 {
		c.JSON(http.StatusNotFound, utils.NewErrorResponse("NOT_FOUND", "No offers for this GPU type"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Offers retrieved successfully", ListResponse{
		Offers:   offers,
		Degraded: h.Catalog.Degraded(),
	}))
}
