package pricing

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup, h *Handler) {
	group := router.Group("/pricing")
	group.POST("/quotes", h.CreateQuote)
	group.GET("/quotes/:id", h.GetQuote)
	group.POST("/estimate", h.Estimate)
	group.GET("/tiers/:type", h.Tiers)
}
