package gpus

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup, h *Handler) {
	group := router.Group("/gpus")
	group.GET("", h.List)
	group.GET("/:type", h.Get)
}
