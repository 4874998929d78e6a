package account

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/accounts")
	group.GET("", List)
	group.POST("/:id/credit", Credit)
}
