package policy

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/policy", Create)
	router.GET("/policy", GetActive)
}
