package auth

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/auth")
	group.POST("/register", Register)
	group.POST("/login", Login)
	group.POST("/logout", Logout)
}

// RegisterProtectedRoutes mounts the routes that need a resolved account.
func RegisterProtectedRoutes(router *gin.RouterGroup) {
	group := router.Group("/auth")
	group.GET("/account", CurrentAccount)
}
