package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/utils"
)

// AdminAuthMiddleware must run after AuthMiddleware.
func AdminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get("account")
		if !exists {
			c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("AUTH_ERROR", "Authentication required"))
			c.Abort()
			return
		}

		account, ok := value.(*models.Account)
		if !ok || account.Role != "admin" {
			c.JSON(http.StatusForbidden, utils.NewErrorResponse("FORBIDDEN", "Admin privileges required"))
			c.Abort()
			return
		}

		c.Next()
	}
}
