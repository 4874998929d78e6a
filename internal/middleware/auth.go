package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/services"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/utils"
)

func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := utils.ExtractToken(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("AUTH_ERROR", err.Error()))
			c.Abort()
			return
		}

		isDenylisted, err := services.IsDenylisted(tokenString)
		if err != nil {
			c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("INTERNAL_ERROR", "Failed to check token status"))
			c.Abort()
			return
		}
		if isDenylisted {
			c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("AUTH_ERROR", "Token has been revoked"))
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("AUTH_ERROR", "Invalid or expired token"))
			c.Abort()
			return
		}

		accountIDFloat, ok := claims["account_id"].(float64)
		if !ok {
			c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("AUTH_ERROR", "Invalid account ID in token"))
			c.Abort()
			return
		}
		accountID := uint(accountIDFloat)

		account, err := services.FindAccountByID(accountID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("AUTH_ERROR", "Account not found"))
			c.Abort()
			return
		}

		if !account.IsActive {
			c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("AUTH_ERROR", "Account is deactivated"))
			c.Abort()
			return
		}

		c.Set("account", &account)
		c.Set("token", tokenString)
		c.Next()
	}
}
