package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/services"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/utils"
)

// AccountResponse defines the response structure for account information.
type AccountResponse struct {
	ID        uint            `json:"id"`
	Email     string          `json:"email"`
	Role      string          `json:"role"`
	IsActive  bool            `json:"is_active"`
	Balance   decimal.Decimal `json:"balance"`
	Reserved  decimal.Decimal `json:"reserved"`
	Spendable decimal.Decimal `json:"spendable"`
	Token     string          `json:"token,omitempty"`
}

func toAccountResponse(a *models.Account, token string) AccountResponse {
	return AccountResponse{
		ID:        a.ID,
		Email:     a.Email,
		Role:      a.Role,
		IsActive:  a.IsActive,
		Balance:   a.Balance,
		Reserved:  a.Reserved,
		Spendable: a.Spendable(),
		Token:     token,
	}
}

type RegisterInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// Register godoc
// @Summary Register a new account
// @Description Register a new account with an email and password
// @Tags auth
// @Accept  json
// @Produce  json
// @Param   input     body   RegisterInput  true  "Register Input"
// @Success 201 {object} utils.Response{data=AccountResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 409 {object} utils.ErrorResponse
// @Router /auth/register [post]
func Register(c *gin.Context) {
	var input RegisterInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	account, err := services.RegisterAccount(input.Email, input.Password)
	if err != nil {
		if errors.Is(err, services.ErrAccountAlreadyExists) {
			c.JSON(http.StatusConflict, utils.NewErrorResponse("VALIDATION_ERROR", err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("INTERNAL_ERROR", "Failed to register account"))
		return
	}

	token, err := utils.GenerateToken(account.ID, account.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("INTERNAL_ERROR", "Could not generate token"))
		return
	}

	c.JSON(http.StatusCreated, utils.NewSuccessResponse("Account registered successfully", toAccountResponse(account, token)))
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login godoc
// @Summary Log in
// @Description Log in with an email and password
// @Tags auth
// @Accept  json
// @Produce  json
// @Param   input     body   LoginInput  true  "Login Input"
// @Success 200 {object} utils.Response{data=AccountResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 401 {object} utils.ErrorResponse
// @Router /auth/login [post]
func Login(c *gin.Context) {
	var input LoginInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	token, account, err := services.LoginAccount(input.Email, input.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("AUTH_ERROR", "Invalid email or password"))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Logged in successfully", toAccountResponse(account, token)))
}

// Logout godoc
// @Summary Log out
// @Description Invalidate the current token
// @Tags auth
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response
// @Failure 401 {object} utils.ErrorResponse
// @Router /auth/logout [post]
func Logout(c *gin.Context) {
	tokenString, err := utils.ExtractToken(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("AUTH_ERROR", err.Error()))
		return
	}

	claims, err := utils.ValidateToken(tokenString)
	if err != nil {
		// Already invalid, denylist it anyway for the maximum token life.
		if err := services.AddToDenylist(tokenString, time.Hour*72); err != nil {
			c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("INTERNAL_ERROR", "Failed to denylist token"))
			return
		}
		c.JSON(http.StatusOK, utils.NewSuccessResponse("Logged out successfully", nil))
		return
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("INTERNAL_ERROR", "Invalid token expiration"))
		return
	}
	remaining := time.Until(time.Unix(int64(exp), 0))

	if err := services.AddToDenylist(tokenString, remaining); err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("INTERNAL_ERROR", "Failed to denylist token"))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Logged out successfully", nil))
}

// CurrentAccount godoc
// @Summary Get the authenticated account
// @Tags auth
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response{data=AccountResponse}
// @Failure 401 {object} utils.ErrorResponse
// @Router /auth/account [get]
func CurrentAccount(c *gin.Context) {
	value, _ := c.Get("account")
	account := value.(*models.Account)
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Account retrieved successfully", toAccountResponse(account, "")))
}
