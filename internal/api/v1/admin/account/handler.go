package account

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/services"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/utils"
)

type CreditInput struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
	Reason string  `json:"reason" binding:"required"`
}

type ListResponse struct {
	Accounts []models.Account `json:"accounts"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
}

// Credit godoc
// @Summary Top up an account
// @Description Append a credit entry and raise the account balance
// @Tags admin
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id     path  int          true  "Account ID"
// @Param   input  body  CreditInput  true  "Credit Input"
// @Success 200 {object} utils.Response{data=models.LedgerEntry}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /admin/accounts/{id}/credit [post]
func Credit(c *gin.Context) {
	accountID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("VALIDATION_ERROR", "Invalid account ID"))
		return
	}

	var input CreditInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	value, _ := c.Get("account")
	admin := value.(*models.Account)

	entry, err := services.CreditAccount(uint(accountID), decimal.NewFromFloat(input.Amount), input.Reason, admin.Email)
	if err != nil {
		c.JSON(services.HTTPStatus(err), utils.NewErrorResponse(services.ErrorCode(err), err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Account credited successfully", entry))
}

// List godoc
// @Summary List accounts
// @Tags admin
// @Produce  json
// @Security ApiKeyAuth
// @Param   page   query  int  false  "Page number"
// @Param   limit  query  int  false  "Page size"
// @Success 200 {object} utils.Response{data=ListResponse}
// @Router /admin/accounts [get]
func List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	accounts, total, err := services.FindAccounts(page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("INTERNAL_ERROR", "Failed to list accounts"))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Accounts retrieved successfully", ListResponse{
		Accounts: accounts,
		Total:    total,
		Page:     page,
		Limit:    limit,
	}))
}
