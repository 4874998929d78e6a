package policy

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/services"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/utils"
)

type DiscountRuleInput struct {
	MinCount int     `json:"min_count" binding:"required,min=1"`
	Discount float64 `json:"discount" binding:"min=0,max=1"`
}

type CreatePolicyInput struct {
	Markup        float64             `json:"markup" binding:"required,gt=0"`
	DiscountRules []DiscountRuleInput `json:"discount_rules" binding:"dive"`
}

// Create godoc
// @Summary Publish a new pricing policy version
// @Description Creates an immutable policy version; instances keep the version they were quoted under
// @Tags admin
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   input  body  CreatePolicyInput  true  "Policy Input"
// @Success 201 {object} utils.Response{data=models.PricingPolicy}
// @Failure 400 {object} utils.ErrorResponse
// @Router /admin/policy [post]
func Create(c *gin.Context) {
	var input CreatePolicyInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	rules := make([]models.DiscountRule, 0, len(input.DiscountRules))
	for _, r := range input.DiscountRules {
		rules = append(rules, models.DiscountRule{
			MinCount: r.MinCount,
			Discount: decimal.NewFromFloat(r.Discount),
		})
	}

	value, _ := c.Get("account")
	admin := value.(*models.Account)

	created, err := services.CreatePolicy(decimal.NewFromFloat(input.Markup), rules, admin.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("INTERNAL_ERROR", "Failed to create policy"))
		return
	}

	c.JSON(http.StatusCreated, utils.NewSuccessResponse("Policy created successfully", created))
}

// GetActive godoc
// @Summary Get the active pricing policy
// @Tags admin
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response{data=models.PricingPolicy}
// @Failure 404 {object} utils.ErrorResponse
// @Router /admin/policy [get]
func GetActive(c *gin.Context) {
	active, err := services.ActivePolicy()
	if err != nil {
		c.JSON(http.StatusNotFound, utils.NewErrorResponse("NOT_FOUND", "No pricing policy configured"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Policy retrieved successfully", active))
}
