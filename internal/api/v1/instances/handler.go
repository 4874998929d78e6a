package instances

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/services"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/utils"
)

type Handler struct {
	Instances *services.InstanceService
	Poller    *services.StatusPoller
}

func NewHandler(instances *services.InstanceService, poller *services.StatusPoller) *Handler {
	return &Handler{Instances: instances, Poller: poller}
}

func currentAccount(c *gin.Context) *models.Account {
	value, _ := c.Get("account")
	return value.(*models.Account)
}

// Create godoc
// @Summary Provision a GPU instance
// @Description Quote, hold credits for the minimum lease and provision upstream
// @Tags instances
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   input  body  CreateInput  true  "Create Input"
// @Success 201 {object} utils.Response{data=InstanceResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 402 {object} utils.ErrorResponse
// @Failure 502 {object} utils.ErrorResponse
// @Router /instances [post]
func (h *Handler) Create(c *gin.Context) {
	var input CreateInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	account := currentAccount(c)
	instance, err := h.Instances.Create(c.Request.Context(), account, services.CreateInstanceRequest{
		GPUType: input.GPUType,
		Count:   input.Count,
		Region:  input.Region,
		Name:    input.Name,
	})
	if err != nil {
		c.JSON(services.HTTPStatus(err), utils.NewErrorResponse(services.ErrorCode(err), err.Error()))
		return
	}

	h.Poller.Track(instance.ID)
	c.JSON(http.StatusCreated, utils.NewSuccessResponse("Instance created successfully", toInstanceResponse(instance)))
}

// List godoc
// @Summary List the account's instances
// @Tags instances
// @Produce  json
// @Security ApiKeyAuth
// @Param   status  query  string  false  "Filter by status"
// @Param   page    query  int     false  "Page number"
// @Param   limit   query  int     false  "Page size"
// @Success 200 {object} utils.Response{data=ListResponse}
// @Router /instances [get]
func (h *Handler) List(c *gin.Context) {
	account := currentAccount(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	var status *models.InstanceStatus
	if raw := c.Query("status"); raw != "" {
		s := models.InstanceStatus(raw)
		status = &s
	}

	list, total, err := services.FindInstances(account.ID, status, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("INTERNAL_ERROR", "Failed to list instances"))
		return
	}

	responses := make([]InstanceResponse, 0, len(list))
	for i := range list {
		responses = append(responses, toInstanceResponse(&list[i]))
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Instances retrieved successfully", ListResponse{
		Instances: responses,
		Total:     total,
		Page:      page,
		Limit:     limit,
	}))
}

// Get godoc
// @Summary Get one instance
// @Tags instances
// @Produce  json
// @Security ApiKeyAuth
// @Param   id  path  string  true  "Instance ID"
// @Success 200 {object} utils.Response{data=InstanceResponse}
// @Failure 404 {object} utils.ErrorResponse
// @Router /instances/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	account := currentAccount(c)
	instance, err := services.GetInstance(c.Param("id"), account.ID)
	if err != nil {
		c.JSON(services.HTTPStatus(err), utils.NewErrorResponse(services.ErrorCode(err), err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Instance retrieved successfully", toInstanceResponse(instance)))
}

// Action godoc
// @Summary Apply a lifecycle action
// @Description start, stop or restart an instance
// @Tags instances
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id     path  string       true  "Instance ID"
// @Param   input  body  ActionInput  true  "Action Input"
// @Success 200 {object} utils.Response{data=InstanceResponse}
// @Failure 409 {object} utils.ErrorResponse
// @Failure 502 {object} utils.ErrorResponse
// @Router /instances/{id}/actions [post]
func (h *Handler) Action(c *gin.Context) {
	var input ActionInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	account := currentAccount(c)
	instance, err := h.Instances.Action(c.Request.Context(), c.Param("id"), account.ID, models.InstanceAction(input.Action))
	if err != nil {
		c.JSON(services.HTTPStatus(err), utils.NewErrorResponse(services.ErrorCode(err), err.Error()))
		return
	}

	h.Poller.Track(instance.ID)
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Action dispatched successfully", toInstanceResponse(instance)))
}

// Terminate godoc
// @Summary Terminate an instance
// @Description Idempotent; repeated calls succeed without a second upstream request
// @Tags instances
// @Produce  json
// @Security ApiKeyAuth
// @Param   id  path  string  true  "Instance ID"
// @Success 200 {object} utils.Response{data=InstanceResponse}
// @Failure 404 {object} utils.ErrorResponse
// @Failure 409 {object} utils.ErrorResponse
// @Router /instances/{id} [delete]
func (h *Handler) Terminate(c *gin.Context) {
	account := currentAccount(c)
	instance, err := h.Instances.Terminate(c.Request.Context(), c.Param("id"), account.ID)
	if err != nil {
		c.JSON(services.HTTPStatus(err), utils.NewErrorResponse(services.ErrorCode(err), err.Error()))
		return
	}

	if !instance.Status.Terminal() {
		h.Poller.Track(instance.ID)
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Instance terminated successfully", toInstanceResponse(instance)))
}
