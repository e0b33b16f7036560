package handler

import (
	"net/http"

	"giftflow/internal/service"
	"giftflow/pkg/pagination"
	"giftflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// ExecutionHandler serves a user's own auto-gift executions, including in-app approval.
type ExecutionHandler struct {
	executionService service.ExecutionService
	approvalService  service.ApprovalService
}

func NewExecutionHandler(executionService service.ExecutionService, approvalService service.ApprovalService) *ExecutionHandler {
	return &ExecutionHandler{executionService: executionService, approvalService: approvalService}
}

func (h *ExecutionHandler) RegisterRoutes(router *gin.RouterGroup) {
	executions := router.Group("/api/executions")
	{
		executions.GET("", h.ListExecutions)
		executions.POST("/retrigger", h.Retrigger)
		executions.GET("/:id", h.GetExecution)
		executions.POST("/:id/cancel", h.Cancel)
		executions.POST("/:id/approve", h.Approve)
		executions.POST("/:id/reject", h.Reject)
	}
}

// @Summary      List executions
// @Tags         executions
// @Security     BearerAuth
// @Produce      json
// @Param        status  query     string  false  "Filter by status"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Success      200     {object}  response.Response{data=[]service.ExecutionResponse}
// @Router       /api/executions [get]
func (h *ExecutionHandler) ListExecutions(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	items, total, err := h.executionService.List(c.Request.Context(), userID, c.Query("status"), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, items, p.Page, p.Limit, total))
}

func (h *ExecutionHandler) GetExecution(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	exec, err := h.executionService.Get(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, exec))
}

func (h *ExecutionHandler) Cancel(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	exec, err := h.executionService.Cancel(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, exec))
}

// Approve accepts an optional product_ids subset to narrow the selection.
// @Summary      Approve in app
// @Tags         executions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                  true   "Execution ID"
// @Param        request  body      service.ApproveRequest  false  "Optional subset of selected products"
// @Success      200      {object}  response.Response{data=service.ExecutionResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/executions/{id}/approve [post]
func (h *ExecutionHandler) Approve(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.ApproveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request payload: "+err.Error())
			return
		}
	}
	exec, err := h.approvalService.Approve(c.Request.Context(), userID, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, exec))
}

func (h *ExecutionHandler) Reject(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	exec, err := h.approvalService.Reject(c.Request.Context(), userID, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, exec))
}

// Retrigger starts a fresh execution for an occurrence whose previous attempts all ended retriggerable
// @Summary      Retrigger occurrence
// @Tags         executions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      service.RetriggerRequest  true  "Rule and occurrence date"
// @Success      201      {object}  response.Response{data=service.ExecutionResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/executions/retrigger [post]
func (h *ExecutionHandler) Retrigger(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.RetriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	exec, err := h.executionService.Retrigger(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, exec))
}
