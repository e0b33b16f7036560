package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"giftflow/internal/model"
	"giftflow/internal/scheduler"
	"giftflow/internal/service"
	"giftflow/pkg/pagination"
	"giftflow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CaptureOperator resolves executions held at the capture boundary.
type CaptureOperator interface {
	RetryCapture(ctx context.Context, adminID, executionID uuid.UUID) (service.ExecutionResponse, error)
	CancelHeld(ctx context.Context, adminID, executionID uuid.UUID) (service.ExecutionResponse, error)
}

// OrderOperator resolves orders held at the submission boundary.
type OrderOperator interface {
	ListOrders(ctx context.Context, filter service.OrderListFilter) ([]model.GiftOrder, int64, error)
	ResubmitOrder(ctx context.Context, adminID, orderID uuid.UUID) (*model.GiftOrder, error)
	CancelOrder(ctx context.Context, adminID, orderID uuid.UUID) (*model.GiftOrder, error)
	MarkDelivered(ctx context.Context, adminID, orderID uuid.UUID) (*model.GiftOrder, error)
}

type FundingOperator interface {
	ListSchedules(ctx context.Context, status string, page, limit int) ([]model.FundingSchedule, int64, error)
	ScheduleFunding(ctx context.Context, adminID uuid.UUID, req service.ScheduleFundingRequest) (*model.FundingSchedule, error)
	RecordPayout(ctx context.Context, adminID, scheduleID uuid.UUID, req service.RecordPayoutRequest) (*model.FundingSchedule, error)
	ListAlerts(ctx context.Context, unresolvedOnly bool, page, limit int) ([]model.FundingAlert, int64, error)
	ResolveAlert(ctx context.Context, adminID, alertID uuid.UUID, req service.ResolveFundingAlertRequest) (*model.FundingAlert, error)
}

// JobRunner runs a background stage on demand.
type JobRunner interface {
	Jobs() []string
	RunNamed(ctx context.Context, name string, now time.Time) (scheduler.Result, error)
}

// AdminHandler is the Trunkline operator surface.
type AdminHandler struct {
	executions service.ExecutionService
	alerts     service.AlertService
	capture    CaptureOperator
	orders     OrderOperator
	funding    FundingOperator
	jobs       JobRunner
}

func NewAdminHandler(
	executions service.ExecutionService,
	alerts service.AlertService,
	capture CaptureOperator,
	orders OrderOperator,
	funding FundingOperator,
	jobs JobRunner,
) *AdminHandler {
	return &AdminHandler{
		executions: executions,
		alerts:     alerts,
		capture:    capture,
		orders:     orders,
		funding:    funding,
		jobs:       jobs,
	}
}

// RegisterRoutes expects an admin-only group.
func (h *AdminHandler) RegisterRoutes(router *gin.RouterGroup) {
	admin := router.Group("/api/admin")
	{
		admin.GET("/executions", h.ListExecutions)
		admin.GET("/executions/:id", h.GetExecution)
		admin.POST("/executions/:id/retry-capture", h.RetryCapture)
		admin.POST("/executions/:id/cancel", h.CancelExecution)

		admin.GET("/orders", h.ListOrders)
		admin.POST("/orders/:id/resubmit", h.ResubmitOrder)
		admin.POST("/orders/:id/cancel", h.CancelOrder)
		admin.POST("/orders/:id/delivered", h.MarkDelivered)

		admin.GET("/alerts", h.ListAlerts)
		admin.POST("/alerts/:id/resolve", h.ResolveAlert)

		admin.GET("/funding/schedules", h.ListSchedules)
		admin.POST("/funding/schedules", h.ScheduleFunding)
		admin.POST("/funding/schedules/:id/receive", h.RecordPayout)
		admin.GET("/funding/alerts", h.ListFundingAlerts)
		admin.POST("/funding/alerts/:id/resolve", h.ResolveFundingAlert)

		admin.GET("/jobs", h.ListJobs)
		admin.POST("/jobs/:name/run", h.RunJob)
	}
}

// --- Executions ---

func (h *AdminHandler) ListExecutions(c *gin.Context) {
	p := pagination.Parse(c)
	manual, _ := strconv.ParseBool(c.DefaultQuery("manual", "false"))
	filter := service.ExecutionListFilter{
		UserID:             c.Query("user_id"),
		RuleID:             c.Query("rule_id"),
		Status:             c.Query("status"),
		ManualIntervention: manual,
		Page:               p.Page,
		Limit:              p.Limit,
	}
	items, total, err := h.executions.AdminList(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, items, p.Page, p.Limit, total))
}

func (h *AdminHandler) GetExecution(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	detail, err := h.executions.AdminGet(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, detail))
}

func (h *AdminHandler) RetryCapture(c *gin.Context) {
	h.executionAction(c, h.capture.RetryCapture)
}

func (h *AdminHandler) CancelExecution(c *gin.Context) {
	h.executionAction(c, h.capture.CancelHeld)
}

func (h *AdminHandler) executionAction(c *gin.Context, act func(ctx context.Context, adminID, id uuid.UUID) (service.ExecutionResponse, error)) {
	adminID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	exec, err := act(c.Request.Context(), adminID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, exec))
}

// --- Orders ---

func (h *AdminHandler) ListOrders(c *gin.Context) {
	p := pagination.Parse(c)
	orders, total, err := h.orders.ListOrders(c.Request.Context(), service.OrderListFilter{
		Status:        c.Query("status"),
		FundingStatus: c.Query("funding_status"),
		Page:          p.Page,
		Limit:         p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, orders, p.Page, p.Limit, total))
}

func (h *AdminHandler) ResubmitOrder(c *gin.Context) {
	h.orderAction(c, h.orders.ResubmitOrder)
}

func (h *AdminHandler) CancelOrder(c *gin.Context) {
	h.orderAction(c, h.orders.CancelOrder)
}

func (h *AdminHandler) MarkDelivered(c *gin.Context) {
	h.orderAction(c, h.orders.MarkDelivered)
}

func (h *AdminHandler) orderAction(c *gin.Context, act func(ctx context.Context, adminID, id uuid.UUID) (*model.GiftOrder, error)) {
	adminID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	order, err := act(c.Request.Context(), adminID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// --- Operator alerts ---

func (h *AdminHandler) ListAlerts(c *gin.Context) {
	p := pagination.Parse(c)
	unresolved, _ := strconv.ParseBool(c.DefaultQuery("unresolved", "true"))
	alerts, total, err := h.alerts.List(c.Request.Context(), unresolved, p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, alerts, p.Page, p.Limit, total))
}

func (h *AdminHandler) ResolveAlert(c *gin.Context) {
	adminID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.alerts.Resolve(c.Request.Context(), adminID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Alert resolved"}))
}

// --- Funding ---

func (h *AdminHandler) ListSchedules(c *gin.Context) {
	p := pagination.Parse(c)
	schedules, total, err := h.funding.ListSchedules(c.Request.Context(), c.Query("status"), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, schedules, p.Page, p.Limit, total))
}

func (h *AdminHandler) ScheduleFunding(c *gin.Context) {
	adminID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.ScheduleFundingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	schedule, err := h.funding.ScheduleFunding(c.Request.Context(), adminID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, schedule))
}

func (h *AdminHandler) RecordPayout(c *gin.Context) {
	adminID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.RecordPayoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request payload: "+err.Error())
			return
		}
	}
	schedule, err := h.funding.RecordPayout(c.Request.Context(), adminID, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, schedule))
}

func (h *AdminHandler) ListFundingAlerts(c *gin.Context) {
	p := pagination.Parse(c)
	unresolved, _ := strconv.ParseBool(c.DefaultQuery("unresolved", "true"))
	alerts, total, err := h.funding.ListAlerts(c.Request.Context(), unresolved, p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, alerts, p.Page, p.Limit, total))
}

// ResolveFundingAlert releases the orders the alert held so the next reconciliation re-evaluates them.
func (h *AdminHandler) ResolveFundingAlert(c *gin.Context) {
	adminID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.ResolveFundingAlertRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request payload: "+err.Error())
			return
		}
	}
	alert, err := h.funding.ResolveAlert(c.Request.Context(), adminID, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, alert))
}

// --- Jobs ---

func (h *AdminHandler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, h.jobs.Jobs()))
}

// RunJob invokes a stage immediately under its usual lock; a held lock answers 409.
// @Summary      Run pipeline stage now
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        name  path      string  true  "Job name"
// @Success      200   {object}  response.Response{data=scheduler.Result}
// @Failure      404   {object}  response.Response
// @Failure      409   {object}  response.Response
// @Router       /api/admin/jobs/{name}/run [post]
func (h *AdminHandler) RunJob(c *gin.Context) {
	result, err := h.jobs.RunNamed(c.Request.Context(), c.Param("name"), time.Now().UTC())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
