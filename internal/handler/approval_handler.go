package handler

import (
	"net/http"

	"giftflow/internal/service"
	"giftflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// ApprovalHandler serves the emailed approval link. The token in the path is the only credential.
type ApprovalHandler struct {
	approvalService service.ApprovalService
}

func NewApprovalHandler(approvalService service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService}
}

// RegisterRoutes expects a public group.
func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	approvals := router.Group("/api/approvals")
	{
		approvals.GET("/:token", h.Preview)
		approvals.POST("/:token/approve", h.Approve)
		approvals.POST("/:token/reject", h.Reject)
	}
}

// Preview shows the pending selection behind an approval link without consuming it
// @Summary      Preview approval link
// @Tags         approvals
// @Produce      json
// @Param        token  path      string  true  "Approval token"
// @Success      200    {object}  response.Response{data=service.ApprovalPreview}
// @Failure      404    {object}  response.Response
// @Failure      410    {object}  response.Response
// @Router       /api/approvals/{token} [get]
func (h *ApprovalHandler) Preview(c *gin.Context) {
	preview, err := h.approvalService.Preview(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, preview))
}

// @Summary      Approve via link
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Param        token    path      string                  true   "Approval token"
// @Param        request  body      service.ApproveRequest  false  "Optional subset of selected products"
// @Success      200      {object}  response.Response{data=service.ExecutionResponse}
// @Failure      410      {object}  response.Response
// @Router       /api/approvals/{token}/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	var req service.ApproveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request payload: "+err.Error())
			return
		}
	}
	exec, err := h.approvalService.ApproveByToken(c.Request.Context(), c.Param("token"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, exec))
}

// @Summary      Reject via link
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Param        token    path      string                 true  "Approval token"
// @Param        request  body      service.RejectRequest  true  "Rejection reason"
// @Success      200      {object}  response.Response{data=service.ExecutionResponse}
// @Failure      410      {object}  response.Response
// @Router       /api/approvals/{token}/reject [post]
func (h *ApprovalHandler) Reject(c *gin.Context) {
	var req service.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	exec, err := h.approvalService.RejectByToken(c.Request.Context(), c.Param("token"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, exec))
}
