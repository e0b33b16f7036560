package handler

import (
	"net/http"

	"giftflow/internal/service"
	"giftflow/pkg/pagination"
	"giftflow/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

// RegisterRoutes expects an admin-only group.
func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/admin/audit-logs", h.GetAuditLogs)
}

// GetAuditLogs pages through user and operator actions, newest first, optionally for one entity.
// @Summary      Get audit logs
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        action     query     string  false  "Filter by action, e.g. RETRY_CAPTURE"
// @Param        entity_id  query     string  false  "Filter by entity, e.g. an execution id"
// @Param        actor_id   query     string  false  "Filter by acting user"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=[]service.AuditLogResponse}
// @Router       /api/admin/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)
	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), service.AuditLogFilter{
		Action:   c.Query("action"),
		EntityID: c.Query("entity_id"),
		ActorID:  c.Query("actor_id"),
		Page:     p.Page,
		Limit:    p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, logs, p.Page, p.Limit, total))
}
