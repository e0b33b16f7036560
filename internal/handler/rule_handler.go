package handler

import (
	"net/http"

	"giftflow/internal/service"
	"giftflow/pkg/response"

	"github.com/gin-gonic/gin"
)

type RuleHandler struct {
	ruleService service.RuleService
}

func NewRuleHandler(ruleService service.RuleService) *RuleHandler {
	return &RuleHandler{ruleService: ruleService}
}

func (h *RuleHandler) RegisterRoutes(router *gin.RouterGroup) {
	rules := router.Group("/api/rules")
	{
		rules.GET("", h.ListRules)
		rules.POST("", h.CreateRule)
		rules.GET("/:id", h.GetRule)
		rules.PUT("/:id", h.UpdateRule)
		rules.POST("/:id/deactivate", h.DeactivateRule)
	}
}

// @Summary      List auto-gift rules
// @Tags         rules
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.RuleResponse}
// @Router       /api/rules [get]
func (h *RuleHandler) ListRules(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	rules, err := h.ruleService.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rules))
}

// CreateRule validates the rule synchronously; invalid budgets or price bands answer 400.
// @Summary      Create auto-gift rule
// @Tags         rules
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      service.RuleRequest  true  "Rule"
// @Success      201      {object}  response.Response{data=service.RuleResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/rules [post]
func (h *RuleHandler) CreateRule(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	rule, err := h.ruleService.Create(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, rule))
}

func (h *RuleHandler) GetRule(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	rule, err := h.ruleService.Get(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rule))
}

func (h *RuleHandler) UpdateRule(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	rule, err := h.ruleService.Update(c.Request.Context(), userID, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rule))
}

// DeactivateRule stops future executions and cancels the ones not yet past capture
// @Summary      Deactivate rule
// @Tags         rules
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {object}  response.Response{data=service.RuleResponse}
// @Router       /api/rules/{id}/deactivate [post]
func (h *RuleHandler) DeactivateRule(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	rule, err := h.ruleService.Deactivate(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rule))
}
