package handler

import (
	"context"
	"net/http"

	"giftflow/internal/service"
	"giftflow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type OnboardingHandler struct {
	onboardingService service.OnboardingService
}

func NewOnboardingHandler(onboardingService service.OnboardingService) *OnboardingHandler {
	return &OnboardingHandler{onboardingService: onboardingService}
}

func (h *OnboardingHandler) RegisterRoutes(router *gin.RouterGroup) {
	onboarding := router.Group("/api/onboarding")
	{
		onboarding.GET("", h.GetProgress)
		onboarding.POST("/advance", h.Advance)
		onboarding.POST("/skip", h.Skip)
	}
}

func (h *OnboardingHandler) GetProgress(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	progress, err := h.onboardingService.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, progress))
}

func (h *OnboardingHandler) Advance(c *gin.Context) {
	h.step(c, h.onboardingService.Advance)
}

func (h *OnboardingHandler) Skip(c *gin.Context) {
	h.step(c, h.onboardingService.Skip)
}

func (h *OnboardingHandler) step(c *gin.Context, apply func(ctx context.Context, userID uuid.UUID, req service.OnboardingStepRequest) (service.OnboardingResponse, error)) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.OnboardingStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	progress, err := apply(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, progress))
}
