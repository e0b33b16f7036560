package handler

import (
	"net/http"

	"giftflow/internal/service"
	"giftflow/pkg/response"

	"github.com/gin-gonic/gin"
)

type EventHandler struct {
	eventService service.EventService
}

func NewEventHandler(eventService service.EventService) *EventHandler {
	return &EventHandler{eventService: eventService}
}

// RegisterRoutes expects an authenticated group.
func (h *EventHandler) RegisterRoutes(router *gin.RouterGroup) {
	events := router.Group("/api/events")
	{
		events.GET("", h.ListEvents)
		events.POST("", h.CreateEvent)
		events.GET("/:id", h.GetEvent)
		events.PUT("/:id", h.UpdateEvent)
		events.DELETE("/:id", h.DeleteEvent)
	}
}

func (h *EventHandler) ListEvents(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	events, err := h.eventService.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, events))
}

func (h *EventHandler) CreateEvent(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	event, err := h.eventService.Create(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, event))
}

func (h *EventHandler) GetEvent(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	event, err := h.eventService.Get(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, event))
}

func (h *EventHandler) UpdateEvent(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	event, err := h.eventService.Update(c.Request.Context(), userID, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, event))
}

func (h *EventHandler) DeleteEvent(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.eventService.Delete(c.Request.Context(), userID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Event deleted"}))
}
