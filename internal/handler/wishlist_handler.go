package handler

import (
	"net/http"

	"giftflow/internal/service"
	"giftflow/pkg/response"

	"github.com/gin-gonic/gin"
)

type WishlistHandler struct {
	wishlistService service.WishlistService
}

func NewWishlistHandler(wishlistService service.WishlistService) *WishlistHandler {
	return &WishlistHandler{wishlistService: wishlistService}
}

func (h *WishlistHandler) RegisterRoutes(router *gin.RouterGroup) {
	wishlist := router.Group("/api/wishlist")
	{
		wishlist.GET("", h.ListItems)
		wishlist.POST("", h.AddItem)
		wishlist.DELETE("/:id", h.RemoveItem)
	}
}

func (h *WishlistHandler) ListItems(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	items, err := h.wishlistService.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, items))
}

func (h *WishlistHandler) AddItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.WishlistItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	item, err := h.wishlistService.Add(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, item))
}

func (h *WishlistHandler) RemoveItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.wishlistService.Remove(c.Request.Context(), userID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Item removed"}))
}
