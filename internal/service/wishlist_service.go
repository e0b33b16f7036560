package service

import (
	"context"
	"strings"

	"giftflow/internal/model"
	"giftflow/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WishlistItemRequest struct {
	ProductID string          `json:"product_id" binding:"required"`
	Title     string          `json:"title"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Priority  int             `json:"priority"`
}

type WishlistService interface {
	Add(ctx context.Context, userID uuid.UUID, req WishlistItemRequest) (*model.WishlistItem, error)
	List(ctx context.Context, userID uuid.UUID) ([]model.WishlistItem, error)
	Remove(ctx context.Context, userID, id uuid.UUID) error
}

type wishlistService struct {
	items repository.WishlistRepository
}

func NewWishlistService(items repository.WishlistRepository) WishlistService {
	return &wishlistService{items: items}
}

func (s *wishlistService) Add(ctx context.Context, userID uuid.UUID, req WishlistItemRequest) (*model.WishlistItem, error) {
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		return nil, validationError("product_id is required")
	}
	if req.Price.IsNegative() {
		return nil, validationError("price must not be negative")
	}
	item := &model.WishlistItem{
		UserID:    userID,
		ProductID: productID,
		Title:     strings.TrimSpace(req.Title),
		Category:  strings.TrimSpace(req.Category),
		Price:     req.Price,
		Priority:  req.Priority,
	}
	if err := s.items.Create(ctx, item); err != nil {
		return nil, mapRepoError("wishlist item", err)
	}
	return item, nil
}

func (s *wishlistService) List(ctx context.Context, userID uuid.UUID) ([]model.WishlistItem, error) {
	return s.items.ListByUser(ctx, userID)
}

func (s *wishlistService) Remove(ctx context.Context, userID, id uuid.UUID) error {
	return mapRepoError("wishlist item", s.items.Delete(ctx, userID, id))
}
