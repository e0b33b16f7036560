package repository

import (
	"context"

	"giftflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WishlistRepository interface {
	Create(ctx context.Context, item *model.WishlistItem) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.WishlistItem, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

type wishlistRepository struct {
	db *gorm.DB
}

func NewWishlistRepository(db *gorm.DB) WishlistRepository {
	return &wishlistRepository{db: db}
}

func (r *wishlistRepository) Create(ctx context.Context, item *model.WishlistItem) error {
	return translate(GetDB(ctx, r.db).Create(item).Error)
}

func (r *wishlistRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.WishlistItem, error) {
	var items []model.WishlistItem
	err := GetDB(ctx, r.db).Where("user_id = ?", userID).Order("priority DESC, created_at ASC").Find(&items).Error
	return items, translate(err)
}

func (r *wishlistRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res := GetDB(ctx, r.db).Where("id = ? AND user_id = ?", id, userID).Delete(&model.WishlistItem{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
