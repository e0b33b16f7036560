package repository

import (
	"context"

	"giftflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EventRepository interface {
	Create(ctx context.Context, event *model.GiftEvent) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.GiftEvent, error)
	FindForUser(ctx context.Context, userID, id uuid.UUID) (*model.GiftEvent, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.GiftEvent, error)
	Save(ctx context.Context, event *model.GiftEvent) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Create(ctx context.Context, event *model.GiftEvent) error {
	return translate(GetDB(ctx, r.db).Create(event).Error)
}

func (r *eventRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.GiftEvent, error) {
	var event model.GiftEvent
	if err := GetDB(ctx, r.db).First(&event, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &event, nil
}

func (r *eventRepository) FindForUser(ctx context.Context, userID, id uuid.UUID) (*model.GiftEvent, error) {
	var event model.GiftEvent
	if err := GetDB(ctx, r.db).Where("id = ? AND user_id = ?", id, userID).First(&event).Error; err != nil {
		return nil, translate(err)
	}
	return &event, nil
}

func (r *eventRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.GiftEvent, error) {
	var events []model.GiftEvent
	err := GetDB(ctx, r.db).Where("user_id = ?", userID).Order("event_date ASC").Find(&events).Error
	return events, translate(err)
}

func (r *eventRepository) Save(ctx context.Context, event *model.GiftEvent) error {
	return translate(GetDB(ctx, r.db).Save(event).Error)
}

func (r *eventRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res := GetDB(ctx, r.db).Where("id = ? AND user_id = ?", id, userID).Delete(&model.GiftEvent{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
