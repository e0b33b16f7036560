package repository

import (
	"context"
	"encoding/json"

	"giftflow/internal/model"
	"giftflow/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditFilter narrows the trail; zero fields match everything.
type AuditFilter struct {
	Action   string
	EntityID string
	ActorID  *uuid.UUID
	Page     int
	Limit    int
}

type AuditRepository interface {
	Record(ctx context.Context, actor *uuid.UUID, action, entityID, entityName string, details interface{}) error
	List(ctx context.Context, filter AuditFilter) ([]model.AuditLog, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

// Record serializes details and writes the entry in the caller's transaction, if any.
// A nil actor marks an entry written by a background stage.
func (r *auditRepository) Record(ctx context.Context, actor *uuid.UUID, action, entityID, entityName string, details interface{}) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return err
	}
	entry := &model.AuditLog{
		UserID:     actor,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(payload),
	}
	return translate(GetDB(ctx, r.db).Create(entry).Error)
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]model.AuditLog, int64, error) {
	var logs []model.AuditLog
	var total int64

	q := GetDB(ctx, r.db).Model(&model.AuditLog{})
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.EntityID != "" {
		q = q.Where("entity_id = ?", filter.EntityID)
	}
	if filter.ActorID != nil {
		q = q.Where("user_id = ?", *filter.ActorID)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	if err := q.Preload("User").Order("created_at DESC").
		Scopes(pagination.Scope(filter.Page, filter.Limit)).
		Find(&logs).Error; err != nil {
		return nil, 0, translate(err)
	}
	return logs, total, nil
}
