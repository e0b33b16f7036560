package repository

import (
	"context"
	"time"

	"giftflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ApprovalTokenRepository interface {
	Create(ctx context.Context, token *model.ApprovalToken) error
	FindByHash(ctx context.Context, hash string) (*model.ApprovalToken, error)
	FindLatestByExecution(ctx context.Context, executionID uuid.UUID) (*model.ApprovalToken, error)
	Consume(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.ApprovalToken, error)
}

type approvalTokenRepository struct {
	db *gorm.DB
}

func NewApprovalTokenRepository(db *gorm.DB) ApprovalTokenRepository {
	return &approvalTokenRepository{db: db}
}

func (r *approvalTokenRepository) Create(ctx context.Context, token *model.ApprovalToken) error {
	return translate(GetDB(ctx, r.db).Create(token).Error)
}

// FindByHash loads the token row, locking it for the rest of the transaction.
func (r *approvalTokenRepository) FindByHash(ctx context.Context, hash string) (*model.ApprovalToken, error) {
	var token model.ApprovalToken
	if err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("token_hash = ?", hash).
		First(&token).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

func (r *approvalTokenRepository) FindLatestByExecution(ctx context.Context, executionID uuid.UUID) (*model.ApprovalToken, error) {
	var token model.ApprovalToken
	if err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("execution_id = ?", executionID).
		Order("created_at DESC").
		First(&token).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

// Consume marks the token used. Exactly one caller can succeed; the rest get ErrStaleState.
func (r *approvalTokenRepository) Consume(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	res := noHooks(GetDB(ctx, r.db)).Model(&model.ApprovalToken{}).
		Where("id = ? AND approved_at IS NULL AND rejected_at IS NULL", id).
		Updates(updates)
	return casResult(res)
}

// ListExpiredPending returns unconsumed, expired tokens whose execution still awaits approval.
func (r *approvalTokenRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.ApprovalToken, error) {
	var tokens []model.ApprovalToken
	err := GetDB(ctx, r.db).
		Joins("JOIN auto_gift_executions ON auto_gift_executions.id = approval_tokens.execution_id").
		Where("auto_gift_executions.status = ?", model.ExecPendingApproval).
		Where("approval_tokens.approved_at IS NULL AND approval_tokens.rejected_at IS NULL").
		Where("approval_tokens.expires_at <= ?", now).
		Order("approval_tokens.expires_at ASC").
		Limit(limit).
		Find(&tokens).Error
	return tokens, translate(err)
}
