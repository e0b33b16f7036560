package service

import (
	"context"
	"encoding/json"
	"strings"

	"giftflow/internal/repository"

	"github.com/google/uuid"
)

type AuditLogFilter struct {
	Action   string
	EntityID string
	ActorID  string
	Page     int
	Limit    int
}

type AuditLogResponse struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Actor      string          `json:"actor"`
	Action     string          `json:"action"`
	EntityID   string          `json:"entity_id"`
	EntityName string          `json:"entity_name"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, filter AuditLogFilter) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	audit repository.AuditRepository
}

func NewAuditService(audit repository.AuditRepository) AuditService {
	return &auditService{audit: audit}
}

// GetAuditLogs pages through the trail newest first. Entries written by background
// stages carry no user and show "System" as the actor.
func (s *auditService) GetAuditLogs(ctx context.Context, filter AuditLogFilter) ([]AuditLogResponse, int64, error) {
	page, limit := normalizePage(filter.Page, filter.Limit)
	query := repository.AuditFilter{
		Action:   strings.ToUpper(strings.TrimSpace(filter.Action)),
		EntityID: strings.TrimSpace(filter.EntityID),
		Page:     page,
		Limit:    limit,
	}
	if filter.ActorID != "" {
		id, err := uuid.Parse(filter.ActorID)
		if err != nil {
			return nil, 0, validationError("actor_id must be a UUID")
		}
		query.ActorID = &id
	}

	logs, total, err := s.audit.List(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		item := AuditLogResponse{
			ID:         l.ID.String(),
			Actor:      "System",
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			CreatedAt:  l.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if l.UserID != nil {
			item.UserID = l.UserID.String()
		}
		if l.User != nil {
			item.Actor = l.User.DisplayName
			if item.Actor == "" {
				item.Actor = l.User.Email
			}
		}
		if l.Details != "" && l.Details != "null" && json.Valid([]byte(l.Details)) {
			item.Details = json.RawMessage(l.Details)
		}
		res = append(res, item)
	}
	return res, total, nil
}
