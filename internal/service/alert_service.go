package service

import (
	"context"
	"time"

	"giftflow/internal/metrics"
	"giftflow/internal/model"
	"giftflow/internal/repository"
	"giftflow/pkg/pagination"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Broadcaster pushes live events to connected Trunkline clients.
type Broadcaster interface {
	BroadcastJSON(v interface{})
}

type AlertMessage struct {
	Type  string              `json:"type"`
	Alert model.OperatorAlert `json:"alert"`
}

type AlertService interface {
	// Raise persists an alert using ctx's transaction, if any. Publish it after commit.
	Raise(ctx context.Context, kind model.OperatorAlertKind, executionID, orderID *uuid.UUID, message string) (*model.OperatorAlert, error)
	Publish(alert *model.OperatorAlert)
	List(ctx context.Context, unresolvedOnly bool, page, limit int) ([]model.OperatorAlert, int64, error)
	Resolve(ctx context.Context, adminID, id uuid.UUID) error
	// ResolveForExecution closes the execution's open alerts after an operator acted on it.
	ResolveForExecution(ctx context.Context, adminID, executionID uuid.UUID) error
}

type alertService struct {
	tx     repository.TransactionManager
	alerts repository.OperatorAlertRepository
	audit  repository.AuditRepository
	hub    Broadcaster
	logger *logrus.Logger
	now    func() time.Time
}

func NewAlertService(tx repository.TransactionManager, alerts repository.OperatorAlertRepository, audit repository.AuditRepository, hub Broadcaster, log *logrus.Logger) AlertService {
	return &alertService{tx: tx, alerts: alerts, audit: audit, hub: hub, logger: log, now: utcNow}
}

func (s *alertService) Raise(ctx context.Context, kind model.OperatorAlertKind, executionID, orderID *uuid.UUID, message string) (*model.OperatorAlert, error) {
	alert := &model.OperatorAlert{
		Kind:        kind,
		ExecutionID: executionID,
		OrderID:     orderID,
		Message:     message,
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, err
	}
	metrics.OperatorAlerts.WithLabelValues(string(kind)).Inc()
	s.logger.WithFields(logrus.Fields{
		"alert_id":     alert.ID,
		"kind":         kind,
		"execution_id": executionID,
		"order_id":     orderID,
	}).Warn(message)
	return alert, nil
}

func (s *alertService) Publish(alert *model.OperatorAlert) {
	if s.hub == nil || alert == nil {
		return
	}
	s.hub.BroadcastJSON(AlertMessage{Type: "operator_alert", Alert: *alert})
}

func (s *alertService) List(ctx context.Context, unresolvedOnly bool, page, limit int) ([]model.OperatorAlert, int64, error) {
	page, limit = normalizePage(page, limit)
	return s.alerts.List(ctx, unresolvedOnly, page, limit)
}

func (s *alertService) Resolve(ctx context.Context, adminID, id uuid.UUID) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.alerts.FindByID(txCtx, id); err != nil {
			return mapRepoError("alert", err)
		}
		if err := s.alerts.Resolve(txCtx, id, adminID, s.now()); err != nil {
			return mapRepoError("alert", err)
		}
		return s.audit.Record(txCtx, &adminID, model.ActionResolveAlert, id.String(), "operator_alert", nil)
	})
}

func (s *alertService) ResolveForExecution(ctx context.Context, adminID, executionID uuid.UUID) error {
	return s.alerts.ResolveForExecution(ctx, executionID, adminID, s.now())
}

func normalizePage(page, limit int) (int, int) {
	p := pagination.Normalize(page, limit)
	return p.Page, p.Limit
}
