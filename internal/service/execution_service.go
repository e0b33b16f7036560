package service

import (
	"context"
	"errors"
	"time"

	"giftflow/internal/gateway/payment"
	"giftflow/internal/logger"
	"giftflow/internal/model"
	"giftflow/internal/notify"
	"giftflow/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// --- DTOs ---

type ExecutionResponse struct {
	ID                         string                  `json:"id"`
	UserID                     string                  `json:"user_id"`
	RuleID                     string                  `json:"rule_id"`
	EventID                    string                  `json:"event_id"`
	ExecutionDate              string                  `json:"execution_date"`
	Status                     string                  `json:"status"`
	SelectedProducts           []model.SelectedProduct `json:"selected_products"`
	AIAttribution              *model.AIAttribution    `json:"ai_attribution"`
	OrderID                    *string                 `json:"order_id"`
	GiftMessage                string                  `json:"gift_message"`
	TotalAmount                decimal.Decimal         `json:"total_amount"`
	FailureReason              string                  `json:"failure_reason,omitempty"`
	RequiresManualIntervention bool                    `json:"requires_manual_intervention"`
	StatusChangedAt            string                  `json:"status_changed_at"`
	CreatedAt                  string                  `json:"created_at"`
}

// ExecutionDetail is the Trunkline view of one execution.
type ExecutionDetail struct {
	ExecutionResponse
	Order         *model.GiftOrder            `json:"order"`
	Authorization *model.PaymentAuthorization `json:"authorization"`
}

type ExecutionListFilter struct {
	UserID             string
	RuleID             string
	Status             string
	ManualIntervention bool
	Page               int
	Limit              int
}

type RetriggerRequest struct {
	RuleID        string `json:"rule_id" binding:"required"`
	ExecutionDate string `json:"execution_date" binding:"required"`
}

// --- Interface ---

type ExecutionService interface {
	List(ctx context.Context, userID uuid.UUID, status string, page, limit int) ([]ExecutionResponse, int64, error)
	Get(ctx context.Context, userID, id uuid.UUID) (ExecutionResponse, error)
	Cancel(ctx context.Context, userID, id uuid.UUID) (ExecutionResponse, error)
	Retrigger(ctx context.Context, userID uuid.UUID, req RetriggerRequest) (ExecutionResponse, error)

	AdminList(ctx context.Context, filter ExecutionListFilter) ([]ExecutionResponse, int64, error)
	AdminGet(ctx context.Context, id uuid.UUID) (ExecutionDetail, error)
}

type executionService struct {
	tx         repository.TransactionManager
	executions repository.ExecutionRepository
	rules      repository.RuleRepository
	orders     repository.OrderRepository
	payments   repository.PaymentRepository
	audit      repository.AuditRepository
	cancel     canceller
	notes      notifier
	logger     *logrus.Logger
	now        func() time.Time
}

func NewExecutionService(
	tx repository.TransactionManager,
	executions repository.ExecutionRepository,
	rules repository.RuleRepository,
	orders repository.OrderRepository,
	payments repository.PaymentRepository,
	audit repository.AuditRepository,
	processor payment.Processor,
	notifications notify.Notifier,
	log *logrus.Logger,
) ExecutionService {
	return &executionService{
		tx:         tx,
		executions: executions,
		rules:      rules,
		orders:     orders,
		payments:   payments,
		audit:      audit,
		cancel:     canceller{orders: orders, payments: payments, processor: processor, logger: log},
		notes:      notifier{target: notifications, logger: log, now: utcNow},
		logger:     log,
		now:        utcNow,
	}
}

// --- Implementation ---

func (s *executionService) List(ctx context.Context, userID uuid.UUID, status string, page, limit int) ([]ExecutionResponse, int64, error) {
	return s.AdminList(ctx, ExecutionListFilter{UserID: userID.String(), Status: status, Page: page, Limit: limit})
}

func (s *executionService) Get(ctx context.Context, userID, id uuid.UUID) (ExecutionResponse, error) {
	exec, err := s.executions.FindForUser(ctx, userID, id)
	if err != nil {
		return ExecutionResponse{}, mapRepoError("execution", err)
	}
	return toExecutionResponse(*exec), nil
}

// Cancel stops an execution that has not passed an irrevocable boundary. A held
// authorization is voided right away.
func (s *executionService) Cancel(ctx context.Context, userID, id uuid.UUID) (ExecutionResponse, error) {
	var exec *model.AutoGiftExecution
	var voidID string

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		exec, err = s.executions.FindForUser(txCtx, userID, id)
		if err != nil {
			return mapRepoError("execution", err)
		}
		if !exec.Status.Cancellable() {
			return conflictError("execution in status %s can no longer be cancelled", exec.Status)
		}
		from := exec.Status
		voidID, err = s.cancel.cancelInTx(txCtx, transitioner{executions: s.executions, logger: s.logger}, exec, "cancelled by user")
		if err != nil {
			return mapRepoError("execution", err)
		}
		return s.audit.Record(txCtx, &userID, model.ActionCancelExecution, exec.ID.String(), "auto_gift_execution",
			map[string]interface{}{"from": from})
	})
	if err != nil {
		return ExecutionResponse{}, err
	}

	s.cancel.void(ctx, exec.ID, voidID)
	s.notes.send(ctx, notify.KindExecutionCancelled, exec, "Your auto-gift was cancelled", "", nil)
	return toExecutionResponse(*exec), nil
}

// Retrigger starts a fresh execution for an occurrence whose previous attempts all ended
// in a retriggerable state.
func (s *executionService) Retrigger(ctx context.Context, userID uuid.UUID, req RetriggerRequest) (ExecutionResponse, error) {
	ruleID, err := uuid.Parse(req.RuleID)
	if err != nil {
		return ExecutionResponse{}, validationError("rule_id must be a UUID")
	}
	date, err := model.ParseDate(req.ExecutionDate)
	if err != nil {
		return ExecutionResponse{}, validationError("%v", err)
	}
	if date.Before(model.DateOf(s.now())) {
		return ExecutionResponse{}, validationError("execution_date is in the past")
	}

	var exec *model.AutoGiftExecution
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		rule, err := s.rules.FindForUser(txCtx, userID, ruleID)
		if err != nil {
			return mapRepoError("rule", err)
		}
		if !rule.IsActive {
			return conflictError("rule is inactive")
		}
		prior, err := s.executions.ListForOccurrence(txCtx, ruleID, date)
		if err != nil {
			return err
		}
		if len(prior) == 0 {
			return validationError("no previous execution exists for %s", date)
		}
		for _, p := range prior {
			if !p.Status.Retriggerable() {
				return conflictError("execution %s is %s", p.ID, p.Status)
			}
		}

		exec = &model.AutoGiftExecution{
			UserID:        rule.UserID,
			RuleID:        rule.ID,
			EventID:       rule.EventID,
			ExecutionDate: date,
			Status:        model.ExecPendingSelection,
			GiftMessage:   rule.GiftMessage,
		}
		if err := s.executions.Create(txCtx, exec); err != nil {
			return mapRepoError("execution", err)
		}
		return s.audit.Record(txCtx, &userID, model.ActionRetrigger, exec.ID.String(), "auto_gift_execution",
			map[string]interface{}{"rule_id": rule.ID, "execution_date": date})
	})
	if err != nil {
		return ExecutionResponse{}, err
	}
	return toExecutionResponse(*exec), nil
}

func (s *executionService) AdminList(ctx context.Context, filter ExecutionListFilter) ([]ExecutionResponse, int64, error) {
	page, limit := normalizePage(filter.Page, filter.Limit)
	repoFilter := repository.ExecutionFilter{
		ManualIntervention: filter.ManualIntervention,
		Page:               page,
		Limit:              limit,
	}
	if filter.UserID != "" {
		id, err := uuid.Parse(filter.UserID)
		if err != nil {
			return nil, 0, validationError("user_id must be a UUID")
		}
		repoFilter.UserID = &id
	}
	if filter.RuleID != "" {
		id, err := uuid.Parse(filter.RuleID)
		if err != nil {
			return nil, 0, validationError("rule_id must be a UUID")
		}
		repoFilter.RuleID = &id
	}
	if filter.Status != "" {
		status := model.ExecutionStatus(filter.Status)
		if !status.Valid() {
			return nil, 0, validationError("unknown status %q", filter.Status)
		}
		repoFilter.Status = status
	}

	execs, total, err := s.executions.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, err
	}
	res := make([]ExecutionResponse, 0, len(execs))
	for _, e := range execs {
		res = append(res, toExecutionResponse(e))
	}
	return res, total, nil
}

func (s *executionService) AdminGet(ctx context.Context, id uuid.UUID) (ExecutionDetail, error) {
	exec, err := s.executions.FindByID(ctx, id)
	if err != nil {
		return ExecutionDetail{}, mapRepoError("execution", err)
	}
	detail := ExecutionDetail{ExecutionResponse: toExecutionResponse(*exec)}
	if order, err := s.orders.FindByExecutionID(ctx, id); err == nil {
		detail.Order = order
	}
	if auth, err := s.payments.FindByExecutionID(ctx, id); err == nil {
		detail.Authorization = auth
	}
	return detail, nil
}

func toExecutionResponse(e model.AutoGiftExecution) ExecutionResponse {
	res := ExecutionResponse{
		ID:                         e.ID.String(),
		UserID:                     e.UserID.String(),
		RuleID:                     e.RuleID.String(),
		EventID:                    e.EventID.String(),
		ExecutionDate:              e.ExecutionDate.String(),
		Status:                     string(e.Status),
		SelectedProducts:           []model.SelectedProduct(e.SelectedProducts),
		GiftMessage:                e.GiftMessage,
		TotalAmount:                e.TotalAmount,
		FailureReason:              e.FailureReason,
		RequiresManualIntervention: e.RequiresManualIntervention,
		StatusChangedAt:            e.StatusChangedAt.Format(time.RFC3339),
		CreatedAt:                  e.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if res.SelectedProducts == nil {
		res.SelectedProducts = []model.SelectedProduct{}
	}
	if e.AIAttribution != nil {
		attr := e.AIAttribution.Data()
		res.AIAttribution = &attr
	}
	if e.OrderID != nil {
		id := e.OrderID.String()
		res.OrderID = &id
	}
	return res
}

// canceller releases what a cancelled execution holds: its order and its authorization.
type canceller struct {
	orders    repository.OrderRepository
	payments  repository.PaymentRepository
	processor payment.Processor
	logger    *logrus.Logger
}

// cancelInTx moves exec to cancelled. The returned processor authorization id, when not
// empty, must be voided once the transaction commits.
func (c canceller) cancelInTx(ctx context.Context, t transitioner, exec *model.AutoGiftExecution, reason string) (string, error) {
	from := exec.Status
	if err := t.move(ctx, exec, model.ExecCancelled, map[string]interface{}{"failure_reason": reason}); err != nil {
		return "", err
	}
	if from != model.ExecAwaitingFunds && from != model.ExecCaptureFailed {
		return "", nil
	}

	if order, err := c.orders.FindByExecutionID(ctx, exec.ID); err == nil {
		err = c.orders.TransitionStatus(ctx, order.ID, order.Status, model.OrderCancelled, map[string]interface{}{"hold_reason": reason})
		if err != nil && !errors.Is(err, repository.ErrStaleState) {
			return "", err
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return "", err
	}

	auth, err := c.payments.FindByExecutionID(ctx, exec.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if auth.Status != model.AuthAuthorized && auth.Status != model.AuthCaptureFailed {
		return "", nil
	}
	if err := c.payments.UpdateStatus(ctx, auth.ID, auth.Status, model.AuthVoided, nil); err != nil {
		return "", err
	}
	return auth.ProcessorAuthorizationID, nil
}

// void releases the hold at the processor. Failure is logged only: an unvoided hold
// lapses when the authorization expires.
func (c canceller) void(ctx context.Context, executionID uuid.UUID, processorAuthID string) {
	if processorAuthID == "" || c.processor == nil {
		return
	}
	if err := c.processor.Void(ctx, processorAuthID, "void:"+executionID.String()); err != nil {
		logger.LogError(c.logger, "service", "void", "void authorization", processorAuthID, err)
	}
}
