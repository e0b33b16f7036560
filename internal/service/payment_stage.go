package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"giftflow/internal/gateway"
	"giftflow/internal/gateway/payment"
	"giftflow/internal/logger"
	"giftflow/internal/model"
	"giftflow/internal/notify"
	"giftflow/internal/repository"
	"giftflow/internal/scheduler"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	JobAuthorizePayments = "authorize-payments"
	JobCapturePayments   = "capture-payments"

	currency = "USD"
)

// PaymentStage authorizes approved executions and captures them shortly before the
// occasion. Every processor call carries an idempotency key derived from the execution.
type PaymentStage struct {
	stage
	orders          repository.OrderRepository
	payments        repository.PaymentRepository
	processor       payment.Processor
	alerts          AlertService
	notes           notifier
	cancel          canceller
	captureLeadDays int
	authTTL         time.Duration
	now             func() time.Time
}

func NewPaymentStage(
	tx repository.TransactionManager,
	executions repository.ExecutionRepository,
	orders repository.OrderRepository,
	payments repository.PaymentRepository,
	audit repository.AuditRepository,
	processor payment.Processor,
	alerts AlertService,
	notifications notify.Notifier,
	log *logrus.Logger,
	captureLeadDays int,
	authTTL time.Duration,
	opts StageOptions,
) *PaymentStage {
	s := &PaymentStage{
		stage:           newStage(tx, executions, audit, log),
		orders:          orders,
		payments:        payments,
		processor:       processor,
		alerts:          alerts,
		notes:           notifier{target: notifications, logger: log, now: utcNow},
		cancel:          canceller{orders: orders, payments: payments, processor: processor, logger: log},
		captureLeadDays: captureLeadDays,
		authTTL:         authTTL,
		now:             utcNow,
	}
	s.apply(opts)
	return s
}

func authorizationKey(executionID uuid.UUID) string { return "auth:" + executionID.String() }
func captureKey(executionID uuid.UUID) string       { return "capture:" + executionID.String() }

// AuthorizeJob places holds for approved executions.
func (s *PaymentStage) AuthorizeJob() scheduler.Job {
	return scheduler.JobFunc(JobAuthorizePayments, s.RunAuthorize)
}

// CaptureJob captures holds whose occasion is within the capture lead time.
func (s *PaymentStage) CaptureJob() scheduler.Job {
	return scheduler.JobFunc(JobCapturePayments, s.RunCapture)
}

func (s *PaymentStage) RunAuthorize(ctx context.Context, now time.Time) (scheduler.Result, error) {
	execs, err := s.executions.ListClaimable(ctx, model.ExecApproved, nil, now, s.batchSize)
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("listing approved executions: %w", err)
	}
	return s.each(ctx, execs, now, "authorize", s.authorize), nil
}

func (s *PaymentStage) RunCapture(ctx context.Context, now time.Time) (scheduler.Result, error) {
	dueBy := model.DateOf(now).AddDays(s.captureLeadDays)
	execs, err := s.executions.ListClaimable(ctx, model.ExecAwaitingFunds, &dueBy, now, s.batchSize)
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("listing executions due for capture: %w", err)
	}
	return s.each(ctx, execs, now, "capture", s.capture), nil
}

// AuthorizeExecution authorizes one approved execution outside the job loop.
func (s *PaymentStage) AuthorizeExecution(ctx context.Context, executionID uuid.UUID, now time.Time) error {
	exec, err := s.executions.FindByID(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status != model.ExecApproved || !s.claim(ctx, exec, now) {
		return nil
	}
	err = s.authorize(ctx, exec, now)
	if errors.Is(err, errRetryLater) {
		return nil
	}
	if err != nil {
		s.release(ctx, exec)
	}
	return err
}

func (s *PaymentStage) each(ctx context.Context, execs []model.AutoGiftExecution, now time.Time, op string,
	fn func(context.Context, *model.AutoGiftExecution, time.Time) error) scheduler.Result {
	var result scheduler.Result
	for i := range execs {
		exec := &execs[i]
		if !s.claim(ctx, exec, now) {
			result.Skipped++
			continue
		}
		result.Processed++
		switch err := fn(ctx, exec, now); {
		case errors.Is(err, errRetryLater):
			result.Skipped++
		case err != nil:
			result.Failed++
			logger.LogError(s.logger, "payment_stage", op, op+" execution", exec.ID.String(), err)
			s.release(ctx, exec)
		default:
			result.Succeeded++
		}
	}
	return result
}

func (s *PaymentStage) authorize(ctx context.Context, exec *model.AutoGiftExecution, now time.Time) error {
	rule := exec.Rule
	if rule == nil {
		return fmt.Errorf("execution %s has no rule", exec.ID)
	}
	key := authorizationKey(exec.ID)
	auth, err := s.processor.Authorize(ctx, payment.AuthorizeRequest{
		Amount:          exec.TotalAmount,
		Currency:        currency,
		CustomerID:      exec.UserID.String(),
		PaymentMethodID: rule.PaymentMethodID,
		Description:     fmt.Sprintf("Auto-gift %s for %s", rule.DateType, exec.ExecutionDate),
		IdempotencyKey:  key,
	})
	if errors.Is(err, gateway.ErrAmbiguous) {
		auth, err = s.processor.FindAuthorization(ctx, key)
		if err != nil {
			s.logger.WithFields(logrus.Fields{"execution_id": exec.ID, "error": err.Error()}).
				Warn("authorization outcome unknown, retrying next run")
			s.release(ctx, exec)
			return errRetryLater
		}
	}
	if err != nil {
		return s.paymentFailed(ctx, exec, err)
	}

	expiresAt := auth.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.authTTL)
	}
	var address model.ShippingAddress
	if rule.Event != nil {
		address = rule.Event.ShippingAddress.Data()
	}
	captureAt := exec.ExecutionDate.AddDays(-s.captureLeadDays).Time()

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		record := &model.PaymentAuthorization{
			ExecutionID:              exec.ID,
			ProcessorAuthorizationID: auth.ID,
			IdempotencyKey:           key,
			PaymentMethodID:          rule.PaymentMethodID,
			Amount:                   exec.TotalAmount,
			Status:                   model.AuthAuthorized,
			ExpiresAt:                expiresAt,
		}
		if err := s.payments.Create(txCtx, record); err != nil {
			return err
		}
		order := &model.GiftOrder{
			UserID:                 exec.UserID,
			ExecutionID:            exec.ID,
			PaymentAuthorizationID: &record.ID,
			Status:                 model.OrderAuthorized,
			FundingStatus:          model.FundingAwaitingFunds,
			HoldReason:             "awaiting payment capture",
			ExpectedFundingAt:      &captureAt,
			TotalAmount:            exec.TotalAmount,
			DeliveryDate:           exec.ExecutionDate,
			Items:                  datatypes.NewJSONSlice([]model.SelectedProduct(exec.SelectedProducts)),
			ShippingAddress:        datatypes.NewJSONType(address),
			GiftMessage:            exec.GiftMessage,
		}
		if err := s.orders.Create(txCtx, order); err != nil {
			return err
		}
		if err := s.transitions().move(txCtx, exec, model.ExecAwaitingFunds, map[string]interface{}{"order_id": order.ID}); err != nil {
			return err
		}
		exec.OrderID = &order.ID
		return nil
	})
}

func (s *PaymentStage) paymentFailed(ctx context.Context, exec *model.AutoGiftExecution, cause error) error {
	reason := "payment authorization failed"
	if errors.Is(cause, payment.ErrDeclined) {
		reason = "payment method declined"
	}
	err := s.transitions().move(ctx, exec, model.ExecPaymentFailed, map[string]interface{}{
		"failure_reason": fmt.Sprintf("%s: %v", reason, cause),
	})
	if err != nil {
		return err
	}
	s.notes.send(ctx, notify.KindPaymentFailed, exec, "We couldn't authorize your auto-gift payment",
		"Update your payment method and re-trigger the gift.", nil)
	return nil
}

func (s *PaymentStage) capture(ctx context.Context, exec *model.AutoGiftExecution, now time.Time) error {
	auth, err := s.payments.FindByExecutionID(ctx, exec.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.captureFailed(ctx, exec, nil, model.OperatorAlertAuthorizationMissing, "no payment authorization on record")
	}
	if err != nil {
		return err
	}
	if auth.ExpiredAt(now) {
		return s.captureFailed(ctx, exec, auth, model.OperatorAlertCaptureFailed, "payment authorization expired before capture")
	}

	captureID, err := s.captureRemote(ctx, auth, captureKey(exec.ID))
	if errors.Is(err, errRetryLater) {
		s.release(ctx, exec)
		return err
	}
	if err != nil {
		return s.captureFailed(ctx, exec, auth, model.OperatorAlertCaptureFailed, "capture failed: "+err.Error())
	}
	return s.captureSucceeded(ctx, exec, auth, captureID, now)
}

// captureRemote captures at the processor, re-querying the authorization after an
// ambiguous failure.
func (s *PaymentStage) captureRemote(ctx context.Context, auth *model.PaymentAuthorization, key string) (string, error) {
	captured, err := s.processor.Capture(ctx, auth.ProcessorAuthorizationID, auth.Amount, key)
	if err == nil {
		return captured.ID, nil
	}
	if !errors.Is(err, gateway.ErrAmbiguous) {
		return "", err
	}
	remote, qerr := s.processor.GetAuthorization(ctx, auth.ProcessorAuthorizationID)
	if qerr != nil {
		return "", errRetryLater
	}
	switch remote.Status {
	case payment.StatusCaptured:
		return remote.CaptureID, nil
	case payment.StatusExpired:
		return "", payment.ErrAuthorizationExpired
	case payment.StatusVoided:
		return "", errors.New("authorization was voided")
	}
	return "", errRetryLater
}

func (s *PaymentStage) captureSucceeded(ctx context.Context, exec *model.AutoGiftExecution, auth *model.PaymentAuthorization, captureID string, now time.Time) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.payments.UpdateStatus(txCtx, auth.ID, auth.Status, model.AuthCaptured, map[string]interface{}{
			"capture_id":     captureID,
			"captured_at":    now,
			"failure_reason": "",
		}); err != nil {
			return err
		}
		order, err := s.orders.FindByExecutionID(txCtx, exec.ID)
		if err != nil {
			return err
		}
		if err := s.orders.TransitionStatus(txCtx, order.ID, order.Status, model.OrderPaymentConfirmed, map[string]interface{}{
			"funding_status":      model.FundingFundsAllocated,
			"funds_allocated_at":  now,
			"expected_funding_at": now,
			"hold_reason":         "",
		}); err != nil {
			return err
		}
		return s.transitions().move(txCtx, exec, model.ExecPaymentConfirmed, map[string]interface{}{
			"requires_manual_intervention": false,
			"failure_reason":               "",
		})
	})
}

// captureFailed parks the execution for an operator. auth is nil when no authorization exists.
func (s *PaymentStage) captureFailed(ctx context.Context, exec *model.AutoGiftExecution, auth *model.PaymentAuthorization,
	kind model.OperatorAlertKind, reason string) error {
	from := exec.Status
	var alert *model.OperatorAlert
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if from == model.ExecCaptureFailed {
			return s.executions.Update(txCtx, exec.ID, map[string]interface{}{"failure_reason": reason})
		}
		if auth != nil && auth.Status == model.AuthAuthorized {
			if err := s.payments.UpdateStatus(txCtx, auth.ID, auth.Status, model.AuthCaptureFailed,
				map[string]interface{}{"failure_reason": reason}); err != nil {
				return err
			}
		}
		if order, err := s.orders.FindByExecutionID(txCtx, exec.ID); err == nil {
			if err := s.orders.TransitionStatus(txCtx, order.ID, order.Status, model.OrderCaptureFailed,
				map[string]interface{}{"hold_reason": reason}); err != nil {
				return err
			}
		}
		if err := s.transitions().move(txCtx, exec, model.ExecCaptureFailed, map[string]interface{}{
			"failure_reason":               reason,
			"requires_manual_intervention": true,
		}); err != nil {
			return err
		}
		var err error
		alert, err = s.alerts.Raise(txCtx, kind, &exec.ID, exec.OrderID, reason)
		return err
	})
	if err != nil {
		return err
	}
	s.alerts.Publish(alert)
	if from != model.ExecCaptureFailed {
		s.notes.send(ctx, notify.KindCaptureFailed, exec, "There was a problem charging for your auto-gift",
			"Our team has been notified and will follow up.", nil)
	}
	return nil
}

// RetryCapture re-runs capture for a capture_failed execution on an operator's request.
func (s *PaymentStage) RetryCapture(ctx context.Context, adminID, executionID uuid.UUID) (ExecutionResponse, error) {
	now := s.now()
	exec, err := s.executions.FindByID(ctx, executionID)
	if err != nil {
		return ExecutionResponse{}, mapRepoError("execution", err)
	}
	if exec.Status != model.ExecCaptureFailed {
		return ExecutionResponse{}, conflictError("execution is %s, not capture_failed", exec.Status)
	}
	auth, err := s.payments.FindByExecutionID(ctx, exec.ID)
	if err != nil {
		return ExecutionResponse{}, conflictError("no payment authorization on record; cancel the execution instead")
	}
	if auth.ExpiredAt(now) {
		return ExecutionResponse{}, conflictError("payment authorization expired; cancel the execution instead")
	}

	// A fresh key: processors replay the stored outcome of a reused key.
	key := fmt.Sprintf("%s:retry-%d", captureKey(exec.ID), now.Unix())
	captureID, err := s.captureRemote(ctx, auth, key)
	if errors.Is(err, errRetryLater) {
		return ExecutionResponse{}, conflictError("processor outcome unknown, try again shortly")
	}
	if err != nil {
		_ = s.captureFailed(ctx, exec, auth, model.OperatorAlertCaptureFailed, "capture retry failed: "+err.Error())
		return ExecutionResponse{}, conflictError("capture failed: %v", err)
	}
	if err := s.captureSucceeded(ctx, exec, auth, captureID, now); err != nil {
		return ExecutionResponse{}, mapRepoError("execution", err)
	}
	s.closeAlerts(ctx, adminID, exec.ID, model.ActionRetryCapture)
	return toExecutionResponse(*exec), nil
}

// CancelHeld cancels a capture_failed execution and voids its authorization.
func (s *PaymentStage) CancelHeld(ctx context.Context, adminID, executionID uuid.UUID) (ExecutionResponse, error) {
	var exec *model.AutoGiftExecution
	var voidID string
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		exec, err = s.executions.FindByID(txCtx, executionID)
		if err != nil {
			return mapRepoError("execution", err)
		}
		if exec.Status != model.ExecCaptureFailed && !exec.Status.Cancellable() {
			return conflictError("execution in status %s cannot be cancelled here", exec.Status)
		}
		voidID, err = s.cancel.cancelInTx(txCtx, s.transitions(), exec, "cancelled by operator")
		return mapRepoError("execution", err)
	})
	if err != nil {
		return ExecutionResponse{}, err
	}
	s.cancel.void(ctx, exec.ID, voidID)
	s.closeAlerts(ctx, adminID, exec.ID, model.ActionCancelExecution)
	s.notes.send(ctx, notify.KindExecutionCancelled, exec, "Your auto-gift was cancelled",
		"We couldn't complete the payment for this gift, so it was cancelled.", nil)
	return toExecutionResponse(*exec), nil
}

func (s *PaymentStage) closeAlerts(ctx context.Context, adminID, executionID uuid.UUID, action string) {
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.executions.Update(txCtx, executionID, map[string]interface{}{"requires_manual_intervention": false}); err != nil {
			return err
		}
		if err := s.alerts.ResolveForExecution(txCtx, adminID, executionID); err != nil {
			return err
		}
		return s.audit.Record(txCtx, &adminID, action, executionID.String(), "auto_gift_execution", nil)
	})
	if err != nil {
		logger.LogError(s.logger, "payment_stage", "closeAlerts", "close operator alerts", executionID.String(), err)
	}
}
