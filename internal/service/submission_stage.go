package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"giftflow/internal/gateway"
	"giftflow/internal/gateway/fulfillment"
	"giftflow/internal/gateway/payment"
	"giftflow/internal/logger"
	"giftflow/internal/model"
	"giftflow/internal/notify"
	"giftflow/internal/repository"
	"giftflow/internal/scheduler"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const JobSubmitOrders = "submit-orders"

type OrderListFilter struct {
	Status        string
	FundingStatus string
	Page          int
	Limit         int
}

// SubmissionStage places funded, captured orders with the fulfillment provider.
type SubmissionStage struct {
	stage
	orders    repository.OrderRepository
	payments  repository.PaymentRepository
	submitter fulfillment.OrderSubmitter
	processor payment.Processor
	alerts    AlertService
	notes     notifier
	now       func() time.Time
}

func NewSubmissionStage(
	tx repository.TransactionManager,
	executions repository.ExecutionRepository,
	orders repository.OrderRepository,
	payments repository.PaymentRepository,
	audit repository.AuditRepository,
	submitter fulfillment.OrderSubmitter,
	processor payment.Processor,
	alerts AlertService,
	notifications notify.Notifier,
	log *logrus.Logger,
	opts StageOptions,
) *SubmissionStage {
	s := &SubmissionStage{
		stage:     newStage(tx, executions, audit, log),
		orders:    orders,
		payments:  payments,
		submitter: submitter,
		processor: processor,
		alerts:    alerts,
		notes:     notifier{target: notifications, logger: log, now: utcNow},
		now:       utcNow,
	}
	s.apply(opts)
	return s
}

func (s *SubmissionStage) Name() string { return JobSubmitOrders }

func (s *SubmissionStage) Run(ctx context.Context, now time.Time) (scheduler.Result, error) {
	var result scheduler.Result
	orders, err := s.orders.ListSubmittable(ctx, model.DateOf(now), now, s.batchSize)
	if err != nil {
		return result, fmt.Errorf("listing submittable orders: %w", err)
	}

	for i := range orders {
		order := &orders[i]
		ok, err := s.orders.Claim(ctx, order.ID, s.workerID, now.Add(s.claimTTL), now)
		if err != nil || !ok {
			result.Skipped++
			continue
		}
		result.Processed++
		switch err := s.submit(ctx, order, now); {
		case errors.Is(err, errRetryLater):
			result.Skipped++
		case err != nil:
			result.Failed++
			logger.LogError(s.logger, "submission_stage", "Run", "submit order", order.ID.String(), err)
			s.releaseOrder(ctx, order.ID)
		default:
			result.Succeeded++
		}
	}
	return result, nil
}

func (s *SubmissionStage) releaseOrder(ctx context.Context, id uuid.UUID) {
	if err := s.orders.Update(ctx, id, map[string]interface{}{"claimed_by": nil, "claimed_until": nil}); err != nil {
		logger.LogError(s.logger, "submission_stage", "releaseOrder", "release claim", id.String(), err)
	}
}

func (s *SubmissionStage) submit(ctx context.Context, order *model.GiftOrder, now time.Time) error {
	placed, err := s.place(ctx, order)
	if errors.Is(err, errRetryLater) {
		s.releaseOrder(ctx, order.ID)
		return err
	}
	if err != nil {
		return s.submissionFailed(ctx, order, err)
	}
	return s.submitted(ctx, order, placed, now)
}

// place submits the order with its id as the client reference. After an ambiguous failure
// the provider is asked whether the order exists before anything is retried.
func (s *SubmissionStage) place(ctx context.Context, order *model.GiftOrder) (*fulfillment.SubmittedOrder, error) {
	reference := order.ID.String()
	existing, err := s.submitter.FindOrderByReference(ctx, reference)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gateway.ErrNotFound) {
		return nil, errRetryLater
	}

	address := order.ShippingAddress.Data()
	req := fulfillment.SubmitOrderRequest{
		Reference: reference,
		ShippingAddress: fulfillment.Address{
			Name:       address.Name,
			Line1:      address.Line1,
			Line2:      address.Line2,
			City:       address.City,
			Region:     address.Region,
			PostalCode: address.PostalCode,
			Country:    address.Country,
		},
		GiftMessage:  order.GiftMessage,
		DeliveryDate: order.DeliveryDate.String(),
	}
	for _, item := range order.Items {
		req.Items = append(req.Items, fulfillment.OrderItem{ProductID: item.ProductID, Quantity: 1, UnitPrice: item.Price})
	}

	placed, err := s.submitter.SubmitOrder(ctx, req)
	if err == nil {
		return placed, nil
	}
	if !errors.Is(err, gateway.ErrAmbiguous) {
		return nil, err
	}
	placed, qerr := s.submitter.FindOrderByReference(ctx, reference)
	if qerr == nil {
		return placed, nil
	}
	s.logger.WithFields(logrus.Fields{"order_id": order.ID, "error": err.Error()}).
		Warn("order submission outcome unknown, retrying next run")
	return nil, errRetryLater
}

func (s *SubmissionStage) submitted(ctx context.Context, order *model.GiftOrder, placed *fulfillment.SubmittedOrder, now time.Time) error {
	var exec *model.AutoGiftExecution
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.TransitionStatus(txCtx, order.ID, order.Status, model.OrderProcessing, map[string]interface{}{
			"vendor_order_id": placed.VendorOrderID,
			"submitted_at":    now,
			"hold_reason":     "",
		}); err != nil {
			return err
		}
		var err error
		exec, err = s.executions.FindByID(txCtx, order.ExecutionID)
		if err != nil {
			return err
		}
		return s.transitions().move(txCtx, exec, model.ExecProcessing, map[string]interface{}{
			"requires_manual_intervention": false,
			"failure_reason":               "",
		})
	})
	if err != nil {
		return err
	}
	order.Status = model.OrderProcessing
	order.VendorOrderID = placed.VendorOrderID
	s.notes.send(ctx, notify.KindOrderProcessing, exec, "Your auto-gift is on its way",
		fmt.Sprintf("Order %s has been placed for delivery on %s.", placed.VendorOrderID, order.DeliveryDate),
		map[string]string{"vendor_order_id": placed.VendorOrderID})
	return nil
}

func (s *SubmissionStage) submissionFailed(ctx context.Context, order *model.GiftOrder, cause error) error {
	reason := "order submission failed: " + cause.Error()
	var alert *model.OperatorAlert
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if order.Status == model.OrderSubmissionFailed {
			return s.orders.Update(txCtx, order.ID, map[string]interface{}{"hold_reason": reason})
		}
		if err := s.orders.TransitionStatus(txCtx, order.ID, order.Status, model.OrderSubmissionFailed,
			map[string]interface{}{"hold_reason": reason}); err != nil {
			return err
		}
		exec, err := s.executions.FindByID(txCtx, order.ExecutionID)
		if err != nil {
			return err
		}
		if err := s.transitions().move(txCtx, exec, model.ExecSubmissionFailed, map[string]interface{}{
			"failure_reason":               reason,
			"requires_manual_intervention": true,
		}); err != nil {
			return err
		}
		alert, err = s.alerts.Raise(txCtx, model.OperatorAlertSubmissionFailed, &exec.ID, &order.ID, reason)
		return err
	})
	if err != nil {
		return err
	}
	s.alerts.Publish(alert)
	return nil
}

// ResubmitOrder retries a submission_failed order on an operator's request.
func (s *SubmissionStage) ResubmitOrder(ctx context.Context, adminID, orderID uuid.UUID) (*model.GiftOrder, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapRepoError("order", err)
	}
	if order.Status != model.OrderSubmissionFailed {
		return nil, conflictError("order is %s, not submission_failed", order.Status)
	}

	placed, err := s.place(ctx, order)
	if errors.Is(err, errRetryLater) {
		return nil, conflictError("fulfillment outcome unknown, try again shortly")
	}
	if err != nil {
		_ = s.submissionFailed(ctx, order, err)
		return nil, conflictError("fulfillment provider rejected the order: %v", err)
	}
	if err := s.submitted(ctx, order, placed, s.now()); err != nil {
		return nil, mapRepoError("order", err)
	}
	s.operatorActed(ctx, adminID, order, model.ActionResubmitOrder)
	return s.reload(ctx, order)
}

// CancelOrder cancels a submission_failed order and refunds the captured payment.
func (s *SubmissionStage) CancelOrder(ctx context.Context, adminID, orderID uuid.UUID) (*model.GiftOrder, error) {
	var auth *model.PaymentAuthorization
	var exec *model.AutoGiftExecution
	var order *model.GiftOrder
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepoError("order", err)
		}
		if order.Status != model.OrderSubmissionFailed {
			return conflictError("only submission_failed orders can be cancelled, order is %s", order.Status)
		}
		if err := s.orders.TransitionStatus(txCtx, order.ID, order.Status, model.OrderCancelled,
			map[string]interface{}{"hold_reason": "cancelled by operator"}); err != nil {
			return mapRepoError("order", err)
		}
		exec, err = s.executions.FindByID(txCtx, order.ExecutionID)
		if err != nil {
			return mapRepoError("execution", err)
		}
		if err := s.transitions().move(txCtx, exec, model.ExecCancelled, map[string]interface{}{
			"failure_reason":               "order cancelled by operator",
			"requires_manual_intervention": false,
		}); err != nil {
			return mapRepoError("execution", err)
		}
		if auth, err = s.payments.FindByExecutionID(txCtx, exec.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if auth != nil && auth.CaptureID != "" {
		if err := s.processor.Refund(ctx, auth.CaptureID, auth.Amount, "refund:"+order.ID.String()); err != nil {
			logger.LogError(s.logger, "submission_stage", "CancelOrder", "refund capture", order.ID.String(), err)
		}
	}
	s.operatorActed(ctx, adminID, order, model.ActionCancelOrder)
	s.notes.send(ctx, notify.KindExecutionCancelled, exec, "Your auto-gift was cancelled",
		"We couldn't place the order, so your payment has been refunded.", nil)
	return s.reload(ctx, order)
}

// MarkDelivered closes a processing order once the provider reports delivery.
func (s *SubmissionStage) MarkDelivered(ctx context.Context, adminID, orderID uuid.UUID) (*model.GiftOrder, error) {
	var exec *model.AutoGiftExecution
	var order *model.GiftOrder
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepoError("order", err)
		}
		if order.Status != model.OrderProcessing {
			return conflictError("order is %s, not processing", order.Status)
		}
		if err := s.orders.TransitionStatus(txCtx, order.ID, order.Status, model.OrderDelivered, nil); err != nil {
			return mapRepoError("order", err)
		}
		exec, err = s.executions.FindByID(txCtx, order.ExecutionID)
		if err != nil {
			return mapRepoError("execution", err)
		}
		if err := s.transitions().move(txCtx, exec, model.ExecDelivered, nil); err != nil {
			return mapRepoError("execution", err)
		}
		return s.audit.Record(txCtx, &adminID, model.ActionMarkDelivered, order.ID.String(), "gift_order", nil)
	})
	if err != nil {
		return nil, err
	}
	s.notes.send(ctx, notify.KindOrderDelivered, exec, "Your auto-gift was delivered", "", nil)
	return s.reload(ctx, order)
}

func (s *SubmissionStage) ListOrders(ctx context.Context, filter OrderListFilter) ([]model.GiftOrder, int64, error) {
	page, limit := normalizePage(filter.Page, filter.Limit)
	repoFilter := repository.OrderFilter{Page: page, Limit: limit}
	if filter.Status != "" {
		status := model.OrderStatus(filter.Status)
		if !status.Valid() {
			return nil, 0, validationError("unknown order status %q", filter.Status)
		}
		repoFilter.Status = status
	}
	if filter.FundingStatus != "" {
		fs := model.FundingStatus(filter.FundingStatus)
		if !fs.Valid() {
			return nil, 0, validationError("unknown funding status %q", filter.FundingStatus)
		}
		repoFilter.FundingStatus = fs
	}
	return s.orders.List(ctx, repoFilter)
}

func (s *SubmissionStage) operatorActed(ctx context.Context, adminID uuid.UUID, order *model.GiftOrder, action string) {
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.alerts.ResolveForExecution(txCtx, adminID, order.ExecutionID); err != nil {
			return err
		}
		return s.audit.Record(txCtx, &adminID, action, order.ID.String(), "gift_order",
			map[string]interface{}{"execution_id": order.ExecutionID})
	})
	if err != nil {
		logger.LogError(s.logger, "submission_stage", "operatorActed", action, order.ID.String(), err)
	}
}

func (s *SubmissionStage) reload(ctx context.Context, order *model.GiftOrder) (*model.GiftOrder, error) {
	fresh, err := s.orders.FindByID(ctx, order.ID)
	if err != nil {
		return nil, mapRepoError("order", err)
	}
	return fresh, nil
}
