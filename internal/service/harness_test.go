package service

import (
	"context"
	"io"
	"testing"
	"time"

	"giftflow/internal/gateway/fulfillment"
	"giftflow/internal/gateway/gatewaytest"
	"giftflow/internal/model"
	"giftflow/internal/notify"
	"giftflow/internal/repository"
	"giftflow/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// harness wires every stage against one in-memory database and in-memory gateways.
type harness struct {
	t   *testing.T
	ctx context.Context
	db  *gorm.DB
	log *logrus.Logger
	now time.Time

	tx             repository.TransactionManager
	users          repository.UserRepository
	events         repository.EventRepository
	rules          repository.RuleRepository
	wishlists      repository.WishlistRepository
	executions     repository.ExecutionRepository
	tokens         repository.ApprovalTokenRepository
	orders         repository.OrderRepository
	payments       repository.PaymentRepository
	funding        repository.FundingRepository
	operatorAlerts repository.OperatorAlertRepository
	audit          repository.AuditRepository

	processor   *gatewaytest.Processor
	shop        *gatewaytest.Fulfillment
	recommender *gatewaytest.Recommender
	notes       *notify.Recorder

	alerts     AlertService
	evaluator  *RuleEvaluator
	approvals  *ApprovalGateway
	selector   *ProductSelector
	payment    *PaymentStage
	submission *SubmissionStage
	reconciler *FundingReconciler
	execs      ExecutionService
	ruleSvc    RuleService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	log := logrus.New()
	log.SetOutput(io.Discard)

	h := &harness{
		t:              t,
		ctx:            context.Background(),
		db:             db,
		log:            log,
		now:            time.Date(2025, 12, 18, 9, 0, 0, 0, time.UTC),
		tx:             repository.NewTransactionManager(db),
		users:          repository.NewUserRepository(db),
		events:         repository.NewEventRepository(db),
		rules:          repository.NewRuleRepository(db),
		wishlists:      repository.NewWishlistRepository(db),
		executions:     repository.NewExecutionRepository(db),
		tokens:         repository.NewApprovalTokenRepository(db),
		orders:         repository.NewOrderRepository(db),
		payments:       repository.NewPaymentRepository(db),
		funding:        repository.NewFundingRepository(db),
		operatorAlerts: repository.NewOperatorAlertRepository(db),
		audit:          repository.NewAuditRepository(db),
		shop:           gatewaytest.NewFulfillment(),
		recommender:    &gatewaytest.Recommender{},
		notes:          &notify.Recorder{},
	}
	h.processor = gatewaytest.NewProcessor()
	h.processor.Now = func() time.Time { return h.now }

	opts := StageOptions{WorkerID: "test-worker"}
	h.alerts = NewAlertService(h.tx, h.operatorAlerts, h.audit, nil, log)
	h.evaluator = NewRuleEvaluator(h.tx, h.rules, h.executions, h.audit, h.notes, log, 14)
	h.approvals = NewApprovalGateway(h.tx, h.tokens, h.executions, h.audit, h.notes, log, 72*time.Hour, "https://gifts.example.com/approve")
	h.approvals.now = func() time.Time { return h.now }
	h.selector = NewProductSelector(h.tx, h.executions, h.wishlists, h.users, h.audit, h.shop, h.recommender, h.approvals, h.notes, log, opts)
	h.selector.retryDelay = time.Millisecond
	h.payment = NewPaymentStage(h.tx, h.executions, h.orders, h.payments, h.audit, h.processor, h.alerts, h.notes, log, 4, 7*24*time.Hour, opts)
	h.payment.now = func() time.Time { return h.now }
	h.approvals.SetAuthorizer(h.payment)
	h.submission = NewSubmissionStage(h.tx, h.executions, h.orders, h.payments, h.audit, h.shop, h.processor, h.alerts, h.notes, log, opts)
	h.submission.now = func() time.Time { return h.now }
	h.reconciler = NewFundingReconciler(h.tx, h.executions, h.orders, h.funding, h.audit, h.shop, nil, log, decimal.NewFromInt(100), 4)
	h.reconciler.now = func() time.Time { return h.now }
	h.execs = NewExecutionService(h.tx, h.executions, h.rules, h.orders, h.payments, h.audit, h.processor, h.notes, log)
	h.execs.(*executionService).now = func() time.Time { return h.now }
	h.ruleSvc = NewRuleService(h.tx, h.rules, h.events, h.users, h.executions, h.orders, h.payments, h.audit, h.processor, h.notes, log, decimal.NewFromInt(1000))
	return h
}

func (h *harness) user(email string) *model.User {
	h.t.Helper()
	u := &model.User{Email: email, DisplayName: email, Role: model.RoleCustomer}
	u.ID = uuid.New()
	require.NoError(h.t, h.users.Upsert(h.ctx, u))
	return u
}

var testAddress = model.ShippingAddress{
	Name:       "Ada Lovelace",
	Line1:      "12 St James's Square",
	City:       "London",
	PostalCode: "SW1Y 4JH",
	Country:    "GB",
}

type ruleOption func(*model.AutoGiftRule)

func requiresApproval(v bool) ruleOption {
	return func(r *model.AutoGiftRule) { r.RequiresApproval = v }
}

func withCriteria(c model.SelectionCriteria) ruleOption {
	return func(r *model.AutoGiftRule) { r.Criteria = datatypes.NewJSONType(c) }
}

func withBudget(amount int64) ruleOption {
	return func(r *model.AutoGiftRule) { r.BudgetLimit = decimal.NewFromInt(amount) }
}

// rule stores a birthday occasion on eventDate with a wishlist-driven rule for recipient.
func (h *harness) rule(owner, recipient *model.User, eventDate string, opts ...ruleOption) *model.AutoGiftRule {
	h.t.Helper()
	event := &model.GiftEvent{
		UserID:          owner.ID,
		RecipientUserID: &recipient.ID,
		RecipientEmail:  recipient.Email,
		RecipientName:   "Ada",
		DateType:        model.DateTypeBirthday,
		EventDate:       model.Date(eventDate),
		ShippingAddress: datatypes.NewJSONType(testAddress),
	}
	require.NoError(h.t, h.events.Create(h.ctx, event))

	rule := &model.AutoGiftRule{
		UserID:           owner.ID,
		EventID:          event.ID,
		RecipientUserID:  &recipient.ID,
		RecipientEmail:   recipient.Email,
		DateType:         model.DateTypeBirthday,
		IsActive:         true,
		BudgetLimit:      decimal.NewFromInt(50),
		Criteria:         datatypes.NewJSONType(model.SelectionCriteria{Source: model.SourceWishlist, MaxItems: 1}),
		NotificationDays: datatypes.NewJSONSlice([]int{7}),
		RequiresApproval: false,
		PaymentMethodID:  "pm_card_visa",
		GiftMessage:      "Happy birthday!",
	}
	for _, opt := range opts {
		opt(rule)
	}
	require.NoError(h.t, h.rules.Create(h.ctx, rule))
	return rule
}

// wish adds an available catalog product and puts it on recipient's wishlist.
func (h *harness) wish(recipient *model.User, id string, price int64, priority int) {
	h.t.Helper()
	h.shop.Products[id] = fulfillment.Product{
		ID: id, Title: "Product " + id, Category: "books", Price: decimal.NewFromInt(price), Available: true,
	}
	require.NoError(h.t, h.wishlists.Create(h.ctx, &model.WishlistItem{
		UserID: recipient.ID, ProductID: id, Title: "Product " + id, Category: "books",
		Price: decimal.NewFromInt(price), Priority: priority,
	}))
}

// execution inserts an execution directly in the given status.
func (h *harness) execution(rule *model.AutoGiftRule, date string, status model.ExecutionStatus, products ...model.SelectedProduct) *model.AutoGiftExecution {
	h.t.Helper()
	exec := &model.AutoGiftExecution{
		UserID:           rule.UserID,
		RuleID:           rule.ID,
		EventID:          rule.EventID,
		ExecutionDate:    model.Date(date),
		Status:           status,
		SelectedProducts: datatypes.NewJSONSlice(products),
		TotalAmount:      model.SumPrices(products),
		GiftMessage:      rule.GiftMessage,
	}
	require.NoError(h.t, h.executions.Create(h.ctx, exec))
	return exec
}

func (h *harness) reload(id uuid.UUID) *model.AutoGiftExecution {
	h.t.Helper()
	exec, err := h.executions.FindByID(h.ctx, id)
	require.NoError(h.t, err)
	return exec
}

func selected(id string, price int64) model.SelectedProduct {
	return model.SelectedProduct{
		ProductID: id, Title: "Product " + id, Category: "books",
		Price: decimal.NewFromInt(price), DiscoveryMethod: model.DiscoveryWishlist,
	}
}

// authorizedExecution returns an execution that has been authorized and awaits capture.
func (h *harness) authorizedExecution(rule *model.AutoGiftRule, date string, price int64) *model.AutoGiftExecution {
	h.t.Helper()
	exec := h.execution(rule, date, model.ExecApproved, selected("p-"+date, price))
	require.NoError(h.t, h.payment.AuthorizeExecution(h.ctx, exec.ID, h.now))
	exec = h.reload(exec.ID)
	require.Equal(h.t, model.ExecAwaitingFunds, exec.Status)
	return exec
}
