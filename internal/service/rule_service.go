package service

import (
	"context"
	"errors"
	"strings"

	"giftflow/internal/gateway/payment"
	"giftflow/internal/model"
	"giftflow/internal/notify"
	"giftflow/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	maxNotificationDays = 60
	maxItemsPerGift     = 10
)

// --- DTOs ---

type RuleRequest struct {
	EventID          string                  `json:"event_id" binding:"required"`
	RecipientUserID  string                  `json:"recipient_user_id"`
	RecipientEmail   string                  `json:"recipient_email"`
	BudgetLimit      decimal.Decimal         `json:"budget_limit"`
	Criteria         model.SelectionCriteria `json:"criteria"`
	NotificationDays []int                   `json:"notification_days"`
	RequiresApproval *bool                   `json:"requires_approval"`
	PaymentMethodID  string                  `json:"payment_method_id"`
	GiftMessage      string                  `json:"gift_message"`
}

type RuleResponse struct {
	ID               string                  `json:"id"`
	EventID          string                  `json:"event_id"`
	RecipientUserID  *string                 `json:"recipient_user_id"`
	RecipientEmail   string                  `json:"recipient_email"`
	DateType         string                  `json:"date_type"`
	IsActive         bool                    `json:"is_active"`
	BudgetLimit      decimal.Decimal         `json:"budget_limit"`
	Criteria         model.SelectionCriteria `json:"criteria"`
	NotificationDays []int                   `json:"notification_days"`
	RequiresApproval bool                    `json:"requires_approval"`
	PaymentMethodID  string                  `json:"payment_method_id"`
	GiftMessage      string                  `json:"gift_message"`
	CreatedAt        string                  `json:"created_at"`
}

// --- Interface ---

type RuleService interface {
	Create(ctx context.Context, userID uuid.UUID, req RuleRequest) (RuleResponse, error)
	Update(ctx context.Context, userID, id uuid.UUID, req RuleRequest) (RuleResponse, error)
	Get(ctx context.Context, userID, id uuid.UUID) (RuleResponse, error)
	List(ctx context.Context, userID uuid.UUID) ([]RuleResponse, error)
	// Deactivate stops the rule and cancels its executions that are still cancellable.
	Deactivate(ctx context.Context, userID, id uuid.UUID) (RuleResponse, error)
}

type ruleService struct {
	tx         repository.TransactionManager
	rules      repository.RuleRepository
	events     repository.EventRepository
	users      repository.UserRepository
	executions repository.ExecutionRepository
	audit      repository.AuditRepository
	cancel     canceller
	notes      notifier
	logger     *logrus.Logger
	maxBudget  decimal.Decimal
}

func NewRuleService(
	tx repository.TransactionManager,
	rules repository.RuleRepository,
	events repository.EventRepository,
	users repository.UserRepository,
	executions repository.ExecutionRepository,
	orders repository.OrderRepository,
	payments repository.PaymentRepository,
	audit repository.AuditRepository,
	processor payment.Processor,
	notifications notify.Notifier,
	log *logrus.Logger,
	maxBudget decimal.Decimal,
) RuleService {
	return &ruleService{
		tx:         tx,
		rules:      rules,
		events:     events,
		users:      users,
		executions: executions,
		audit:      audit,
		cancel:     canceller{orders: orders, payments: payments, processor: processor, logger: log},
		notes:      notifier{target: notifications, logger: log, now: utcNow},
		logger:     log,
		maxBudget:  maxBudget,
	}
}

// --- Implementation ---

func (s *ruleService) Create(ctx context.Context, userID uuid.UUID, req RuleRequest) (RuleResponse, error) {
	rule := model.AutoGiftRule{UserID: userID, IsActive: true, RequiresApproval: true}
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.apply(txCtx, &rule, req); err != nil {
			return err
		}
		if err := s.rules.Create(txCtx, &rule); err != nil {
			return mapRepoError("rule", err)
		}
		return s.audit.Record(txCtx, &userID, model.ActionCreateRule, rule.ID.String(), string(rule.DateType),
			map[string]interface{}{"event_id": rule.EventID, "budget_limit": rule.BudgetLimit})
	})
	if err != nil {
		return RuleResponse{}, err
	}
	return toRuleResponse(rule), nil
}

func (s *ruleService) Update(ctx context.Context, userID, id uuid.UUID, req RuleRequest) (RuleResponse, error) {
	var rule *model.AutoGiftRule
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		rule, err = s.rules.FindForUser(txCtx, userID, id)
		if err != nil {
			return mapRepoError("rule", err)
		}
		if !rule.IsActive {
			return conflictError("an inactive rule cannot be edited")
		}
		if err := s.apply(txCtx, rule, req); err != nil {
			return err
		}
		if err := s.rules.Save(txCtx, rule); err != nil {
			return mapRepoError("rule", err)
		}
		return s.audit.Record(txCtx, &userID, model.ActionUpdateRule, rule.ID.String(), string(rule.DateType),
			map[string]interface{}{"budget_limit": rule.BudgetLimit, "requires_approval": rule.RequiresApproval})
	})
	if err != nil {
		return RuleResponse{}, err
	}
	return toRuleResponse(*rule), nil
}

func (s *ruleService) Get(ctx context.Context, userID, id uuid.UUID) (RuleResponse, error) {
	rule, err := s.rules.FindForUser(ctx, userID, id)
	if err != nil {
		return RuleResponse{}, mapRepoError("rule", err)
	}
	return toRuleResponse(*rule), nil
}

func (s *ruleService) List(ctx context.Context, userID uuid.UUID) ([]RuleResponse, error) {
	rules, err := s.rules.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	res := make([]RuleResponse, 0, len(rules))
	for _, r := range rules {
		res = append(res, toRuleResponse(r))
	}
	return res, nil
}

func (s *ruleService) Deactivate(ctx context.Context, userID, id uuid.UUID) (RuleResponse, error) {
	var rule *model.AutoGiftRule
	var cancelled []*model.AutoGiftExecution
	voids := map[uuid.UUID]string{}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		rule, err = s.rules.FindForUser(txCtx, userID, id)
		if err != nil {
			return mapRepoError("rule", err)
		}
		if !rule.IsActive {
			return nil
		}
		rule.IsActive = false
		if err := s.rules.Save(txCtx, rule); err != nil {
			return err
		}

		execs, err := s.executions.ListByRule(txCtx, rule.ID,
			model.ExecPendingSelection, model.ExecPendingApproval, model.ExecApproved, model.ExecAwaitingFunds)
		if err != nil {
			return err
		}
		t := transitioner{executions: s.executions, logger: s.logger}
		for i := range execs {
			exec := &execs[i]
			voidID, err := s.cancel.cancelInTx(txCtx, t, exec, "rule deactivated")
			if errors.Is(err, repository.ErrStaleState) {
				continue
			}
			if err != nil {
				return err
			}
			cancelled = append(cancelled, exec)
			voids[exec.ID] = voidID
		}

		return s.audit.Record(txCtx, &userID, model.ActionDeactivateRule, rule.ID.String(), string(rule.DateType),
			map[string]interface{}{"cancelled_executions": len(cancelled)})
	})
	if err != nil {
		return RuleResponse{}, err
	}

	for _, exec := range cancelled {
		s.cancel.void(ctx, exec.ID, voids[exec.ID])
		s.notes.send(ctx, notify.KindExecutionCancelled, exec, "Your auto-gift was cancelled",
			"The rule for this occasion was turned off.", nil)
	}
	return toRuleResponse(*rule), nil
}

// apply validates req against the user's data and copies it onto rule.
func (s *ruleService) apply(ctx context.Context, rule *model.AutoGiftRule, req RuleRequest) error {
	eventID, err := uuid.Parse(strings.TrimSpace(req.EventID))
	if err != nil {
		return validationError("event_id must be a UUID")
	}
	event, err := s.events.FindForUser(ctx, rule.UserID, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return validationError("event %s does not belong to you", eventID)
		}
		return err
	}

	criteria, err := ValidateRule(req, s.maxBudget)
	if err != nil {
		return err
	}

	recipientID, email := event.RecipientUserID, event.RecipientEmail
	if req.RecipientUserID != "" || req.RecipientEmail != "" {
		recipientID, email, err = resolveRecipient(ctx, s.users, req.RecipientUserID, req.RecipientEmail)
		if err != nil {
			return err
		}
	}
	if recipientID == nil && email == "" {
		return validationError("a recipient user id or email is required")
	}

	rule.EventID = event.ID
	rule.Event = nil
	rule.DateType = event.DateType
	rule.RecipientUserID = recipientID
	rule.RecipientEmail = email
	rule.BudgetLimit = req.BudgetLimit
	rule.Criteria = datatypes.NewJSONType(criteria)
	rule.NotificationDays = datatypes.NewJSONSlice(req.NotificationDays)
	rule.PaymentMethodID = strings.TrimSpace(req.PaymentMethodID)
	rule.GiftMessage = strings.TrimSpace(req.GiftMessage)
	if req.RequiresApproval != nil {
		rule.RequiresApproval = *req.RequiresApproval
	}
	return nil
}

// ValidateRule checks the user-supplied rule fields and returns the normalized criteria.
func ValidateRule(req RuleRequest, maxBudget decimal.Decimal) (model.SelectionCriteria, error) {
	c := req.Criteria
	if !req.BudgetLimit.IsPositive() {
		return c, validationError("budget_limit must be greater than zero")
	}
	if maxBudget.IsPositive() && req.BudgetLimit.GreaterThan(maxBudget) {
		return c, validationError("budget_limit must not exceed %s", maxBudget.StringFixed(2))
	}
	if strings.TrimSpace(req.PaymentMethodID) == "" {
		return c, validationError("payment_method_id is required")
	}

	if c.Source == "" {
		c.Source = model.SourceBoth
	}
	c.Source = model.ProductSource(strings.ToLower(string(c.Source)))
	if !c.Source.Valid() {
		return c, validationError("criteria.source must be one of wishlist, ai, both")
	}
	if c.MinPrice != nil && c.MinPrice.IsNegative() {
		return c, validationError("criteria.min_price must not be negative")
	}
	if c.MaxPrice != nil && c.MaxPrice.IsNegative() {
		return c, validationError("criteria.max_price must not be negative")
	}
	if c.MinPrice != nil && c.MaxPrice != nil && c.MinPrice.GreaterThan(*c.MaxPrice) {
		return c, validationError("criteria.min_price must not exceed criteria.max_price")
	}
	if c.MaxPrice != nil && c.MaxPrice.GreaterThan(req.BudgetLimit) {
		return c, validationError("criteria.max_price must not exceed budget_limit")
	}
	if c.MinPrice != nil && c.MinPrice.GreaterThan(req.BudgetLimit) {
		return c, validationError("criteria.min_price must not exceed budget_limit")
	}
	if c.MaxItems < 0 || c.MaxItems > maxItemsPerGift {
		return c, validationError("criteria.max_items must be between 1 and %d", maxItemsPerGift)
	}
	if c.MaxItems == 0 {
		c.MaxItems = 1
	}
	for _, d := range req.NotificationDays {
		if d < 1 || d > maxNotificationDays {
			return c, validationError("notification_days must be between 1 and %d", maxNotificationDays)
		}
	}
	c.Categories = normalizeList(c.Categories)
	c.ExcludedCategories = normalizeList(c.ExcludedCategories)
	return c, nil
}

func normalizeList(in []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, v := range in {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func toRuleResponse(r model.AutoGiftRule) RuleResponse {
	res := RuleResponse{
		ID:               r.ID.String(),
		EventID:          r.EventID.String(),
		RecipientEmail:   r.RecipientEmail,
		DateType:         string(r.DateType),
		IsActive:         r.IsActive,
		BudgetLimit:      r.BudgetLimit,
		Criteria:         r.Criteria.Data(),
		NotificationDays: []int(r.NotificationDays),
		RequiresApproval: r.RequiresApproval,
		PaymentMethodID:  r.PaymentMethodID,
		GiftMessage:      r.GiftMessage,
		CreatedAt:        r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if r.RecipientUserID != nil {
		id := r.RecipientUserID.String()
		res.RecipientUserID = &id
	}
	if res.NotificationDays == nil {
		res.NotificationDays = []int{}
	}
	return res
}
