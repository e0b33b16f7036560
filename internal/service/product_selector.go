package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"giftflow/internal/gateway"
	"giftflow/internal/gateway/fulfillment"
	"giftflow/internal/gateway/recommender"
	"giftflow/internal/logger"
	"giftflow/internal/model"
	"giftflow/internal/notify"
	"giftflow/internal/repository"
	"giftflow/internal/scheduler"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	JobSelectProducts = "select-products"

	lookupAttempts      = 3
	recommendationLimit = 10
)

var errNoShippingAddress = errors.New("no complete shipping address on the occasion")

// ProductSelector picks products for pending_selection executions and hands them to
// approval or straight to payment.
type ProductSelector struct {
	stage
	wishlists   repository.WishlistRepository
	users       repository.UserRepository
	catalog     fulfillment.Catalog
	recommender recommender.Recommender
	approvals   *ApprovalGateway
	notes       notifier
	retryDelay  time.Duration
}

func NewProductSelector(
	tx repository.TransactionManager,
	executions repository.ExecutionRepository,
	wishlists repository.WishlistRepository,
	users repository.UserRepository,
	audit repository.AuditRepository,
	catalog fulfillment.Catalog,
	rec recommender.Recommender,
	approvals *ApprovalGateway,
	notifications notify.Notifier,
	log *logrus.Logger,
	opts StageOptions,
) *ProductSelector {
	s := &ProductSelector{
		stage:       newStage(tx, executions, audit, log),
		wishlists:   wishlists,
		users:       users,
		catalog:     catalog,
		recommender: rec,
		approvals:   approvals,
		notes:       notifier{target: notifications, logger: log, now: utcNow},
		retryDelay:  200 * time.Millisecond,
	}
	s.apply(opts)
	return s
}

func (s *ProductSelector) Name() string { return JobSelectProducts }

func (s *ProductSelector) Run(ctx context.Context, now time.Time) (scheduler.Result, error) {
	var result scheduler.Result
	execs, err := s.executions.ListClaimable(ctx, model.ExecPendingSelection, nil, now, s.batchSize)
	if err != nil {
		return result, fmt.Errorf("listing pending selections: %w", err)
	}

	for i := range execs {
		exec := &execs[i]
		if !s.claim(ctx, exec, now) {
			result.Skipped++
			continue
		}
		result.Processed++
		switch err := s.selectFor(ctx, exec, now); {
		case errors.Is(err, errRetryLater):
			result.Skipped++
		case err != nil:
			result.Failed++
			logger.LogError(s.logger, "product_selector", "Run", "select products", exec.ID.String(), err)
			s.release(ctx, exec)
		default:
			result.Succeeded++
		}
	}
	return result, nil
}

// errRetryLater marks an execution left in place for the next run.
var errRetryLater = errors.New("retry on next run")

func (s *ProductSelector) selectFor(ctx context.Context, exec *model.AutoGiftExecution, now time.Time) error {
	rule := exec.Rule
	if rule == nil || rule.Event == nil {
		return s.fail(ctx, exec, "rule or occasion no longer exists")
	}
	address := rule.Event.ShippingAddress.Data()
	if !address.Complete() {
		return s.fail(ctx, exec, errNoShippingAddress.Error())
	}

	candidates, err := s.candidates(ctx, rule)
	if err != nil {
		// Sources are unavailable; keep trying until the occasion itself arrives.
		if model.DateOf(now).Before(exec.ExecutionDate) {
			s.logger.WithFields(logrus.Fields{"execution_id": exec.ID, "error": err.Error()}).
				Warn("product sources unavailable, retrying next run")
			s.release(ctx, exec)
			return errRetryLater
		}
		return s.fail(ctx, exec, "product sources unavailable: "+err.Error())
	}

	chosen := pickProducts(candidates, rule.Criteria.Data(), rule.BudgetLimit)
	if len(chosen) == 0 {
		return s.fail(ctx, exec, "no product matched the rule within budget")
	}

	picked := make([]model.SelectedProduct, 0, len(chosen))
	for _, c := range chosen {
		picked = append(picked, c.product)
	}
	total := model.SumPrices(picked)
	updates := map[string]interface{}{
		"selected_products": datatypes.NewJSONSlice(picked),
		"total_amount":      total,
	}
	if attr := attributionOf(chosen); attr != nil {
		updates["ai_attribution"] = datatypes.NewJSONType(*attr)
	}

	to := model.ExecApproved
	if rule.RequiresApproval {
		to = model.ExecPendingApproval
	}

	var token string
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.transitions().move(txCtx, exec, to, updates); err != nil {
			return err
		}
		exec.SelectedProducts = picked
		exec.TotalAmount = total
		if to != model.ExecPendingApproval {
			return nil
		}
		var err error
		token, err = s.approvals.MintToken(txCtx, exec, now)
		return err
	})
	if err != nil {
		return err
	}

	if token != "" {
		s.approvals.NotifyApprovalRequested(ctx, exec, token)
	}
	return nil
}

func (s *ProductSelector) fail(ctx context.Context, exec *model.AutoGiftExecution, reason string) error {
	err := s.transitions().move(ctx, exec, model.ExecSelectionFailed, map[string]interface{}{"failure_reason": reason})
	if err != nil {
		return err
	}
	s.notes.send(ctx, notify.KindSelectionFailed, exec, "We couldn't pick a gift", reason, nil)
	return nil
}

type candidate struct {
	product  model.SelectedProduct
	priority int
	agent    string
}

// candidates gathers products from the rule's sources; wishlist entries win over AI
// suggestions of the same product.
func (s *ProductSelector) candidates(ctx context.Context, rule *model.AutoGiftRule) ([]candidate, error) {
	criteria := rule.Criteria.Data()
	var out []candidate
	seen := map[string]bool{}

	if criteria.Source.UsesWishlist() {
		items, err := s.wishlistFor(ctx, rule)
		if err != nil {
			return nil, err
		}
		for _, c := range items {
			if !seen[c.product.ProductID] {
				seen[c.product.ProductID] = true
				out = append(out, c)
			}
		}
	}

	if criteria.Source.UsesAI() && s.recommender != nil {
		req := recommender.Request{
			UserID:     rule.UserID.String(),
			Occasion:   string(rule.DateType),
			Budget:     rule.BudgetLimit,
			Categories: criteria.Categories,
			Limit:      recommendationLimit,
		}
		if rule.RecipientUserID != nil {
			req.RecipientUserID = rule.RecipientUserID.String()
		}
		if rule.Event != nil {
			req.RecipientName = rule.Event.RecipientName
		}
		recs, err := s.recommender.Recommend(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("recommender: %w", err)
		}
		for _, r := range recs {
			if seen[r.ProductID] {
				continue
			}
			seen[r.ProductID] = true
			method := r.DiscoveryMethod
			if method == "" {
				method = model.DiscoveryRecommendation
			}
			out = append(out, candidate{product: model.SelectedProduct{
				ProductID:       r.ProductID,
				Title:           r.Title,
				Category:        r.Category,
				Price:           r.Price,
				ImageURL:        r.ImageURL,
				DiscoveryMethod: method,
				Confidence:      r.Confidence,
			}, priority: -1, agent: r.AgentName})
		}
	}
	return out, nil
}

// wishlistFor refreshes the recipient's wishlist through the catalog. Unknown or
// unavailable products are dropped.
func (s *ProductSelector) wishlistFor(ctx context.Context, rule *model.AutoGiftRule) ([]candidate, error) {
	recipient := rule.RecipientUserID
	if recipient == nil && rule.RecipientEmail != "" {
		if user, err := s.users.FindByEmail(ctx, rule.RecipientEmail); err == nil {
			recipient = &user.ID
		}
	}
	if recipient == nil {
		return nil, nil
	}
	items, err := s.wishlists.ListByUser(ctx, *recipient)
	if err != nil {
		return nil, err
	}

	var out []candidate
	for _, item := range items {
		product, err := s.lookup(ctx, item.ProductID)
		if errors.Is(err, gateway.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		if !product.Available {
			continue
		}
		out = append(out, candidate{product: model.SelectedProduct{
			ProductID:       product.ID,
			Title:           product.Title,
			Category:        product.Category,
			Price:           product.Price,
			ImageURL:        product.ImageURL,
			DiscoveryMethod: model.DiscoveryWishlist,
		}, priority: item.Priority})
	}
	return out, nil
}

// lookup retries ambiguous failures; the catalog is read-only.
func (s *ProductSelector) lookup(ctx context.Context, productID string) (*fulfillment.Product, error) {
	var lastErr error
	for attempt := 0; attempt < lookupAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.retryDelay * time.Duration(attempt)):
			}
		}
		product, err := s.catalog.GetProduct(ctx, productID)
		if err == nil {
			return product, nil
		}
		if !errors.Is(err, gateway.ErrAmbiguous) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// pickProducts filters candidates by the criteria, ranks them and greedily fills the budget.
func pickProducts(candidates []candidate, criteria model.SelectionCriteria, budget decimal.Decimal) []candidate {
	categories := toSet(criteria.Categories)
	excludedCategories := toSet(criteria.ExcludedCategories)
	excludedProducts := map[string]bool{}
	for _, id := range criteria.ExcludedProductIDs {
		excludedProducts[id] = true
	}

	var eligible []candidate
	for _, c := range candidates {
		p := c.product
		category := strings.ToLower(p.Category)
		switch {
		case !p.Price.IsPositive():
		case excludedProducts[p.ProductID]:
		case excludedCategories[category]:
		case len(categories) > 0 && !categories[category]:
		case criteria.MinPrice != nil && p.Price.LessThan(*criteria.MinPrice):
		case criteria.MaxPrice != nil && p.Price.GreaterThan(*criteria.MaxPrice):
		case p.Price.GreaterThan(budget):
		default:
			eligible = append(eligible, c)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		aWish := a.product.DiscoveryMethod == model.DiscoveryWishlist
		bWish := b.product.DiscoveryMethod == model.DiscoveryWishlist
		if aWish != bWish {
			return aWish
		}
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		return a.product.Confidence > b.product.Confidence
	})

	maxItems := criteria.MaxItems
	if maxItems <= 0 {
		maxItems = 1
	}
	var picked []candidate
	total := decimal.Zero
	for _, c := range eligible {
		if len(picked) == maxItems {
			break
		}
		if total.Add(c.product.Price).GreaterThan(budget) {
			continue
		}
		total = total.Add(c.product.Price)
		picked = append(picked, c)
	}
	return picked
}

// attributionOf credits the recommender when it supplied any picked product: the first
// AI pick names the agent and the confidence is averaged over the AI picks.
func attributionOf(picked []candidate) *model.AIAttribution {
	var attr *model.AIAttribution
	var sum float64
	var n int
	for _, c := range picked {
		if c.product.DiscoveryMethod == model.DiscoveryWishlist {
			continue
		}
		if attr == nil {
			attr = &model.AIAttribution{AgentName: c.agent, DiscoveryMethod: c.product.DiscoveryMethod}
		}
		sum += c.product.Confidence
		n++
	}
	if attr != nil {
		attr.ConfidenceScore = sum / float64(n)
	}
	return attr
}

func toSet(values []string) map[string]bool {
	out := map[string]bool{}
	for _, v := range values {
		out[strings.ToLower(strings.TrimSpace(v))] = true
	}
	return out
}
