package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

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
	JobExpireApprovals = "expire-approvals"

	tokenBytes           = 32
	approvalExpiredNotes = "approval window elapsed"
)

// --- DTOs ---

type ApproveRequest struct {
	ProductIDs []string `json:"product_ids"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type ApprovalPreview struct {
	Execution     ExecutionResponse `json:"execution"`
	RecipientName string            `json:"recipient_name"`
	Occasion      string            `json:"occasion"`
	ExpiresAt     string            `json:"expires_at"`
	Expired       bool              `json:"expired"`
	Consumed      bool              `json:"consumed"`
}

// --- Interface ---

type ApprovalService interface {
	Preview(ctx context.Context, token string) (ApprovalPreview, error)
	ApproveByToken(ctx context.Context, token string, req ApproveRequest) (ExecutionResponse, error)
	RejectByToken(ctx context.Context, token string, req RejectRequest) (ExecutionResponse, error)
	Approve(ctx context.Context, userID, executionID uuid.UUID, req ApproveRequest) (ExecutionResponse, error)
	Reject(ctx context.Context, userID, executionID uuid.UUID, req RejectRequest) (ExecutionResponse, error)
}

// Authorizer is invoked right after an approval commits so payment does not wait for the next job tick.
type Authorizer interface {
	AuthorizeExecution(ctx context.Context, executionID uuid.UUID, now time.Time) error
}

// ApprovalGateway issues and consumes single-use approval tokens and expires stale ones.
type ApprovalGateway struct {
	stage
	tokens     repository.ApprovalTokenRepository
	notes      notifier
	authorizer Authorizer
	ttl        time.Duration
	baseURL    string
	now        func() time.Time
}

func NewApprovalGateway(
	tx repository.TransactionManager,
	tokens repository.ApprovalTokenRepository,
	executions repository.ExecutionRepository,
	audit repository.AuditRepository,
	notifications notify.Notifier,
	log *logrus.Logger,
	ttl time.Duration,
	baseURL string,
) *ApprovalGateway {
	return &ApprovalGateway{
		stage:   newStage(tx, executions, audit, log),
		tokens:  tokens,
		notes:   notifier{target: notifications, logger: log, now: utcNow},
		ttl:     ttl,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     utcNow,
	}
}

// SetAuthorizer wires the payment stage in after construction.
func (g *ApprovalGateway) SetAuthorizer(a Authorizer) {
	g.authorizer = a
}

// MintToken stores a new token for exec using ctx's transaction and returns the raw value,
// which is never persisted.
func (g *ApprovalGateway) MintToken(ctx context.Context, exec *model.AutoGiftExecution, now time.Time) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating approval token: %w", err)
	}
	raw := hex.EncodeToString(buf)
	token := &model.ApprovalToken{
		UserID:      exec.UserID,
		ExecutionID: exec.ID,
		TokenHash:   hashToken(raw),
		ExpiresAt:   now.Add(g.ttl),
	}
	if err := g.tokens.Create(ctx, token); err != nil {
		return "", err
	}
	return raw, nil
}

// ApprovalLink is the URL sent to the user.
func (g *ApprovalGateway) ApprovalLink(token string) string {
	return g.baseURL + "/" + token
}

// NotifyApprovalRequested sends the approval link; call after the minting transaction commits.
func (g *ApprovalGateway) NotifyApprovalRequested(ctx context.Context, exec *model.AutoGiftExecution, token string) {
	g.notes.send(ctx, notify.KindApprovalRequested, exec,
		"Approve your upcoming auto-gift",
		fmt.Sprintf("We picked %d item(s) totalling %s. Approve or reject before the link expires.",
			len(exec.SelectedProducts), exec.TotalAmount.StringFixed(2)),
		map[string]string{
			"approval_url": g.ApprovalLink(token),
			"expires_in":   g.ttl.String(),
		})
}

func (g *ApprovalGateway) Preview(ctx context.Context, token string) (ApprovalPreview, error) {
	hash, err := parseToken(token)
	if err != nil {
		return ApprovalPreview{}, err
	}
	tok, err := g.tokens.FindByHash(ctx, hash)
	if err != nil {
		return ApprovalPreview{}, mapRepoError("approval link", err)
	}
	exec, err := g.executions.FindByID(ctx, tok.ExecutionID)
	if err != nil {
		return ApprovalPreview{}, mapRepoError("execution", err)
	}

	preview := ApprovalPreview{
		Execution: toExecutionResponse(*exec),
		ExpiresAt: tok.ExpiresAt.Format(time.RFC3339),
		Expired:   tok.ExpiredAt(g.now()),
		Consumed:  tok.Consumed(),
	}
	if exec.Rule != nil && exec.Rule.Event != nil {
		preview.RecipientName = exec.Rule.Event.RecipientName
		preview.Occasion = string(exec.Rule.Event.DateType)
	}
	return preview, nil
}

func (g *ApprovalGateway) ApproveByToken(ctx context.Context, token string, req ApproveRequest) (ExecutionResponse, error) {
	hash, err := parseToken(token)
	if err != nil {
		return ExecutionResponse{}, err
	}
	return g.decide(ctx, g.byHash(hash), decision{approve: true, productIDs: req.ProductIDs, channel: model.ChannelEmailLink})
}

func (g *ApprovalGateway) RejectByToken(ctx context.Context, token string, req RejectRequest) (ExecutionResponse, error) {
	hash, err := parseToken(token)
	if err != nil {
		return ExecutionResponse{}, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return ExecutionResponse{}, validationError("a rejection reason is required")
	}
	return g.decide(ctx, g.byHash(hash), decision{reason: reason, channel: model.ChannelEmailLink})
}

func (g *ApprovalGateway) Approve(ctx context.Context, userID, executionID uuid.UUID, req ApproveRequest) (ExecutionResponse, error) {
	return g.decide(ctx, g.byExecution(userID, executionID),
		decision{approve: true, productIDs: req.ProductIDs, channel: model.ChannelInApp, actor: &userID})
}

func (g *ApprovalGateway) Reject(ctx context.Context, userID, executionID uuid.UUID, req RejectRequest) (ExecutionResponse, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return ExecutionResponse{}, validationError("a rejection reason is required")
	}
	return g.decide(ctx, g.byExecution(userID, executionID),
		decision{reason: reason, channel: model.ChannelInApp, actor: &userID})
}

type decision struct {
	approve    bool
	productIDs []string
	reason     string
	channel    model.ApprovalChannel
	actor      *uuid.UUID
}

type tokenFinder func(ctx context.Context) (*model.ApprovalToken, error)

func (g *ApprovalGateway) byHash(hash string) tokenFinder {
	return func(ctx context.Context) (*model.ApprovalToken, error) {
		tok, err := g.tokens.FindByHash(ctx, hash)
		if err != nil {
			return nil, mapRepoError("approval link", err)
		}
		return tok, nil
	}
}

func (g *ApprovalGateway) byExecution(userID, executionID uuid.UUID) tokenFinder {
	return func(ctx context.Context) (*model.ApprovalToken, error) {
		if _, err := g.executions.FindForUser(ctx, userID, executionID); err != nil {
			return nil, mapRepoError("execution", err)
		}
		tok, err := g.tokens.FindLatestByExecution(ctx, executionID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, conflictError("execution is not awaiting approval")
		}
		return tok, err
	}
}

// decide consumes the token exactly once. An expired token moves the execution to expired,
// commits that, and reports ErrTokenExpired.
func (g *ApprovalGateway) decide(ctx context.Context, find tokenFinder, d decision) (ExecutionResponse, error) {
	now := g.now()
	var exec *model.AutoGiftExecution
	var expired bool

	err := g.tx.RunInTx(ctx, func(txCtx context.Context) error {
		tok, err := find(txCtx)
		if err != nil {
			return err
		}
		if tok.Consumed() {
			return ErrTokenConsumed
		}
		exec, err = g.executions.FindByID(txCtx, tok.ExecutionID)
		if err != nil {
			return mapRepoError("execution", err)
		}

		if tok.ExpiredAt(now) {
			expired = true
			if exec.Status != model.ExecPendingApproval {
				return nil
			}
			err := g.transitions().move(txCtx, exec, model.ExecExpired, map[string]interface{}{"failure_reason": approvalExpiredNotes})
			if errors.Is(err, repository.ErrStaleState) {
				return nil
			}
			return err
		}
		if exec.Status != model.ExecPendingApproval {
			return conflictError("execution is %s", exec.Status)
		}

		tokenUpdates := map[string]interface{}{"approval_channel": d.channel}
		execUpdates := map[string]interface{}{}
		to := model.ExecApproved
		action := model.ActionApproveExecution
		if d.approve {
			products, err := narrowSelection(exec.SelectedProducts, d.productIDs)
			if err != nil {
				return err
			}
			tokenUpdates["approved_at"] = now
			execUpdates["selected_products"] = datatypes.NewJSONSlice(products)
			execUpdates["total_amount"] = model.SumPrices(products)
			exec.SelectedProducts = products
			exec.TotalAmount = model.SumPrices(products)
		} else {
			tokenUpdates["rejected_at"] = now
			tokenUpdates["rejection_reason"] = d.reason
			execUpdates["failure_reason"] = "rejected: " + d.reason
			exec.FailureReason = "rejected: " + d.reason
			to = model.ExecRejected
			action = model.ActionRejectExecution
		}

		if err := g.tokens.Consume(txCtx, tok.ID, tokenUpdates); err != nil {
			if errors.Is(err, repository.ErrStaleState) {
				return ErrTokenConsumed
			}
			return err
		}
		if err := g.transitions().move(txCtx, exec, to, execUpdates); err != nil {
			return mapRepoError("execution", err)
		}

		actor := d.actor
		if actor == nil {
			actor = &exec.UserID
		}
		return g.audit.Record(txCtx, actor, action, exec.ID.String(), "auto_gift_execution",
			map[string]interface{}{"channel": d.channel, "total_amount": exec.TotalAmount, "reason": d.reason})
	})
	if err != nil {
		return ExecutionResponse{}, err
	}

	if expired {
		if exec.Status == model.ExecExpired {
			g.notifyExpired(ctx, exec)
		}
		return ExecutionResponse{}, ErrTokenExpired
	}

	if exec.Status == model.ExecApproved && g.authorizer != nil {
		if err := g.authorizer.AuthorizeExecution(ctx, exec.ID, now); err != nil {
			logger.LogError(g.logger, "approval_gateway", "decide", "authorize after approval", exec.ID.String(), err)
		}
		if fresh, err := g.executions.FindByID(ctx, exec.ID); err == nil {
			exec = fresh
		}
	}
	return toExecutionResponse(*exec), nil
}

func (g *ApprovalGateway) Name() string { return JobExpireApprovals }

// Run expires executions whose approval token lapsed without a decision.
func (g *ApprovalGateway) Run(ctx context.Context, now time.Time) (scheduler.Result, error) {
	var result scheduler.Result
	tokens, err := g.tokens.ListExpiredPending(ctx, now, g.batchSize)
	if err != nil {
		return result, fmt.Errorf("listing expired approvals: %w", err)
	}

	for _, tok := range tokens {
		result.Processed++
		var exec *model.AutoGiftExecution
		err := g.tx.RunInTx(ctx, func(txCtx context.Context) error {
			var err error
			exec, err = g.executions.FindByID(txCtx, tok.ExecutionID)
			if err != nil {
				return err
			}
			return g.transitions().move(txCtx, exec, model.ExecExpired, map[string]interface{}{"failure_reason": approvalExpiredNotes})
		})
		if errors.Is(err, repository.ErrStaleState) {
			result.Skipped++
			continue
		}
		if err != nil {
			result.Failed++
			logger.LogError(g.logger, "approval_gateway", "Run", "expire execution", tok.ExecutionID.String(), err)
			continue
		}
		result.Succeeded++
		g.notifyExpired(ctx, exec)
	}
	return result, nil
}

func (g *ApprovalGateway) notifyExpired(ctx context.Context, exec *model.AutoGiftExecution) {
	g.notes.send(ctx, notify.KindApprovalExpired, exec,
		"Your auto-gift approval expired",
		"No decision was made in time, so nothing was purchased.", nil)
}

// narrowSelection keeps the chosen subset in its original order; no ids keeps everything.
func narrowSelection(selected []model.SelectedProduct, ids []string) ([]model.SelectedProduct, error) {
	if len(ids) == 0 {
		if len(selected) == 0 {
			return nil, conflictError("execution has no selected products")
		}
		return selected, nil
	}
	want := map[string]bool{}
	for _, id := range ids {
		want[strings.TrimSpace(id)] = true
	}
	var out []model.SelectedProduct
	for _, p := range selected {
		if want[p.ProductID] {
			out = append(out, p)
			delete(want, p.ProductID)
		}
	}
	if len(want) > 0 {
		return nil, validationError("product_ids must be a subset of the selected products")
	}
	if len(out) == 0 {
		return nil, validationError("at least one product must stay selected")
	}
	return out, nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// parseToken rejects malformed tokens before they reach the database.
func parseToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) != tokenBytes*2 {
		return "", fmt.Errorf("%w: approval link", ErrNotFound)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("%w: approval link", ErrNotFound)
	}
	return hashToken(strings.ToLower(raw)), nil
}
