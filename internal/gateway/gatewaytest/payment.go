// Package gatewaytest provides in-memory collaborators for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"giftflow/internal/gateway"
	"giftflow/internal/gateway/payment"

	"github.com/shopspring/decimal"
)

// Processor is an in-memory payment.Processor.
//
// AuthorizeErr/CaptureErr make the next calls fail. With the matching *LostResponse flag set the
// operation still takes effect and the caller receives gateway.ErrAmbiguous instead of the result.
type Processor struct {
	mu sync.Mutex

	Now     func() time.Time
	AuthTTL time.Duration

	AuthorizeErr          error
	AuthorizeLostResponse bool
	CaptureErr            error
	CaptureLostResponse   bool

	AuthorizeCalls int
	CaptureCalls   int
	Voided         []string
	Refunded       []string

	auths    map[string]*payment.Authorization
	byKey    map[string]string
	captures map[string]*payment.Capture
	seq      int
}

func NewProcessor() *Processor {
	return &Processor{
		Now:      func() time.Time { return time.Now().UTC() },
		AuthTTL:  7 * 24 * time.Hour,
		auths:    map[string]*payment.Authorization{},
		byKey:    map[string]string{},
		captures: map[string]*payment.Capture{},
	}
}

func (p *Processor) Authorize(ctx context.Context, req payment.AuthorizeRequest) (*payment.Authorization, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AuthorizeCalls++

	if id, ok := p.byKey[req.IdempotencyKey]; ok {
		auth := *p.auths[id]
		return &auth, nil
	}
	if p.AuthorizeErr != nil && !p.AuthorizeLostResponse {
		return nil, p.AuthorizeErr
	}

	p.seq++
	auth := &payment.Authorization{
		ID:             fmt.Sprintf("auth_%d", p.seq),
		Status:         payment.StatusAuthorized,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
		ExpiresAt:      p.Now().Add(p.AuthTTL),
	}
	p.auths[auth.ID] = auth
	p.byKey[req.IdempotencyKey] = auth.ID

	if p.AuthorizeLostResponse {
		return nil, fmt.Errorf("%w: connection reset", gateway.ErrAmbiguous)
	}
	out := *auth
	return &out, nil
}

func (p *Processor) FindAuthorization(ctx context.Context, idempotencyKey string) (*payment.Authorization, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byKey[idempotencyKey]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	auth := *p.auths[id]
	return &auth, nil
}

func (p *Processor) GetAuthorization(ctx context.Context, authorizationID string) (*payment.Authorization, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	auth, ok := p.auths[authorizationID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	out := *auth
	return &out, nil
}

func (p *Processor) Capture(ctx context.Context, authorizationID string, amount decimal.Decimal, idempotencyKey string) (*payment.Capture, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CaptureCalls++

	if c, ok := p.captures[idempotencyKey]; ok {
		out := *c
		return &out, nil
	}
	auth, ok := p.auths[authorizationID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	if !p.Now().Before(auth.ExpiresAt) || auth.Status == payment.StatusExpired {
		auth.Status = payment.StatusExpired
		return nil, payment.ErrAuthorizationExpired
	}
	if p.CaptureErr != nil && !p.CaptureLostResponse {
		return nil, p.CaptureErr
	}

	p.seq++
	c := &payment.Capture{ID: fmt.Sprintf("cap_%d", p.seq), AuthorizationID: authorizationID, Amount: amount}
	p.captures[idempotencyKey] = c
	auth.Status = payment.StatusCaptured
	auth.CaptureID = c.ID

	if p.CaptureLostResponse {
		return nil, fmt.Errorf("%w: timeout", gateway.ErrAmbiguous)
	}
	out := *c
	return &out, nil
}

func (p *Processor) Void(ctx context.Context, authorizationID, idempotencyKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if auth, ok := p.auths[authorizationID]; ok {
		auth.Status = payment.StatusVoided
	}
	p.Voided = append(p.Voided, authorizationID)
	return nil
}

func (p *Processor) Refund(ctx context.Context, captureID string, amount decimal.Decimal, idempotencyKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Refunded = append(p.Refunded, captureID)
	return nil
}

// Expire forces an authorization past its expiry.
func (p *Processor) Expire(authorizationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if auth, ok := p.auths[authorizationID]; ok {
		auth.ExpiresAt = p.Now().Add(-time.Minute)
	}
}
