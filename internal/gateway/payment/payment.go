// Package payment is the typed client of the card payment processor.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrDeclined             = errors.New("payment declined")
	ErrAuthorizationExpired = errors.New("payment authorization expired")
)

// Authorization statuses reported by the processor
const (
	StatusAuthorized = "authorized"
	StatusCaptured   = "captured"
	StatusVoided     = "voided"
	StatusExpired    = "expired"
)

type AuthorizeRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	CustomerID      string          `json:"customer_id"`
	PaymentMethodID string          `json:"payment_method_id"`
	Description     string          `json:"description,omitempty"`
	IdempotencyKey  string          `json:"-"`
}

type Authorization struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key"`
	ExpiresAt      time.Time       `json:"expires_at"`
	CaptureID      string          `json:"capture_id,omitempty"`
}

type Capture struct {
	ID              string          `json:"id"`
	AuthorizationID string          `json:"authorization_id"`
	Amount          decimal.Decimal `json:"amount"`
}

// Processor is the payment capability used by the Payment Capture Stage.
// Side-effecting calls carry an idempotency key; ambiguous failures wrap gateway.ErrAmbiguous
// and unknown lookups wrap gateway.ErrNotFound.
type Processor interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error)
	FindAuthorization(ctx context.Context, idempotencyKey string) (*Authorization, error)
	GetAuthorization(ctx context.Context, authorizationID string) (*Authorization, error)
	Capture(ctx context.Context, authorizationID string, amount decimal.Decimal, idempotencyKey string) (*Capture, error)
	Void(ctx context.Context, authorizationID, idempotencyKey string) error
	Refund(ctx context.Context, captureID string, amount decimal.Decimal, idempotencyKey string) error
}
