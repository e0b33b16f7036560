// Package fulfillment is the typed client of the external product catalog and order fulfillment provider.
package fulfillment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrRejected is a definitive refusal of an order by the provider.
var ErrRejected = errors.New("order rejected by fulfillment provider")

type Product struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	ImageURL  string          `json:"image_url,omitempty"`
	Available bool            `json:"available"`
}

type SearchQuery struct {
	Keywords   string           `json:"keywords,omitempty"`
	Categories []string         `json:"categories,omitempty"`
	MinPrice   *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice   *decimal.Decimal `json:"max_price,omitempty"`
	Limit      int              `json:"limit,omitempty"`
}

type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type OrderItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type SubmitOrderRequest struct {
	Reference       string      `json:"reference"`
	Items           []OrderItem `json:"items"`
	ShippingAddress Address     `json:"shipping_address"`
	GiftMessage     string      `json:"gift_message,omitempty"`
	DeliveryDate    string      `json:"delivery_date"`
}

type SubmittedOrder struct {
	VendorOrderID string `json:"vendor_order_id"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
}

// Catalog offers read-only product lookups, safe to retry.
type Catalog interface {
	GetProduct(ctx context.Context, productID string) (*Product, error)
	Search(ctx context.Context, query SearchQuery) ([]Product, error)
}

// OrderSubmitter places orders. SubmitOrder is side-effecting: after an ambiguous failure
// the caller must FindOrderByReference before trying again.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, req SubmitOrderRequest) (*SubmittedOrder, error)
	FindOrderByReference(ctx context.Context, reference string) (*SubmittedOrder, error)
}

// BalanceSource reports the fulfillment account balance available to pay for orders.
type BalanceSource interface {
	AccountBalance(ctx context.Context) (decimal.Decimal, error)
}
