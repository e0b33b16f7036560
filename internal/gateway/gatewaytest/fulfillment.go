package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"giftflow/internal/gateway"
	"giftflow/internal/gateway/fulfillment"

	"github.com/shopspring/decimal"
)

// Fulfillment is an in-memory catalog, order submitter and balance source.
type Fulfillment struct {
	mu sync.Mutex

	Products   map[string]fulfillment.Product
	Balance    decimal.Decimal
	BalanceErr error

	ProductErr         error
	SubmitErr          error
	SubmitLostResponse bool

	ProductCalls int
	SubmitCalls  int
	orders       map[string]*fulfillment.SubmittedOrder
	seq          int
}

func NewFulfillment(products ...fulfillment.Product) *Fulfillment {
	f := &Fulfillment{
		Products: map[string]fulfillment.Product{},
		orders:   map[string]*fulfillment.SubmittedOrder{},
	}
	for _, p := range products {
		f.Products[p.ID] = p
	}
	return f
}

func (f *Fulfillment) GetProduct(ctx context.Context, productID string) (*fulfillment.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ProductCalls++
	if f.ProductErr != nil {
		return nil, f.ProductErr
	}
	p, ok := f.Products[productID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return &p, nil
}

func (f *Fulfillment) Search(ctx context.Context, query fulfillment.SearchQuery) ([]fulfillment.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fulfillment.Product
	for _, p := range f.Products {
		out = append(out, p)
	}
	return out, nil
}

func (f *Fulfillment) SubmitOrder(ctx context.Context, req fulfillment.SubmitOrderRequest) (*fulfillment.SubmittedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SubmitCalls++

	if o, ok := f.orders[req.Reference]; ok {
		out := *o
		return &out, nil
	}
	if f.SubmitErr != nil && !f.SubmitLostResponse {
		return nil, f.SubmitErr
	}
	f.seq++
	o := &fulfillment.SubmittedOrder{VendorOrderID: fmt.Sprintf("vendor_%d", f.seq), Reference: req.Reference, Status: "accepted"}
	f.orders[req.Reference] = o
	if f.SubmitLostResponse {
		return nil, fmt.Errorf("%w: gateway timeout", gateway.ErrAmbiguous)
	}
	out := *o
	return &out, nil
}

func (f *Fulfillment) FindOrderByReference(ctx context.Context, reference string) (*fulfillment.SubmittedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[reference]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	out := *o
	return &out, nil
}

func (f *Fulfillment) AccountBalance(ctx context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Balance, f.BalanceErr
}

// Orders returns how many distinct orders the provider accepted.
func (f *Fulfillment) Orders() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}
