package fulfillment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"giftflow/internal/gateway"

	"github.com/shopspring/decimal"
)

// HTTPClient implements Catalog, OrderSubmitter and BalanceSource over the provider's REST API.
type HTTPClient struct {
	client *gateway.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: gateway.NewClient("fulfillment", baseURL, apiKey, timeout)}
}

func (c *HTTPClient) GetProduct(ctx context.Context, productID string) (*Product, error) {
	var out Product
	err := c.client.Do(ctx, gateway.Request{
		Operation: "get_product",
		Method:    http.MethodGet,
		Path:      "/v1/products/" + url.PathEscape(productID),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Search(ctx context.Context, query SearchQuery) ([]Product, error) {
	var out struct {
		Data []Product `json:"data"`
	}
	err := c.client.Do(ctx, gateway.Request{
		Operation: "search_products",
		Method:    http.MethodPost,
		Path:      "/v1/products/search",
		Body:      query,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *HTTPClient) SubmitOrder(ctx context.Context, req SubmitOrderRequest) (*SubmittedOrder, error) {
	var out SubmittedOrder
	err := c.client.Do(ctx, gateway.Request{
		Operation:      "submit_order",
		Method:         http.MethodPost,
		Path:           "/v1/orders",
		Body:           req,
		IdempotencyKey: "order:" + req.Reference,
	}, &out)
	if err != nil {
		if code := gateway.StatusCode(err); code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %v", ErrRejected, err)
		}
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) FindOrderByReference(ctx context.Context, reference string) (*SubmittedOrder, error) {
	var out SubmittedOrder
	err := c.client.Do(ctx, gateway.Request{
		Operation: "find_order",
		Method:    http.MethodGet,
		Path:      "/v1/orders/by-reference/" + url.PathEscape(reference),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) AccountBalance(ctx context.Context) (decimal.Decimal, error) {
	var out struct {
		Available decimal.Decimal `json:"available"`
	}
	err := c.client.Do(ctx, gateway.Request{
		Operation: "account_balance",
		Method:    http.MethodGet,
		Path:      "/v1/account/balance",
	}, &out)
	if err != nil {
		return decimal.Zero, err
	}
	return out.Available, nil
}
