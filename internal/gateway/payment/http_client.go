package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"giftflow/internal/gateway"

	"github.com/shopspring/decimal"
)

// HTTPClient talks to the processor's REST API.
type HTTPClient struct {
	client *gateway.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: gateway.NewClient("payment", baseURL, apiKey, timeout)}
}

func (c *HTTPClient) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	var out Authorization
	err := c.client.Do(ctx, gateway.Request{
		Operation:      "authorize",
		Method:         http.MethodPost,
		Path:           "/v1/authorizations",
		Body:           req,
		IdempotencyKey: req.IdempotencyKey,
	}, &out)
	if err != nil {
		return nil, classify(err)
	}
	return &out, nil
}

func (c *HTTPClient) FindAuthorization(ctx context.Context, idempotencyKey string) (*Authorization, error) {
	var out struct {
		Data []Authorization `json:"data"`
	}
	err := c.client.Do(ctx, gateway.Request{
		Operation: "find_authorization",
		Method:    http.MethodGet,
		Path:      "/v1/authorizations?idempotency_key=" + url.QueryEscape(idempotencyKey),
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("%w: authorization %s", gateway.ErrNotFound, idempotencyKey)
	}
	return &out.Data[0], nil
}

func (c *HTTPClient) GetAuthorization(ctx context.Context, authorizationID string) (*Authorization, error) {
	var out Authorization
	err := c.client.Do(ctx, gateway.Request{
		Operation: "get_authorization",
		Method:    http.MethodGet,
		Path:      "/v1/authorizations/" + url.PathEscape(authorizationID),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Capture(ctx context.Context, authorizationID string, amount decimal.Decimal, idempotencyKey string) (*Capture, error) {
	var out Capture
	err := c.client.Do(ctx, gateway.Request{
		Operation:      "capture",
		Method:         http.MethodPost,
		Path:           "/v1/authorizations/" + url.PathEscape(authorizationID) + "/capture",
		Body:           map[string]interface{}{"amount": amount},
		IdempotencyKey: idempotencyKey,
	}, &out)
	if err != nil {
		return nil, classify(err)
	}
	return &out, nil
}

func (c *HTTPClient) Void(ctx context.Context, authorizationID, idempotencyKey string) error {
	return classify(c.client.Do(ctx, gateway.Request{
		Operation:      "void",
		Method:         http.MethodPost,
		Path:           "/v1/authorizations/" + url.PathEscape(authorizationID) + "/void",
		IdempotencyKey: idempotencyKey,
	}, nil))
}

func (c *HTTPClient) Refund(ctx context.Context, captureID string, amount decimal.Decimal, idempotencyKey string) error {
	return classify(c.client.Do(ctx, gateway.Request{
		Operation:      "refund",
		Method:         http.MethodPost,
		Path:           "/v1/refunds",
		Body:           map[string]interface{}{"capture_id": captureID, "amount": amount},
		IdempotencyKey: idempotencyKey,
	}, nil))
}

// classify maps definitive processor answers onto the package errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch gateway.StatusCode(err) {
	case http.StatusPaymentRequired, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %v", ErrDeclined, err)
	case http.StatusGone:
		return fmt.Errorf("%w: %v", ErrAuthorizationExpired, err)
	}
	return err
}
