// Package recommender is the typed client of the AI gift recommendation service.
package recommender

import (
	"context"
	"net/http"
	"time"

	"giftflow/internal/gateway"

	"github.com/shopspring/decimal"
)

type Request struct {
	UserID          string          `json:"user_id"`
	RecipientUserID string          `json:"recipient_user_id,omitempty"`
	RecipientName   string          `json:"recipient_name,omitempty"`
	Occasion        string          `json:"occasion"`
	Budget          decimal.Decimal `json:"budget"`
	Categories      []string        `json:"categories,omitempty"`
	Limit           int             `json:"limit"`
}

type Recommendation struct {
	ProductID       string          `json:"product_id"`
	Title           string          `json:"title"`
	Category        string          `json:"category"`
	Price           decimal.Decimal `json:"price"`
	ImageURL        string          `json:"image_url,omitempty"`
	Confidence      float64         `json:"confidence"`
	AgentName       string          `json:"agent_name"`
	DiscoveryMethod string          `json:"discovery_method"`
}

// Recommender suggests products for a recipient and occasion. It has no side effects.
type Recommender interface {
	Recommend(ctx context.Context, req Request) ([]Recommendation, error)
}

type HTTPClient struct {
	client *gateway.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: gateway.NewClient("recommender", baseURL, apiKey, timeout)}
}

func (c *HTTPClient) Recommend(ctx context.Context, req Request) ([]Recommendation, error) {
	var out struct {
		Recommendations []Recommendation `json:"recommendations"`
	}
	err := c.client.Do(ctx, gateway.Request{
		Operation: "recommend",
		Method:    http.MethodPost,
		Path:      "/v1/recommendations",
		Body:      req,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Recommendations, nil
}
