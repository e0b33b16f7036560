package gatewaytest

import (
	"context"

	"giftflow/internal/gateway/recommender"
)

// Recommender returns a fixed list of recommendations.
type Recommender struct {
	Recommendations []recommender.Recommendation
	Err             error
	Requests        []recommender.Request
}

func (r *Recommender) Recommend(ctx context.Context, req recommender.Request) ([]recommender.Recommendation, error) {
	r.Requests = append(r.Requests, req)
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Recommendations, nil
}
