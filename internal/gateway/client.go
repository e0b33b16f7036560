// Package gateway holds the traced HTTP plumbing shared by the typed clients of
// external collaborators (payment processor, fulfillment provider, recommender).
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"giftflow/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrAmbiguous means the request may or may not have taken effect: transport failure,
	// timeout or a 5xx answer. Callers must re-query before retrying a side-effecting call.
	ErrAmbiguous = errors.New("gateway outcome unknown")
	ErrNotFound  = errors.New("gateway resource not found")
)

// StatusError is a definitive non-2xx answer.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// StatusCode extracts the HTTP status of a StatusError in err's chain, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// Client is a traced JSON-over-HTTP client for one collaborator.
type Client struct {
	Name       string
	BaseURL    string
	APIKey     string
	Tracer     trace.Tracer
	HTTPClient *http.Client
}

func NewClient(name, baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		Name:    name,
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Tracer:  otel.Tracer("giftflow/gateway/" + name),
		HTTPClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
	}
}

// Request describes one call.
type Request struct {
	Operation      string
	Method         string
	Path           string
	Body           interface{}
	IdempotencyKey string
}

// Do sends the request and decodes a JSON answer into out (if non-nil).
func (c *Client) Do(ctx context.Context, req Request, out interface{}) (err error) {
	ctx, span := c.Tracer.Start(ctx, c.Name+"."+req.Operation, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		result := "ok"
		switch {
		case err == nil:
		case errors.Is(err, ErrAmbiguous):
			result = "ambiguous"
		default:
			result = "error"
		}
		metrics.GatewayCalls.WithLabelValues(c.Name, req.Operation, result).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	url := c.BaseURL + req.Path
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}
	span.SetAttributes(
		attribute.String("http.url", url),
		attribute.String("http.method", req.Method),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrAmbiguous, req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrAmbiguous, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, req.Path)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrAmbiguous, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)})
	case resp.StatusCode >= 300:
		return &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", req.Operation, err)
	}
	return nil
}
