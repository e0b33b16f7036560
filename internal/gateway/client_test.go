package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientClassifiesResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"id":"auth_1"}`))
		case "/declined":
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"error":"card_declined"}`))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	c := NewClient("test", srv.URL, "secret", time.Second)
	ctx := context.Background()

	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, c.Do(ctx, Request{Operation: "ok", Method: http.MethodPost, Path: "/ok", Body: map[string]string{"a": "b"}, IdempotencyKey: "key-1"}, &out))
	assert.Equal(t, "auth_1", out.ID)

	err := c.Do(ctx, Request{Operation: "declined", Method: http.MethodPost, Path: "/declined"}, nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrAmbiguous))
	assert.Equal(t, http.StatusPaymentRequired, StatusCode(err))

	err = c.Do(ctx, Request{Operation: "missing", Method: http.MethodGet, Path: "/missing"}, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	err = c.Do(ctx, Request{Operation: "flaky", Method: http.MethodGet, Path: "/flaky"}, nil)
	assert.ErrorIs(t, err, ErrAmbiguous)
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))
}

func TestClientTransportFailureIsAmbiguous(t *testing.T) {
	c := NewClient("test", "http://127.0.0.1:1", "", 200*time.Millisecond)
	err := c.Do(context.Background(), Request{Operation: "down", Method: http.MethodGet, Path: "/"}, nil)
	assert.ErrorIs(t, err, ErrAmbiguous)
}
