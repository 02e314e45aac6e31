package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmarkos/quant-trader/internal/domain"
)

func envelope(t *testing.T, w http.ResponseWriter, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, json.NewEncoder(w).Encode(ServiceResponse{
		Success: true,
		Data:    raw,
	}))
}

func TestPollOrderNormalizesSide(t *testing.T) {
	tests := []struct {
		name string
		side string
		want domain.Side
	}{
		{"lowercase buy", "buy", domain.SideBuy},
		{"mixed case sell", "Sell", domain.SideSell},
		{"canonical", "BUY", domain.SideBuy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				envelope(t, w, map[string]interface{}{
					"order_id": "ord-1",
					"symbol":   "AAPL",
					"side":     tt.side,
					"state":    "FILLED",
				})
			}))
			defer srv.Close()

			c := NewServiceClient(srv.URL, zerolog.Nop())
			status, err := c.PollOrder(context.Background(), "ord-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, status.Side)
		})
	}
}

func TestPollOrderRejectsUnknownSide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		envelope(t, w, map[string]interface{}{
			"order_id": "ord-1",
			"side":     "SHORT",
			"state":    "PENDING",
		})
	}))
	defer srv.Close()

	c := NewServiceClient(srv.URL, zerolog.Nop())
	_, err := c.PollOrder(context.Background(), "ord-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid side")
}

func TestSubmitOrderReturnsServiceError(t *testing.T) {
	msg := "insufficient buying power"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(ServiceResponse{
			Success: false,
			Error:   &msg,
		}))
	}))
	defer srv.Close()

	c := NewServiceClient(srv.URL, zerolog.Nop())
	_, err := c.SubmitOrder(context.Background(), OrderRequest{
		Symbol: "AAPL",
		Side:   domain.SideBuy,
		Shares: 10,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), msg)
}
