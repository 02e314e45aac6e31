package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tmarkos/quant-trader/internal/domain"
)

// ServiceClient talks to a broker microservice over HTTP
type ServiceClient struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// ServiceResponse is the standard response envelope
type ServiceResponse struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *string         `json:"error"`
	Timestamp string          `json:"timestamp"`
}

// NewServiceClient creates a broker microservice client
func NewServiceClient(baseURL string, log zerolog.Logger) *ServiceClient {
	return &ServiceClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "broker_service").Logger(),
	}
}

// SubmitOrder places an order through the microservice
func (c *ServiceClient) SubmitOrder(ctx context.Context, req OrderRequest) (string, error) {
	resp, err := c.post(ctx, "/api/orders", req)
	if err != nil {
		return "", err
	}

	var result struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return "", fmt.Errorf("failed to parse order response: %w", err)
	}
	if result.OrderID == "" {
		return "", fmt.Errorf("microservice returned no order id")
	}

	c.log.Info().
		Str("order_id", result.OrderID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Msg("Order submitted")

	return result.OrderID, nil
}

// PollOrder fetches the current status of an order
func (c *ServiceClient) PollOrder(ctx context.Context, orderID string) (OrderStatus, error) {
	resp, err := c.get(ctx, "/api/orders/"+orderID)
	if err != nil {
		return OrderStatus{}, err
	}

	var status OrderStatus
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return OrderStatus{}, fmt.Errorf("failed to parse order status: %w", err)
	}

	// The microservice is not strict about casing on the side field
	side, err := domain.SideFromString(string(status.Side))
	if err != nil {
		return OrderStatus{}, fmt.Errorf("order %s: %w", orderID, err)
	}
	status.Side = side

	return status, nil
}

// CancelOrder cancels an order
func (c *ServiceClient) CancelOrder(ctx context.Context, orderID string) error {
	_, err := c.post(ctx, "/api/orders/"+orderID+"/cancel", nil)
	return err
}

func (c *ServiceClient) post(ctx context.Context, endpoint string, request interface{}) (*ServiceResponse, error) {
	var body io.Reader
	if request != nil {
		data, err := json.Marshal(request)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

func (c *ServiceClient) get(ctx context.Context, endpoint string) (*ServiceResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

func (c *ServiceClient) parseResponse(resp *http.Response) (*ServiceResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result ServiceResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !result.Success {
		errMsg := "unknown error"
		if result.Error != nil {
			errMsg = *result.Error
		}
		return &result, fmt.Errorf("broker service error: %s", errMsg)
	}

	return &result, nil
}
