// Package marketdata fetches daily OHLCV candles from Yahoo Finance.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/tmarkos/quant-trader/internal/domain"
)

const chartBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

// Client fetches candle windows from the Yahoo Finance chart API
type Client struct {
	client     *http.Client
	maxRetries int
	log        zerolog.Logger
}

// NewClient creates a market data client
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
		log:        log.With().Str("client", "marketdata").Logger(),
	}
}

// chartResponse is the shape of the Yahoo chart API response
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// GetWindow fetches roughly lookbackDays of daily candles for a symbol,
// oldest first, retrying with exponential backoff on transient failures.
func (c *Client) GetWindow(ctx context.Context, symbol string, lookbackDays int) (domain.Window, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt-1)) * time.Second
			c.log.Warn().Err(lastErr).
				Str("symbol", symbol).
				Int("attempt", attempt+1).
				Dur("wait", wait).
				Msg("Retrying market data fetch")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		window, err := c.fetch(ctx, symbol, lookbackDays)
		if err == nil {
			return window, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) fetch(ctx context.Context, symbol string, lookbackDays int) (domain.Window, error) {
	params := url.Values{}
	params.Add("interval", "1d")
	params.Add("range", rangeForDays(lookbackDays))

	reqURL := chartBaseURL + url.QueryEscape(symbol) + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chart data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chart API returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var result chartResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Chart.Error != nil {
		return nil, fmt.Errorf("chart API error: %v", result.Chart.Error)
	}
	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no chart data returned for %s", symbol)
	}

	data := result.Chart.Result[0]
	quote := data.Indicators.Quote[0]

	window := make(domain.Window, 0, len(data.Timestamp))
	for i := range data.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			continue
		}
		// Yahoo returns zeroed rows for holidays and halts
		if quote.Open[i] == 0 && quote.High[i] == 0 && quote.Low[i] == 0 && quote.Close[i] == 0 {
			continue
		}

		volume := int64(0)
		if i < len(quote.Volume) {
			volume = quote.Volume[i]
		}

		window = append(window, domain.Candle{
			Date:   time.Unix(data.Timestamp[i], 0).UTC(),
			Open:   quote.Open[i],
			High:   quote.High[i],
			Low:    quote.Low[i],
			Close:  quote.Close[i],
			Volume: volume,
		})
	}

	if len(window) == 0 {
		return nil, fmt.Errorf("empty candle window for %s", symbol)
	}

	c.log.Debug().
		Str("symbol", symbol).
		Int("candles", len(window)).
		Msg("Fetched candle window")

	return window, nil
}

// rangeForDays maps a lookback in days to the closest chart API range
func rangeForDays(days int) string {
	switch {
	case days <= 5:
		return "5d"
	case days <= 30:
		return "1mo"
	case days <= 90:
		return "3mo"
	case days <= 180:
		return "6mo"
	case days <= 365:
		return "1y"
	default:
		return "2y"
	}
}
