// Package marketdata talks to the market-data gateway sidecar over HTTP.
// The gateway fronts the exchange: it serves OHLCV history, the economic
// event calendar, and the account ledger.
package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quantfold/signalforge/internal/config"
	"github.com/quantfold/signalforge/internal/models"
)

// Client is the HTTP client for the gateway service.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	logger     *logrus.Logger
}

func NewClient(cfg config.GatewayConfig, logger *logrus.Logger) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		BaseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:     logger,
	}
}

// HealthCheck checks whether the gateway is reachable and connected to the
// exchange.
func (c *Client) HealthCheck(ctx context.Context) error {
	var response healthResponse
	if err := c.makeRequest(ctx, http.MethodGet, "/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("gateway unhealthy: %s", response.Status)
	}
	return nil
}

// Candles retrieves up to limit OHLCV bars for a symbol and timeframe,
// ordered ascending by open time.
func (c *Client) Candles(ctx context.Context, symbol string, timeframe models.Timeframe, limit int) ([]models.Candle, error) {
	path := "/api/candles/" + url.PathEscape(symbol)
	params := url.Values{}
	params.Set("timeframe", string(timeframe))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path += "?" + params.Encode()

	var response candlesResponse
	if err := c.makeRequest(ctx, http.MethodGet, path, nil, &response); err != nil {
		return nil, fmt.Errorf("failed to fetch candles for %s %s: %w", symbol, timeframe, err)
	}

	candles := make([]models.Candle, len(response.Candles))
	for i, raw := range response.Candles {
		candles[i] = models.Candle{
			Symbol:    symbol,
			OpenTime:  time.UnixMilli(raw.OpenTime).UTC(),
			Open:      raw.Open,
			High:      raw.High,
			Low:       raw.Low,
			Close:     raw.Close,
			Volume:    raw.Volume,
			CloseTime: time.UnixMilli(raw.CloseTime).UTC(),
		}
	}
	return candles, nil
}

// IsSafeWindow reports whether at is clear of scheduled high-impact economic
// events for the symbol.
func (c *Client) IsSafeWindow(ctx context.Context, symbol string, at time.Time) (bool, error) {
	path := "/api/calendar/safe-window/" + url.PathEscape(symbol) +
		"?at=" + url.QueryEscape(at.UTC().Format(time.RFC3339))

	var response safeWindowResponse
	if err := c.makeRequest(ctx, http.MethodGet, path, nil, &response); err != nil {
		return false, fmt.Errorf("failed to check safe window for %s: %w", symbol, err)
	}
	return response.Safe, nil
}

// AccountEquity returns the current account equity in quote currency.
func (c *Client) AccountEquity(ctx context.Context) (decimal.Decimal, error) {
	var response equityResponse
	if err := c.makeRequest(ctx, http.MethodGet, "/api/account/equity", nil, &response); err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch account equity: %w", err)
	}
	equity, err := decimal.NewFromString(response.Equity)
	if err != nil {
		return decimal.Zero, fmt.Errorf("gateway returned malformed equity %q: %w", response.Equity, err)
	}
	return equity, nil
}

type healthResponse struct {
	Status string `json:"status"`
}

type rawCandle struct {
	OpenTime  int64   `json:"open_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time"`
}

type candlesResponse struct {
	Symbol    string      `json:"symbol"`
	Timeframe string      `json:"timeframe"`
	Candles   []rawCandle `json:"candles"`
}

type safeWindowResponse struct {
	Safe bool `json:"safe"`
}

type equityResponse struct {
	Equity   string `json:"equity"`
	Currency string `json:"currency"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) makeRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	requestURL := c.BaseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "SignalForge/1.0")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WithError(err).Debug("Error closing response body")
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errorResp errorResponse
		if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Error != "" {
			return fmt.Errorf("gateway error (%d): %s", resp.StatusCode, errorResp.Error)
		}
		return fmt.Errorf("gateway error (%d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}
