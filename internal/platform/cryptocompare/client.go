// Package cryptocompare is a REST client for the CryptoCompare single-symbol
// price endpoint.
package cryptocompare

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// DefaultBaseURL is the public CryptoCompare API root.
const DefaultBaseURL = "https://min-api.cryptocompare.com"

// Client fetches USD prices for asset symbols.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a CryptoCompare client. apiKey may be empty; the price
// endpoint works unauthenticated at a lower rate limit.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// USDPrice returns the current USD price of symbol. A missing, non-numeric
// or non-positive price is reported as domain.ErrPriceUnavailable.
func (c *Client) USDPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("fsym", strings.ToUpper(symbol))
	params.Set("tsyms", "USD")

	body, err := c.doGet(ctx, "/data/price?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("cryptocompare: price %s: %w", symbol, err)
	}

	// Errors come back as HTTP 200 with {"Response":"Error","Message":...}.
	var resp struct {
		USD      *float64 `json:"USD"`
		Response string   `json:"Response"`
		Message  string   `json:"Message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("cryptocompare: price %s: %w: decode: %v", symbol, domain.ErrPriceUnavailable, err)
	}
	if resp.Response == "Error" {
		return 0, fmt.Errorf("cryptocompare: price %s: %w: %s", symbol, domain.ErrPriceUnavailable, resp.Message)
	}
	if resp.USD == nil || *resp.USD <= 0 {
		return 0, fmt.Errorf("cryptocompare: price %s: %w: invalid USD price in %s", symbol, domain.ErrPriceUnavailable, string(body))
	}
	return *resp.USD, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Apikey "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %v", domain.ErrPriceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrPriceUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", domain.ErrPriceUnavailable, resp.StatusCode, string(body))
	}
	return body, nil
}
