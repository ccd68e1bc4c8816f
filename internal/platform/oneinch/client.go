// Package oneinch is a REST client for the 1inch swap quote API.
package oneinch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// DefaultBaseURL is the 1inch swap API root including the version segment.
const DefaultBaseURL = "https://api.1inch.dev/swap/v6.1"

// Client requests swap quotes. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a 1inch client authenticated with a bearer apiKey.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// quoteResponse is the subset of the /quote payload we use. gas is a JSON
// number but some deployments send it as a string.
type quoteResponse struct {
	DstAmount string      `json:"dstAmount"`
	Gas       json.Number `json:"gas"`
}

// Quote returns the provider's output amount and gas estimate for req.
// Any failure wraps domain.ErrQuoteUnavailable; the error text carries the
// upstream response body.
func (c *Client) Quote(ctx context.Context, req domain.QuoteRequest) (domain.QuoteResponse, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return domain.QuoteResponse{}, fmt.Errorf("oneinch: quote chain %d: %w: amount must be positive", req.ChainID, domain.ErrQuoteUnavailable)
	}

	params := url.Values{}
	params.Set("src", req.Src.Hex())
	params.Set("dst", req.Dst.Hex())
	params.Set("amount", req.Amount.String())
	params.Set("includeGas", "true")

	path := "/" + strconv.FormatInt(req.ChainID, 10) + "/quote?" + params.Encode()
	body, err := c.doGet(ctx, path)
	if err != nil {
		return domain.QuoteResponse{}, fmt.Errorf("oneinch: quote chain %d: %w", req.ChainID, err)
	}

	var raw quoteResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.QuoteResponse{}, fmt.Errorf("oneinch: quote chain %d: %w: decode: %v", req.ChainID, domain.ErrQuoteUnavailable, err)
	}
	dst, ok := new(big.Int).SetString(raw.DstAmount, 10)
	if !ok || dst.Sign() < 0 {
		return domain.QuoteResponse{}, fmt.Errorf("oneinch: quote chain %d: %w: invalid dstAmount %q", req.ChainID, domain.ErrQuoteUnavailable, raw.DstAmount)
	}
	gas := new(big.Int)
	if raw.Gas != "" {
		if _, ok := gas.SetString(raw.Gas.String(), 10); !ok || gas.Sign() < 0 {
			return domain.QuoteResponse{}, fmt.Errorf("oneinch: quote chain %d: %w: invalid gas %q", req.ChainID, domain.ErrQuoteUnavailable, raw.Gas)
		}
	}
	return domain.QuoteResponse{DstAmount: dst, Gas: gas}, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", domain.ErrQuoteUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %v", domain.ErrQuoteUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrQuoteUnavailable, err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w: %s", domain.ErrQuoteUnavailable, domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: %s", domain.ErrQuoteUnavailable, domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrQuoteUnavailable, statusCode, bodyStr)
	}
}
