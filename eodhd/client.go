// Package eodhd fetches end of day prices from the EODHD API, to be recorded
// in the ledger as PRICE events.
package eodhd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/etnz/tradeledger/date"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultBaseURL is the root of the EODHD API.
const DefaultBaseURL = "https://eodhd.com/api"

// Client reads the EODHD API.
type Client struct {
	apiKey   string
	baseURL  string
	http     *http.Client
	logger   *zap.Logger
	attempts uint64
}

// NewClient returns a client authenticated by apiKey. Responses are cached in
// cacheDir for the day, no cache if empty.
func NewClient(apiKey, baseURL, cacheDir string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("eodhd")
	client := &http.Client{Timeout: 30 * time.Second}
	if cacheDir != "" {
		client.Transport = &diskCache{base: http.DefaultTransport, dir: cacheDir, logger: logger}
	}
	return &Client{
		apiKey:   apiKey,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		http:     client,
		logger:   logger,
		attempts: 3,
	}
}

// Close is the closing price of a symbol on a day.
type Close struct {
	Day   date.Date
	Price decimal.Decimal
}

// Closes returns the daily closes of symbol between from and to inclusive,
// oldest first. The symbol is in EODHD form, e.g. "MCD.US".
func (c *Client) Closes(ctx context.Context, symbol string, from, to date.Date) ([]Close, error) {
	// https://eodhd.com/api/eod/MCD.US?api_token=demo&fmt=json&from=2024-02-01&to=2024-02-13
	// [
	//	{
	//		"date": "2024-02-13",
	//		"open": 675.066,
	//		"high": 684.219,
	//		"low": 648.659,
	//		"close": 668.445,
	//		"adjusted_close": 67.705,
	//		"volume": 0
	//	},
	q := url.Values{}
	q.Set("fmt", "json")
	q.Set("api_token", c.apiKey)
	q.Set("from", from.String())
	q.Set("to", to.String())
	addr := fmt.Sprintf("%s/eod/%s?%s", c.baseURL, url.PathEscape(symbol), q.Encode())

	type Info struct {
		Date  date.Date       `json:"date"`
		Close decimal.Decimal `json:"close"`
	}

	// that's the payload
	content := make([]Info, 0)
	if err := c.getJSON(ctx, addr, &content); err != nil {
		return nil, fmt.Errorf("fetch %s closes: %w", symbol, err)
	}
	closes := make([]Close, 0, len(content))
	window := date.Range{From: from, To: to}
	for _, info := range content {
		if !window.Contains(info.Date) {
			continue
		}
		closes = append(closes, Close{Day: info.Date, Price: info.Close})
	}
	return closes, nil
}

// statusError is a non 200 response.
type statusError struct {
	path   string
	status string
	code   int
}

func (e *statusError) Error() string { return fmt.Sprintf("cannot http GET %s: %s", e.path, e.status) }

// getJSON performs an HTTP GET request to the given address and unmarshals
// the JSON response body into data. Throttled requests and server errors are
// retried with an exponential backoff.
func (c *Client) getJSON(ctx context.Context, addr string, data any) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			err := &statusError{path: req.URL.Path, status: resp.Status, code: resp.StatusCode}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return err
			}
			return backoff.Permanent(err)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, data); err != nil {
			return backoff.Permanent(fmt.Errorf("decode %s: %w", req.URL.Path, err))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	b := backoff.WithContext(backoff.WithMaxRetries(policy, c.attempts-1), ctx)
	return backoff.RetryNotify(op, b, func(err error, d time.Duration) {
		c.logger.Warn("retrying request", zap.Error(err), zap.Duration("delay", d))
	})
}

// IsNotFound reports whether err is an unknown symbol response.
func IsNotFound(err error) bool {
	var s *statusError
	return errors.As(err, &s) && s.code == http.StatusNotFound
}
