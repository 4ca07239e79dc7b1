package eodhd

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"fmt"
	"net/http"
	"net/http/httputil"
	"os"
	"path/filepath"

	"github.com/etnz/tradeledger/date"
	"go.uber.org/zap"
)

// diskCache is an http.RoundTripper keeping successful responses on disk.
// Entries are keyed by day, so the cache expires every day.
type diskCache struct {
	base   http.RoundTripper
	dir    string
	logger *zap.Logger
	today  func() date.Date
}

// RoundTrip implements the http.RoundTripper interface. It checks for a cached
// response on disk first. If a fresh cached response is not found, it proceeds
// with the actual HTTP request and caches the new response if it's successful.
func (c *diskCache) RoundTrip(req *http.Request) (*http.Response, error) {
	today := date.Today
	if c.today != nil {
		today = c.today
	}
	key := fmt.Sprintf("%s %s %s", today(), req.Method, req.URL.String())
	file := filepath.Join(c.dir, fmt.Sprintf("eodhd-%x", sha1.Sum([]byte(key))))

	if resp, err := c.get(file, req); err == nil {
		c.logger.Debug("cache hit", zap.String("path", req.URL.Path))
		return resp, nil
	}

	resp, err := c.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("fetched", zap.String("method", req.Method), zap.String("path", req.URL.Path), zap.String("status", resp.Status))
	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}
	if err := c.put(file, resp); err != nil {
		c.logger.Warn("cache write failed", zap.Error(err))
	}
	return resp, nil
}

// get retrieves a cached response from disk.
func (c *diskCache) get(file string, req *http.Request) (*http.Response, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(content)), req)
}

// put stores a response on disk. DumpResponse leaves resp readable.
func (c *diskCache) put(file string, resp *http.Response) error {
	content, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(file, content, 0o644)
}
