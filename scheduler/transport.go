package scheduler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"sellflow/config"
)

// Transport fetches raw response bodies for exchange requests. It is an
// interface so tests can run the poller against canned payloads.
type Transport interface {
	Get(ctx context.Context, url string, header http.Header) ([]byte, error)
}

// HTTPTransport is the production Transport: a pooled HTTP client with an
// optional client-side rate limit in front of the exchange.
type HTTPTransport struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPTransport builds an HTTPTransport from the poller configuration.
func NewHTTPTransport(cfg config.PollerConfig) *HTTPTransport {
	transport := &http.Transport{
		MaxIdleConns:    cfg.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost: cfg.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout: cfg.ConnectionPool.IdleConnTimeout,
	}

	var limiter *rate.Limiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		burst := cfg.RateLimit.BurstSize
		if burst <= 0 {
			burst = cfg.RateLimit.RequestsPerSecond
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), burst)
	}

	return &HTTPTransport{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		limiter: limiter,
	}
}

// Get performs a GET request and returns the response body. Non-200 statuses
// are reported as errors; the exchange signals business failures inside a 200
// response envelope.
func (t *HTTPTransport) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}
