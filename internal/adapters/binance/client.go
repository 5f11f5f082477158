// Package binance is a read-only client for the Binance spot public API:
// klines, ticker prices and symbol filters.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alejandrodnm/gridbot/internal/metrics"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.binance.com"

	// Rate limit al 60% del límite de peso documentado: 6000/min → 3600/min → 60/s.
	// klines con limit=1000 pesa 2, ticker y exchangeInfo con símbolo pesan 2-4.
	requestsPerSec = 15
	burst          = 5

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond

	// El breaker abre tras 5 peticiones fallidas seguidas (cada una ya con sus
	// retries) y deja pasar una de prueba a los 30s.
	breakerFailures = 5
	breakerTimeout  = 30 * time.Second
)

// Client es el HTTP client de Binance con rate limiting y retries.
type Client struct {
	http      *http.Client
	baseURL   string
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	retryWait time.Duration
}

// NewClient crea un Client contra baseURL. Vacío usa producción.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		baseURL:   baseURL,
		limiter:   rate.NewLimiter(requestsPerSec, burst),
		breaker:   newBreaker(baseURL),
		retryWait: baseRetryWait,
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "binance " + name,
		Timeout: breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		// Un 4xx es culpa de la petición, no de la API: no cuenta como fallo.
		IsSuccessful: func(err error) bool {
			var ce *clientError
			return err == nil || errors.As(err, &ce)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("binance: circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// apiError is the body Binance returns on 4xx.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// clientError is a 4xx response. It is never retried.
type clientError struct {
	Status int
	Code   int
	Msg    string
}

func (e *clientError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("client error %d: code %d: %s", e.Status, e.Code, e.Msg)
	}
	return fmt.Sprintf("client error %d: %s", e.Status, e.Msg)
}

// get hace un GET a través del circuit breaker y decodifica el JSON en out.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.fetch(ctx, endpoint, query, out)
	})
	return err
}

// fetch hace el GET con rate limiting y retries.
func (c *Client) fetch(ctx context.Context, endpoint string, query url.Values, out any) error {
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.http.Do(req)
		metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.APIRequests.WithLabelValues(endpoint, "error").Inc()
			if attempt == maxRetries || ctx.Err() != nil {
				return fmt.Errorf("request failed after %d retries: %w", attempt, err)
			}
			c.sleep(ctx, attempt)
			continue
		}
		metrics.APIRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot:
			resp.Body.Close()
			slog.Warn("binance: rate limited", "endpoint", endpoint, "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue

		case resp.StatusCode >= 500:
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue

		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			var apiErr apiError
			if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
				return &clientError{Status: resp.StatusCode, Code: apiErr.Code, Msg: apiErr.Msg}
			}
			return &clientError{Status: resp.StatusCode, Msg: string(body)}
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
