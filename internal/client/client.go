package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/pokeglobe-service/internal/circuitbreaker"
	"github.com/kjstillabower/pokeglobe-service/internal/observability"
	"github.com/kjstillabower/pokeglobe-service/internal/traffic"
)

var (
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrNotFound        = errors.New("not found")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
)

// Upstream names used as metric labels and traffic keys.
const (
	UpstreamCountries = "countries"
	UpstreamPokeAPI   = "pokeapi"
	UpstreamWeather   = "weather"
)

// maxBodyBytes caps upstream response bodies. Species detail payloads carry full move
// lists and run to several hundred KB.
const maxBodyBytes = 16 << 20

// RetryPolicy configures retries for retryable upstream failures (429, 5xx, timeouts).
// Attempts of 1 means a single call with no retry.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// NoRetry makes a single attempt.
var NoRetry = RetryPolicy{Attempts: 1}

// requester performs GET requests against one upstream with metrics, retries and an
// optional circuit breaker.
type requester struct {
	upstream string
	client   *http.Client
	timeout  time.Duration
	retry    RetryPolicy
	breaker  *circuitbreaker.CircuitBreaker
}

func newRequester(upstream string, timeout time.Duration, retry RetryPolicy) *requester {
	if retry.Attempts <= 0 {
		retry.Attempts = 1
	}
	return &requester{
		upstream: upstream,
		timeout:  timeout,
		retry:    retry,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// get fetches rawURL and returns the response body. ErrNotFound is a normal outcome
// and does not count against upstream health or the circuit breaker.
func (r *requester) get(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < r.retry.Attempts; attempt++ {
		if attempt > 0 {
			observability.UpstreamRetriesTotal.WithLabelValues(r.upstream).Inc()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.backoff(attempt)):
			}
		}

		body, err := r.guardedCall(ctx, rawURL)
		if err == nil {
			traffic.RecordOutcome(r.upstream, nil)
			return body, nil
		}
		lastErr = err
		if !isRetryable(err) || ctx.Err() != nil {
			break
		}
	}

	r.recordFailure(lastErr)
	if r.retry.Attempts > 1 && isRetryable(lastErr) {
		return nil, fmt.Errorf("exhausted retries: %w", lastErr)
	}
	return nil, lastErr
}

func (r *requester) guardedCall(ctx context.Context, rawURL string) ([]byte, error) {
	if r.breaker == nil {
		return r.callOnce(ctx, rawURL)
	}
	var body []byte
	var callErr error
	err := r.breaker.Call(ctx, func() error {
		body, callErr = r.callOnce(ctx, rawURL)
		if errors.Is(callErr, ErrNotFound) {
			return nil
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return body, callErr
}

func (r *requester) recordFailure(err error) {
	if errors.Is(err, ErrNotFound) {
		traffic.RecordOutcome(r.upstream, nil)
	} else {
		traffic.RecordOutcome(r.upstream, err)
	}
	observability.UpstreamErrorsTotal.WithLabelValues(r.upstream, string(CategorizeError(err))).Inc()
}

func (r *requester) callOnce(ctx context.Context, rawURL string) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(r.upstream, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.UpstreamCallsTotal.WithLabelValues(r.upstream, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(r.upstream, "error").Observe(duration)

		// url.Error embeds the full URL, which may carry an API key.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
			(errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(r.upstream, status).Inc()
	observability.UpstreamDuration.WithLabelValues(r.upstream, status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return strings.Contains(err.Error(), "timeout")
}

func (r *requester) backoff(attempt int) time.Duration {
	delay := float64(r.retry.BaseDelay) * math.Pow(2, float64(attempt-1))
	if r.retry.MaxDelay > 0 && delay > float64(r.retry.MaxDelay) {
		delay = float64(r.retry.MaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: HTTP 401", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// idFromURL extracts the numeric id from a resource URL such as
// "https://pokeapi.co/api/v2/pokemon/25/".
func idFromURL(resourceURL string) (int, error) {
	trimmed := strings.TrimSuffix(resourceURL, "/")
	i := strings.LastIndex(trimmed, "/")
	if i < 0 || i == len(trimmed)-1 {
		return 0, fmt.Errorf("no id in resource url %q", resourceURL)
	}
	id, err := strconv.Atoi(trimmed[i+1:])
	if err != nil {
		return 0, fmt.Errorf("parse id from %q: %w", resourceURL, err)
	}
	return id, nil
}
