// Package remote implements the best-effort client for the results API.
// Every operation degrades to a typed failure; nothing here panics or
// blocks the practice loop.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/keysync/internal/domain"
)

// DefaultTimeout bounds a single network attempt.
const DefaultTimeout = 5 * time.Second

// statusError carries a non-success HTTP status for retry classification.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("remote returned status %d: %s", e.code, e.body)
}

// Config holds the remote endpoint settings.
type Config struct {
	BaseURL string
	UserID  string
	Timeout time.Duration // per attempt, default DefaultTimeout
	Logger  *slog.Logger
}

// Client talks to the remote results endpoint. The connectivity flag it
// maintains is advisory only: it informs scheduling, it never gates an
// attempt.
type Client struct {
	baseURL    string
	userID     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger

	submitRetry  retry.Retry[bool]
	fetchRetry   retry.Retry[[]domain.Result]
	fetchBreaker circuitbreaker.CircuitBreaker[[]domain.Result]

	online atomic.Bool
}

// NewClient creates a client for the given endpoint.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:    cfg.BaseURL,
		userID:     cfg.UserID,
		timeout:    cfg.Timeout,
		httpClient: newHTTPClient(cfg.Timeout),
		logger:     logger,
	}

	c.submitRetry = retry.New[bool](retry.Config{
		MaxAttempts:   2,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      time.Second,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable:   isRetryable,
	})
	c.fetchRetry = retry.New[[]domain.Result](retry.Config{
		MaxAttempts:   2,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      time.Second,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable:   isRetryable,
	})
	// The breaker shields only the read path; writes are always
	// attempted because the local cache already holds the data.
	c.fetchBreaker = circuitbreaker.New[[]domain.Result](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			logger.Warn("remote read circuit state change",
				"from", from.String(), "to", to.String())
		},
	})

	return c
}

// Submit posts one record. A remote duplicate-fingerprint rejection
// reports accepted=true: the record is already durable over there.
func (c *Client) Submit(ctx context.Context, rec domain.Result) (bool, error) {
	accepted, err := c.submitRetry.Do(ctx, func(ctx context.Context) (bool, error) {
		return c.submitOnce(ctx, rec)
	})
	c.observe(err)
	if err != nil {
		return false, fmt.Errorf("submit result %s: %w", rec.Fingerprint, err)
	}
	return accepted, nil
}

func (c *Client) submitOnce(ctx context.Context, rec domain.Result) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(toSubmitRequest(c.userID, rec))
	if err != nil {
		return false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/results", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		// Duplicate fingerprint: idempotent submit.
		return true, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, &statusError{code: resp.StatusCode, body: string(raw)}
	}

	var parsed submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		// 2xx with an unreadable body still means the write landed.
		return true, nil
	}
	return parsed.Accepted || parsed.Duplicate, nil
}

// FetchResults retrieves up to limit records, newest first. Any network,
// status, or parse failure comes back as an error for the caller to fall
// back on the local cache.
func (c *Client) FetchResults(ctx context.Context, limit int) ([]domain.Result, error) {
	results, err := c.fetchBreaker.Execute(ctx, func(ctx context.Context) ([]domain.Result, error) {
		return c.fetchRetry.Do(ctx, func(ctx context.Context) ([]domain.Result, error) {
			return c.fetchOnce(ctx, limit)
		})
	})
	c.observe(err)
	if err != nil {
		return nil, fmt.Errorf("fetch results: %w", err)
	}
	return results, nil
}

func (c *Client) fetchOnce(ctx context.Context, limit int) ([]domain.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/users/%s/results?limit=%d", c.baseURL, c.userID, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{code: resp.StatusCode, body: string(raw)}
	}

	var fetched []fetchedResult
	if err := json.NewDecoder(resp.Body).Decode(&fetched); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	results := make([]domain.Result, 0, len(fetched))
	for _, f := range fetched {
		results = append(results, f.toDomain())
	}
	return results, nil
}

// Ping probes the liveness endpoint and refreshes the advisory flag.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/db-info", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(err)
		return fmt.Errorf("ping remote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := &statusError{code: resp.StatusCode}
		c.observe(err)
		return fmt.Errorf("ping remote: %w", err)
	}
	c.observe(nil)
	return nil
}

// Online reports the advisory connectivity hint from the last attempt.
// Callers may use it for scheduling but must never skip a write on it.
func (c *Client) Online() bool {
	return c.online.Load()
}

func (c *Client) observe(err error) {
	c.online.Store(err == nil)
}

// isRetryable allows one more attempt for transport-level failures and
// the transient status codes; 4xx responses are not retried.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		switch se.code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// newHTTPClient builds a transport with per-phase timeouts suited to a
// small local-first client.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
	}
	return &http.Client{Transport: transport}
}
