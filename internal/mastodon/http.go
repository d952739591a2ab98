package mastodon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dkoosis/amalgam/internal/observability"
)

const maxErrorBody = 4 << 10

// Option configures a client.
type Option func(*transport)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *transport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithRetryDelay sets the backoff bounds between attempts.
func WithRetryDelay(base, maxDelay time.Duration) Option {
	return func(t *transport) {
		t.retryBaseDelay = base
		t.retryMaxDelay = maxDelay
	}
}

// transport holds what both clients share: the HTTP client, per-request
// timeout, retry policy and logger.
type transport struct {
	client         *http.Client
	timeout        time.Duration
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	logger         *zap.Logger
}

func newTransport(timeout time.Duration, logger *zap.Logger, opts []Option) *transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &transport{
		client:         &http.Client{},
		timeout:        timeout,
		retryBaseDelay: 100 * time.Millisecond,
		retryMaxDelay:  2 * time.Second,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// baseURL returns the https origin for a cleaned domain.
func baseURL(domain string) string {
	return "https://" + domain
}

// getJSON performs one GET and decodes a 200 body into out. Non-2xx
// answers become *APIError.
func (t *transport) getJSON(ctx context.Context, endpoint, rawURL, token string, out any) error {
	start := time.Now()

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.client.Do(req)
	observability.MastodonAPIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.MastodonAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	observability.MastodonAPICallsTotal.WithLabelValues(endpoint, observability.StatusLabel(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// withRetries runs call up to tries times with exponential backoff. It stops
// early on a non-retryable error. Every failure except ErrInvalidInput and
// cancellation comes back wrapped in ErrConn.
func (t *transport) withRetries(ctx context.Context, op string, tries int, call func() error) error {
	if tries < 1 {
		tries = 1
	}
	var lastErr error
	for attempt := 0; attempt < tries; attempt++ {
		if attempt > 0 {
			observability.MastodonAPIRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(t.backoff(attempt)):
			}
		}

		err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			if errors.Is(err, ErrInvalidInput) || errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("%w: %s: %w", ErrConn, op, err)
		}
		t.logger.Warn("mastodon call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Int("tries", tries),
			zap.Error(err))
	}
	return fmt.Errorf("%w: %s failed after %d tries: %w", ErrConn, op, tries, lastErr)
}

func (t *transport) backoff(attempt int) time.Duration {
	delay := float64(t.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(t.retryMaxDelay) {
		delay = float64(t.retryMaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func isRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrInvalidInput) || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	// Transport failures and truncated bodies.
	return true
}

// errorMessage extracts Mastodon's {"error": "..."} body, falling back to
// the trimmed text.
func errorMessage(body []byte) string {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.ErrorDescription != "" {
			return payload.ErrorDescription
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func statusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return strconv.Itoa(code) + " " + text
	}
	return strconv.Itoa(code)
}
