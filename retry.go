package ferresdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// newBackOff returns the retry schedule: delay, 2*delay, 4*delay and so on, without jitter.
func newBackOff(delay time.Duration) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     delay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Duration(math.MaxInt64),
	}
	b.Reset()
	return b
}

// execute performs one logical request with retry.
//
// Attempts are made until one succeeds, a client error (4xx) is returned, the parent
// context is done, or MaxRetries retries have been spent. Server errors (5xx),
// per-attempt timeouts and network failures are retried. The same X-Request-Id is
// sent on every attempt. The returned body is nil for empty responses.
func (c *Client) execute(ctx context.Context, method, path string, body any, opts ...CallOption) ([]byte, error) {
	co := c.callOptionsFor(opts)

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, &Error{Kind: KindInvalidPayload, Message: "encoding request body", Err: err}
		}
	}

	url := c.resolve(path)
	requestID := uuid.NewString()
	log := c.logger.With(
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
	)

	bo := newBackOff(c.cfg.RetryDelay)
	var lastErr *Error

	for attempt := 0; attempt <= co.maxRetries; attempt++ {
		if attempt > 0 {
			wait := bo.NextBackOff()
			log.Debug("retrying request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", wait),
				zap.Error(lastErr),
			)
			c.metrics.retries.WithLabelValues(method).Inc()
			if err := c.sleep(ctx, wait); err != nil {
				return nil, connectionError("request canceled", err)
			}
		}

		start := time.Now()
		data, err := c.attempt(ctx, method, url, requestID, payload, co)
		c.metrics.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		if err == nil {
			c.metrics.requests.WithLabelValues(method, outcomeSuccess).Inc()
			return data, nil
		}

		var apiErr *Error
		if !errors.As(err, &apiErr) {
			apiErr = connectionError("request failed", err)
		}
		c.metrics.requests.WithLabelValues(method, outcomeFor(apiErr)).Inc()

		if ctx.Err() != nil {
			return nil, connectionError("request canceled", ctx.Err())
		}
		if !apiErr.Retryable() {
			return nil, apiErr
		}
		lastErr = apiErr
	}

	log.Warn("request failed after retries",
		zap.Int("attempts", co.maxRetries+1),
		zap.Error(lastErr),
	)
	return nil, &Error{
		Kind:       KindConnection,
		StatusCode: lastErr.StatusCode,
		Message:    fmt.Sprintf("request failed after %d attempts", co.maxRetries+1),
		Err:        lastErr,
	}
}

// attempt sends a single HTTP request bounded by the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, method, url, requestID string, payload []byte, co callOptions) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, co.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, url, reader)
	if err != nil {
		return nil, &Error{Kind: KindInvalidPayload, Message: "building request", Err: err}
	}

	for k, v := range co.headers {
		if http.CanonicalHeaderKey(k) == "Authorization" {
			continue
		}
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, connectionError(fmt.Sprintf("request timed out after %s", co.timeout), err)
		}
		return nil, connectionError("sending request", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, connectionError("reading response body", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
	case resp.StatusCode < 400:
		// Unfollowed redirects and informational codes carry no error body.
		return nil, &Error{
			Kind:       KindConnection,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	default:
		return nil, errorFromResponse(resp.StatusCode, data)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return data, nil
}
