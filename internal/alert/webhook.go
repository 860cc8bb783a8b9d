package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	attemptTimeout = 5 * time.Second
	maxAttempts    = 3
)

var (
	webhookClient = &http.Client{Timeout: attemptTimeout}

	// retryDelay is the first backoff step; each further retry doubles it.
	retryDelay = time.Second
)

// StatusError is a non-2xx webhook response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook %s answered HTTP %d", e.URL, e.StatusCode)
}

// Temporary reports whether the receiver may accept a later attempt.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Send delivers event to cfg.URL. Network errors, 429 and 5xx answers are
// retried with doubling backoff until maxAttempts or ctx ends; other 4xx
// answers fail at once.
func Send(ctx context.Context, cfg Config, event Event) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("alert: payload: %w", err)
	}

	delay := retryDelay
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = post(ctx, cfg, body)
		if lastErr == nil {
			return nil
		}
		var se *StatusError
		if errors.As(lastErr, &se) && !se.Temporary() {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("alert: %w (last error: %v)", ctx.Err(), lastErr)
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("alert: gave up after %d attempts: %w", maxAttempts, lastErr)
}

func post(ctx context.Context, cfg Config, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alert: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "humanloop-alert")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := webhookClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode/100 != 2 {
		return &StatusError{URL: cfg.URL, StatusCode: resp.StatusCode}
	}
	return nil
}
