package provider

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const maxAttempts = 3

// Transient failures back off on a fixed schedule: rate limits wait out the
// limiter window, server errors retry sooner.
var (
	rateLimitWaits   = []time.Duration{65 * time.Second, 100 * time.Second, 135 * time.Second}
	serverErrorWaits = []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second}
)

// withRetry runs call up to maxAttempts times, sleeping between attempts when
// the failure looks transient. Non-transient errors are returned immediately.
func withRetry(ctx context.Context, logger *log.Logger, call func() error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = call()
		if err == nil {
			return nil
		}

		var wait time.Duration
		switch {
		case isRateLimitError(err):
			wait = rateLimitWaits[attempt]
		case isServerError(err):
			wait = serverErrorWaits[attempt]
		default:
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		logger.Warn("transient service error, backing off",
			"attempt", attempt+1, "wait", wait, "err", err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "429") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "500") ||
		strings.Contains(s, "502") ||
		strings.Contains(s, "503") ||
		strings.Contains(s, "internal server error") ||
		strings.Contains(s, "server_error") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "connection refused")
}
