// pkg/retry/retry.go - functions for retrying actions with exponential backoff.
//
// DISM mounts are routinely busy for a short while after servicing finishes,
// so unmount/commit and image export are wrapped in retries.

package retry

import (
	"errors"
	"time"

	"github.com/windowsadmins/winforge/pkg/logging"
)

// Permanent wraps an error so Retry gives up immediately.
type Permanent struct {
	Err error
}

func (p Permanent) Error() string { return p.Err.Error() }
func (p Permanent) Unwrap() error { return p.Err }

// RetryConfig defines the configuration for retry attempts
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	Multiplier      float64
}

// DefaultConfig returns the retry settings used for servicing operations.
func DefaultConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 5 * time.Second,
		Multiplier:      2.0,
	}
}

// Retry retries a given function with exponential backoff
func Retry(config RetryConfig, action func() error) error {
	interval := config.InitialInterval

	var lastErr error
	for attempt := 1; attempt <= config.MaxRetries; attempt++ {
		err := action()
		if err == nil {
			return nil
		}
		lastErr = err

		// Check if this is a non-retryable error
		var permanent Permanent
		if errors.As(err, &permanent) {
			logging.Warn("Non-retryable error encountered", "error", err, "attempt", attempt)
			return permanent.Err
		}

		if attempt < config.MaxRetries {
			logging.Warn("Attempt failed, retrying",
				"attempt", attempt, "max_attempts", config.MaxRetries,
				"retry_delay", interval.String(), "error", err)
			time.Sleep(interval)
			interval = time.Duration(float64(interval) * config.Multiplier)
		} else {
			logging.Warn("Attempt failed, no more retries",
				"attempt", attempt, "max_attempts", config.MaxRetries, "error", err)
		}
	}

	return lastErr
}
