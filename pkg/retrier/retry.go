package retrier

import (
	"time"

	retry "github.com/avast/retry-go"
)

// Retry default retrier, retries 10 times, with exponential back off
func Retry(retryFn retry.RetryableFunc) error {
	return retry.Do(retryFn)
}

// RetryAttempts retries up to attempts times, returning only the last error
func RetryAttempts(retryFn retry.RetryableFunc, attempts uint) error {
	return retry.Do(retryFn, retry.Attempts(attempts), retry.LastErrorOnly(true))
}

// RetryIfAttempts retries up to attempts times, but only while retryIf
// returns true for the error. Errors that fail retryIf are returned
// immediately.
func RetryIfAttempts(retryFn retry.RetryableFunc, retryIf retry.RetryIfFunc, attempts uint) error {
	return retry.Do(retryFn, retry.Attempts(attempts), retry.RetryIf(retryIf), retry.LastErrorOnly(true))
}

// RetryUntil simple retrier until time runs out, checks every tick, does not do exponential back off
func RetryUntil(retryFn retry.RetryableFunc, until time.Duration, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	timer := time.NewTimer(until)
	defer ticker.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ticker.C:
			if err := retryFn(); err == nil {
				return nil
			}
		case <-timer.C:
			return retryFn()
		}
	}
}
