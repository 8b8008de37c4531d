package realtime

import "time"

// Backoff returns the delay before reconnect attempt n (1-based): the base
// delay doubled per attempt, capped at max. Delays are non-decreasing in n
// and never exceed max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}

	if delay > max {
		return max
	}
	return delay
}
