package client

import "time"

// backoffDelay returns the wait before attempt n of a logical request.
// Attempt numbering starts at 1; the first attempt never waits. From the
// second attempt on, the delay doubles: base, 2*base, 4*base, ... capped
// at max. The schedule is a pure function of the attempt number, so
// retries of one request are non-decreasing and every new request starts
// back at base.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 2 {
		return 0
	}
	delay := base
	for i := 2; i < attempt; i++ {
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
