package conn

import "time"

// backoffDelay returns the wait before reconnection attempt n (1-based):
// min(base * 2^(n-1), max).  There is no jitter; attempts are bounded by a
// small ceiling rather than spread, matching the hub's expectations.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
