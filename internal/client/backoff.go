package client

import (
	"math/rand/v2"
	"time"
)

// backoff returns the delay before reconnect attempt n: exponential from lo,
// capped at hi, with up to half of it randomized.
func backoff(n int, lo, hi time.Duration) time.Duration {
	d := lo
	for i := 0; i < n && d < hi; i++ {
		d *= 2
	}
	if d > hi {
		d = hi
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(half+1)
}
