package util

import (
	"math/rand"
	"time"
)

// RandomTimeRange picks a duration uniformly from [interval/2, interval] so that
// periodic tasks across the ring do not line up.
func RandomTimeRange(interval time.Duration) time.Duration {
	half := int64(interval / 2)
	if half <= 0 {
		return interval
	}
	return time.Duration(half + rand.Int63n(int64(interval)-half+1))
}

// Must unwraps value, panicking on err. Only for calls that cannot fail on valid input.
func Must[V any](value V, err error) V {
	if err != nil {
		panic(err)
	}
	return value
}
