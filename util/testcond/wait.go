package testcond

import (
	"fmt"
	"time"
)

// WaitForCondition polls eval every interval until it reports true. eval gets one
// last try once timeout has passed before giving up.
func WaitForCondition(eval func() bool, interval time.Duration, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	attempts := 1
	if eval() {
		return nil
	}
	for {
		select {
		case <-tick.C:
			attempts++
			if eval() {
				return nil
			}
		case <-deadline.C:
			if eval() {
				return nil
			}
			return fmt.Errorf("condition not met after %v (%d attempts)", timeout, attempts+1)
		}
	}
}
