// Package utils holds small shared helpers with no domain dependencies.
package utils

import (
	"context"
	"time"
)

// Swappable so tests can run the wait without real delays.
var sleep = time.Sleep

// WaitFor blocks for d or until ctx is cancelled, whichever comes first. The
// poller uses it between status polls so leaving the screen interrupts the
// wait immediately instead of after the full interval.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sleep(d)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
