// Package testing holds helpers shared by the service's test suites.
package testing

import (
	"context"
	"testing"
	"time"
)

const pollEvery = 10 * time.Millisecond

// AssertEventually polls condition until it holds or timeout passes
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for !condition() {
		select {
		case <-timer.C:
			t.Fatalf("condition not met within %s: %s", timeout, message)
		case <-ticker.C:
		}
	}
}

// TestContext returns a context cancelled at timeout or test cleanup
func TestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
