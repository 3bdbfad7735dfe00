package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// TestPollerStopsWhenTickAsks verifies the loop ends on stop=true.
func TestPollerStopsWhenTickAsks(t *testing.T) {
	p := newPoller(time.Millisecond, time.Second)
	var ticks atomic.Int32

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.run(context.Background(), func(context.Context) (bool, error) {
			return ticks.Add(1) == 3, nil
		}, func(error) { t.Error("exhausted called") })
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
	if got := ticks.Load(); got != 3 {
		t.Fatalf("ticks = %d, want 3", got)
	}
}

// TestPollerCancelStopsBeforeNextTick verifies ctx cancellation.
func TestPollerCancelStopsBeforeNextTick(t *testing.T) {
	p := newPoller(time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.run(ctx, func(context.Context) (bool, error) {
			t.Error("tick ran after cancel")
			return true, nil
		}, nil)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller ignored cancellation")
	}
}

// TestPollerRetriesThenGivesUp verifies transient failures are retried and
// the policy eventually reports the last error.
func TestPollerRetriesThenGivesUp(t *testing.T) {
	p := newPoller(time.Millisecond, 20*time.Millisecond)
	boom := errors.New("connection refused")
	var ticks atomic.Int32
	var last error

	p.run(context.Background(), func(context.Context) (bool, error) {
		ticks.Add(1)
		return false, boom
	}, func(err error) { last = err })

	if !errors.Is(last, boom) {
		t.Fatalf("exhausted err = %v, want %v", last, boom)
	}
	if ticks.Load() < 2 {
		t.Fatalf("ticks = %d, want retries before giving up", ticks.Load())
	}
}

// TestPollerSuccessResetsFailureBudget verifies a success between failures
// keeps the loop alive past the give-up window.
func TestPollerSuccessResetsFailureBudget(t *testing.T) {
	p := newPoller(time.Millisecond, 15*time.Millisecond)
	start := time.Now()
	var ticks atomic.Int32

	p.run(context.Background(), func(context.Context) (bool, error) {
		n := ticks.Add(1)
		if time.Since(start) > 60*time.Millisecond {
			return true, nil
		}
		if n%2 == 0 {
			return false, nil
		}
		return false, errors.New("flaky")
	}, func(err error) { t.Errorf("gave up despite successes: %v", err) })
}

// TestRetryPolicyCapsDelay verifies the delay cap and defaults.
func TestRetryPolicyCapsDelay(t *testing.T) {
	p := newPoller(50*time.Millisecond, time.Minute)
	policy := p.retryPolicy()
	for i := 0; i < 20; i++ {
		d := policy.NextBackOff()
		if d > maxPollDelay*2 {
			t.Fatalf("delay %v exceeds cap", d)
		}
	}
	if p.interval != 50*time.Millisecond || p.giveUp != time.Minute {
		t.Fatalf("poller = %+v", p)
	}

	defaults := newPoller(0, 0)
	if defaults.interval != DefaultPollInterval || defaults.giveUp != DefaultPollGiveUp {
		t.Fatalf("defaults = %+v", defaults)
	}
}
