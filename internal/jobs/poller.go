package jobs

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultPollInterval is the reference status polling cadence.
	DefaultPollInterval = 1200 * time.Millisecond
	// DefaultPollGiveUp bounds how long consecutive poll failures are tolerated.
	DefaultPollGiveUp = 3 * time.Minute
	maxPollDelay      = 15 * time.Second
)

// pollTick performs one status round trip. It returns stop=true when the loop
// must end, or a non-nil err for a transient failure that should be retried.
type pollTick func(ctx context.Context) (stop bool, err error)

// poller is the status loop of exactly one job. It is cancelled through ctx
// and never outlives the job it was started for.
type poller struct {
	interval time.Duration
	giveUp   time.Duration
}

func newPoller(interval, giveUp time.Duration) *poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if giveUp <= 0 {
		giveUp = DefaultPollGiveUp
	}
	return &poller{interval: interval, giveUp: giveUp}
}

// retryPolicy spaces out ticks after failures. Delays never drop below the
// poll interval and the policy stops after giveUp of consecutive failures.
func (p *poller) retryPolicy() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.interval
	b.RandomizationFactor = 0.2
	b.Multiplier = 1.5
	b.MaxInterval = maxPollDelay
	b.MaxElapsedTime = p.giveUp
	b.Reset()
	return b
}

// run ticks every interval until tick asks to stop, ctx is cancelled, or the
// retry policy is exhausted, in which case exhausted receives the last error.
func (p *poller) run(ctx context.Context, tick pollTick, exhausted func(error)) {
	policy := p.retryPolicy()
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		stop, err := tick(ctx)
		if stop || ctx.Err() != nil {
			return
		}

		delay := p.interval
		if err != nil {
			next := policy.NextBackOff()
			if next == backoff.Stop {
				exhausted(err)
				return
			}
			if next > delay {
				delay = next
			}
		} else {
			policy.Reset()
		}
		timer.Reset(delay)
	}
}
