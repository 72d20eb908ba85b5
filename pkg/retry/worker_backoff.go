// Package retry models bounded retry with exponential backoff as an explicit
// per-item state machine, so cancellation and tests can inject simulated time.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Clock abstracts time for testing. The real clock sleeps; test clocks
// advance instantly and record the requested delays.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the production clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Policy holds retry configuration.
type Policy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay before attempt 2 (doubles each retry)
	MaxDelay    time.Duration // cap for a single delay
	Jitter      time.Duration // random [0, Jitter) added to each delay
}

// DefaultPolicy returns the defaults used for external adapter calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      500 * time.Millisecond,
	}
}

// State tracks retry progress for one item. Zero value is not usable;
// create with NewState.
type State struct {
	policy  Policy
	attempt int
	rng     *rand.Rand
}

// NewState creates retry state for a single operation.
func NewState(policy Policy) *State {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &State{
		policy: policy,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Attempt returns the number of attempts made so far.
func (s *State) Attempt() int { return s.attempt }

// Exhausted reports whether no attempts remain.
func (s *State) Exhausted() bool { return s.attempt >= s.policy.MaxAttempts }

// NextDelay records an attempt and returns the delay to wait before the
// next one. The second return is false once attempts are exhausted.
func (s *State) NextDelay() (time.Duration, bool) {
	s.attempt++
	if s.attempt >= s.policy.MaxAttempts {
		return 0, false
	}

	// base * 2^(attempt-1), capped
	delay := s.policy.BaseDelay << uint(s.attempt-1)
	if s.policy.MaxDelay > 0 && delay > s.policy.MaxDelay {
		delay = s.policy.MaxDelay
	}
	if s.policy.Jitter > 0 {
		delay += time.Duration(s.rng.Int63n(int64(s.policy.Jitter)))
	}
	return delay, true
}

// Do runs fn with bounded retries. retryable decides whether an error is
// worth another attempt; permanent errors return immediately.
func Do(ctx context.Context, clock Clock, policy Policy, retryable func(error) bool, fn func(ctx context.Context) error) error {
	state := NewState(policy)
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}

		delay, more := state.NextDelay()
		if !more {
			return err
		}
		if serr := clock.Sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}
