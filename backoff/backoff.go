package backoff

import (
	"time"

	"github.com/jpillora/backoff"
)

// Defaults for the reconnect policy
const (
	DefaultBase        = 100 * time.Millisecond
	DefaultCap         = 30 * time.Second
	DefaultMaxAttempts = 10
)

// Policy maps a retry index to a wait duration and decides when to stop retrying.
// The zero value is not useful; start from Default().
type Policy struct {
	Base        time.Duration // Delay for retry 0
	Cap         time.Duration // Upper bound for any delay
	MaxAttempts int           // GiveUp threshold, 0 = retry forever
	Jitter      bool          // Randomize delays between Base and the computed value
}

// Default returns the reference policy: 100ms doubling up to 30s, 10 attempts.
func Default() Policy {
	return Policy{
		Base:        DefaultBase,
		Cap:         DefaultCap,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Delay returns min(Base * 2^retry, Cap). Negative retries are treated as 0.
func (p Policy) Delay(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	b := &backoff.Backoff{
		Min:    p.Base,
		Max:    p.Cap,
		Factor: 2,
		Jitter: p.Jitter,
	}
	return b.ForAttempt(float64(retry))
}

// GiveUp reports whether retry has reached the attempt limit.
func (p Policy) GiveUp(retry int) bool {
	return p.MaxAttempts > 0 && retry >= p.MaxAttempts
}

// Schedule returns the delays a full reconnect sequence would sleep before giving up.
// Useful for logging the policy at startup.
func (p Policy) Schedule() []time.Duration {
	if p.MaxAttempts <= 0 {
		return nil
	}
	delays := make([]time.Duration, 0, p.MaxAttempts)
	for retry := 0; !p.GiveUp(retry); retry++ {
		delays = append(delays, p.Delay(retry))
	}
	return delays
}

// Validate checks that the policy can produce sensible delays.
func (p Policy) Validate() error {
	if p.Base <= 0 {
		return ErrInvalidBase
	}
	if p.Cap < p.Base {
		return ErrInvalidCap
	}
	if p.MaxAttempts < 0 {
		return ErrInvalidAttempts
	}
	return nil
}
