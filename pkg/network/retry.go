package network

import "time"

// Retry tracks a bounded exponential backoff.
// Each Fail doubles the delay until the attempts are exhausted,
// Success resets the state back to the base delay.
type Retry struct {
	base     time.Duration
	t        time.Duration
	attempts int
	left     int
}

func NewRetry(base time.Duration, attempts int) Retry {
	return Retry{base: base, t: base, attempts: attempts, left: attempts}
}

// Fail registers a failed attempt and returns the delay to wait
// before the next one, or false when no attempts remain.
func (r *Retry) Fail() (time.Duration, bool) {
	if r.left <= 0 {
		return 0, false
	}
	r.left--
	d := r.t
	r.t *= 2
	return d, true
}

func (r *Retry) Success() { r.t = r.base; r.left = r.attempts }

func (r *Retry) Time() time.Duration { return r.t }
