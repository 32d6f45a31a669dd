package resilience

import "time"

// BreakerConfig tunes the breaker. Zero values take the defaults.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit. Default 5.
	FailureThreshold int
	// SuccessThreshold consecutive half-open successes close it. Default 2.
	SuccessThreshold int
	// OpenTimeout is how long the circuit stays open. Default 30s.
	OpenTimeout time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	return c
}

// Breaker is a circuit breaker whose state lives in a Store.
// A nil Breaker allows everything.
type Breaker struct {
	config BreakerConfig
	store  *Store
	now    func() time.Time
}

// NewBreaker creates a breaker over store.
func NewBreaker(store *Store, config BreakerConfig) *Breaker {
	return &Breaker{config: config.withDefaults(), store: store, now: time.Now}
}

// Allow reports whether a request may proceed and, when it may not, how long
// the caller should wait. State errors fail open.
//
// Half-open admits a single probe at a time. A probe slot left behind by a
// crashed process is reclaimed after OpenTimeout.
func (b *Breaker) Allow() (bool, time.Duration) {
	if b == nil {
		return true, 0
	}
	now := b.now()

	state, err := b.store.Load()
	if err != nil {
		return true, 0
	}
	if now.Before(state.RetryAfterUntil) {
		return false, state.RetryAfterUntil.Sub(now)
	}
	if state.closed() {
		return true, 0
	}
	if state.Circuit == CircuitOpen {
		if wait := b.config.OpenTimeout - now.Sub(state.OpenedAt); wait > 0 {
			return false, wait
		}
	}

	allowed, wait := true, time.Duration(0)
	err = b.store.Update(func(s *State) error {
		switch {
		case s.closed():
		case s.Circuit == CircuitOpen && now.Sub(s.OpenedAt) < b.config.OpenTimeout:
			allowed, wait = false, b.config.OpenTimeout-now.Sub(s.OpenedAt)
		case s.Probing && now.Sub(s.ProbeAt) < b.config.OpenTimeout:
			allowed, wait = false, b.config.OpenTimeout-now.Sub(s.ProbeAt)
		default:
			if s.Circuit == CircuitOpen {
				s.Successes = 0
			}
			s.Circuit = CircuitHalfOpen
			s.Probing = true
			s.ProbeAt = now
			s.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return true, 0
	}
	return allowed, wait
}

// RecordSuccess closes a half-open circuit once enough probes succeed and
// clears the failure streak of a closed one.
func (b *Breaker) RecordSuccess() error {
	if b == nil {
		return nil
	}
	return b.store.Update(func(s *State) error {
		now := b.now()
		switch {
		case s.Circuit == CircuitHalfOpen:
			s.Probing = false
			s.Successes++
			if s.Successes >= b.config.SuccessThreshold {
				s.reset()
			}
		case s.closed():
			if s.Failures == 0 {
				return nil
			}
			s.Failures = 0
		}
		s.UpdatedAt = now
		return nil
	})
}

// RecordFailure counts a failure. The circuit opens at FailureThreshold, or
// immediately when a half-open probe fails.
func (b *Breaker) RecordFailure() error {
	if b == nil {
		return nil
	}
	return b.store.Update(func(s *State) error {
		now := b.now()
		s.FailureAt = now
		switch {
		case s.closed():
			s.Failures++
			if s.Failures >= b.config.FailureThreshold {
				s.Circuit = CircuitOpen
				s.OpenedAt = now
			}
		case s.Circuit == CircuitHalfOpen:
			s.Circuit = CircuitOpen
			s.OpenedAt = now
			s.Successes = 0
			s.Probing = false
		}
		s.UpdatedAt = now
		return nil
	})
}

// BlockFor rejects every request for d, as asked by a Retry-After header.
func (b *Breaker) BlockFor(d time.Duration) error {
	if b == nil || d <= 0 {
		return nil
	}
	return b.store.Update(func(s *State) error {
		until := b.now().Add(d)
		if until.After(s.RetryAfterUntil) {
			s.RetryAfterUntil = until
		}
		s.UpdatedAt = b.now()
		return nil
	})
}

// State returns the effective circuit state. An open circuit past its
// timeout reports half-open.
func (b *Breaker) State() (string, error) {
	if b == nil {
		return CircuitClosed, nil
	}
	state, err := b.store.Load()
	if err != nil {
		return CircuitClosed, err
	}
	if state.Circuit == CircuitOpen && b.now().Sub(state.OpenedAt) >= b.config.OpenTimeout {
		return CircuitHalfOpen, nil
	}
	if state.closed() {
		return CircuitClosed, nil
	}
	return state.Circuit, nil
}

// Reset closes the circuit and lifts any Retry-After block.
func (b *Breaker) Reset() error {
	if b == nil {
		return nil
	}
	return b.store.Update(func(s *State) error {
		*s = *NewState()
		s.UpdatedAt = b.now()
		return nil
	})
}
