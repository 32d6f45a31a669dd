package resilience

import "time"

// StateVersion is the current state schema version. Files written by other
// versions are ignored.
const StateVersion = 1

// Circuit states.
const (
	CircuitClosed   = "closed"
	CircuitOpen     = "open"
	CircuitHalfOpen = "half_open"
)

// State is the persisted breaker state shared across processes.
type State struct {
	Version int `json:"version"`

	// Circuit is "closed", "open" or "half_open". Empty reads as closed.
	Circuit string `json:"circuit"`

	// Failures counts consecutive failures while closed.
	Failures int `json:"failures"`

	// Successes counts consecutive successes while half-open.
	Successes int `json:"successes"`

	// Probing is set while one process holds the half-open probe slot.
	Probing   bool      `json:"probing,omitempty"`
	ProbeAt   time.Time `json:"probe_at,omitzero"`
	OpenedAt  time.Time `json:"opened_at,omitzero"`
	FailureAt time.Time `json:"failure_at,omitzero"`

	// RetryAfterUntil blocks every request until it passes (CMS 429).
	RetryAfterUntil time.Time `json:"retry_after_until,omitzero"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewState returns a closed circuit.
func NewState() *State {
	return &State{Version: StateVersion, Circuit: CircuitClosed}
}

func (s *State) closed() bool { return s.Circuit == "" || s.Circuit == CircuitClosed }

func (s *State) reset() {
	s.Circuit = CircuitClosed
	s.Failures = 0
	s.Successes = 0
	s.Probing = false
	s.ProbeAt = time.Time{}
}
