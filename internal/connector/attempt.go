package connector

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of one connection attempt.
type State int

// Attempt states, in order. StateTLSHandlerAttached is skipped for
// plaintext connections. StateHandedOff is terminal for the connector; the
// protocol runtime owns the connection from there.
const (
	StateConstructed State = iota
	StateOptionsApplied
	StateTLSHandlerAttached
	StateHandedOff
)

var stateNames = map[State]string{
	StateConstructed:        "constructed",
	StateOptionsApplied:     "options_applied",
	StateTLSHandlerAttached: "tls_handler_attached",
	StateHandedOff:          "handed_off",
}

// String returns the snake_case state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState is the inverse of State.String.
func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown attempt state %q", name)
}

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateConstructed:        {StateOptionsApplied},
	StateOptionsApplied:     {StateTLSHandlerAttached, StateHandedOff},
	StateTLSHandlerAttached: {StateHandedOff},
}

// Attempt records one pass through the connection lifecycle.
// It is owned by the goroutine running the attempt.
type Attempt struct {
	ID        string
	Transport string
	Endpoint  string
	TLS       bool
	Mode      AuthMode
	State     State
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// NewAttempt starts an attempt in StateConstructed.
func NewAttempt(transport string, p ConnectParameter, useTLS bool) *Attempt {
	return &Attempt{
		ID:        uuid.NewString(),
		Transport: transport,
		Endpoint:  p.Endpoint(),
		TLS:       useTLS,
		State:     StateConstructed,
		StartedAt: time.Now().UTC(),
	}
}

// Advance moves the attempt to next.
func (a *Attempt) Advance(next State) error {
	for _, allowed := range transitions[a.State] {
		if allowed == next {
			a.State = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.State, next)
}

// Finish stamps the duration and records err (nil on success). The state is
// left where the attempt stopped.
func (a *Attempt) Finish(err error) {
	a.Duration = time.Since(a.StartedAt)
	a.Err = err
}

// Succeeded reports whether the attempt reached the runtime without error.
func (a *Attempt) Succeeded() bool {
	return a.State == StateHandedOff && a.Err == nil
}
