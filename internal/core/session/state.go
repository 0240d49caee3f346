// Package session implements the per-Session state machine that binds
// one Adapter to one DAP Client, runs the initialization handshake, and
// serializes composite operations (spec.md §4.5).
package session

import (
	"fmt"
	"sync"
	"time"
)

// Phase is the discriminant of SessionState (spec.md §4.5's "States").
type Phase string

const (
	PhaseNew         Phase = "new"
	PhaseConnecting  Phase = "connecting"
	PhaseInitializing Phase = "initializing"
	PhaseConfiguring Phase = "configuring"
	PhaseRunning     Phase = "running"
	PhasePaused      Phase = "paused"
	PhaseTerminating Phase = "terminating"
	PhaseTerminated  Phase = "terminated"
)

// PauseLocation is the source location a Stopped event reported, if the
// adapter included one (it is optional on DAP's StoppedEvent body).
type PauseLocation struct {
	Source string
	Line   int
}

// State is the discriminated union spec.md §4.5 names: every field
// beyond Phase is meaningful only for the Phase(s) documented on it.
type State struct {
	Phase Phase

	// Paused-only fields.
	ThreadID int
	Reason   string
	Location PauseLocation

	// Terminated-only field.
	TerminatedReason string
}

func (s State) String() string {
	switch s.Phase {
	case PhasePaused:
		return fmt.Sprintf("paused(thread=%d, reason=%s)", s.ThreadID, s.Reason)
	case PhaseTerminated:
		return fmt.Sprintf("terminated(%s)", s.TerminatedReason)
	default:
		return string(s.Phase)
	}
}

// stateMachine guards State transitions with a mutex and validates that
// a requested transition is legal from the current phase, per spec.md
// §4.5's "Invalid transitions fail the caller with InvalidSessionState".
type stateMachine struct {
	mu    sync.Mutex
	state State
}

func newStateMachine() *stateMachine {
	return &stateMachine{state: State{Phase: PhaseNew}}
}

func (m *stateMachine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// transition unconditionally moves to next; callers are expected to have
// validated the move is legal via requirePhase beforehand, since many
// transitions (handshake steps, event-driven moves) have no caller-side
// decision point to reject.
func (m *stateMachine) transition(next State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = next
}

// requirePhase returns InvalidSessionState unless the current phase is
// one of allowed; used by composite operations (stack/scopes/variables
// require Paused, stepping requires Running-or-Paused, etc.).
func (m *stateMachine) requirePhase(allowed ...Phase) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range allowed {
		if m.state.Phase == p {
			return m.state, true
		}
	}
	return m.state, false
}

// generationClock hands out a monotonically increasing "pause
// generation" number, bumped by the Session on every Stopped and every
// Continued event.
// StackFrame/Scope/Variable references captured in one generation are
// invalid in any later one (spec.md I4), independent of the numeric
// frameId/variablesReference values the adapter itself reuses.
type generationClock struct {
	mu  sync.Mutex
	gen int64
}

func (g *generationClock) current() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen
}

func (g *generationClock) advance() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	return g.gen
}

// defaultTimeouts are spec.md §5's "Timeouts" defaults, overridable per
// call site (e.g. Launch/Attach use the longer one).
var (
	defaultRequestTimeout = 30 * time.Second
	launchTimeout         = 60 * time.Second
	handshakeStepTimeout  = 5 * time.Second
)
