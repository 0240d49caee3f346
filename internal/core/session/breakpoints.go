package session

import (
	"sync"

	"github.com/aidb-dev/aidb/internal/core/protocol"
)

// BreakpointTiming is the caller's declared intent for when a
// breakpoint operation should apply (spec.md §4.5's "Breakpoint timing
// rule"): set during the handshake before the program can run past it,
// or live against an already-running/paused session.
type BreakpointTiming string

const (
	TimingInitial BreakpointTiming = "initial"
	TimingLive    BreakpointTiming = "live"
)

// BreakpointSpec is the caller-submitted breakpoint request (spec.md
// §3.1). Two specs are structurally identical (for replacement/dedup
// purposes) when Line, Column, Condition, HitCondition, and LogMessage
// all match.
type BreakpointSpec struct {
	Line         int
	Column       int
	Condition    string
	HitCondition string
	LogMessage   string
}

// Breakpoint is the resolved record merged from a BreakpointSpec and
// the adapter's SetBreakpoints response (spec.md §3.1).
type Breakpoint struct {
	ID         int
	Spec       BreakpointSpec
	Verified   bool
	ActualLine int
	Message    string
}

// BreakpointMap is the per-session file→breakpoints table (spec.md
// §3.1). SetBreakpoints is always a full per-file replacement (I5); the
// map's Set method performs that replacement and returns the slice to
// send on the wire, and Clear empties a file's entry without returning
// anything.
type BreakpointMap struct {
	mu      sync.Mutex
	byFile  map[string][]Breakpoint
	nextRef int
}

// NewBreakpointMap returns an empty map.
func NewBreakpointMap() *BreakpointMap {
	return &BreakpointMap{byFile: make(map[string][]Breakpoint)}
}

// Set replaces file's breakpoint list with specs, validating each
// spec's HitCondition up front (spec.md §7 InvalidArgument), and
// returns the new (unverified) Breakpoint records in input order —
// these are what the caller submits on the wire; MergeVerified updates
// them once the adapter responds.
func (m *BreakpointMap) Set(file string, specs []BreakpointSpec) ([]Breakpoint, error) {
	pending := make([]Breakpoint, len(specs))
	for i, spec := range specs {
		if spec.HitCondition != "" {
			if _, err := protocol.ParseHitCondition(spec.HitCondition); err != nil {
				return nil, err
			}
		}
		pending[i] = Breakpoint{Spec: spec, ActualLine: spec.Line}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byFile[file] = pending
	return append([]Breakpoint(nil), pending...), nil
}

// MergeVerified merges the adapter's per-breakpoint verification result
// back into file's list by index, the "matched back into the map" step
// of spec.md §4.5 step 5 / the Breakpoint model paragraph.
func (m *BreakpointMap) MergeVerified(file string, verified []Breakpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.byFile[file]
	merged := make([]Breakpoint, len(existing))
	for i, bp := range existing {
		merged[i] = bp
		if i < len(verified) {
			merged[i].ID = verified[i].ID
			merged[i].Verified = verified[i].Verified
			merged[i].ActualLine = verified[i].ActualLine
			merged[i].Message = verified[i].Message
		}
	}
	m.byFile[file] = merged
}

// Clear empties file's breakpoint list (spec.md P7: "adding a
// breakpoint in file F and then clearing all breakpoints in F leaves
// BreakpointMap[F] empty").
func (m *BreakpointMap) Clear(file string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byFile[file] = nil
}

// ClearByID removes a single breakpoint by adapter-assigned id across
// every file, returning the file it was found in (for re-submission) or
// "" if not found.
func (m *BreakpointMap) ClearByID(id int) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	for file, bps := range m.byFile {
		for i, bp := range bps {
			if bp.ID == id {
				m.byFile[file] = append(append([]Breakpoint(nil), bps[:i]...), bps[i+1:]...)
				return file
			}
		}
	}
	return ""
}

// ClearAll empties every file's list, returning the set of files that
// had breakpoints (so the caller can re-submit an empty SetBreakpoints
// for each, per the "clearing is an empty list" rule).
func (m *BreakpointMap) ClearAll() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	files := make([]string, 0, len(m.byFile))
	for file, bps := range m.byFile {
		if len(bps) > 0 {
			files = append(files, file)
		}
		m.byFile[file] = nil
	}
	return files
}

// File returns the current breakpoint list for file.
func (m *BreakpointMap) File(file string) []Breakpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Breakpoint(nil), m.byFile[file]...)
}

// All returns every non-empty file's breakpoint list, for re-applying
// the whole map (e.g. a handshake re-run after Restart with
// keep_breakpoints).
func (m *BreakpointMap) All() map[string][]Breakpoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string][]Breakpoint, len(m.byFile))
	for file, bps := range m.byFile {
		if len(bps) > 0 {
			out[file] = append([]Breakpoint(nil), bps...)
		}
	}
	return out
}

// IsLogpoint reports whether spec names a logpoint (spec.md GLOSSARY:
// "a breakpoint that logs a formatted message rather than pausing") —
// the Session must not wait for a Stopped event on a logpoint-only add.
func (spec BreakpointSpec) IsLogpoint() bool {
	return spec.LogMessage != ""
}
