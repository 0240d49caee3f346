package session

import (
	"context"
	"fmt"

	"github.com/aidb-dev/aidb/internal/aidberr"
	"github.com/aidb-dev/aidb/internal/core/dapclient"
	"github.com/aidb-dev/aidb/internal/core/protocol"
	"github.com/google/go-dap"
)

// StepGranularity is the caller's chosen step scope (spec.md §4.6).
type StepGranularity string

const (
	StepInto StepGranularity = "into"
	StepOver StepGranularity = "over"
	StepOut  StepGranularity = "out"
)

// BreakpointFilter selects which breakpoints clear_breakpoints removes.
type BreakpointFilter struct {
	All   bool
	File  string // set when neither All nor ByID
	ByID  int
	HasID bool
}

// StackFrame is one frame of a stack(...) result (spec.md §4.6).
type StackFrame struct {
	ID     int
	Name   string
	Source string
	Line   int
	Column int
}

// Scope is one entry of a scopes(...) result.
type Scope struct {
	Name               string
	VariablesReference int
	Expensive          bool
}

// Variable is one entry of a variables(...) result, and also the shape
// returned by set_variable after a mutation.
type Variable struct {
	Name               string
	Value              string
	Type               string
	VariablesReference int
}

// EvaluateResult is the outcome of evaluate(...).
type EvaluateResult struct {
	Result             string
	Type               string
	VariablesReference int
}

// EvaluateContext is the advisory side-effect-tolerance hint spec.md
// §4.6 names: repl, watch, or hover.
type EvaluateContext string

const (
	EvalRepl  EvaluateContext = "repl"
	EvalWatch EvaluateContext = "watch"
	EvalHover EvaluateContext = "hover"
)

// SetBreakpointsLive applies specs to file outside the initial handshake
// (spec.md §4.5's "Breakpoint timing rule"): legal while Paused, or while
// Running for a long-running target where the race against the program
// reaching that line is the caller's accepted risk — both are allowed
// here, since the Session itself cannot distinguish long-running targets
// from short-lived ones; distinguishing them is the caller's job via
// which timing value it chose to request in the first place.
func (s *Session) SetBreakpointsLive(ctx context.Context, file string, specs []BreakpointSpec) ([]Breakpoint, error) {
	if _, ok := s.state.requirePhase(PhaseRunning, PhasePaused); !ok {
		cur := s.state.current()
		return nil, &aidberr.InvalidSessionState{Current: cur.String(), Attempted: "set_breakpoints"}
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.applyBreakpoints(ctx, file, specs)
}

// ClearBreakpoints removes breakpoints per filter and re-submits the
// resulting (possibly empty) list for every affected file, per I5's
// full-replacement semantics.
func (s *Session) ClearBreakpoints(ctx context.Context, filter BreakpointFilter) (map[string][]Breakpoint, error) {
	if _, ok := s.state.requirePhase(PhaseRunning, PhasePaused); !ok {
		cur := s.state.current()
		return nil, &aidberr.InvalidSessionState{Current: cur.String(), Attempted: "clear_breakpoints"}
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	var files []string
	switch {
	case filter.All:
		files = s.Breakpoints.ClearAll()
	case filter.HasID:
		if f := s.Breakpoints.ClearByID(filter.ByID); f != "" {
			files = []string{f}
		}
	default:
		s.Breakpoints.Clear(filter.File)
		files = []string{filter.File}
	}

	out := make(map[string][]Breakpoint, len(files))
	for _, file := range files {
		remaining := s.Breakpoints.File(file)
		specs := make([]BreakpointSpec, len(remaining))
		for i, bp := range remaining {
			specs[i] = bp.Spec
		}
		merged, err := s.applyBreakpoints(ctx, file, specs)
		if err != nil {
			return nil, err
		}
		out[file] = merged
	}
	return out, nil
}

// awaitExecutionChange sends req through a pre-registered ExecutionWaiter
// (spec.md's execution-aware request rule) so the response race against
// an adapter that emits Stopped/Terminated before its own response
// cannot be lost, then blocks until that event actually lands and the
// Session's own event subscription has applied its state transition.
func (s *Session) awaitExecutionChange(ctx context.Context, req dap.RequestMessage) (State, error) {
	waitCh, cancel := s.Client.ExecutionWaiter()
	defer cancel()

	_, err := s.sendRequest(ctx, req, defaultRequestTimeout, dapclient.NoRetry)
	if err != nil {
		return s.state.current(), err
	}

	select {
	case <-waitCh:
	case <-ctx.Done():
		return s.state.current(), &aidberr.RequestCancelled{Command: req.GetRequest().Command}
	}
	return s.state.current(), nil
}

// Continue resumes a paused session (spec.md §4.6's continue operation).
func (s *Session) Continue(ctx context.Context, threadID int) (State, error) {
	if _, ok := s.state.requirePhase(PhasePaused); !ok {
		return s.state.current(), &aidberr.NotPaused{SessionID: s.ID}
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	return s.awaitExecutionChange(ctx, &dap.ContinueRequest{
		Request:   dap.Request{Command: protocol.CommandContinue},
		Arguments: dap.ContinueArguments{ThreadId: threadID},
	})
}

// Step resumes for one step at the requested granularity.
func (s *Session) Step(ctx context.Context, granularity StepGranularity, threadID int) (State, error) {
	if _, ok := s.state.requirePhase(PhasePaused); !ok {
		return s.state.current(), &aidberr.NotPaused{SessionID: s.ID}
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	var req dap.RequestMessage
	switch granularity {
	case StepInto:
		req = &dap.StepInRequest{
			Request:   dap.Request{Command: protocol.CommandStepIn},
			Arguments: dap.StepInArguments{ThreadId: threadID},
		}
	case StepOut:
		req = &dap.StepOutRequest{
			Request:   dap.Request{Command: protocol.CommandStepOut},
			Arguments: dap.StepOutArguments{ThreadId: threadID},
		}
	default:
		req = &dap.NextRequest{
			Request:   dap.Request{Command: protocol.CommandNext},
			Arguments: dap.NextArguments{ThreadId: threadID},
		}
	}
	return s.awaitExecutionChange(ctx, req)
}

// Pause attempts to interrupt a running program. DAP has no dedicated
// "supportsPause" capability flag to gate on up front, so any rejection
// surfaces only once the adapter replies; the Debug Service's
// propagation policy (spec.md §7) is to fold that rejection into
// NotSupported rather than the raw AdapterError.
func (s *Session) Pause(ctx context.Context, threadID int) error {
	if _, ok := s.state.requirePhase(PhaseRunning); !ok {
		cur := s.state.current()
		return &aidberr.InvalidSessionState{Current: cur.String(), Attempted: "pause"}
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	_, err := s.sendRequest(ctx, &dap.PauseRequest{
		Request:   dap.Request{Command: protocol.CommandPause},
		Arguments: dap.PauseArguments{ThreadId: threadID},
	}, defaultRequestTimeout, dapclient.NoRetry)
	if _, ok := err.(*aidberr.AdapterError); ok {
		return &aidberr.NotSupported{Capability: "pause"}
	}
	return err
}

// ThreadsLive queries the adapter directly for the current thread list
// and refreshes the cached table subscribeLifecycleEvents otherwise
// maintains incrementally — distinct from the cheap Threads() accessor,
// this is the DAP-backed spec.md §4.6 "threads" operation.
func (s *Session) ThreadsLive(ctx context.Context) ([]Thread, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	resp, err := s.sendRequest(ctx, &dap.ThreadsRequest{
		Request: dap.Request{Command: protocol.CommandThreads},
	}, defaultRequestTimeout, dapclient.NoRetry)
	if err != nil {
		return nil, err
	}
	tresp, ok := resp.(*dap.ThreadsResponse)
	if !ok {
		return nil, nil
	}

	threads := make([]Thread, len(tresp.Body.Threads))
	for i, t := range tresp.Body.Threads {
		threads[i] = Thread{ID: t.Id, Name: t.Name}
	}

	s.threadsMu.Lock()
	s.threads = append([]Thread(nil), threads...)
	s.threadsMu.Unlock()

	return threads, nil
}

// Stack lists stack frames for threadID (spec.md §4.6's "stack"
// operation), requiring Paused. The returned generation must be passed
// back into Scopes/Variables/SetVariable so they can detect a stale
// reference per I4.
func (s *Session) Stack(ctx context.Context, threadID, startFrame, levels int) ([]StackFrame, int64, error) {
	if _, ok := s.state.requirePhase(PhasePaused); !ok {
		return nil, 0, &aidberr.NotPaused{SessionID: s.ID}
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	resp, err := s.sendRequest(ctx, &dap.StackTraceRequest{
		Request: dap.Request{Command: protocol.CommandStackTrace},
		Arguments: dap.StackTraceArguments{
			ThreadId:   threadID,
			StartFrame: startFrame,
			Levels:     levels,
		},
	}, defaultRequestTimeout, dapclient.NoRetry)
	if err != nil {
		return nil, 0, err
	}
	stResp, ok := resp.(*dap.StackTraceResponse)
	if !ok {
		return nil, s.Generation(), nil
	}

	frames := make([]StackFrame, len(stResp.Body.StackFrames))
	for i, f := range stResp.Body.StackFrames {
		sf := StackFrame{ID: f.Id, Name: f.Name, Line: f.Line, Column: f.Column}
		if f.Source != nil {
			sf.Source = f.Source.Path
		}
		frames[i] = sf
	}
	return frames, s.Generation(), nil
}

// checkGeneration returns InvalidFrameReference/InvalidVariableReference
// (spec.md I4) when generation no longer matches the session's current
// pause generation — the caller resumed execution since frameId or
// variablesReference was captured.
func (s *Session) checkGeneration(generation int64, frameID, variablesReference int) error {
	if generation == s.Generation() {
		return nil
	}
	if frameID != 0 {
		return &aidberr.InvalidFrameReference{FrameID: frameID}
	}
	return &aidberr.InvalidVariableReference{VariablesReference: variablesReference}
}

// Scopes lists variable scopes for frameID, captured at generation by a
// prior Stack call.
func (s *Session) Scopes(ctx context.Context, frameID int, generation int64) ([]Scope, error) {
	if _, ok := s.state.requirePhase(PhasePaused); !ok {
		return nil, &aidberr.NotPaused{SessionID: s.ID}
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := s.checkGeneration(generation, frameID, 0); err != nil {
		return nil, err
	}

	resp, err := s.sendRequest(ctx, &dap.ScopesRequest{
		Request:   dap.Request{Command: protocol.CommandScopes},
		Arguments: dap.ScopesArguments{FrameId: frameID},
	}, defaultRequestTimeout, dapclient.NoRetry)
	if err != nil {
		return nil, err
	}
	scResp, ok := resp.(*dap.ScopesResponse)
	if !ok {
		return nil, nil
	}

	scopes := make([]Scope, len(scResp.Body.Scopes))
	for i, sc := range scResp.Body.Scopes {
		scopes[i] = Scope{Name: sc.Name, VariablesReference: sc.VariablesReference, Expensive: sc.Expensive}
	}
	return scopes, nil
}

// VariablesFilter narrows variables(...) to named or indexed children,
// with an optional page window (spec.md §4.6).
type VariablesFilter struct {
	Named   bool
	Indexed bool
	Start   int
	Count   int
}

// Variables pages children of variablesReference, captured at
// generation by a prior Stack/Scopes/Variables call.
func (s *Session) Variables(ctx context.Context, variablesReference int, generation int64, filter VariablesFilter) ([]Variable, error) {
	if _, ok := s.state.requirePhase(PhasePaused); !ok {
		return nil, &aidberr.NotPaused{SessionID: s.ID}
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := s.checkGeneration(generation, 0, variablesReference); err != nil {
		return nil, err
	}

	args := dap.VariablesArguments{
		VariablesReference: variablesReference,
		Start:              filter.Start,
		Count:              filter.Count,
	}
	switch {
	case filter.Named:
		args.Filter = "named"
	case filter.Indexed:
		args.Filter = "indexed"
	}

	resp, err := s.sendRequest(ctx, &dap.VariablesRequest{
		Request:   dap.Request{Command: protocol.CommandVariables},
		Arguments: args,
	}, defaultRequestTimeout, dapclient.NoRetry)
	if err != nil {
		return nil, err
	}
	vResp, ok := resp.(*dap.VariablesResponse)
	if !ok {
		return nil, nil
	}

	vars := make([]Variable, len(vResp.Body.Variables))
	for i, v := range vResp.Body.Variables {
		vars[i] = Variable{Name: v.Name, Value: v.Value, Type: v.Type, VariablesReference: v.VariablesReference}
	}
	return vars, nil
}

// Evaluate evaluates expression in the context of frameID (0 for global
// scope), using evalCtx as the side-effect-tolerance hint the adapter
// receives verbatim.
func (s *Session) Evaluate(ctx context.Context, expression string, frameID int, generation int64, evalCtx EvaluateContext) (EvaluateResult, error) {
	// Only a frame-scoped evaluate depends on a generation-scoped id, so
	// only that case needs to serialize against Continue/Step/Stack/etc
	// via opMu; a global (frameID == 0) watch/repl evaluate has nothing
	// to race and must stay free to run while the program is running.
	if frameID != 0 {
		s.opMu.Lock()
		defer s.opMu.Unlock()
		if err := s.checkGeneration(generation, frameID, 0); err != nil {
			return EvaluateResult{}, err
		}
	}

	resp, err := s.sendRequest(ctx, &dap.EvaluateRequest{
		Request: dap.Request{Command: protocol.CommandEvaluate},
		Arguments: dap.EvaluateArguments{
			Expression: expression,
			FrameId:    frameID,
			Context:    string(evalCtx),
		},
	}, defaultRequestTimeout, dapclient.NoRetry)
	if err != nil {
		return EvaluateResult{}, err
	}
	eResp, ok := resp.(*dap.EvaluateResponse)
	if !ok {
		return EvaluateResult{}, fmt.Errorf("unexpected response type for evaluate")
	}
	return EvaluateResult{
		Result:             eResp.Body.Result,
		Type:               eResp.Body.Type,
		VariablesReference: eResp.Body.VariablesReference,
	}, nil
}

// SetVariable mutates name within variablesReference's container,
// returning the adapter's new value representation.
func (s *Session) SetVariable(ctx context.Context, variablesReference int, generation int64, name, value string) (Variable, error) {
	if _, ok := s.state.requirePhase(PhasePaused); !ok {
		return Variable{}, &aidberr.NotPaused{SessionID: s.ID}
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := s.checkGeneration(generation, 0, variablesReference); err != nil {
		return Variable{}, err
	}

	resp, err := s.sendRequest(ctx, &dap.SetVariableRequest{
		Request: dap.Request{Command: protocol.CommandSetVariable},
		Arguments: dap.SetVariableArguments{
			VariablesReference: variablesReference,
			Name:               name,
			Value:              value,
		},
	}, defaultRequestTimeout, dapclient.NoRetry)
	if err != nil {
		return Variable{}, err
	}
	svResp, ok := resp.(*dap.SetVariableResponse)
	if !ok {
		return Variable{}, fmt.Errorf("unexpected response type for setVariable")
	}
	return Variable{
		Name:               name,
		Value:              svResp.Body.Value,
		Type:               svResp.Body.Type,
		VariablesReference: svResp.Body.VariablesReference,
	}, nil
}

// RestartNative issues the DAP Restart request directly; callers must
// check Capabilities().SupportsRestartRequest first — a Session has no
// way to emulate restart itself (spec.md §4.6: the emulated fallback
// tears down and relaunches the Adapter process, which only the Session
// Registry, not the Session, has the authority to do).
func (s *Session) RestartNative(ctx context.Context, keepBreakpoints bool) error {
	if !s.Capabilities().SupportsRestartRequest {
		return &aidberr.NotSupported{Capability: "restart"}
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !keepBreakpoints {
		s.Breakpoints.ClearAll()
	}

	_, err := s.sendRequest(ctx, &dap.RestartRequest{
		Request: dap.Request{Command: protocol.CommandRestart},
	}, launchTimeout, dapclient.NoRetry)
	return err
}
