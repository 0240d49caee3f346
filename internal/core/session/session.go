package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aidb-dev/aidb/internal/aidberr"
	"github.com/aidb-dev/aidb/internal/core/adapter"
	"github.com/aidb-dev/aidb/internal/core/dapclient"
	"github.com/aidb-dev/aidb/internal/core/diagnostics"
	"github.com/aidb-dev/aidb/internal/core/protocol"
	"github.com/aidb-dev/aidb/internal/models"
	"github.com/google/go-dap"
	"github.com/google/uuid"
)

// Thread is one entry of a Session's ThreadTable (spec.md §3.1).
type Thread struct {
	ID   int
	Name string
}

// Session is the central orchestrator (spec.md §3.1): one Adapter, one
// DAP Client, one SessionState, one BreakpointMap. Composite operations
// (stack → scopes → variables) are serialized by opMu so their
// intermediate ids remain valid for the duration of the call.
type Session struct {
	ID string

	log *slog.Logger

	Adapter *adapter.Adapter
	Client  *dapclient.Client

	state *stateMachine
	gen   *generationClock

	Breakpoints *BreakpointMap

	opMu    sync.Mutex
	stopped bool // set by the first Stop; guarded by opMu

	threadsMu sync.Mutex
	threads   []Thread

	outputMu sync.Mutex
	output   []models.OutputEntry

	capsMu sync.Mutex
	caps   dap.Capabilities

	retryPolicy dapclient.RetryPolicy

	diagnostics *diagnostics.Tracker
}

// New binds an already-spawned Adapter to an already-connected (but not
// yet handshaken) Client under id, ready for Start.
func New(id string, ad *adapter.Adapter, client *dapclient.Client, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		ID:          id,
		log:         log.With("session", id),
		Adapter:     ad,
		Client:      client,
		state:       newStateMachine(),
		gen:         &generationClock{},
		Breakpoints: NewBreakpointMap(),
		retryPolicy: dapclient.DefaultRetryPolicy,
		diagnostics: diagnostics.NewTracker(0),
	}
	s.subscribeLifecycleEvents()
	return s
}

// Diagnostics returns the session's AdapterError/ProtocolError occurrence
// tracker, so a caller can surface recurring adapter failures without
// re-deriving them from individual operation errors.
func (s *Session) Diagnostics() []*diagnostics.Occurrence {
	return s.diagnostics.All()
}

// sendRequest wraps Client.SendRequest, recording every AdapterError or
// ProtocolError it produces against this session's diagnostics Tracker
// before returning it unchanged to the caller.
func (s *Session) sendRequest(ctx context.Context, req dap.RequestMessage, timeout time.Duration, retry dapclient.RetryPolicy) (dap.Message, error) {
	resp, err := s.Client.SendRequest(ctx, req, timeout, retry)
	s.trackError(req.GetRequest().Command, err)
	return resp, err
}

func (s *Session) trackError(command string, err error) {
	switch e := err.(type) {
	case *aidberr.AdapterError:
		s.diagnostics.Track(s.ID, command, e.Message)
	case *aidberr.ProtocolError:
		s.diagnostics.Track(s.ID, command, e.Reason)
	}
}

// State returns the current SessionState.
func (s *Session) State() State { return s.state.current() }

// subscribeLifecycleEvents wires the Client's event bus into Session
// bookkeeping that outlives a single handshake step: thread list
// changes, output buffering, and adapter-initiated breakpoint
// reverification (all per spec.md §4.3's event dispatch table, one
// layer up from the Client's own execution-state tracking).
func (s *Session) subscribeLifecycleEvents() {
	s.Client.SubscribeInternalEvent(protocol.EventThread, func(msg dap.Message) {
		evt, ok := msg.(*dap.ThreadEvent)
		if !ok {
			return
		}
		s.threadsMu.Lock()
		defer s.threadsMu.Unlock()
		if evt.Body.Reason == "exited" {
			for i, t := range s.threads {
				if t.ID == evt.Body.ThreadId {
					s.threads = append(s.threads[:i], s.threads[i+1:]...)
					break
				}
			}
			return
		}
		s.threads = append(s.threads, Thread{ID: evt.Body.ThreadId})
	})

	s.Client.SubscribeInternalEvent(protocol.EventOutput, func(msg dap.Message) {
		evt, ok := msg.(*dap.OutputEvent)
		if !ok {
			return
		}
		entry := models.OutputEntry{
			ID:        uuid.NewString(),
			Timestamp: time.Now(),
			SessionID: s.ID,
			Category:  models.OutputCategory(evt.Body.Category),
			Text:      evt.Body.Output,
		}
		if evt.Body.Source != nil {
			entry.Source = evt.Body.Source.Path
			entry.Line = evt.Body.Line
		}
		s.outputMu.Lock()
		s.output = append(s.output, entry)
		s.outputMu.Unlock()
	})

	s.Client.SubscribeInternalEvent(protocol.EventBreakpoint, func(msg dap.Message) {
		evt, ok := msg.(*dap.BreakpointEvent)
		if !ok || evt.Body.Breakpoint.Source == nil {
			return
		}
		file := evt.Body.Breakpoint.Source.Path
		existing := s.Breakpoints.File(file)
		for i, bp := range existing {
			if bp.ID == evt.Body.Breakpoint.Id {
				existing[i].Verified = evt.Body.Breakpoint.Verified
				existing[i].ActualLine = evt.Body.Breakpoint.Line
				existing[i].Message = evt.Body.Breakpoint.Message
			}
		}
		s.Breakpoints.MergeVerified(file, existing)
	})

	s.Client.SubscribeInternalEvent(protocol.EventStopped, func(msg dap.Message) {
		s.onStopped(msg)
	})
	s.Client.SubscribeInternalEvent(protocol.EventContinued, func(msg dap.Message) {
		s.onContinued()
	})
	s.Client.SubscribeInternalEvent(protocol.EventTerminated, func(msg dap.Message) {
		s.onTerminated("adapter sent terminated event")
	})
}

func (s *Session) onStopped(msg dap.Message) {
	evt, ok := msg.(*dap.StoppedEvent)
	if !ok {
		return
	}
	s.gen.advance()
	s.state.transition(State{
		Phase:    PhasePaused,
		ThreadID: evt.Body.ThreadId,
		Reason:   evt.Body.Reason,
	})
}

func (s *Session) onContinued() {
	s.gen.advance()
	s.state.transition(State{Phase: PhaseRunning})
}

func (s *Session) onTerminated(reason string) {
	s.state.transition(State{Phase: PhaseTerminated, TerminatedReason: reason})
}

// Start runs the initialization handshake described in spec.md §4.5
// steps 3-8 (steps 1-2, spawning the adapter and dialing the Client,
// are the caller's responsibility — typically the Session Registry —
// since they happen before a Session object exists to hand events to).
// initial carries the BreakpointMap's step-5 per-file specs; onError
// exception filters are the SetExceptionBreakpoints argument.
func (s *Session) Start(ctx context.Context, initial map[string][]BreakpointSpec, exceptionFilters []string) error {
	if _, ok := s.state.requirePhase(PhaseNew); !ok {
		cur := s.state.current()
		return &aidberr.InvalidSessionState{Current: cur.String(), Attempted: "start"}
	}
	s.state.transition(State{Phase: PhaseInitializing})

	initCtx, cancel := context.WithTimeout(ctx, handshakeStepTimeout)
	defer cancel()
	initResp, err := s.sendRequest(initCtx, &dap.InitializeRequest{
		Request: dap.Request{Command: protocol.CommandInitialize},
		Arguments: dap.InitializeRequestArguments{
			ClientID:                    "aidb",
			ClientName:                  "AIDB",
			AdapterID:                   string(s.Adapter.Capability.Language()),
			LinesStartAt1:               true,
			ColumnsStartAt1:             true,
			PathFormat:                  "path",
			SupportsRunInTerminalRequest: true,
		},
	}, handshakeStepTimeout, dapclient.NoRetry)
	if err != nil {
		s.onTerminated(fmt.Sprintf("initialize failed: %v", err))
		return err
	}
	if resp, ok := initResp.(*dap.InitializeResponse); ok {
		s.capsMu.Lock()
		s.caps = resp.Body
		s.capsMu.Unlock()
	}

	if !s.Client.Initialized() {
		waitCtx, waitCancel := context.WithTimeout(ctx, handshakeStepTimeout)
		_, err := s.Client.WaitForEvent(waitCtx, protocol.EventInitialized)
		waitCancel()
		if err != nil {
			s.onTerminated("initialized event never arrived")
			return &aidberr.InitializationTimeout{Phase: "awaiting initialized event"}
		}
	}

	s.state.transition(State{Phase: PhaseConfiguring})

	for file, specs := range initial {
		if _, err := s.applyBreakpoints(ctx, file, specs); err != nil {
			return err
		}
	}
	if len(exceptionFilters) > 0 {
		excCtx, excCancel := context.WithTimeout(ctx, handshakeStepTimeout)
		_, err := s.sendRequest(excCtx, &dap.SetExceptionBreakpointsRequest{
			Request:   dap.Request{Command: protocol.CommandSetExceptionBreakpoints},
			Arguments: dap.SetExceptionBreakpointsArguments{Filters: exceptionFilters},
		}, handshakeStepTimeout, dapclient.NoRetry)
		excCancel()
		if err != nil {
			return err
		}
	}

	s.capsMu.Lock()
	supportsConfigDone := s.caps.SupportsConfigurationDoneRequest
	s.capsMu.Unlock()
	if supportsConfigDone {
		cfgCtx, cfgCancel := context.WithTimeout(ctx, handshakeStepTimeout)
		_, err := s.sendRequest(cfgCtx, &dap.ConfigurationDoneRequest{
			Request: dap.Request{Command: protocol.CommandConfigurationDone},
		}, handshakeStepTimeout, dapclient.NoRetry)
		cfgCancel()
		if err != nil {
			return err
		}
	}

	if err := s.launchOrAttach(ctx); err != nil {
		return err
	}

	s.state.transition(State{Phase: PhaseRunning})
	return nil
}

func (s *Session) launchOrAttach(ctx context.Context) error {
	body, err := s.Adapter.Capability.LaunchConfiguration(s.Adapter.Target, s.Adapter.Config)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	launchCtx, cancel := context.WithTimeout(ctx, launchTimeout)
	defer cancel()

	if s.Adapter.Target.Mode == adapter.ModeAttach {
		_, err = s.sendRequest(launchCtx, &dap.AttachRequest{
			Request:   dap.Request{Command: protocol.CommandAttach},
			Arguments: raw,
		}, launchTimeout, dapclient.NoRetry)
		return err
	}

	_, err = s.sendRequest(launchCtx, &dap.LaunchRequest{
		Request:   dap.Request{Command: protocol.CommandLaunch},
		Arguments: raw,
	}, launchTimeout, dapclient.NoRetry)
	return err
}

// applyBreakpoints sends a full-replacement SetBreakpoints for file and
// merges the verified result back into the BreakpointMap (spec.md §4.5
// step 5 / the Breakpoint model paragraph / I5).
func (s *Session) applyBreakpoints(ctx context.Context, file string, specs []BreakpointSpec) ([]Breakpoint, error) {
	pending, err := s.Breakpoints.Set(file, specs)
	if err != nil {
		return nil, err
	}

	sbps := make([]dap.SourceBreakpoint, len(specs))
	for i, spec := range specs {
		sbps[i] = dap.SourceBreakpoint{
			Line:         spec.Line,
			Column:       spec.Column,
			Condition:    spec.Condition,
			HitCondition: spec.HitCondition,
			LogMessage:   spec.LogMessage,
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()
	resp, err := s.sendRequest(reqCtx, &dap.SetBreakpointsRequest{
		Request: dap.Request{Command: protocol.CommandSetBreakpoints},
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: file},
			Breakpoints: sbps,
		},
	}, defaultRequestTimeout, s.retryPolicy)
	if err != nil {
		return pending, err
	}

	sbResp, ok := resp.(*dap.SetBreakpointsResponse)
	if !ok {
		return pending, nil
	}
	verified := make([]Breakpoint, len(sbResp.Body.Breakpoints))
	for i, bp := range sbResp.Body.Breakpoints {
		verified[i] = Breakpoint{ID: bp.Id, Verified: bp.Verified, ActualLine: bp.Line, Message: bp.Message}
	}
	s.Breakpoints.MergeVerified(file, verified)
	return s.Breakpoints.File(file), nil
}

// Threads returns the current thread table.
func (s *Session) Threads() []Thread {
	s.threadsMu.Lock()
	defer s.threadsMu.Unlock()
	return append([]Thread(nil), s.threads...)
}

// Output returns the buffered output entries accumulated so far.
func (s *Session) Output() []models.OutputEntry {
	s.outputMu.Lock()
	defer s.outputMu.Unlock()
	return append([]models.OutputEntry(nil), s.output...)
}

// Generation returns the current pause-generation counter, bumped on
// every Stopped and every Continued event, so it changes whenever the
// session enters or leaves Paused (spec.md I4: frame/variable references
// captured in an earlier generation are invalid in any later one).
func (s *Session) Generation() int64 { return s.gen.current() }

// Capabilities returns the adapter's advertised Initialize response
// capabilities, used by operations like pause/restart that must check
// NotSupported before issuing a request the adapter never advertised.
func (s *Session) Capabilities() dap.Capabilities {
	s.capsMu.Lock()
	defer s.capsMu.Unlock()
	return s.caps
}

// Stop performs the session's part of the teardown contract of spec.md
// §5's "Resource discipline": attempt Disconnect with a short timeout,
// signal the adapter process (unless in attach mode), and fail any
// remaining pending requests (closing the transport fails them with
// TransportClosed) — on every exit path including a caller's ctx being
// already cancelled, and also after the adapter has sent terminated.
// The port reservation is released by the Session Registry's Remove,
// which StopOne and StopAll call after Stop. A second Stop is a no-op.
func (s *Session) Stop(ctx context.Context, terminateDebuggee bool) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	s.state.transition(State{Phase: PhaseTerminating})

	disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	disconnectErr := s.Client.Disconnect(disconnectCtx, 5*time.Second, terminateDebuggee)

	var processErr error
	if proc := s.Adapter.Process(); proc != nil && s.Adapter.Target.Mode != adapter.ModeAttach {
		processErr = proc.Stop(5 * time.Second)
	}

	s.onTerminated("stop requested")

	if disconnectErr != nil {
		return disconnectErr
	}
	return processErr
}
