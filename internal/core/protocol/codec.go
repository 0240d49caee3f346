package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/aidb-dev/aidb/internal/aidberr"
	"github.com/google/go-dap"
)

// Decoded is the result of decoding one raw frame payload. Message is
// nil for a request command or envelope type AIDB does not model; an
// unmodeled response or event decodes to the generic *dap.Response or
// *dap.Event envelope. Raw always holds the original bytes so an unrecognized
// message can still be routed to a generic handler or logged verbatim,
// satisfying spec.md §4.1's forward-compatibility requirement without
// AIDB needing to implement dap.Message for types it does not know.
type Decoded struct {
	Type    MessageType
	Name    string // command (request/response) or event name
	Message dap.Message
	Raw     json.RawMessage
}

type envelope struct {
	Type       string `json:"type"`
	Command    string `json:"command"`
	Event      string `json:"event"`
}

// Decode turns one frame payload into a Decoded value. It never returns
// an error for an unrecognized command/event — that is the
// forward-compatibility path — only for payloads that are not valid
// DAP envelopes at all.
func Decode(raw []byte) (*Decoded, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &aidberr.ProtocolError{Reason: fmt.Sprintf("decoding message envelope: %v", err)}
	}

	dec := &Decoded{Type: MessageType(env.Type), Raw: raw}

	var msg dap.Message
	var err error

	switch dec.Type {
	case MessageTypeRequest:
		dec.Name = env.Command
		msg, err = decodeRequest(env.Command, raw)
	case MessageTypeResponse:
		dec.Name = env.Command
		msg, err = decodeResponse(env.Command, raw)
	case MessageTypeEvent:
		dec.Name = env.Event
		msg, err = decodeEvent(env.Event, raw)
	default:
		return dec, nil // unrecognized envelope type; tolerated
	}
	if err != nil {
		return nil, &aidberr.ProtocolError{Reason: fmt.Sprintf("decoding %s %q: %v", dec.Type, dec.Name, err)}
	}
	dec.Message = msg
	return dec, nil
}

// Encode marshals any dap.Message to its JSON wire form.
func Encode(msg dap.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func decodeRequest(command string, raw []byte) (dap.Message, error) {
	var target dap.Message
	switch command {
	case CommandInitialize:
		target = new(dap.InitializeRequest)
	case CommandLaunch:
		target = new(dap.LaunchRequest)
	case CommandAttach:
		target = new(dap.AttachRequest)
	case CommandDisconnect:
		target = new(dap.DisconnectRequest)
	case CommandTerminate:
		target = new(dap.TerminateRequest)
	case CommandConfigurationDone:
		target = new(dap.ConfigurationDoneRequest)
	case CommandSetBreakpoints:
		target = new(dap.SetBreakpointsRequest)
	case CommandSetFunctionBreakpoints:
		target = new(dap.SetFunctionBreakpointsRequest)
	case CommandSetExceptionBreakpoints:
		target = new(dap.SetExceptionBreakpointsRequest)
	case CommandContinue:
		target = new(dap.ContinueRequest)
	case CommandNext:
		target = new(dap.NextRequest)
	case CommandStepIn:
		target = new(dap.StepInRequest)
	case CommandStepOut:
		target = new(dap.StepOutRequest)
	case CommandPause:
		target = new(dap.PauseRequest)
	case CommandThreads:
		target = new(dap.ThreadsRequest)
	case CommandStackTrace:
		target = new(dap.StackTraceRequest)
	case CommandScopes:
		target = new(dap.ScopesRequest)
	case CommandVariables:
		target = new(dap.VariablesRequest)
	case CommandEvaluate:
		target = new(dap.EvaluateRequest)
	case CommandSetVariable:
		target = new(dap.SetVariableRequest)
	case CommandSetExpression:
		target = new(dap.SetExpressionRequest)
	case CommandSource:
		target = new(dap.SourceRequest)
	case CommandRestart:
		target = new(dap.RestartRequest)
	case CommandRunInTerminal:
		target = new(dap.RunInTerminalRequest)
	case CommandStartDebugging:
		target = new(dap.StartDebuggingRequest)
	default:
		return nil, nil // unrecognized command; tolerated by caller
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, err
	}
	return target, nil
}

func decodeResponse(command string, raw []byte) (dap.Message, error) {
	var target dap.Message
	switch command {
	case CommandInitialize:
		target = new(dap.InitializeResponse)
	case CommandLaunch:
		target = new(dap.LaunchResponse)
	case CommandAttach:
		target = new(dap.AttachResponse)
	case CommandDisconnect:
		target = new(dap.DisconnectResponse)
	case CommandTerminate:
		target = new(dap.TerminateResponse)
	case CommandConfigurationDone:
		target = new(dap.ConfigurationDoneResponse)
	case CommandSetBreakpoints:
		target = new(dap.SetBreakpointsResponse)
	case CommandSetFunctionBreakpoints:
		target = new(dap.SetFunctionBreakpointsResponse)
	case CommandSetExceptionBreakpoints:
		target = new(dap.SetExceptionBreakpointsResponse)
	case CommandContinue:
		target = new(dap.ContinueResponse)
	case CommandNext:
		target = new(dap.NextResponse)
	case CommandStepIn:
		target = new(dap.StepInResponse)
	case CommandStepOut:
		target = new(dap.StepOutResponse)
	case CommandPause:
		target = new(dap.PauseResponse)
	case CommandThreads:
		target = new(dap.ThreadsResponse)
	case CommandStackTrace:
		target = new(dap.StackTraceResponse)
	case CommandScopes:
		target = new(dap.ScopesResponse)
	case CommandVariables:
		target = new(dap.VariablesResponse)
	case CommandEvaluate:
		target = new(dap.EvaluateResponse)
	case CommandSetVariable:
		target = new(dap.SetVariableResponse)
	case CommandSetExpression:
		target = new(dap.SetExpressionResponse)
	case CommandSource:
		target = new(dap.SourceResponse)
	case CommandRestart:
		target = new(dap.RestartResponse)
	case CommandRunInTerminal:
		target = new(dap.RunInTerminalResponse)
	case CommandStartDebugging:
		target = new(dap.StartDebuggingResponse)
	default:
		// A response whose command we don't model still carries a
		// generic envelope (success/request_seq/message) every caller
		// needs for correlation; decode that much.
		target = new(dap.Response)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, err
	}
	return target, nil
}

func decodeEvent(event string, raw []byte) (dap.Message, error) {
	var target dap.Message
	switch event {
	case EventInitialized:
		target = new(dap.InitializedEvent)
	case EventStopped:
		target = new(dap.StoppedEvent)
	case EventContinued:
		target = new(dap.ContinuedEvent)
	case EventTerminated:
		target = new(dap.TerminatedEvent)
	case EventExited:
		target = new(dap.ExitedEvent)
	case EventOutput:
		target = new(dap.OutputEvent)
	case EventBreakpoint:
		target = new(dap.BreakpointEvent)
	case EventThread:
		target = new(dap.ThreadEvent)
	case EventLoadedSource:
		target = new(dap.LoadedSourceEvent)
	default:
		target = new(dap.Event) // generic envelope only; tolerated
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, err
	}
	return target, nil
}
