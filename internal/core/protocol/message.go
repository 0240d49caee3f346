package protocol

// Command names for every request spec.md §4.1 requires modeling.
const (
	CommandInitialize               = "initialize"
	CommandLaunch                   = "launch"
	CommandAttach                   = "attach"
	CommandDisconnect                = "disconnect"
	CommandTerminate                = "terminate"
	CommandConfigurationDone         = "configurationDone"
	CommandSetBreakpoints            = "setBreakpoints"
	CommandSetFunctionBreakpoints    = "setFunctionBreakpoints"
	CommandSetExceptionBreakpoints   = "setExceptionBreakpoints"
	CommandContinue                  = "continue"
	CommandNext                      = "next"
	CommandStepIn                    = "stepIn"
	CommandStepOut                   = "stepOut"
	CommandPause                     = "pause"
	CommandThreads                   = "threads"
	CommandStackTrace                = "stackTrace"
	CommandScopes                    = "scopes"
	CommandVariables                 = "variables"
	CommandEvaluate                  = "evaluate"
	CommandSetVariable               = "setVariable"
	CommandSetExpression             = "setExpression"
	CommandSource                    = "source"
	CommandRestart                   = "restart"
	CommandRunInTerminal             = "runInTerminal"
	CommandStartDebugging            = "startDebugging"
)

// Event names for every event spec.md §4.1 requires modeling.
const (
	EventInitialized  = "initialized"
	EventStopped      = "stopped"
	EventContinued    = "continued"
	EventTerminated   = "terminated"
	EventExited       = "exited"
	EventOutput       = "output"
	EventBreakpoint   = "breakpoint"
	EventThread       = "thread"
	EventLoadedSource = "loadedSource"
)

// MessageType is the DAP envelope "type" discriminator.
type MessageType string

const (
	MessageTypeRequest  MessageType = "request"
	MessageTypeResponse MessageType = "response"
	MessageTypeEvent    MessageType = "event"
)

// EvaluateContext is the advisory hint passed on an Evaluate request,
// spec.md §4.6 "hover and watch are advisory hints to the adapter about
// side-effect tolerance".
type EvaluateContext string

const (
	EvaluateContextRepl  EvaluateContext = "repl"
	EvaluateContextWatch EvaluateContext = "watch"
	EvaluateContextHover EvaluateContext = "hover"
)

// StepGranularity is the Debug Service's step(...) granularity parameter
// (spec.md §4.6).
type StepGranularity string

const (
	StepInto StepGranularity = "into"
	StepOver StepGranularity = "over"
	StepOut  StepGranularity = "out"
)
