// Package adapter models per-language debug adapters as a capability
// set (spec.md §4.4): resolving a logical debug target into a spawn
// command, allocating a port, producing the launch/attach configuration
// body, and running lifecycle hooks around launch and disconnect.
package adapter

import (
	"context"
	"encoding/json"

	"github.com/aidb-dev/aidb/internal/core/dapclient"
)

// Language is the tagged variant over AIDB's supported adapter set.
type Language string

const (
	Python     Language = "python"
	JavaScript Language = "javascript"
	Java       Language = "java"
)

// Target is the logical thing to debug, as given by a caller: a file
// path, a module name, a test-runner invocation, a running process id,
// or an existing host:port to attach to. Exactly one of these is set;
// which fields are meaningful depends on Mode and the Adapter variant.
type Target struct {
	Mode Mode

	Program string // file path or module name to launch
	Args    []string
	Cwd     string
	Env     map[string]string

	AttachPID  int    // Mode == Attach, process-id form
	AttachHost string // Mode == Attach, host:port form
	AttachPort int

	// RawOverrides is an optional caller-supplied JSON object merged on
	// top of the Adapter's own launch/attach configuration body — the
	// escape hatch for adapter-version-specific fields AIDB's typed
	// Target does not model directly (e.g. a debugpy "justMyCode" toggle
	// or a vscode-js-debug "outFiles" glob list).
	RawOverrides json.RawMessage
}

// Mode distinguishes launching a new process from attaching to one.
type Mode string

const (
	ModeLaunch Mode = "launch"
	ModeAttach Mode = "attach"
)

// LaunchPlan is the concrete (command, args, env, cwd) an Adapter
// resolves a Target into, ready for os/exec.
type LaunchPlan struct {
	Command string
	Args    []string
	Env     []string
	Cwd     string
}

// HookPhase names one of the four well-known lifecycle phases spec.md
// §4.4 requires: pre_launch, post_launch, pre_disconnect, post_disconnect.
type HookPhase string

const (
	PreLaunch     HookPhase = "pre_launch"
	PostLaunch    HookPhase = "post_launch"
	PreDisconnect HookPhase = "pre_disconnect"
	PostDisconnect HookPhase = "post_disconnect"
)

// Hook is one lifecycle callback, ordered within its phase by Priority
// (lower runs first). An error from Run aborts the remaining hooks in
// that phase (spec.md §4.4).
type Hook struct {
	Name     string
	Phase    HookPhase
	Priority int
	Run      func(ctx context.Context, a *Adapter) error
}

// Capability is the polymorphic surface every Adapter variant
// implements (spec.md §4.4's capability set).
type Capability interface {
	// Language identifies which variant this is.
	Language() Language

	// BuildLaunchPlan resolves target into a concrete process
	// invocation bound to the already-allocated DAP listen port. Only
	// called for Mode == ModeLaunch.
	BuildLaunchPlan(target Target, cfg AdapterConfig, port int) (LaunchPlan, error)

	// AdapterEnv returns extra environment variables the adapter
	// process itself needs (distinct from the debuggee's env).
	AdapterEnv(cfg AdapterConfig) map[string]string

	// ProcessNamePattern returns a substring/pattern used to recognize
	// stray adapter processes for cleanup_orphans.
	ProcessNamePattern() string

	// LaunchConfiguration returns the JSON-serializable DAP
	// launch/attach argument body: type, program, args, cwd, env, and
	// adapter-specific fields (justMyCode, sourceMaps, mainClass, ...).
	LaunchConfiguration(target Target, cfg AdapterConfig) (map[string]any, error)

	// LifecycleHooks returns this variant's hooks, if any. Most
	// variants return nil; PythonAdapter and JavaAdapter currently do not
	// need any, JavaScriptAdapter uses post_launch to register a handler
	// for the child session's startDebugging reverse request.
	LifecycleHooks() []Hook
}

// AdapterConfig is the immutable, per-language descriptor created at
// registry initialization (spec.md §3.1).
type AdapterConfig struct {
	Language           Language
	FileExtensions     []string
	BinaryIdentifier   string
	InstallDir         string
	DefaultPort        int
	FallbackPortStart  int
	FallbackPortEnd    int
	FrameworkHints     []string
}

// Adapter is the mutable instance bound to exactly one Session (spec.md
// §3.1). It is constructed by the Session Registry's CreateAndStart
// (internal/core/registry) and owned exclusively by its Session
// thereafter.
type Adapter struct {
	Capability Capability
	Config     AdapterConfig
	Target     Target

	Host string
	Port int

	// client is the connected DAP client for this adapter instance, set
	// by the Session Registry's CreateAndStart right after it dials the
	// adapter, before any lifecycle hook runs. Lifecycle hooks that
	// register reverse-request handlers (JavaScriptAdapter's post_launch
	// hook) therefore run after this is populated.
	client  *dapclient.Client
	process *ManagedProcess
}

// SetClient binds the connected DAP client to this Adapter. Called by
// the Session Registry's CreateAndStart right after Dial succeeds,
// before any lifecycle hook runs.
func (a *Adapter) SetClient(c *dapclient.Client) { a.client = c }

// Client returns the bound DAP client, or nil if none has been set yet.
func (a *Adapter) Client() *dapclient.Client { return a.client }

// SetProcess binds the spawned adapter process. Left nil for attach
// mode, where AIDB did not spawn the process and must not signal it on
// teardown.
func (a *Adapter) SetProcess(p *ManagedProcess) { a.process = p }

// Process returns the spawned adapter process, or nil for attach mode.
func (a *Adapter) Process() *ManagedProcess { return a.process }
