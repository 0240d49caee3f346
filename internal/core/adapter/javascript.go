package adapter

import (
	"context"
	"fmt"

	"github.com/aidb-dev/aidb/internal/aidberr"
	"github.com/google/go-dap"
)

// JavaScriptAdapter drives vscode-js-debug, which runs as a DAP
// *server* process exposing a "parent" session that itself spawns
// child sessions (one per Node process) via the reverse StartDebugging
// request — the one case in AIDB where a reverse request must actually
// create new orchestration state, not just answer a query.
type JavaScriptAdapter struct {
	// OnChildSession, if set, is invoked when the parent session
	// receives startDebugging for a child Node process. No package in
	// this module sets it; while it is nil, LifecycleHooks returns no
	// hooks and no startDebugging handler is installed.
	OnChildSession func(ctx context.Context, req *dap.StartDebuggingRequest) error
}

func (JavaScriptAdapter) Language() Language { return JavaScript }

func (JavaScriptAdapter) BuildLaunchPlan(target Target, cfg AdapterConfig, port int) (LaunchPlan, error) {
	nodeBin := cfg.BinaryIdentifier
	if nodeBin == "" {
		nodeBin = "node"
	}
	// vscode-js-debug's dapDebugServer.js entry point listens for DAP
	// connections on the given port and spawns child sessions itself.
	return LaunchPlan{
		Command: nodeBin,
		Args:    []string{cfg.InstallDir + "/src/dapDebugServer.js", fmt.Sprintf("%d", port)},
		Cwd:     target.Cwd,
	}, nil
}

func (JavaScriptAdapter) AdapterEnv(cfg AdapterConfig) map[string]string {
	return nil
}

func (JavaScriptAdapter) ProcessNamePattern() string { return "dapDebugServer" }

func (a JavaScriptAdapter) LaunchConfiguration(target Target, cfg AdapterConfig) (map[string]any, error) {
	body := map[string]any{
		"type":    "pwa-node",
		"request": string(target.Mode),
		"console": "internalConsole",
	}
	if target.Mode == ModeLaunch {
		body["program"] = target.Program
		if len(target.Args) > 0 {
			body["args"] = target.Args
		}
		if target.Cwd != "" {
			body["cwd"] = target.Cwd
		}
	} else {
		body["address"] = target.AttachHost
		body["port"] = target.AttachPort
	}
	return applyRawOverrides(body, target.RawOverrides)
}

func (a JavaScriptAdapter) LifecycleHooks() []Hook {
	if a.OnChildSession == nil {
		return nil
	}
	return []Hook{
		{
			Name:     "register-start-debugging-handler",
			Phase:    PostLaunch,
			Priority: 0,
			Run: func(ctx context.Context, ad *Adapter) error {
				// The Session Registry binds Adapter.client right after
				// dialing, before any hook runs, so this is only nil if
				// SetClient was never called.
				client := ad.Client()
				if client == nil {
					return &aidberr.NotSupported{Capability: "startDebugging handler requires a connected client"}
				}
				client.SetReverseRequestHandler("startDebugging", func(ctx context.Context, msg dap.Message) (dap.ResponseMessage, error) {
					req, ok := msg.(*dap.StartDebuggingRequest)
					if !ok {
						return nil, fmt.Errorf("startDebugging payload had unexpected type %T", msg)
					}
					if err := a.OnChildSession(ctx, req); err != nil {
						return nil, err
					}
					return &dap.StartDebuggingResponse{Response: dap.Response{Success: true, Command: "startDebugging"}}, nil
				})
				return nil
			},
		},
	}
}
