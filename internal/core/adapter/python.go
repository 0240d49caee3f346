package adapter

import (
	"fmt"
	"path/filepath"
)

// PythonAdapter drives debugpy in its "listen" server mode: AIDB spawns
// `python -m debugpy --listen host:port <target script/module>` and
// connects as the DAP client once the socket accepts connections.
type PythonAdapter struct{}

func (PythonAdapter) Language() Language { return Python }

func (PythonAdapter) BuildLaunchPlan(target Target, cfg AdapterConfig, port int) (LaunchPlan, error) {
	pythonBin := cfg.BinaryIdentifier
	if pythonBin == "" {
		pythonBin = "python3"
	}

	args := []string{
		"-m", "debugpy",
		"--listen", fmt.Sprintf("127.0.0.1:%d", port),
		"--wait-for-client",
		target.Program,
	}
	args = append(args, target.Args...)

	return LaunchPlan{
		Command: pythonBin,
		Args:    args,
		Cwd:     target.Cwd,
	}, nil
}

func (PythonAdapter) AdapterEnv(cfg AdapterConfig) map[string]string {
	return map[string]string{"PYTHONUNBUFFERED": "1"}
}

func (PythonAdapter) ProcessNamePattern() string { return "debugpy" }

func (PythonAdapter) LaunchConfiguration(target Target, cfg AdapterConfig) (map[string]any, error) {
	body := map[string]any{
		"request":     string(target.Mode),
		"justMyCode":  true,
		"console":     "internalConsole",
		"subProcess":  false,
	}
	if target.Mode == ModeLaunch {
		body["program"] = target.Program
		if len(target.Args) > 0 {
			body["args"] = target.Args
		}
		if target.Cwd != "" {
			body["cwd"] = target.Cwd
		} else {
			body["cwd"] = filepath.Dir(target.Program)
		}
	} else {
		body["connect"] = map[string]any{"host": target.AttachHost, "port": target.AttachPort}
	}
	return applyRawOverrides(body, target.RawOverrides)
}

func (PythonAdapter) LifecycleHooks() []Hook { return nil }
