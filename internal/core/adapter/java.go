package adapter

import (
	"fmt"
	"path/filepath"
	"strings"
)

// JavaAdapter drives java-debug-server, a language-server-protocol
// companion process that exposes a DAP socket once a project has been
// compiled. Unlike debugpy/vscode-js-debug, there is no single launch
// command that both compiles and debugs — AIDB assumes the caller's
// Target.Program already names a compiled main class and a classpath
// is supplied via RawOverrides or AdapterConfig.FrameworkHints.
type JavaAdapter struct{}

func (JavaAdapter) Language() Language { return Java }

func (JavaAdapter) BuildLaunchPlan(target Target, cfg AdapterConfig, port int) (LaunchPlan, error) {
	javaBin := cfg.BinaryIdentifier
	if javaBin == "" {
		javaBin = "java"
	}

	args := []string{
		"-jar", filepath.Join(cfg.InstallDir, "plugins", "com.microsoft.java.debug.plugin.jar"),
		fmt.Sprintf("%d", port),
	}

	return LaunchPlan{
		Command: javaBin,
		Args:    args,
		Cwd:     target.Cwd,
	}, nil
}

func (JavaAdapter) AdapterEnv(cfg AdapterConfig) map[string]string {
	return nil
}

func (JavaAdapter) ProcessNamePattern() string { return "com.microsoft.java.debug.plugin" }

func (JavaAdapter) LaunchConfiguration(target Target, cfg AdapterConfig) (map[string]any, error) {
	body := map[string]any{
		"type":    "java",
		"request": string(target.Mode),
	}
	if target.Mode == ModeLaunch {
		// target.Program names the fully-qualified main class; AIDB does
		// not compile on the caller's behalf (spec.md's build/compile
		// steps are out of scope).
		body["mainClass"] = target.Program
		if classpath, ok := classpathFromHints(cfg.FrameworkHints); ok {
			body["classPaths"] = classpath
		}
		if len(target.Args) > 0 {
			body["args"] = strings.Join(target.Args, " ")
		}
		if target.Cwd != "" {
			body["cwd"] = target.Cwd
		}
	} else {
		body["hostName"] = target.AttachHost
		body["port"] = target.AttachPort
	}
	return applyRawOverrides(body, target.RawOverrides)
}

func (JavaAdapter) LifecycleHooks() []Hook { return nil }

// classpathFromHints extracts classpath entries from AdapterConfig's
// FrameworkHints, which for Java carries colon-separated classpath
// fragments discovered at registry configuration time (e.g. from a
// project's target/classes or build/libs directories).
func classpathFromHints(hints []string) ([]string, bool) {
	if len(hints) == 0 {
		return nil, false
	}
	return hints, true
}
