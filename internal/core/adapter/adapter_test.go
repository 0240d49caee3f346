package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/aidb-dev/aidb/internal/aidberr"
)

func TestPortAllocatorPrefersDefaultPort(t *testing.T) {
	alloc := NewPortAllocator()

	port, err := alloc.Allocate(20005, 20000, 20010)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if port != 20005 {
		t.Fatalf("expected default port 20005, got %d", port)
	}
}

func TestPortAllocatorSkipsReservedPorts(t *testing.T) {
	alloc := NewPortAllocator()

	first, err := alloc.Allocate(0, 20100, 20110)
	if err != nil {
		t.Fatalf("first Allocate: %v", err)
	}
	second, err := alloc.Allocate(0, 20100, 20110)
	if err != nil {
		t.Fatalf("second Allocate: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct ports, got %d twice", first)
	}

	alloc.Release(first)
	third, err := alloc.Allocate(first, first, first)
	if err != nil {
		t.Fatalf("Allocate after Release: %v", err)
	}
	if third != first {
		t.Fatalf("expected released port %d to be reusable, got %d", first, third)
	}
}

func TestPortAllocatorReturnsExhaustedWhenRangeFull(t *testing.T) {
	alloc := NewPortAllocator()

	// Occupy the single-port range with a real listener so probe fails.
	ln, err := net.Listen("tcp4", "127.0.0.1:20200")
	if err != nil {
		t.Skipf("could not bind fixed test port: %v", err)
	}
	defer ln.Close()

	_, err = alloc.Allocate(0, 20200, 20200)
	var exhausted *aidberr.PortExhausted
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected PortExhausted, got %v", err)
	}
}

func TestResolveSourcePathLocalFile(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "main.py")
	if err := os.WriteFile(path, []byte("print(1)\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	resolved := ResolveSourcePath(path)
	if resolved.LocalPath != path {
		t.Fatalf("expected LocalPath %q, got %+v", path, resolved)
	}
}

func TestResolveSourcePathArchiveMember(t *testing.T) {
	tmp := t.TempDir()
	jarPath := filepath.Join(tmp, "app.jar")
	if err := os.WriteFile(jarPath, []byte("not a real jar"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	resolved := ResolveSourcePath(jarPath + "!/com/example/Main.java")
	if resolved.ArchivePath != jarPath || resolved.ArchiveMember != "com/example/Main.java" {
		t.Fatalf("unexpected resolution: %+v", resolved)
	}
}

func TestResolveSourcePathOpaqueFallback(t *testing.T) {
	resolved := ResolveSourcePath("webpack://app/./src/index.ts")
	if resolved.Opaque != "webpack://app/./src/index.ts" {
		t.Fatalf("expected opaque fallback, got %+v", resolved)
	}
}

func TestApplyRawOverridesMergesAndOverrides(t *testing.T) {
	base := map[string]any{"justMyCode": true, "console": "internalConsole"}
	raw := json.RawMessage(`{"justMyCode": false, "django": true}`)

	merged, err := applyRawOverrides(base, raw)
	if err != nil {
		t.Fatalf("applyRawOverrides: %v", err)
	}
	if merged["justMyCode"] != false {
		t.Fatalf("expected override to win, got %+v", merged["justMyCode"])
	}
	if merged["django"] != true {
		t.Fatalf("expected new field to be added, got %+v", merged["django"])
	}
	if merged["console"] != "internalConsole" {
		t.Fatalf("expected untouched base field to survive, got %+v", merged["console"])
	}
}

func TestApplyRawOverridesRejectsMalformedJSON(t *testing.T) {
	base := map[string]any{"a": 1}
	_, err := applyRawOverrides(base, json.RawMessage(`{not json`))
	if err == nil {
		t.Fatal("expected error for malformed overrides JSON")
	}
}

func TestApplyRawOverridesNoopOnEmpty(t *testing.T) {
	base := map[string]any{"a": 1}
	merged, err := applyRawOverrides(base, nil)
	if err != nil {
		t.Fatalf("applyRawOverrides: %v", err)
	}
	if merged["a"] != 1 {
		t.Fatalf("expected base untouched, got %+v", merged)
	}
}

func TestRunHooksOrdersByPriorityWithinPhase(t *testing.T) {
	var order []string
	caps := stubCapability{
		hooks: []Hook{
			{Name: "second", Phase: PreLaunch, Priority: 10, Run: func(ctx context.Context, a *Adapter) error {
				order = append(order, "second")
				return nil
			}},
			{Name: "first", Phase: PreLaunch, Priority: 0, Run: func(ctx context.Context, a *Adapter) error {
				order = append(order, "first")
				return nil
			}},
			{Name: "wrong-phase", Phase: PostLaunch, Priority: -100, Run: func(ctx context.Context, a *Adapter) error {
				order = append(order, "wrong-phase")
				return nil
			}},
		},
	}
	a := &Adapter{Capability: caps}

	if err := RunHooks(context.Background(), a, PreLaunch); err != nil {
		t.Fatalf("RunHooks: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("unexpected hook order: %v", order)
	}
}

func TestRunHooksAbortsOnFirstError(t *testing.T) {
	var ran []string
	boom := errors.New("boom")
	caps := stubCapability{
		hooks: []Hook{
			{Name: "a", Phase: PreDisconnect, Priority: 0, Run: func(ctx context.Context, a *Adapter) error {
				ran = append(ran, "a")
				return boom
			}},
			{Name: "b", Phase: PreDisconnect, Priority: 1, Run: func(ctx context.Context, a *Adapter) error {
				ran = append(ran, "b")
				return nil
			}},
		},
	}
	a := &Adapter{Capability: caps}

	err := RunHooks(context.Background(), a, PreDisconnect)
	if err == nil || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom error, got %v", err)
	}
	if len(ran) != 1 {
		t.Fatalf("expected hook b to be skipped after a's failure, ran=%v", ran)
	}
}

func TestPythonAdapterBuildLaunchPlanUsesAllocatedPort(t *testing.T) {
	target := Target{Mode: ModeLaunch, Program: "app.py", Args: []string{"--flag"}}
	plan, err := PythonAdapter{}.BuildLaunchPlan(target, AdapterConfig{}, 5999)
	if err != nil {
		t.Fatalf("BuildLaunchPlan: %v", err)
	}
	if plan.Command != "python3" {
		t.Fatalf("expected default python3 binary, got %q", plan.Command)
	}
	found := false
	for _, a := range plan.Args {
		if a == "127.0.0.1:5999" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected listen address with allocated port in args %v", plan.Args)
	}
}

func TestPythonAdapterLaunchConfigurationAttachMode(t *testing.T) {
	target := Target{Mode: ModeAttach, AttachHost: "127.0.0.1", AttachPort: 5678}
	body, err := PythonAdapter{}.LaunchConfiguration(target, AdapterConfig{})
	if err != nil {
		t.Fatalf("LaunchConfiguration: %v", err)
	}
	connect, ok := body["connect"].(map[string]any)
	if !ok {
		t.Fatalf("expected connect map, got %+v", body["connect"])
	}
	if connect["port"] != 5678 {
		t.Fatalf("expected attach port 5678, got %+v", connect["port"])
	}
}

func TestJavaScriptAdapterLaunchConfigurationLaunchMode(t *testing.T) {
	target := Target{Mode: ModeLaunch, Program: "index.js", Cwd: "/srv/app"}
	body, err := JavaScriptAdapter{}.LaunchConfiguration(target, AdapterConfig{})
	if err != nil {
		t.Fatalf("LaunchConfiguration: %v", err)
	}
	if body["program"] != "index.js" || body["cwd"] != "/srv/app" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestJavaAdapterLaunchConfigurationUsesMainClassAndClasspath(t *testing.T) {
	target := Target{Mode: ModeLaunch, Program: "com.example.Main"}
	cfg := AdapterConfig{FrameworkHints: []string{"/srv/app/build/classes"}}
	body, err := JavaAdapter{}.LaunchConfiguration(target, cfg)
	if err != nil {
		t.Fatalf("LaunchConfiguration: %v", err)
	}
	if body["mainClass"] != "com.example.Main" {
		t.Fatalf("expected mainClass, got %+v", body["mainClass"])
	}
	paths, ok := body["classPaths"].([]string)
	if !ok || len(paths) != 1 || paths[0] != "/srv/app/build/classes" {
		t.Fatalf("expected classpath from hints, got %+v", body["classPaths"])
	}
}

// stubCapability satisfies Capability with only LifecycleHooks wired,
// enough to exercise RunHooks in isolation.
type stubCapability struct {
	hooks []Hook
}

func (stubCapability) Language() Language { return Python }
func (stubCapability) BuildLaunchPlan(Target, AdapterConfig, int) (LaunchPlan, error) {
	return LaunchPlan{}, nil
}
func (stubCapability) AdapterEnv(AdapterConfig) map[string]string { return nil }
func (stubCapability) ProcessNamePattern() string                 { return "" }
func (stubCapability) LaunchConfiguration(Target, AdapterConfig) (map[string]any, error) {
	return nil, nil
}
func (s stubCapability) LifecycleHooks() []Hook { return s.hooks }
