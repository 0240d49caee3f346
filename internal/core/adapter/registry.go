package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aidb-dev/aidb/internal/aidberr"
	"github.com/aidb-dev/aidb/internal/core/config"
)

// defaultPorts are the conventional listen ports each adapter binds to
// absent an explicit AdapterConfig override (spec.md §3.1).
var defaultPorts = map[Language]int{
	Python:     5678,
	JavaScript: 8123,
	Java:       0, // java-debug-server has no fixed default; always fallback-scanned
}

// Registry resolves a Language to its Capability implementation and
// AdapterConfig, built by discovering installed adapters under
// cfg.AdaptersHome/<language>/ (or an AIDB_<LANG>_ADAPTER_PATH
// override) at startup.
type Registry struct {
	mu    sync.RWMutex
	cfgs  map[Language]AdapterConfig
	caps  map[Language]Capability
}

// NewRegistry builds a Registry from cfg, probing each language's
// install directory. A language whose adapter is not discoverable is
// simply omitted — Get reports aidberr.AdapterNotInstalled for it, rather
// than failing registry construction outright, since a caller may only
// ever need one of the three languages installed.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{
		cfgs: make(map[Language]AdapterConfig),
		caps: make(map[Language]Capability),
	}

	r.registerIfPresent(Python, PythonAdapter{}, cfg.AdapterPaths.Python, cfg,
		[]string{".py"}, "python3")
	r.registerIfPresent(JavaScript, JavaScriptAdapter{}, cfg.AdapterPaths.JavaScript, cfg,
		[]string{".js", ".mjs", ".ts"}, "node")
	r.registerIfPresent(Java, JavaAdapter{}, cfg.AdapterPaths.Java, cfg,
		[]string{".java"}, "java")

	return r
}

func (r *Registry) registerIfPresent(lang Language, capability Capability, explicitPath string, cfg *config.Config, extensions []string, binary string) {
	installDir := explicitPath
	if installDir == "" {
		installDir = filepath.Join(cfg.AdaptersHome, string(lang))
	}
	if _, err := os.Stat(installDir); err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[lang] = capability
	r.cfgs[lang] = AdapterConfig{
		Language:          lang,
		FileExtensions:    extensions,
		BinaryIdentifier:  binary,
		InstallDir:        installDir,
		DefaultPort:       defaultPorts[lang],
		FallbackPortStart: cfg.DefaultPortRange.Start,
		FallbackPortEnd:   cfg.DefaultPortRange.End,
	}
}

// Get returns the Capability and AdapterConfig registered for lang, or
// aidberr.AdapterNotInstalled if no installation was discovered for it.
func (r *Registry) Get(lang Language) (Capability, AdapterConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	capability, ok := r.caps[lang]
	if !ok {
		return nil, AdapterConfig{}, &aidberr.AdapterNotInstalled{Language: string(lang)}
	}
	return capability, r.cfgs[lang], nil
}

// Languages returns the set of languages with a discovered adapter.
func (r *Registry) Languages() []Language {
	r.mu.RLock()
	defer r.mu.RUnlock()

	langs := make([]Language, 0, len(r.caps))
	for lang := range r.caps {
		langs = append(langs, lang)
	}
	return langs
}

// Register installs or overrides a language's Capability/AdapterConfig
// directly, bypassing filesystem discovery — used by tests and by
// callers that resolve an adapter installation through means other than
// the conventional AdaptersHome layout.
func (r *Registry) Register(lang Language, capability Capability, cfg AdapterConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[lang] = capability
	r.cfgs[lang] = cfg
}

func (r *Registry) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("adapter.Registry{languages=%v}", r.Languages())
}
