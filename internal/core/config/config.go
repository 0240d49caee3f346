// Package config loads AIDB's on-disk configuration and layers the
// environment variable overrides from spec.md §6.3 on top of it. The
// file format and Load/Save shape follow caboose-desktop's
// internal/core/config package directly: a TOML file with a
// DefaultConfig/Load/Save trio and 0600 permissions on save.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the per-project AIDB config file, the successor to
// caboose-desktop's .caboose.toml.
const ConfigFileName = ".aidb.toml"

// PortRange is an inclusive [Start, End] TCP port range an Adapter scans
// for a free loopback port after its default port is taken.
type PortRange struct {
	Start int `toml:"start"`
	End   int `toml:"end"`
}

// AdapterPaths holds explicit per-language adapter binary overrides,
// mirroring AIDB_<LANG>_ADAPTER_PATH.
type AdapterPaths struct {
	Python     string `toml:"python,omitempty"`
	JavaScript string `toml:"javascript,omitempty"`
	Java       string `toml:"java,omitempty"`
}

// Config is AIDB's top-level configuration.
type Config struct {
	// LogLevel mirrors AIDB_LOG_LEVEL when set in the file instead of
	// the environment.
	LogLevel string `toml:"log_level,omitempty"`

	// AdapterTrace tees wire messages to a per-language trace file when
	// true (AIDB_ADAPTER_TRACE).
	AdapterTrace bool `toml:"adapter_trace"`

	// DefaultPortRange is the fallback range an Adapter scans when its
	// language's default port is already bound.
	DefaultPortRange PortRange `toml:"port_range"`

	// RequestTimeoutSeconds is the default DAP request timeout
	// (AIDB_DAP_REQUEST_WAIT_TIMEOUT).
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`

	// AdapterPaths are explicit overrides per language.
	AdapterPaths AdapterPaths `toml:"adapter_paths,omitempty"`

	// AdaptersHome is the root of $HOME/.aidb/adapters/<language>/.
	AdaptersHome string `toml:"adapters_home,omitempty"`
}

// DefaultConfig returns AIDB's baseline configuration before any file or
// environment layering.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		LogLevel:     "INFO",
		AdapterTrace: false,
		DefaultPortRange: PortRange{
			Start: 14000,
			End:   14999,
		},
		RequestTimeoutSeconds: 30,
		AdaptersHome:          filepath.Join(home, ".aidb", "adapters"),
	}
}

// Load loads configuration from dir/.aidb.toml if present, then applies
// environment variable overrides. A missing file is not an error; the
// defaults (with env overrides) are returned.
func Load(dir string) (*Config, error) {
	cfg := DefaultConfig()

	configPath := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	ApplyEnv(cfg)
	return cfg, nil
}

// ApplyEnv layers the §6.3 environment variables over cfg in place. Env
// vars always win over the file, matching the teacher's pattern of
// config.SSHConfig fields being clamped at call sites rather than
// silently trusting the file.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("AIDB_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AIDB_ADAPTER_TRACE"); v != "" {
		cfg.AdapterTrace = v == "1"
	}
	if v := os.Getenv("AIDB_PORT_RANGE_START"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultPortRange.Start = n
		}
	}
	if v := os.Getenv("AIDB_PORT_RANGE_END"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultPortRange.End = n
		}
	}
	if v := os.Getenv("AIDB_DAP_REQUEST_WAIT_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RequestTimeoutSeconds = n
		}
	}
	if v := os.Getenv("AIDB_PYTHON_ADAPTER_PATH"); v != "" {
		cfg.AdapterPaths.Python = v
	}
	if v := os.Getenv("AIDB_JAVASCRIPT_ADAPTER_PATH"); v != "" {
		cfg.AdapterPaths.JavaScript = v
	}
	if v := os.Getenv("AIDB_JAVA_ADAPTER_PATH"); v != "" {
		cfg.AdapterPaths.Java = v
	}
}

// Save writes the configuration to dir/.aidb.toml with owner-only
// permissions, same as caboose-desktop's Config.Save.
func (c *Config) Save(dir string) error {
	configPath := filepath.Join(dir, ConfigFileName)

	file, err := os.OpenFile(configPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	return encoder.Encode(c)
}
