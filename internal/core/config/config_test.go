package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigPortRange(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.DefaultPortRange.Start >= cfg.DefaultPortRange.End {
		t.Fatalf("expected a non-empty default port range, got %+v", cfg.DefaultPortRange)
	}
	if cfg.RequestTimeoutSeconds <= 0 {
		t.Fatalf("expected a positive default request timeout")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "INFO" {
		t.Fatalf("expected default log level INFO, got %s", cfg.LogLevel)
	}
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	contents := "log_level = \"DEBUG\"\n\n[port_range]\nstart = 20000\nend = 20100\n"
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(contents), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "DEBUG" {
		t.Fatalf("expected DEBUG log level, got %s", cfg.LogLevel)
	}
	if cfg.DefaultPortRange.Start != 20000 || cfg.DefaultPortRange.End != 20100 {
		t.Fatalf("expected port range 20000-20100, got %+v", cfg.DefaultPortRange)
	}
}

func TestApplyEnvOverridesFile(t *testing.T) {
	cfg := DefaultConfig()
	t.Setenv("AIDB_LOG_LEVEL", "ERROR")
	t.Setenv("AIDB_PORT_RANGE_START", "9000")
	t.Setenv("AIDB_DAP_REQUEST_WAIT_TIMEOUT", "5")

	ApplyEnv(cfg)

	if cfg.LogLevel != "ERROR" {
		t.Fatalf("expected env override ERROR, got %s", cfg.LogLevel)
	}
	if cfg.DefaultPortRange.Start != 9000 {
		t.Fatalf("expected env override 9000, got %d", cfg.DefaultPortRange.Start)
	}
	if cfg.RequestTimeoutSeconds != 5 {
		t.Fatalf("expected env override 5, got %d", cfg.RequestTimeoutSeconds)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.LogLevel = "WARN"

	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, ConfigFileName))
	if err != nil {
		t.Fatalf("stat saved config: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	reloaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
	if reloaded.LogLevel != "WARN" {
		t.Fatalf("expected reloaded log level WARN, got %s", reloaded.LogLevel)
	}
}
