// Package config loads capnls.toml and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// FileName is the project configuration file looked up from the workspace upwards.
const FileName = "capnls.toml"

// Environment variables that override file settings.
const (
	EnvTool       = "CAPNLS_TOOL"
	EnvTimeout    = "CAPNLS_TIMEOUT"
	EnvImportPath = "CAPNLS_IMPORT_PATH"
	EnvWarnings   = "CAPNLS_WARNINGS"
)

// Config is the resolved capnls configuration.
type Config struct {
	// Path is the loaded file; empty when running on defaults.
	Path string `toml:"-"`

	Compiler    CompilerConfig    `toml:"compiler"`
	Imports     ImportsConfig     `toml:"imports"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
}

// CompilerConfig selects the capnp executable.
type CompilerConfig struct {
	Tool    string `toml:"tool"`
	Timeout string `toml:"timeout"`
}

// ImportsConfig lists -I directories. Relative entries are resolved against
// the directory holding capnls.toml.
type ImportsConfig struct {
	Paths []string `toml:"paths"`
}

// DiagnosticsConfig tunes reporting.
type DiagnosticsConfig struct {
	Warnings bool `toml:"warnings"`
	Max      int  `toml:"max"`
}

// Default returns the configuration used when no capnls.toml exists.
func Default() Config {
	return Config{
		Compiler: CompilerConfig{
			Tool:    "capnp",
			Timeout: "30s",
		},
		Diagnostics: DiagnosticsConfig{
			Max: 100,
		},
	}
}

// Root returns the directory holding the loaded file.
func (c Config) Root() string {
	if c.Path == "" {
		return ""
	}
	return filepath.Dir(c.Path)
}

// Timeout parses Compiler.Timeout. An empty value yields zero, which lets the
// invoker pick its default; "0", "none" and negative durations yield -1,
// which disables the limit.
func (c Config) Timeout() (time.Duration, error) {
	raw := strings.TrimSpace(c.Compiler.Timeout)
	if raw == "" {
		return 0, nil
	}
	if raw == "none" || raw == "0" {
		return -1, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid [compiler].timeout %q: %w", raw, err)
	}
	if d <= 0 {
		return -1, nil
	}
	return d, nil
}

// Find walks up from startDir to locate capnls.toml.
func Find(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load decodes the file at path on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("compiler", "tool") && strings.TrimSpace(cfg.Compiler.Tool) == "" {
		return Config{}, fmt.Errorf("%s: [compiler].tool must not be empty", path)
	}
	if meta.IsDefined("diagnostics", "max") && cfg.Diagnostics.Max < 0 {
		return Config{}, fmt.Errorf("%s: [diagnostics].max must not be negative", path)
	}
	if _, err := cfg.Timeout(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve %q: %w", path, err)
	}
	cfg.Path = abs
	cfg.Imports.Paths = resolvePaths(cfg.Root(), cfg.Imports.Paths)
	return cfg, nil
}

// Discover finds and loads capnls.toml above startDir, or returns Default.
func Discover(startDir string) (Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// LoadEnvFile reads KEY=value pairs into the process environment without
// overriding variables that are already set.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %q: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays CAPNLS_* variables read through lookup.
func (c Config) ApplyEnv(lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvTool); ok && strings.TrimSpace(v) != "" {
		c.Compiler.Tool = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvTimeout); ok && strings.TrimSpace(v) != "" {
		c.Compiler.Timeout = strings.TrimSpace(v)
		if _, err := c.Timeout(); err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvTimeout, err)
		}
	}
	if v, ok := lookup(EnvImportPath); ok && v != "" {
		extra := filepath.SplitList(v)
		paths := make([]string, 0, len(c.Imports.Paths)+len(extra))
		paths = append(paths, c.Imports.Paths...)
		paths = append(paths, resolvePaths("", extra)...)
		c.Imports.Paths = paths
	}
	if v, ok := lookup(EnvWarnings); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvWarnings, err)
		}
		c.Diagnostics.Warnings = b
	}
	return c, nil
}

func resolvePaths(base string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		p = filepath.FromSlash(p)
		if !filepath.IsAbs(p) {
			if base != "" {
				p = filepath.Join(base, p)
			} else if abs, err := filepath.Abs(p); err == nil {
				p = abs
			}
		}
		out = append(out, filepath.Clean(p))
	}
	return out
}
