// Package config loads the engine's YAML configuration.
//
// Every field has a default (see Default), so a config file only lists what
// it changes. Unknown keys are rejected to catch typos.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/shaderhunt/internal/hunting"
	"github.com/roach88/shaderhunt/internal/ir"
)

// Config is the full engine configuration.
type Config struct {
	// OverridesDir holds operator-authored artifacts.
	OverridesDir string `yaml:"overrides_dir"`

	// CacheDir holds machine-generated artifacts. Defaults to OverridesDir.
	CacheDir string `yaml:"cache_dir"`

	// HashStrategy is one of "fnv", "header", "sections".
	HashStrategy string `yaml:"hash_strategy"`

	Hunting   HuntingConfig   `yaml:"hunting"`
	AutoPatch AutoPatchConfig `yaml:"autopatch"`
	Export    ExportConfig    `yaml:"export"`
	Watch     WatchConfig     `yaml:"watch"`
	Journal   JournalConfig   `yaml:"journal"`
	Tune      TuneConfig      `yaml:"tune"`

	// ForcedTargets maps a fingerprint (hex) to the compile target used for
	// its human source instead of the kind default.
	ForcedTargets map[string]string `yaml:"forced_targets"`

	Bindings []BindingConfig `yaml:"bindings"`
}

// HuntingConfig controls the selection tracker.
type HuntingConfig struct {
	Enabled     bool          `yaml:"enabled"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// RetainOriginal keeps each program's original bytecode in memory so
	// it can be promoted. Implied by Enabled.
	RetainOriginal bool `yaml:"retain_original"`
}

// AutoPatchConfig controls resolution stage 4.
type AutoPatchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	RulesDir string `yaml:"rules_dir"`

	// Persist writes decompiled text to the cache dir for reference, both
	// when a rule changed it and when nothing applied.
	Persist bool `yaml:"persist"`
}

// ExportConfig controls diagnostic exports into the cache dir.
type ExportConfig struct {
	OriginalBinary bool `yaml:"original_binary"`
	Disassembly    bool `yaml:"disassembly"`
}

// WatchConfig controls filesystem-driven reloads.
type WatchConfig struct {
	Enabled      bool          `yaml:"enabled"`
	SettleWindow time.Duration `yaml:"settle_window"`
}

// JournalConfig controls the session journal. An empty Path disables it.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// TuneConfig sizes the operator-adjustable tune values.
type TuneConfig struct {
	Count int     `yaml:"count"`
	Step  float64 `yaml:"step"`
}

// BindingConfig is the YAML form of hunting.Binding.
type BindingConfig struct {
	Action       string        `yaml:"action"`
	RepeatRate   float64       `yaml:"repeat_rate"`
	ReleaseDelay time.Duration `yaml:"release_delay"`
	Hold         bool          `yaml:"hold"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		OverridesDir: "ShaderFixes",
		HashStrategy: ir.HashFNV.String(),
		Hunting: HuntingConfig{
			Enabled:     false,
			IdleTimeout: hunting.DefaultIdleTimeout,
		},
		AutoPatch: AutoPatchConfig{
			RulesDir: "fixes",
		},
		Watch: WatchConfig{
			SettleWindow: 100 * time.Millisecond,
		},
		Tune: TuneConfig{
			Count: 4,
			Step:  0.1,
		},
		Bindings: []BindingConfig{
			{Action: "next_ps", RepeatRate: 10},
			{Action: "prev_ps", RepeatRate: 10},
			{Action: "next_vs", RepeatRate: 10},
			{Action: "prev_vs", RepeatRate: 10},
			{Action: "toggle_original", Hold: true, ReleaseDelay: 100 * time.Millisecond},
		},
	}
}

// Load reads path over Default. Relative directories in the file are
// resolved against the file's directory.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Decode parses YAML over Default and validates the result.
func Decode(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true) // Reject unknown fields
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.OverridesDir = abs(c.OverridesDir)
	c.CacheDir = abs(c.CacheDir)
	c.AutoPatch.RulesDir = abs(c.AutoPatch.RulesDir)
	c.Journal.Path = abs(c.Journal.Path)
}

// Validate checks field values. It reports every problem found, not just
// the first.
func (c Config) Validate() error {
	var errs []error
	if c.OverridesDir == "" {
		errs = append(errs, errors.New("overrides_dir is required"))
	}
	if _, err := ir.ParseHashStrategy(c.HashStrategy); err != nil {
		errs = append(errs, fmt.Errorf("hash_strategy: %w", err))
	}
	if c.Hunting.IdleTimeout < 0 {
		errs = append(errs, errors.New("hunting.idle_timeout must not be negative"))
	}
	if c.Watch.SettleWindow < 0 {
		errs = append(errs, errors.New("watch.settle_window must not be negative"))
	}
	if c.Tune.Count < 0 {
		errs = append(errs, errors.New("tune.count must not be negative"))
	}
	if filepath.Clean(c.Cache()) == filepath.Clean(c.OverridesDir) {
		// Exports and persisted patches would be read back as overrides.
		if c.Export.Disassembly {
			errs = append(errs, errors.New("export.disassembly needs a cache_dir separate from overrides_dir"))
		}
		if c.AutoPatch.Persist {
			errs = append(errs, errors.New("autopatch.persist needs a cache_dir separate from overrides_dir"))
		}
	}
	if _, err := c.Targets(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.DispatcherBindings(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Cache returns the cache directory, falling back to OverridesDir.
func (c Config) Cache() string {
	if c.CacheDir == "" {
		return c.OverridesDir
	}
	return c.CacheDir
}

// Strategy returns the parsed hash strategy.
func (c Config) Strategy() ir.HashStrategy {
	s, err := ir.ParseHashStrategy(c.HashStrategy)
	if err != nil {
		return ir.HashFNV
	}
	return s
}

// RetainsOriginals reports whether original bytecode must be kept.
func (c Config) RetainsOriginals() bool {
	return c.Hunting.Enabled || c.Hunting.RetainOriginal
}

// Targets parses ForcedTargets.
func (c Config) Targets() (map[ir.Fingerprint]string, error) {
	out := make(map[ir.Fingerprint]string, len(c.ForcedTargets))
	keys := make([]string, 0, len(c.ForcedTargets))
	for k := range c.ForcedTargets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fp, err := ir.ParseFingerprint(strings.TrimPrefix(strings.ToLower(k), "0x"))
		if err != nil {
			return nil, fmt.Errorf("forced_targets: %w", err)
		}
		target := c.ForcedTargets[k]
		if target == "" {
			return nil, fmt.Errorf("forced_targets: %s: empty target", k)
		}
		out[fp] = target
	}
	return out, nil
}

// DispatcherBindings converts Bindings for hunting.NewDispatcher.
func (c Config) DispatcherBindings() ([]hunting.Binding, error) {
	out := make([]hunting.Binding, 0, len(c.Bindings))
	for i, b := range c.Bindings {
		action, err := hunting.ParseAction(b.Action)
		if err != nil {
			return nil, fmt.Errorf("bindings[%d]: %w", i, err)
		}
		if b.RepeatRate < 0 {
			return nil, fmt.Errorf("bindings[%d]: repeat_rate must not be negative", i)
		}
		if b.ReleaseDelay < 0 {
			return nil, fmt.Errorf("bindings[%d]: release_delay must not be negative", i)
		}
		out = append(out, hunting.Binding{
			Action:       action,
			RepeatRate:   b.RepeatRate,
			ReleaseDelay: b.ReleaseDelay,
			Hold:         b.Hold,
		})
	}
	return out, nil
}

// Marshal renders c as YAML.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf.Bytes(), nil
}
