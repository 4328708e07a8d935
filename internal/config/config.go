// Package config loads the engine configuration and compiles the
// allowlist, so malformed rules fail startup rather than a run.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sysaidmin/sysaidmin/internal/allowlist"
	"github.com/sysaidmin/sysaidmin/internal/model"
)

// Defaults returns the stock configuration for a fresh installation.
func Defaults() model.Config {
	return model.Config{
		DefaultShell:      "/bin/sh",
		CommandTimeoutSec: 120,
		Workers:           1,
		SessionDir:        ".sysaidmin/sessions",
		InboxDir:          ".sysaidmin/inbox",
		Logging:           model.LoggingConfig{Level: "info"},
		Allowlist: model.AllowlistConfig{
			CommandPatterns: allowlist.DefaultCommandPatterns(),
			FilePatterns:    allowlist.DefaultFilePatterns(),
			MaxEditSizeKB:   allowlist.DefaultMaxEditSizeKB,
		},
	}
}

// Load reads path and returns the configuration plus the compiled rules.
// A missing file yields the defaults; an unreadable or invalid one is a
// startup error. Fields absent from the file keep their default values,
// except the allowlist: a config that sets allowlist at all replaces the
// stock patterns entirely, so a hardened rule file is not silently widened.
func Load(path string) (model.Config, *allowlist.Rules, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return model.Config{}, nil, fmt.Errorf("read %s: %w", path, err)
		}
	} else {
		var raw fileConfig
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return model.Config{}, nil, fmt.Errorf("parse %s: %w", path, err)
		}
		raw.apply(&cfg)
	}

	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	rules, err := allowlist.Compile(cfg.Allowlist)
	if err != nil {
		return model.Config{}, nil, fmt.Errorf("allowlist in %s: %w", path, err)
	}
	return cfg, rules, nil
}

// fileConfig mirrors model.Config with pointers, so absent fields are
// distinguishable from zero values.
type fileConfig struct {
	DryRun            *bool   `yaml:"dry_run"`
	DefaultShell      *string `yaml:"default_shell"`
	CommandTimeoutSec *int    `yaml:"command_timeout_sec"`
	Workers           *int    `yaml:"workers"`
	SessionDir        *string `yaml:"session_dir"`
	InboxDir          *string `yaml:"inbox_dir"`
	MetricsAddr       *string `yaml:"metrics_addr"`
	Logging           *struct {
		Level *string `yaml:"level"`
	} `yaml:"logging"`
	Allowlist *fileAllowlist `yaml:"allowlist"`
}

// fileAllowlist keeps max_edit_size_kb a pointer: an explicit 0 blocks
// all edits and must not be widened to the default.
type fileAllowlist struct {
	CommandPatterns []string `yaml:"command_patterns"`
	FilePatterns    []string `yaml:"file_patterns"`
	MaxEditSizeKB   *int     `yaml:"max_edit_size_kb"`
}

func (f *fileConfig) apply(cfg *model.Config) {
	if f.DryRun != nil {
		cfg.DryRun = *f.DryRun
	}
	if f.DefaultShell != nil {
		cfg.DefaultShell = *f.DefaultShell
	}
	if f.CommandTimeoutSec != nil {
		cfg.CommandTimeoutSec = *f.CommandTimeoutSec
	}
	if f.Workers != nil {
		cfg.Workers = *f.Workers
	}
	if f.SessionDir != nil {
		cfg.SessionDir = *f.SessionDir
	}
	if f.InboxDir != nil {
		cfg.InboxDir = *f.InboxDir
	}
	if f.MetricsAddr != nil {
		cfg.MetricsAddr = *f.MetricsAddr
	}
	if f.Logging != nil && f.Logging.Level != nil {
		cfg.Logging.Level = *f.Logging.Level
	}
	if f.Allowlist != nil {
		cfg.Allowlist = model.AllowlistConfig{
			CommandPatterns: f.Allowlist.CommandPatterns,
			FilePatterns:    f.Allowlist.FilePatterns,
			MaxEditSizeKB:   allowlist.DefaultMaxEditSizeKB,
		}
		if f.Allowlist.MaxEditSizeKB != nil {
			cfg.Allowlist.MaxEditSizeKB = *f.Allowlist.MaxEditSizeKB
		}
	}
}
