package model

type Config struct {
	DryRun            bool            `yaml:"dry_run"`
	DefaultShell      string          `yaml:"default_shell"`
	CommandTimeoutSec int             `yaml:"command_timeout_sec"`
	Workers           int             `yaml:"workers"`
	SessionDir        string          `yaml:"session_dir"`
	InboxDir          string          `yaml:"inbox_dir"`
	MetricsAddr       string          `yaml:"metrics_addr"`
	Logging           LoggingConfig   `yaml:"logging"`
	Allowlist         AllowlistConfig `yaml:"allowlist"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// AllowlistConfig holds the raw pattern strings as they appear in the rule
// file. Patterns are compiled once at load time; an empty set allows
// nothing.
type AllowlistConfig struct {
	CommandPatterns []string `yaml:"command_patterns"`
	FilePatterns    []string `yaml:"file_patterns"`
	MaxEditSizeKB   int      `yaml:"max_edit_size_kb"`
}
