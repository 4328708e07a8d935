package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysaidmin/sysaidmin/internal/allowlist"
	"github.com/sysaidmin/sysaidmin/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, rules, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	require.NotNil(t, rules)

	assert.False(t, cfg.DryRun)
	assert.Equal(t, "/bin/sh", cfg.DefaultShell)
	assert.Equal(t, 120, cfg.CommandTimeoutSec)
	assert.Equal(t, 1, cfg.Workers)
	assert.NotEmpty(t, cfg.Allowlist.CommandPatterns)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
dry_run: true
default_shell: /bin/bash
command_timeout_sec: 10
workers: 4
logging:
  level: debug
`)
	cfg, _, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.DryRun)
	assert.Equal(t, "/bin/bash", cfg.DefaultShell)
	assert.Equal(t, 10, cfg.CommandTimeoutSec)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections keep defaults.
	assert.NotEmpty(t, cfg.Allowlist.FilePatterns)
}

func TestLoad_AllowlistReplacesStockPatterns(t *testing.T) {
	path := writeConfig(t, `
allowlist:
  command_patterns:
    - '^systemctl\s+'
  max_edit_size_kb: 8
`)
	cfg, rules, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, rules)

	assert.Equal(t, []string{`^systemctl\s+`}, cfg.Allowlist.CommandPatterns)
	// file_patterns were not listed: the section replaces the stock set,
	// so edits are fail-closed.
	assert.Empty(t, cfg.Allowlist.FilePatterns)
	assert.Equal(t, 8, cfg.Allowlist.MaxEditSizeKB)
}

func TestLoad_ExplicitZeroEditSizeBlocksEdits(t *testing.T) {
	path := writeConfig(t, `
allowlist:
  file_patterns:
    - '^/etc/'
  max_edit_size_kb: 0
`)
	cfg, rules, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Allowlist.MaxEditSizeKB)

	d := rules.Classify(model.Task{
		Kind:     model.TaskKindFileEdit,
		FileEdit: model.FileEditSpec{Path: "/etc/hosts", NewContent: []byte("x")},
	})
	assert.False(t, d.Allowed, "explicit zero cap must not widen to the default")
	assert.Contains(t, d.Reason, allowlist.ReasonEditTooLarge)
}

func TestLoad_BadRegexFailsStartup(t *testing.T) {
	path := writeConfig(t, `
allowlist:
  command_patterns:
    - '^ls('
`)
	_, _, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid command pattern")
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	path := writeConfig(t, "dry_run: [broken")
	_, _, err := Load(path)
	require.Error(t, err)
}
