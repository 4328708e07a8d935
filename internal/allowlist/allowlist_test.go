package allowlist

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysaidmin/sysaidmin/internal/model"
)

func commandTask(cmd string) model.Task {
	return model.Task{
		Kind:    model.TaskKindCommand,
		Command: model.CommandSpec{Shell: "/bin/sh", Command: cmd},
	}
}

func editTask(path string, content []byte) model.Task {
	return model.Task{
		Kind:     model.TaskKindFileEdit,
		FileEdit: model.FileEditSpec{Path: path, NewContent: content},
	}
}

func TestCompileRejectsBadPattern(t *testing.T) {
	_, err := Compile(model.AllowlistConfig{CommandPatterns: []string{`^ls(`}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid command pattern")

	_, err = Compile(model.AllowlistConfig{FilePatterns: []string{`[`}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid file pattern")
}

func TestClassifyCommand(t *testing.T) {
	rules, err := Compile(model.AllowlistConfig{
		CommandPatterns: []string{`^systemctl\s+`},
		MaxEditSizeKB:   64,
	})
	require.NoError(t, err)

	d := rules.Classify(commandTask("systemctl restart nginx"))
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Reason)

	d = rules.Classify(commandTask("rm -rf /"))
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, ReasonCommandDenied)
}

func TestClassifyFileEdit(t *testing.T) {
	rules, err := Compile(model.AllowlistConfig{
		FilePatterns:  []string{`^/etc/.*`},
		MaxEditSizeKB: 1,
	})
	require.NoError(t, err)

	d := rules.Classify(editTask("/etc/nginx/nginx.conf", []byte("ok")))
	assert.True(t, d.Allowed)

	d = rules.Classify(editTask("/home/user/.bashrc", []byte("ok")))
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, ReasonPathDenied)

	// 2048 bytes against a 1 KiB cap: allowed path, oversized payload.
	d = rules.Classify(editTask("/etc/hosts", bytes.Repeat([]byte("x"), 2048)))
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, ReasonEditTooLarge)
}

func TestSizeLimitBoundary(t *testing.T) {
	rules, err := Compile(model.AllowlistConfig{
		FilePatterns:  []string{`^/etc/`},
		MaxEditSizeKB: 1,
	})
	require.NoError(t, err)

	d := rules.Classify(editTask("/etc/hosts", bytes.Repeat([]byte("x"), 1024)))
	assert.True(t, d.Allowed, "exactly max size must be allowed")

	d = rules.Classify(editTask("/etc/hosts", bytes.Repeat([]byte("x"), 1025)))
	assert.False(t, d.Allowed)
}

func TestEmptyRulesAllowNothing(t *testing.T) {
	rules, err := Compile(model.AllowlistConfig{MaxEditSizeKB: 64})
	require.NoError(t, err)

	assert.False(t, rules.Classify(commandTask("ls")).Allowed)
	assert.False(t, rules.Classify(editTask("/etc/hosts", nil)).Allowed)
}

func TestPatternsAreUnanchoredSearches(t *testing.T) {
	rules, err := Compile(model.AllowlistConfig{
		CommandPatterns: []string{`restart`},
	})
	require.NoError(t, err)

	// grep convention: a bare pattern matches anywhere in the string.
	assert.True(t, rules.Classify(commandTask("systemctl restart nginx")).Allowed)
}

func TestCommandRulesNeverConsultFilePatterns(t *testing.T) {
	rules, err := Compile(model.AllowlistConfig{
		FilePatterns:  []string{`.*`},
		MaxEditSizeKB: 64,
	})
	require.NoError(t, err)

	d := rules.Classify(commandTask("ls"))
	assert.False(t, d.Allowed)
}

func TestClassifyIsDeterministic(t *testing.T) {
	rules, err := Compile(model.AllowlistConfig{
		CommandPatterns: []string{`^ls`},
		FilePatterns:    []string{`^/etc/`},
		MaxEditSizeKB:   64,
	})
	require.NoError(t, err)

	tasks := []model.Task{
		commandTask("ls -la /var"),
		commandTask("rm -rf /tmp/foo"),
		editTask("/etc/hosts", []byte("127.0.0.1 localhost")),
		editTask("/root/.ssh/authorized_keys", []byte("key")),
	}
	for _, task := range tasks {
		first := rules.Classify(task)
		second := rules.Classify(task)
		assert.Equal(t, first, second)
	}
}

func TestDefaultsCompile(t *testing.T) {
	rules, err := Compile(model.AllowlistConfig{
		CommandPatterns: DefaultCommandPatterns(),
		FilePatterns:    DefaultFilePatterns(),
		MaxEditSizeKB:   DefaultMaxEditSizeKB,
	})
	require.NoError(t, err)

	assert.True(t, rules.Classify(commandTask("sudo systemctl status sshd")).Allowed)
	assert.True(t, rules.Classify(editTask("/etc/ssh/sshd_config", []byte("PermitRootLogin no"))).Allowed)

	d := rules.Classify(commandTask("mkfs.ext4 /dev/sda1"))
	assert.False(t, d.Allowed)
	assert.True(t, strings.Contains(d.Reason, ReasonCommandDenied))
}
