// Package executor runs a single command or file-edit task and classifies
// the outcome. It never mutates process-global state; working directory
// and environment are fixed per invocation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sysaidmin/sysaidmin/internal/backup"
	"github.com/sysaidmin/sysaidmin/internal/model"
)

const (
	// Captured stdout/stderr are each capped to bound memory on chatty
	// commands.
	DefaultMaxCapturedOutput = 64 * 1024

	truncationMarker = "\n... (output truncated)"

	// timeoutExitCode follows the coreutils `timeout` convention.
	timeoutExitCode = 124

	// pipeWaitDelay bounds how long Run waits on inherited stdio pipes
	// after the process group is gone. A child that re-parented out of
	// the group (setsid) can otherwise hold the task open indefinitely.
	pipeWaitDelay = 2 * time.Second
)

// Result is the terminal classification of one executed task.
type Result struct {
	Status     model.TaskStatus
	Detail     string
	ExitCode   int
	Stdout     string
	Stderr     string
	Simulated  bool
	BackupPath string
	Duration   time.Duration
}

// Executor executes tasks. The zero value is not usable; construct with New.
type Executor struct {
	defaultShell   string
	commandTimeout time.Duration
	maxOutput      int
	writeFile      func(path string, content []byte) error
}

func New(defaultShell string, commandTimeout time.Duration) *Executor {
	if defaultShell == "" {
		defaultShell = "/bin/sh"
	}
	return &Executor{
		defaultShell:   defaultShell,
		commandTimeout: commandTimeout,
		maxOutput:      DefaultMaxCapturedOutput,
		writeFile:      atomicWrite,
	}
}

// SetMaxCapturedOutput overrides the per-stream capture cap. Used by tests.
func (e *Executor) SetMaxCapturedOutput(n int) {
	e.maxOutput = n
}

// Execute runs one task. Errors are contained at the task boundary: every
// failure mode becomes a Result with StatusFailed, never an engine error.
func (e *Executor) Execute(ctx context.Context, task model.Task, dryRun bool) Result {
	switch task.Kind {
	case model.TaskKindCommand:
		return e.runCommand(ctx, task.Command, dryRun)
	case model.TaskKindFileEdit:
		return e.applyFileEdit(task.FileEdit, dryRun)
	default:
		return Result{
			Status: model.StatusFailed,
			Detail: fmt.Sprintf("unsupported task kind %q", task.Kind),
		}
	}
}

func (e *Executor) runCommand(ctx context.Context, spec model.CommandSpec, dryRun bool) Result {
	if dryRun {
		return Result{
			Status:    model.StatusSucceeded,
			Detail:    fmt.Sprintf("(dry-run) command would execute: %s", spec.Command),
			Simulated: true,
		}
	}

	shell := spec.Shell
	if shell == "" {
		shell = e.defaultShell
	}

	// Plan cancellation is honored between tasks only; a command already
	// spawned runs to completion or times out.
	ctx = context.WithoutCancel(ctx)
	if e.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.commandTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, shell, "-c", spec.Command)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	setProcessGroup(cmd)
	cmd.WaitDelay = pipeWaitDelay

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   e.truncate(stdout.String()),
		Stderr:   e.truncate(stderr.String()),
		Duration: time.Since(start),
	}

	if ctx.Err() == context.DeadlineExceeded {
		res.Status = model.StatusFailed
		res.ExitCode = timeoutExitCode
		res.Detail = fmt.Sprintf("command timed out after %v", e.commandTimeout)
		return res
	}
	if err != nil {
		if errors.Is(err, exec.ErrWaitDelay) {
			// The process exited zero but something kept its pipes open
			// past the grace period; the command itself succeeded.
			res.Status = model.StatusSucceeded
			res.Detail = "exit status 0"
			return res
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.Status = model.StatusFailed
			res.ExitCode = exitErr.ExitCode()
			res.Detail = fmt.Sprintf("exit status %d", exitErr.ExitCode())
		} else {
			res.Status = model.StatusFailed
			res.ExitCode = -1
			res.Detail = fmt.Sprintf("spawn failed: %v", err)
		}
		return res
	}

	res.Status = model.StatusSucceeded
	res.Detail = "exit status 0"
	return res
}

func (e *Executor) applyFileEdit(spec model.FileEditSpec, dryRun bool) Result {
	if dryRun {
		return Result{
			Status:    model.StatusSucceeded,
			Detail:    fmt.Sprintf("(dry-run) would write %s: %s", spec.Path, e.editSummary(spec)),
			Simulated: true,
		}
	}

	rec, err := backup.Create(spec.Path)
	if err != nil {
		// The original file has not been touched.
		return Result{
			Status: model.StatusFailed,
			Detail: fmt.Sprintf("backup failed, original untouched: %v", err),
		}
	}

	if err := e.writeFile(spec.Path, spec.NewContent); err != nil {
		return Result{
			Status:     model.StatusFailed,
			Detail:     fmt.Sprintf("write failed, backup retained: %v", err),
			BackupPath: rec.BackupPath,
		}
	}

	return Result{
		Status:     model.StatusSucceeded,
		Detail:     fmt.Sprintf("wrote %d bytes to %s", len(spec.NewContent), spec.Path),
		BackupPath: rec.BackupPath,
	}
}

// atomicWrite writes content via a temp file in the same directory and a
// rename, so a crash mid-write never leaves the target half-written. The
// original's mode is preserved for the replacement.
func atomicWrite(path string, content []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".sysaidmin-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

func (e *Executor) truncate(s string) string {
	if e.maxOutput > 0 && len(s) > e.maxOutput {
		return s[:e.maxOutput] + truncationMarker
	}
	return s
}
