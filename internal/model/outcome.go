package model

import "time"

// TaskOutcome is one event in the run's outcome stream. Events are emitted
// as soon as a task becomes blocked or reaches a terminal execution state,
// never batched at end of run.
type TaskOutcome struct {
	TaskID     int        `json:"task_id"`
	Kind       TaskKind   `json:"kind"`
	Status     TaskStatus `json:"status"`
	Detail     string     `json:"detail,omitempty"`
	ExitCode   int        `json:"exit_code,omitempty"`
	Stdout     string     `json:"stdout,omitempty"`
	Stderr     string     `json:"stderr,omitempty"`
	Simulated  bool       `json:"simulated,omitempty"`
	BackupPath string     `json:"backup_path,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	Duration   float64    `json:"duration_sec,omitempty"`
}

// SessionSnapshot is the immutable audit record of one completed plan,
// written once every task is terminal. The session recorder exclusively
// owns snapshot persistence.
type SessionSnapshot struct {
	PlanID      string        `json:"plan_id"`
	RequestID   string        `json:"request_id"`
	Summary     string        `json:"summary,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt time.Time     `json:"completed_at"`
	DryRun      bool          `json:"dry_run"`
	Tasks       []Task        `json:"tasks"`
	Outcomes    []TaskOutcome `json:"outcomes"`
}
