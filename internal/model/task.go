// Package model defines the data structures for sysaidmin's plans, tasks,
// outcomes, session snapshots, and configuration.
package model

import "time"

type TaskKind string

const (
	TaskKindCommand  TaskKind = "command"
	TaskKindFileEdit TaskKind = "file_edit"
)

// CommandSpec describes one shell invocation proposed by a plan.
type CommandSpec struct {
	Shell   string `json:"shell"`
	Command string `json:"command"`
	Dir     string `json:"dir,omitempty"`
}

// FileEditSpec describes one whole-file content replacement.
type FileEditSpec struct {
	Path       string `json:"path"`
	NewContent []byte `json:"new_content"`
}

// Task is a tagged union over command and file-edit variants. Exactly one
// of Command/FileEdit is meaningful, selected by Kind. Index is the task's
// stable identifier within its plan.
type Task struct {
	Index     int          `json:"index"`
	Kind      TaskKind     `json:"kind"`
	Rationale string       `json:"rationale,omitempty"`
	Command   CommandSpec  `json:"command_spec"`
	FileEdit  FileEditSpec `json:"file_edit_spec"`
	Status    TaskStatus   `json:"status"`
}

// Plan is one ordered worklist produced for one user request. It is
// immutable once accepted by the orchestrator; only task statuses move.
type Plan struct {
	ID        string    `json:"plan_id"`
	RequestID string    `json:"request_id"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Tasks     []Task    `json:"tasks"`
}

// Terminal reports whether every task in the plan has reached a terminal
// status.
func (p *Plan) Terminal() bool {
	for i := range p.Tasks {
		if !IsTerminal(p.Tasks[i].Status) {
			return false
		}
	}
	return true
}
