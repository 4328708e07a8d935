package model

import "fmt"

type TaskStatus string

const (
	StatusProposed  TaskStatus = "proposed"
	StatusAllowed   TaskStatus = "allowed"
	StatusBlocked   TaskStatus = "blocked"
	StatusRunning   TaskStatus = "running"
	StatusSucceeded TaskStatus = "succeeded"
	StatusFailed    TaskStatus = "failed"
)

var terminalTaskStatuses = map[TaskStatus]bool{
	StatusBlocked:   true,
	StatusSucceeded: true,
	StatusFailed:    true,
}

// Task status transitions: proposed → allowed|blocked, allowed → running → succeeded|failed.
// blocked never transitions automatically; operator override is outside this engine.
var validTaskTransitions = map[TaskStatus]map[TaskStatus]bool{
	StatusProposed: {
		StatusAllowed: true,
		StatusBlocked: true,
	},
	StatusAllowed: {
		StatusRunning: true,
		StatusFailed:  true, // cancelled before execution
	},
	StatusRunning: {
		StatusSucceeded: true,
		StatusFailed:    true,
	},
}

func IsTerminal(s TaskStatus) bool {
	return terminalTaskStatuses[s]
}

func ValidateTransition(from, to TaskStatus) error {
	if IsTerminal(from) {
		return fmt.Errorf("cannot transition from terminal status %q", from)
	}
	allowed, ok := validTaskTransitions[from]
	if !ok {
		return fmt.Errorf("unknown status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid task transition: %q → %q", from, to)
	}
	return nil
}
