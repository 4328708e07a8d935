// Package allowlist implements the fail-closed policy engine that gates
// which commands and file paths a plan may touch automatically.
package allowlist

import (
	"fmt"
	"regexp"

	"github.com/sysaidmin/sysaidmin/internal/model"
)

// Blocked reasons surfaced to the operator. The three cases are distinct
// on purpose; the UI renders them verbatim.
const (
	ReasonCommandDenied = "command not permitted"
	ReasonPathDenied    = "path not permitted"
	ReasonEditTooLarge  = "edit exceeds size limit"
)

// Decision is the result of classifying one task. Classification never
// fails with an engine error; a task is either allowed or blocked.
type Decision struct {
	Allowed bool
	Reason  string
}

// Rules holds the compiled allowlist. Compilation happens once at config
// load; a malformed pattern is a startup error, never a per-task one.
type Rules struct {
	commandPatterns []*regexp.Regexp
	filePatterns    []*regexp.Regexp
	maxEditBytes    int
}

// Compile builds Rules from raw configuration patterns. Patterns are
// matched as unanchored searches against the full command string or
// absolute file path, mirroring grep; rule authors anchor explicitly.
func Compile(cfg model.AllowlistConfig) (*Rules, error) {
	r := &Rules{maxEditBytes: cfg.MaxEditSizeKB * 1024}
	for _, pat := range cfg.CommandPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("invalid command pattern %q: %w", pat, err)
		}
		r.commandPatterns = append(r.commandPatterns, re)
	}
	for _, pat := range cfg.FilePatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("invalid file pattern %q: %w", pat, err)
		}
		r.filePatterns = append(r.filePatterns, re)
	}
	return r, nil
}

// Classify evaluates one task against the rules. Pure and deterministic:
// no I/O, no state, same input always yields the same decision.
func (r *Rules) Classify(task model.Task) Decision {
	switch task.Kind {
	case model.TaskKindCommand:
		for _, re := range r.commandPatterns {
			if re.MatchString(task.Command.Command) {
				return Decision{Allowed: true}
			}
		}
		return Decision{Reason: fmt.Sprintf("%s: %q", ReasonCommandDenied, task.Command.Command)}

	case model.TaskKindFileEdit:
		matched := false
		for _, re := range r.filePatterns {
			if re.MatchString(task.FileEdit.Path) {
				matched = true
				break
			}
		}
		if !matched {
			return Decision{Reason: fmt.Sprintf("%s: %q", ReasonPathDenied, task.FileEdit.Path)}
		}
		if len(task.FileEdit.NewContent) > r.maxEditBytes {
			return Decision{Reason: fmt.Sprintf("%s: %d bytes > %d KiB", ReasonEditTooLarge, len(task.FileEdit.NewContent), r.maxEditBytes/1024)}
		}
		return Decision{Allowed: true}

	default:
		return Decision{Reason: fmt.Sprintf("unsupported task kind %q", task.Kind)}
	}
}
