// Package plan converts the LLM collaborator's JSON document into a Plan.
// Parsing is strict at the plan level: one malformed task rejects the
// whole document, so the engine never executes a partially-understood
// worklist.
package plan

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sysaidmin/sysaidmin/internal/model"
)

// ParseError rejects a whole plan document. Nothing is executed and no
// session is recorded for a plan that never became valid.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "plan parse: " + e.Reason
}

func parseErrorf(format string, args ...any) *ParseError {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}

type wirePlan struct {
	RequestID string     `json:"request_id"`
	Summary   string     `json:"summary"`
	Tasks     []wireTask `json:"tasks"`
}

type wireTask struct {
	Type      string  `json:"type"`
	Command   string  `json:"command"`
	Shell     string  `json:"shell"`
	Cwd       string  `json:"cwd"`
	Path      string  `json:"path"`
	Content   *string `json:"content"`
	Rationale string  `json:"rationale"`
}

// Parse decodes raw into a Plan. LLM responses often arrive fenced or
// wrapped in prose, so the first balanced JSON object is extracted before
// decoding. defaultShell fills command tasks that carry no shell of their
// own.
func Parse(raw []byte, defaultShell string) (*model.Plan, error) {
	cleaned := stripCodeFence(strings.TrimSpace(string(raw)))
	segment := extractJSONSegment(cleaned)
	if segment == "" {
		segment = cleaned
	}

	var wire wirePlan
	if err := json.Unmarshal([]byte(segment), &wire); err != nil {
		return nil, parseErrorf("invalid JSON: %v", err)
	}
	if len(wire.Tasks) == 0 {
		return nil, parseErrorf("plan contains no tasks")
	}

	p := &model.Plan{
		ID:        uuid.NewString(),
		RequestID: wire.RequestID,
		Summary:   wire.Summary,
		CreatedAt: time.Now().UTC(),
	}
	if p.RequestID == "" {
		p.RequestID = uuid.NewString()
	}

	for i, wt := range wire.Tasks {
		task, err := convertTask(i, wt, defaultShell)
		if err != nil {
			return nil, err
		}
		p.Tasks = append(p.Tasks, task)
	}
	return p, nil
}

func convertTask(index int, wt wireTask, defaultShell string) (model.Task, error) {
	task := model.Task{
		Index:     index,
		Rationale: wt.Rationale,
		Status:    model.StatusProposed,
	}

	switch wt.Type {
	case "command":
		if wt.Command == "" {
			return model.Task{}, parseErrorf("task %d: command task missing 'command'", index)
		}
		shell := wt.Shell
		if shell == "" {
			shell = defaultShell
		}
		task.Kind = model.TaskKindCommand
		task.Command = model.CommandSpec{Shell: shell, Command: wt.Command, Dir: wt.Cwd}

	case "file_edit":
		if wt.Path == "" {
			return model.Task{}, parseErrorf("task %d: file_edit task missing 'path'", index)
		}
		if wt.Content == nil {
			return model.Task{}, parseErrorf("task %d: file_edit task missing 'content'", index)
		}
		task.Kind = model.TaskKindFileEdit
		task.FileEdit = model.FileEditSpec{Path: wt.Path, NewContent: []byte(*wt.Content)}

	case "":
		return model.Task{}, parseErrorf("task %d: missing 'type'", index)
	default:
		return model.Task{}, parseErrorf("task %d: unknown type %q", index, wt.Type)
	}

	return task, nil
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	for _, prefix := range []string{"```json", "```JSON", "```"} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			s = strings.TrimSpace(rest)
			break
		}
	}
	if rest, ok := strings.CutSuffix(s, "```"); ok {
		s = strings.TrimSpace(rest)
	}
	return s
}

// extractJSONSegment returns the first balanced top-level {...} in raw, or
// "" when none is found. Braces inside string literals are skipped; strict
// validation happens in json.Unmarshal afterwards.
func extractJSONSegment(raw string) string {
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i, ch := range raw {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			// Tracked at every depth: prose like `use "{" here` before
			// the payload must not start a bogus segment.
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					return raw[start : i+1]
				}
			}
		}
	}
	return ""
}
