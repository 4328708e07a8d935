// Package session persists the durable audit record: an append-only
// outcome log plus one immutable snapshot per completed plan.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sysaidmin/sysaidmin/internal/model"
)

const (
	eventLogName       = "events.jsonl"
	snapshotTimeLayout = "20060102-150405"
)

// Recorder owns snapshot persistence. Prior snapshots and log lines are
// never rewritten. Persistence failures are reported to the caller but
// must never undo applied task effects; the orchestrator logs them as a
// degraded-audit condition.
type Recorder struct {
	dir string

	mu      sync.Mutex
	logFile *os.File
}

func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create session dir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, eventLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &Recorder{dir: dir, logFile: f}, nil
}

type eventLine struct {
	Timestamp time.Time         `json:"timestamp"`
	PlanID    string            `json:"plan_id"`
	Outcome   model.TaskOutcome `json:"outcome"`
}

// AppendOutcome writes one outcome event as a JSONL line.
func (r *Recorder) AppendOutcome(planID string, oc model.TaskOutcome) error {
	line, err := json.Marshal(eventLine{
		Timestamp: time.Now().UTC(),
		PlanID:    planID,
		Outcome:   oc,
	})
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.logFile.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}
	return nil
}

// Record writes the completed plan's snapshot. The file name carries the
// completion timestamp and the source-request identifier; O_EXCL keeps
// the store append-only even on name collision.
func (r *Recorder) Record(snap *model.SessionSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	name := fmt.Sprintf("plan-%s-%s.json", snap.CompletedAt.UTC().Format(snapshotTimeLayout), snap.RequestID)
	path := filepath.Join(r.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("create snapshot %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync snapshot %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot %s: %w", path, err)
	}
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.logFile == nil {
		return nil
	}
	err := r.logFile.Close()
	r.logFile = nil
	return err
}
