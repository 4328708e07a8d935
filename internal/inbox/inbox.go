// Package inbox feeds the orchestrator from a drop directory: each
// incoming *.json file is one plan document from the LLM collaborator.
package inbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sysaidmin/sysaidmin/internal/logging"
	"github.com/sysaidmin/sysaidmin/internal/model"
	"github.com/sysaidmin/sysaidmin/internal/orchestrator"
	"github.com/sysaidmin/sysaidmin/internal/plan"
)

const (
	doneSuffix     = ".done"
	rejectedSuffix = ".rejected"

	// DefaultRescanInterval backs up fsnotify: it catches events lost
	// during processing and retries plans that arrived while another was
	// active.
	DefaultRescanInterval = 5 * time.Second
)

type Inbox struct {
	dir            string
	defaultShell   string
	orch           *orchestrator.Orchestrator
	logger         *logging.Logger
	rescanInterval time.Duration
}

func New(dir, defaultShell string, orch *orchestrator.Orchestrator, logger *logging.Logger) *Inbox {
	return &Inbox{
		dir:            dir,
		defaultShell:   defaultShell,
		orch:           orch,
		logger:         logger,
		rescanInterval: DefaultRescanInterval,
	}
}

// SetRescanInterval overrides the periodic rescan cadence. Used by tests.
func (ib *Inbox) SetRescanInterval(d time.Duration) {
	ib.rescanInterval = d
}

// Run watches the inbox until ctx is cancelled. Plans are processed one
// at a time; the orchestrator's single-active invariant makes that the
// only option, and a plan rejected mid-run simply waits for the next
// rescan tick.
func (ib *Inbox) Run(ctx context.Context) error {
	if err := os.MkdirAll(ib.dir, 0755); err != nil {
		return fmt.Errorf("create inbox dir %s: %w", ib.dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(ib.dir); err != nil {
		return fmt.Errorf("watch %s: %w", ib.dir, err)
	}

	ticker := time.NewTicker(ib.rescanInterval)
	defer ticker.Stop()

	ib.logger.Infof("watching inbox %s", ib.dir)
	ib.rescan(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !isPlanFile(event.Name) {
				continue
			}
			ib.logger.Debugf("fsnotify event=%s file=%s", event.Op, event.Name)
			ib.process(ctx, event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			ib.logger.Errorf("fsnotify error=%v", err)

		case <-ticker.C:
			ib.rescan(ctx)
		}
	}
}

func isPlanFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ".json") && !strings.HasPrefix(base, ".")
}

func (ib *Inbox) rescan(ctx context.Context) {
	entries, err := os.ReadDir(ib.dir)
	if err != nil {
		ib.logger.Errorf("rescan %s: %v", ib.dir, err)
		return
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if entry.IsDir() || !isPlanFile(entry.Name()) {
			continue
		}
		ib.process(ctx, filepath.Join(ib.dir, entry.Name()))
	}
}

// process parses one plan file and runs it to completion. The file is
// renamed .done or .rejected afterwards so reprocessing is impossible;
// a plan refused because another is active keeps its name and is retried
// on the next rescan.
func (ib *Inbox) process(ctx context.Context, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return // already processed via a duplicate event
		}
		ib.logger.Errorf("read %s: %v", path, err)
		return
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		// Create event raced the producer's write; the rescan tick
		// retries once content lands.
		return
	}

	p, err := plan.Parse(raw, ib.defaultShell)
	if err != nil {
		// Plan-level parse failure: nothing executed, nothing recorded.
		ib.logger.Warnf("rejecting %s: %v", path, err)
		ib.markProcessed(path, rejectedSuffix)
		return
	}

	h, err := ib.orch.Run(ctx, p)
	if errors.Is(err, orchestrator.ErrPlanActive) {
		ib.logger.Debugf("plan file %s deferred: %v", path, err)
		return
	}
	if err != nil {
		ib.logger.Errorf("submit %s: %v", path, err)
		return
	}

	for oc := range h.Outcomes() {
		ib.logOutcome(p, oc)
	}
	<-h.Done()
	ib.markProcessed(path, doneSuffix)
}

func (ib *Inbox) logOutcome(p *model.Plan, oc model.TaskOutcome) {
	switch oc.Status {
	case model.StatusBlocked:
		ib.logger.Warnf("plan %s task %d blocked: %s", p.ID, oc.TaskID, oc.Detail)
	case model.StatusFailed:
		ib.logger.Warnf("plan %s task %d failed: %s", p.ID, oc.TaskID, oc.Detail)
	default:
		ib.logger.Infof("plan %s task %d %s: %s", p.ID, oc.TaskID, oc.Status, oc.Detail)
	}
}

func (ib *Inbox) markProcessed(path, suffix string) {
	if err := os.Rename(path, path+suffix); err != nil {
		ib.logger.Errorf("rename %s: %v", path, err)
	}
}
