// Package orchestrator owns the plan lifecycle: up-front classification,
// two-phase execution order, outcome aggregation, and the
// at-most-one-active-plan invariant.
package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sysaidmin/sysaidmin/internal/allowlist"
	"github.com/sysaidmin/sysaidmin/internal/executor"
	"github.com/sysaidmin/sysaidmin/internal/lock"
	"github.com/sysaidmin/sysaidmin/internal/logging"
	"github.com/sysaidmin/sysaidmin/internal/model"
	"github.com/sysaidmin/sysaidmin/internal/observability"
)

// ErrPlanActive rejects a plan arriving while another is mid-execution.
// Two plans may target overlapping files; interleaving them would break
// the backup-before-write guarantee.
var ErrPlanActive = errors.New("a plan is already running")

// Recorder is the audit sink. Satisfied by session.Recorder.
type Recorder interface {
	AppendOutcome(planID string, oc model.TaskOutcome) error
	Record(snap *model.SessionSnapshot) error
}

// Options configures an Orchestrator.
type Options struct {
	Rules    *allowlist.Rules
	Executor *executor.Executor
	Recorder Recorder
	Metrics  *observability.Metrics
	Logger   *logging.Logger
	DryRun   bool
	// Workers bounds intra-group parallelism. 1 means strictly serial
	// execution in group order.
	Workers int
}

type Orchestrator struct {
	rules    *allowlist.Rules
	exec     *executor.Executor
	recorder Recorder
	metrics  *observability.Metrics
	logger   *logging.Logger
	dryRun   bool
	workers  int
	paths    *lock.PathMutexes

	mu     sync.Mutex
	active *RunHandle
}

func New(opts Options) *Orchestrator {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		rules:    opts.Rules,
		exec:     opts.Executor,
		recorder: opts.Recorder,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		dryRun:   opts.DryRun,
		workers:  workers,
		paths:    lock.NewPathMutexes(),
	}
}

// RunHandle is the owned token for one accepted plan. Outcome events
// stream over Outcomes as tasks settle; Done closes once the plan is
// terminal and its snapshot has been handed to the recorder.
type RunHandle struct {
	plan     *model.Plan
	outcomes chan model.TaskOutcome
	done     chan struct{}

	mu        sync.Mutex
	collected []model.TaskOutcome
	snapshot  *model.SessionSnapshot
}

func (h *RunHandle) Plan() *model.Plan { return h.plan }

// Outcomes is a buffered stream sized to the plan, so a slow consumer
// never stalls execution. It is closed after the final event.
func (h *RunHandle) Outcomes() <-chan model.TaskOutcome { return h.outcomes }

func (h *RunHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until the plan is terminal and returns the snapshot.
func (h *RunHandle) Wait() *model.SessionSnapshot {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshot
}

// Run accepts plan for execution and returns its handle. If a previous
// run has not reached a terminal aggregate state the plan is rejected
// with ErrPlanActive; callers decide whether to retry later.
func (o *Orchestrator) Run(ctx context.Context, plan *model.Plan) (*RunHandle, error) {
	h := &RunHandle{
		plan:     plan,
		outcomes: make(chan model.TaskOutcome, len(plan.Tasks)),
		done:     make(chan struct{}),
	}

	o.mu.Lock()
	if o.active != nil {
		o.mu.Unlock()
		return nil, ErrPlanActive
	}
	o.active = h
	o.mu.Unlock()

	o.metrics.PlansTotal.Inc()
	o.metrics.ActivePlans.Set(1)
	o.logger.Infof("plan %s accepted: %d tasks request=%s dry_run=%v", plan.ID, len(plan.Tasks), plan.RequestID, o.dryRun)

	go o.execute(ctx, h)
	return h, nil
}

func (o *Orchestrator) execute(ctx context.Context, h *RunHandle) {
	plan := h.plan

	defer func() {
		o.mu.Lock()
		o.active = nil
		o.mu.Unlock()
		o.metrics.ActivePlans.Set(0)
		close(h.outcomes)
		close(h.done)
	}()

	// Classify everything up front, in plan order, before executing
	// anything. Blocked outcomes are emitted once, here; those tasks
	// never execute and never change state again.
	var commands, edits []int
	for i := range plan.Tasks {
		task := &plan.Tasks[i]
		decision := o.rules.Classify(*task)
		if decision.Allowed {
			o.transition(task, model.StatusAllowed)
			if task.Kind == model.TaskKindCommand {
				commands = append(commands, i)
			} else {
				edits = append(edits, i)
			}
			continue
		}
		o.transition(task, model.StatusBlocked)
		o.emit(h, model.TaskOutcome{
			TaskID:    task.Index,
			Kind:      task.Kind,
			Status:    model.StatusBlocked,
			Detail:    decision.Reason,
			Timestamp: time.Now().UTC(),
		})
	}

	// Commands run before file edits regardless of input order: commands
	// are often preconditions (stop a service) and a command failure
	// should be visible before the filesystem is touched.
	o.runGroup(ctx, h, commands)
	o.runGroup(ctx, h, edits)

	snap := o.buildSnapshot(h)
	h.mu.Lock()
	h.snapshot = snap
	h.mu.Unlock()

	if err := o.recorder.Record(snap); err != nil {
		// Execution correctness does not depend on audit success, but a
		// lost snapshot must be loud.
		o.logger.Errorf("audit degraded: snapshot for plan %s not persisted: %v", plan.ID, err)
		o.metrics.AuditFailures.Inc()
	} else {
		o.logger.Infof("plan %s complete, snapshot recorded", plan.ID)
	}
}

// runGroup executes one ordered group best-effort: a single failure never
// halts the siblings. With Workers > 1 tasks run concurrently; file-edit
// targets are serialized per cleaned path so overlapping edits keep the
// backup-then-write discipline.
func (o *Orchestrator) runGroup(ctx context.Context, h *RunHandle, indices []int) {
	if len(indices) == 0 {
		return
	}
	if o.workers == 1 {
		for _, i := range indices {
			o.runTask(ctx, h, i)
		}
		return
	}

	g := &errgroup.Group{}
	g.SetLimit(o.workers)
	for _, i := range indices {
		i := i
		g.Go(func() error {
			o.runTask(ctx, h, i)
			return nil
		})
	}
	g.Wait()
}

func (o *Orchestrator) runTask(ctx context.Context, h *RunHandle, i int) {
	task := &h.plan.Tasks[i]

	// Cooperative cancellation checkpoint: between tasks only. A task
	// already started runs to completion or timeout.
	if ctx.Err() != nil {
		o.transition(task, model.StatusFailed)
		o.emit(h, model.TaskOutcome{
			TaskID:    task.Index,
			Kind:      task.Kind,
			Status:    model.StatusFailed,
			Detail:    "plan cancelled before execution",
			Timestamp: time.Now().UTC(),
		})
		return
	}

	o.transition(task, model.StatusRunning)
	o.logger.Debugf("task %d running (%s)", task.Index, task.Kind)

	var res executor.Result
	if task.Kind == model.TaskKindFileEdit {
		key := filepath.Clean(task.FileEdit.Path)
		o.paths.Lock(key)
		res = o.exec.Execute(ctx, *task, o.dryRun)
		o.paths.Unlock(key)
	} else {
		res = o.exec.Execute(ctx, *task, o.dryRun)
		o.metrics.ObserveCommandDuration(res.Duration)
	}

	o.transition(task, res.Status)
	o.emit(h, model.TaskOutcome{
		TaskID:     task.Index,
		Kind:       task.Kind,
		Status:     res.Status,
		Detail:     res.Detail,
		ExitCode:   res.ExitCode,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		Simulated:  res.Simulated,
		BackupPath: res.BackupPath,
		Timestamp:  time.Now().UTC(),
		Duration:   res.Duration.Seconds(),
	})
}

func (o *Orchestrator) transition(task *model.Task, to model.TaskStatus) {
	if err := model.ValidateTransition(task.Status, to); err != nil {
		// Programmer error, not an operational condition.
		o.logger.Errorf("task %d: %v", task.Index, err)
	}
	task.Status = to
}

// emit records the event to the audit log and the handle's stream. Events
// go out as each task settles, never batched at end of run.
func (o *Orchestrator) emit(h *RunHandle, oc model.TaskOutcome) {
	h.mu.Lock()
	h.collected = append(h.collected, oc)
	h.mu.Unlock()

	if err := o.recorder.AppendOutcome(h.plan.ID, oc); err != nil {
		o.logger.Errorf("audit degraded: outcome for task %d not persisted: %v", oc.TaskID, err)
		o.metrics.AuditFailures.Inc()
	}
	o.metrics.TasksTotal.WithLabelValues(string(oc.Kind), string(oc.Status)).Inc()
	h.outcomes <- oc
}

func (o *Orchestrator) buildSnapshot(h *RunHandle) *model.SessionSnapshot {
	h.mu.Lock()
	outcomes := make([]model.TaskOutcome, len(h.collected))
	copy(outcomes, h.collected)
	h.mu.Unlock()

	// The event log keeps emission order; the snapshot sorts by task for
	// stable reading.
	sort.SliceStable(outcomes, func(a, b int) bool {
		return outcomes[a].TaskID < outcomes[b].TaskID
	})

	return &model.SessionSnapshot{
		PlanID:      h.plan.ID,
		RequestID:   h.plan.RequestID,
		Summary:     h.plan.Summary,
		CreatedAt:   h.plan.CreatedAt,
		CompletedAt: time.Now().UTC(),
		DryRun:      o.dryRun,
		Tasks:       h.plan.Tasks,
		Outcomes:    outcomes,
	}
}
