package lifecycle

import (
	"context"

	"github.com/steveyegge/tak/internal/errs"
	"github.com/steveyegge/tak/internal/task"
)

// transition loads id, checks the operation allows from->to, applies mutate,
// commits, and records history. mutate receives a pointer so it can set
// assignee, execution fields, etc. before the write.
func (e *Engine) transition(ctx context.Context, id string, op operation, to task.Status, event string, mutate func(t *task.Task)) (Result, error) {
	t, err := e.Handle.Files.Read(id)
	if err != nil {
		return Result{}, err
	}
	if !canTransition(op, t.Status, to) {
		return Result{}, errs.New(errs.InvalidTransition, "cannot %s task %s from status %s", op, id, t.Status)
	}
	prior := e.priorBytesOf(id)

	mutate(&t)
	t.Status = to
	t.Normalize()

	written, err := e.Handle.Files.Write(t)
	if err != nil {
		return Result{}, err
	}
	if err := e.commit(ctx, written, prior); err != nil {
		return Result{}, err
	}
	return Result{Task: written, HistoryWarning: e.recordHistory(id, event, "")}, nil
}

// ensureExecution returns t.Execution, allocating it if nil.
func ensureExecution(t *task.Task) *task.Execution {
	if t.Execution == nil {
		t.Execution = &task.Execution{}
	}
	return t.Execution
}

// Start implements spec.md §4.5.2's start(id, assignee?): checks transition,
// checks not blocked, increments attempt_count, sets assignee, invokes the
// git-provenance collaborator for the first-start branch/start_commit.
func (e *Engine) Start(ctx context.Context, id, assignee string) (Result, error) {
	return e.startAs(ctx, id, assignee, "started")
}

// startAs is Start with a caller-chosen history event name, so Claim can
// record "claimed" instead of "started" for the same underlying transition
// (spec.md §4.5.3 step 4).
func (e *Engine) startAs(ctx context.Context, id, assignee, event string) (Result, error) {
	blocked, err := e.Handle.Index.IsBlocked(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if blocked {
		return Result{}, errs.New(errs.TaskBlocked, "task %s is blocked by an incomplete dependency", id)
	}
	return e.transition(ctx, id, opStart, task.StatusInProgress, event, func(t *task.Task) {
		ex := ensureExecution(t)
		ex.AttemptCount++
		t.Assignee = assignee
		if ex.AttemptCount == 1 {
			e.Provenance.OnStart(t)
		}
	})
}

// Finish implements spec.md §4.5.2's finish(id): checks transition, invokes
// the git-provenance collaborator for end_commit + commit range.
func (e *Engine) Finish(ctx context.Context, id string) (Result, error) {
	return e.transition(ctx, id, opFinish, task.StatusDone, "finished", func(t *task.Task) {
		e.Provenance.OnFinish(t)
	})
}

// Cancel implements spec.md §4.5.2's cancel(id, reason?).
func (e *Engine) Cancel(ctx context.Context, id, reason string) (Result, error) {
	return e.transition(ctx, id, opCancel, task.StatusCancelled, "cancelled", func(t *task.Task) {
		if reason != "" {
			ensureExecution(t).LastError = reason
		}
	})
}

// Handoff implements spec.md §4.5.2's handoff(id, summary): transition must
// be in_progress -> pending; clears assignee; stores handoff_summary.
func (e *Engine) Handoff(ctx context.Context, id, summary string) (Result, error) {
	return e.transition(ctx, id, opHandoff, task.StatusPending, "handoff", func(t *task.Task) {
		t.Assignee = ""
		ensureExecution(t).HandoffSummary = summary
	})
}

// Reopen implements spec.md §4.5.1's done/cancelled -> pending transition
// only; unlike Handoff it must never succeed from in_progress. Clears
// assignee.
func (e *Engine) Reopen(ctx context.Context, id string) (Result, error) {
	return e.transition(ctx, id, opReopen, task.StatusPending, "reopened", func(t *task.Task) {
		t.Assignee = ""
	})
}

// Unassign clears the assignee without touching status (not itself a status
// transition; spec.md §6 lists it alongside the lifecycle verbs).
func (e *Engine) Unassign(ctx context.Context, id string) (Result, error) {
	t, err := e.Handle.Files.Read(id)
	if err != nil {
		return Result{}, err
	}
	prior := e.priorBytesOf(id)
	t.Assignee = ""
	written, err := e.Handle.Files.Write(t)
	if err != nil {
		return Result{}, err
	}
	if err := e.commit(ctx, written, prior); err != nil {
		return Result{}, err
	}
	return Result{Task: written, HistoryWarning: e.recordHistory(id, "unassigned", "")}, nil
}
