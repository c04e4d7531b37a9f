package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/steveyegge/tak/internal/errs"
	"github.com/steveyegge/tak/internal/repo"
	"github.com/steveyegge/tak/internal/task"
)

func newEngine(t *testing.T) (*Engine, *repo.Handle) {
	t.Helper()
	h, err := repo.Init(t.TempDir())
	if err != nil {
		t.Fatalf("repo.Init: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return New(h, nil), h
}

func TestCreateValidatesAndAllocatesSequentialIDs(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	r1, err := e.Create(ctx, task.Draft{Title: "first", Kind: task.KindTask})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	r2, err := e.Create(ctx, task.Draft{Title: "second", Kind: task.KindTask})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r1.Task.ID == r2.Task.ID {
		t.Fatal("expected distinct ids")
	}
	if r1.Task.Status != task.StatusPending {
		t.Fatalf("expected new task pending, got %s", r1.Task.Status)
	}
}

func TestCreateRejectsMissingParent(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.Create(context.Background(), task.Draft{Title: "x", Kind: task.KindTask, Parent: "000000000000dead"})
	if !errs.Is(err, errs.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestStartBlockedByIncompleteDependency(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	blocker, err := e.Create(ctx, task.Draft{Title: "blocker", Kind: task.KindTask})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	blocked, err := e.Create(ctx, task.Draft{Title: "blocked", Kind: task.KindTask, DependsOn: []task.Dependency{{ID: blocker.Task.ID, DepType: task.DepHard}}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = e.Start(ctx, blocked.Task.ID, "agent-1")
	if !errs.Is(err, errs.TaskBlocked) {
		t.Fatalf("expected TaskBlocked, got %v", err)
	}

	if _, err := e.Finish(ctx, blocker.Task.ID); err == nil {
		t.Fatal("expected InvalidTransition finishing a pending task directly")
	}
	if _, err := e.Start(ctx, blocker.Task.ID, "agent-1"); err != nil {
		t.Fatalf("Start blocker: %v", err)
	}
	if _, err := e.Finish(ctx, blocker.Task.ID); err != nil {
		t.Fatalf("Finish blocker: %v", err)
	}

	started, err := e.Start(ctx, blocked.Task.ID, "agent-1")
	if err != nil {
		t.Fatalf("expected start to succeed once the dependency is done, got %v", err)
	}
	if started.Task.Status != task.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", started.Task.Status)
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	created, err := e.Create(ctx, task.Draft{Title: "x", Kind: task.KindTask})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.Finish(ctx, created.Task.ID); !errs.Is(err, errs.InvalidTransition) {
		t.Fatalf("expected InvalidTransition, got %v", err)
	}
}

func TestReopenRejectedFromInProgress(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	created, err := e.Create(ctx, task.Draft{Title: "x", Kind: task.KindTask})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.Start(ctx, created.Task.ID, "agent-a"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := e.Reopen(ctx, created.Task.ID); !errs.Is(err, errs.InvalidTransition) {
		t.Fatalf("expected InvalidTransition reopening an in_progress task, got %v", err)
	}
}

func TestDependCycleRejected(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	a, err := e.Create(ctx, task.Draft{Title: "a", Kind: task.KindTask})
	if err != nil {
		t.Fatalf("Create a: %v", err)
	}
	b, err := e.Create(ctx, task.Draft{Title: "b", Kind: task.KindTask})
	if err != nil {
		t.Fatalf("Create b: %v", err)
	}
	if _, err := e.Depend(ctx, b.Task.ID, []string{a.Task.ID}, task.DepHard, ""); err != nil {
		t.Fatalf("Depend b->a: %v", err)
	}
	if _, err := e.Depend(ctx, a.Task.ID, []string{b.Task.ID}, task.DepHard, ""); !errs.Is(err, errs.CycleDetected) {
		t.Fatalf("expected CycleDetected, got %v", err)
	}
}

func TestReparentCycleRejected(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	root, err := e.Create(ctx, task.Draft{Title: "root", Kind: task.KindTask})
	if err != nil {
		t.Fatalf("Create root: %v", err)
	}
	child, err := e.Create(ctx, task.Draft{Title: "child", Kind: task.KindTask, Parent: root.Task.ID})
	if err != nil {
		t.Fatalf("Create child: %v", err)
	}
	if _, err := e.Reparent(ctx, root.Task.ID, child.Task.ID); !errs.Is(err, errs.CycleDetected) {
		t.Fatalf("expected CycleDetected, got %v", err)
	}
}

func TestDeleteRequiresCascadeWithDependents(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	a, err := e.Create(ctx, task.Draft{Title: "a", Kind: task.KindTask})
	if err != nil {
		t.Fatalf("Create a: %v", err)
	}
	b, err := e.Create(ctx, task.Draft{Title: "b", Kind: task.KindTask, DependsOn: []task.Dependency{{ID: a.Task.ID, DepType: task.DepHard}}})
	if err != nil {
		t.Fatalf("Create b: %v", err)
	}
	_ = b

	if err := e.Delete(ctx, a.Task.ID, false); !errs.Is(err, errs.HasDependents) {
		t.Fatalf("expected HasDependents, got %v", err)
	}
	if err := e.Delete(ctx, a.Task.ID, true); err != nil {
		t.Fatalf("cascade delete: %v", err)
	}
}

func TestHandoffClearsAssigneeAndReturnsToPending(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	created, err := e.Create(ctx, task.Draft{Title: "x", Kind: task.KindTask})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.Start(ctx, created.Task.ID, "agent-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	result, err := e.Handoff(ctx, created.Task.ID, "ran out of context")
	if err != nil {
		t.Fatalf("Handoff: %v", err)
	}
	if result.Task.Status != task.StatusPending || result.Task.Assignee != "" {
		t.Fatalf("expected pending/unassigned after handoff, got %+v", result.Task)
	}
	if result.Task.Execution == nil || result.Task.Execution.HandoffSummary != "ran out of context" {
		t.Fatalf("expected handoff summary recorded, got %+v", result.Task.Execution)
	}
}

func TestClaimAssignsExactlyOneDistinctTaskEach(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	if _, err := e.Create(ctx, task.Draft{Title: "only task", Kind: task.KindTask}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	r1, err1 := e.Claim(ctx, "agent-1", task.Filter{})
	r2, err2 := e.Claim(ctx, "agent-2", task.Filter{})

	switch {
	case err1 == nil && err2 == nil:
		t.Fatalf("expected exactly one NoWork, got both succeeded: %+v %+v", r1, r2)
	case err1 != nil && err2 != nil:
		t.Fatalf("expected exactly one claim to succeed, both failed: %v %v", err1, err2)
	case err1 != nil:
		if !errors.Is(err1, ErrNoWork) {
			t.Fatalf("expected ErrNoWork, got %v", err1)
		}
	default:
		if !errors.Is(err2, ErrNoWork) {
			t.Fatalf("expected ErrNoWork, got %v", err2)
		}
	}
}

func TestIdeaNeverClaimed(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	if _, err := e.Create(ctx, task.Draft{Title: "just an idea", Kind: task.KindIdea}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.Claim(ctx, "agent-1", task.Filter{}); !errors.Is(err, ErrNoWork) {
		t.Fatalf("expected ErrNoWork for idea-only repo, got %v", err)
	}
}
