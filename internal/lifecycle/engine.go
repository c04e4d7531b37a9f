// Package lifecycle implements tak's state machine and graph engine
// (spec.md §4.5): strict status transitions, dependency/parent edge
// mutation with cycle prevention, the atomic claim protocol, and
// best-effort history append. Every mutating operation follows the same
// contract shape: validate -> mutate file -> upsert index -> append history
// (best-effort), inside a rollback envelope that reverts the file write if
// the index upsert fails.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/steveyegge/tak/internal/errs"
	"github.com/steveyegge/tak/internal/ids"
	"github.com/steveyegge/tak/internal/repo"
	"github.com/steveyegge/tak/internal/task"
)

// Engine is the lifecycle façade; it holds the repo handle, the id
// allocator, and the (possibly external) git-provenance collaborator.
type Engine struct {
	Handle     *repo.Handle
	Alloc      *ids.Allocator
	Provenance GitProvenance
}

// New constructs an Engine over an open repo handle. A nil provenance
// defaults to NoopProvenance.
func New(h *repo.Handle, provenance GitProvenance) *Engine {
	if provenance == nil {
		provenance = NoopProvenance{}
	}
	return &Engine{Handle: h, Alloc: ids.NewAllocator(h.TakDir), Provenance: provenance}
}

// Result wraps a mutated task plus any non-fatal history-append warning,
// per spec.md §7's "history append failures are swallowed (best-effort) but
// noted in the returned record."
type Result struct {
	Task           task.Task
	HistoryWarning string
}

func (e *Engine) recordHistory(id, event, detail string) string {
	if err := appendHistory(e.Handle.TakDir, id, event, detail); err != nil {
		return fmt.Sprintf("history append failed: %v", err)
	}
	return ""
}

// commit upserts the index and, on failure, rolls the file back to its
// pre-mutation bytes (spec.md §4.5.2's rollback envelope). priorBytes is nil
// for a brand-new task (rollback then deletes the file instead).
func (e *Engine) commit(ctx context.Context, t task.Task, priorBytes []byte) error {
	if err := e.Handle.CommitUpsert(ctx, t); err != nil {
		if priorBytes == nil {
			_ = e.Handle.Files.Delete(t.ID)
		} else {
			_ = e.Handle.Files.WriteRawBytes(t.ID, priorBytes)
		}
		return err
	}
	return nil
}

// priorBytesOf returns the current on-disk bytes for id, or nil if the task
// does not exist yet (the "brand new task" case for commit's rollback path).
func (e *Engine) priorBytesOf(id string) []byte {
	b, err := e.Handle.Files.RawBytes(id)
	if err != nil {
		return nil
	}
	return b
}

func (e *Engine) exists(id string) bool {
	_, err := e.Handle.Files.Read(id)
	return err == nil
}

// Create implements spec.md §4.5.2's create(draft) contract.
func (e *Engine) Create(ctx context.Context, d task.Draft) (Result, error) {
	if d.Parent != "" && !e.exists(d.Parent) {
		return Result{}, errs.New(errs.NotFound, "parent %s does not exist", d.Parent)
	}
	for _, dep := range d.DependsOn {
		if !e.exists(dep.ID) {
			return Result{}, errs.New(errs.NotFound, "dependency target %s does not exist", dep.ID)
		}
	}

	t := task.Task{
		Title: d.Title, Description: d.Description, Kind: d.Kind,
		Status: task.StatusPending, Parent: d.Parent, DependsOn: d.DependsOn,
		Tags: d.Tags, Assignee: d.Assignee, Planning: d.Planning, Contract: d.Contract,
	}
	if t.Kind == "" {
		t.Kind = task.KindTask
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return Result{}, errs.Wrap(errs.InvalidArgument, err, "validate draft")
	}

	var result Result
	err := e.Alloc.WithNext(e.Handle.Files.ResidentIDs, func(nextID string) error {
		created, err := e.Handle.Files.Create(nextID, t)
		if err != nil {
			return err
		}
		if err := e.commit(ctx, created, nil); err != nil {
			return err
		}
		result = Result{Task: created, HistoryWarning: e.recordHistory(created.ID, "created", "")}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// Edit implements spec.md §4.5.2's edit(id, patch) contract.
func (e *Engine) Edit(ctx context.Context, id string, p task.Patch) (Result, error) {
	t, err := e.Handle.Files.Read(id)
	if err != nil {
		return Result{}, err
	}
	prior := e.priorBytesOf(id)

	p.Apply(&t)
	t.Normalize()
	if err := t.Validate(); err != nil {
		return Result{}, errs.Wrap(errs.InvalidArgument, err, "validate patch")
	}

	written, err := e.Handle.Files.Write(t)
	if err != nil {
		return Result{}, err
	}
	if err := e.commit(ctx, written, prior); err != nil {
		return Result{}, err
	}
	return Result{Task: written, HistoryWarning: e.recordHistory(id, "edited", "")}, nil
}

// Delete implements spec.md §4.5.2's delete(id, cascade) contract, including
// invariant 6's non-cascade guard (no children, no incoming deps) and the
// cascade repair of child/dependent edges.
func (e *Engine) Delete(ctx context.Context, id string, cascade bool) error {
	if _, err := e.Handle.Files.Read(id); err != nil {
		return err
	}

	children, err := e.Handle.Index.Children(ctx, id)
	if err != nil {
		return err
	}
	dependents, err := e.Handle.Index.Dependents(ctx, id)
	if err != nil {
		return err
	}

	if !cascade {
		if len(children) > 0 {
			return errs.New(errs.HasChildren, "task %s has %d child task(s); use cascade to delete anyway", id, len(children))
		}
		if len(dependents) > 0 {
			return errs.New(errs.HasDependents, "task %s has %d dependent task(s); use cascade to delete anyway", id, len(dependents))
		}
	} else {
		for _, childID := range children {
			if err := e.clearParent(ctx, childID); err != nil {
				return err
			}
		}
		for _, depID := range dependents {
			if err := e.removeDependencyEdge(ctx, depID, id); err != nil {
				return err
			}
		}
	}

	if err := e.Handle.CommitDelete(ctx, id); err != nil {
		return err
	}
	if err := e.Handle.Files.Delete(id); err != nil {
		return err
	}
	e.removeSidecars(id)
	return nil
}

func (e *Engine) clearParent(ctx context.Context, id string) error {
	t, err := e.Handle.Files.Read(id)
	if err != nil {
		return err
	}
	t.Parent = ""
	written, err := e.Handle.Files.Write(t)
	if err != nil {
		return err
	}
	return e.Handle.CommitUpsert(ctx, written)
}

func (e *Engine) removeDependencyEdge(ctx context.Context, from, to string) error {
	t, err := e.Handle.Files.Read(from)
	if err != nil {
		return err
	}
	filtered := t.DependsOn[:0]
	for _, d := range t.DependsOn {
		if d.ID != to {
			filtered = append(filtered, d)
		}
	}
	t.DependsOn = filtered
	t.Normalize()
	written, err := e.Handle.Files.Write(t)
	if err != nil {
		return err
	}
	return e.Handle.CommitUpsert(ctx, written)
}

// Depend implements spec.md §4.5.2's depend(from, targets, dep_type?, reason?).
func (e *Engine) Depend(ctx context.Context, from string, targets []string, depType task.DepType, reason string) (Result, error) {
	t, err := e.Handle.Files.Read(from)
	if err != nil {
		return Result{}, err
	}
	prior := e.priorBytesOf(from)
	if depType == "" {
		depType = task.DepHard
	}

	for _, target := range targets {
		if target == from {
			return Result{}, errs.New(errs.SelfReference, "task %s cannot depend on itself", from)
		}
		if !e.exists(target) {
			return Result{}, errs.New(errs.NotFound, "dependency target %s does not exist", target)
		}
		cycle, err := e.Handle.Index.WouldDepCycle(ctx, from, target)
		if err != nil {
			return Result{}, err
		}
		if cycle {
			return Result{}, errs.New(errs.CycleDetected, "depending %s on %s would create a cycle", from, target)
		}
		t.DependsOn = append(t.DependsOn, task.Dependency{ID: target, DepType: depType, Reason: reason})
	}
	t.Normalize()

	written, err := e.Handle.Files.Write(t)
	if err != nil {
		return Result{}, err
	}
	if err := e.commit(ctx, written, prior); err != nil {
		return Result{}, err
	}
	return Result{Task: written, HistoryWarning: e.recordHistory(from, "depend", fmt.Sprintf("+%d target(s)", len(targets)))}, nil
}

// Undepend implements spec.md §4.5.2's undepend(from, targets).
func (e *Engine) Undepend(ctx context.Context, from string, targets []string) (Result, error) {
	t, err := e.Handle.Files.Read(from)
	if err != nil {
		return Result{}, err
	}
	prior := e.priorBytesOf(from)

	remove := make(map[string]bool, len(targets))
	for _, tgt := range targets {
		remove[tgt] = true
	}
	filtered := t.DependsOn[:0]
	for _, d := range t.DependsOn {
		if !remove[d.ID] {
			filtered = append(filtered, d)
		}
	}
	t.DependsOn = filtered
	t.Normalize()

	written, err := e.Handle.Files.Write(t)
	if err != nil {
		return Result{}, err
	}
	if err := e.commit(ctx, written, prior); err != nil {
		return Result{}, err
	}
	return Result{Task: written, HistoryWarning: e.recordHistory(from, "undepend", fmt.Sprintf("-%d target(s)", len(targets)))}, nil
}

// Reparent implements spec.md §4.5.2's reparent(id, new_parent).
func (e *Engine) Reparent(ctx context.Context, id, newParent string) (Result, error) {
	if newParent == id {
		return Result{}, errs.New(errs.SelfReference, "task %s cannot be its own parent", id)
	}
	if newParent != "" && !e.exists(newParent) {
		return Result{}, errs.New(errs.NotFound, "new parent %s does not exist", newParent)
	}
	t, err := e.Handle.Files.Read(id)
	if err != nil {
		return Result{}, err
	}
	prior := e.priorBytesOf(id)

	if newParent != "" {
		cycle, err := e.Handle.Index.WouldParentCycle(ctx, id, newParent)
		if err != nil {
			return Result{}, err
		}
		if cycle {
			return Result{}, errs.New(errs.CycleDetected, "reparenting %s under %s would create a cycle", id, newParent)
		}
	}

	t.Parent = newParent
	written, err := e.Handle.Files.Write(t)
	if err != nil {
		return Result{}, err
	}
	if err := e.commit(ctx, written, prior); err != nil {
		return Result{}, err
	}
	return Result{Task: written, HistoryWarning: e.recordHistory(id, "reparent", newParent)}, nil
}

// Orphan implements spec.md §4.5.2's orphan(id): clear parent.
func (e *Engine) Orphan(ctx context.Context, id string) (Result, error) {
	return e.Reparent(ctx, id, "")
}

// removeSidecars removes context/history/verification_results/artifacts
// entries for a deleted task (spec.md §4.5.2 delete contract: "Remove
// sidecars").
func (e *Engine) removeSidecars(id string) {
	removeIfExists(e.Handle.TakDir, "context", id+".md")
	removeIfExists(e.Handle.TakDir, "history", id+".jsonl")
	removeIfExists(e.Handle.TakDir, "verification_results", id+".json")
	removeDirIfExists(e.Handle.TakDir, "artifacts", id)
}
