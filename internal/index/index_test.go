package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/steveyegge/tak/internal/task"
)

func open(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func mkTask(id, parent string, deps ...string) task.Task {
	var dependsOn []task.Dependency
	for _, d := range deps {
		dependsOn = append(dependsOn, task.Dependency{ID: d, DepType: task.DepHard})
	}
	return task.Task{
		ID: id, Title: "t-" + id, Kind: task.KindTask, Status: task.StatusPending,
		Parent: parent, DependsOn: dependsOn,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
}

func TestRebuildTwoPassToleratesForwardReferences(t *testing.T) {
	idx := open(t)
	ctx := context.Background()

	// Child references a parent that appears later in the slice, and a
	// dependency on a task defined even later still.
	tasks := []task.Task{
		mkTask("0000000000000002", "0000000000000001", "0000000000000003"),
		mkTask("0000000000000001", ""),
		mkTask("0000000000000003", ""),
	}
	if err := idx.Rebuild(ctx, tasks); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	blocked, err := idx.IsBlocked(ctx, "0000000000000002")
	if err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if !blocked {
		t.Fatal("expected task 2 to be blocked by pending task 3")
	}

	children, err := idx.Children(ctx, "0000000000000001")
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 1 || children[0] != "0000000000000002" {
		t.Fatalf("expected [2] as children of 1, got %v", children)
	}
}

func TestWouldParentCycle(t *testing.T) {
	idx := open(t)
	ctx := context.Background()
	tasks := []task.Task{
		mkTask("0000000000000001", ""),
		mkTask("0000000000000002", "0000000000000001"),
		mkTask("0000000000000003", "0000000000000002"),
	}
	if err := idx.Rebuild(ctx, tasks); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	cycle, err := idx.WouldParentCycle(ctx, "0000000000000001", "0000000000000003")
	if err != nil {
		t.Fatalf("WouldParentCycle: %v", err)
	}
	if !cycle {
		t.Fatal("expected reparenting 1 under 3 to be detected as a cycle (1 is an ancestor of 3)")
	}

	noCycle, err := idx.WouldParentCycle(ctx, "0000000000000003", "0000000000000001")
	if err != nil {
		t.Fatalf("WouldParentCycle: %v", err)
	}
	if noCycle {
		t.Fatal("expected reparenting 3 under 1 to not be a cycle")
	}
}

func TestWouldDepCycle(t *testing.T) {
	idx := open(t)
	ctx := context.Background()
	tasks := []task.Task{
		mkTask("0000000000000001", "", "0000000000000002"),
		mkTask("0000000000000002", ""),
	}
	if err := idx.Rebuild(ctx, tasks); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	cycle, err := idx.WouldDepCycle(ctx, "0000000000000002", "0000000000000001")
	if err != nil {
		t.Fatalf("WouldDepCycle: %v", err)
	}
	if !cycle {
		t.Fatal("expected 2 depending on 1 to be a cycle (1 already depends on 2)")
	}
}

func TestAvailableOrderingAndExclusions(t *testing.T) {
	idx := open(t)
	ctx := context.Background()

	blocker := mkTask("0000000000000001", "")
	blocked := mkTask("0000000000000002", "", "0000000000000001")

	idea := mkTask("0000000000000003", "")
	idea.Kind = task.KindIdea

	assigned := mkTask("0000000000000004", "")
	assigned.Assignee = "agent-1"

	hi := mkTask("0000000000000005", "")
	hi.Planning = &task.Planning{Priority: task.PriorityHigh}
	hi.CreatedAt = time.Now().UTC().Add(time.Hour)

	lo := mkTask("0000000000000006", "")
	lo.CreatedAt = time.Now().UTC().Add(2 * time.Hour)

	if err := idx.Rebuild(ctx, []task.Task{blocker, blocked, idea, assigned, hi, lo}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	avail, err := idx.Available(ctx, task.Filter{})
	if err != nil {
		t.Fatalf("Available: %v", err)
	}

	// blocked (2), idea (3), and assigned (4) must all be excluded.
	for _, excluded := range []string{"0000000000000002", "0000000000000003", "0000000000000004"} {
		for _, id := range avail {
			if id == excluded {
				t.Fatalf("expected %s to be excluded from available(), got %v", excluded, avail)
			}
		}
	}

	// hi (priority=high, rank 1) must sort before blocker/lo (no priority, rank 4).
	if len(avail) < 1 || avail[0] != "0000000000000005" {
		t.Fatalf("expected high-priority task first, got %v", avail)
	}
}

func TestUpsertReplacesRelations(t *testing.T) {
	idx := open(t)
	ctx := context.Background()

	tasks := []task.Task{mkTask("0000000000000001", ""), mkTask("0000000000000002", "")}
	if err := idx.Rebuild(ctx, tasks); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	updated := mkTask("0000000000000001", "", "0000000000000002")
	updated.Tags = []string{"urgent"}
	if err := idx.Upsert(ctx, updated); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	blocked, err := idx.IsBlocked(ctx, "0000000000000001")
	if err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if !blocked {
		t.Fatal("expected task 1 to be blocked by pending task 2 after upsert")
	}
}

func TestFingerprintRoundTrip(t *testing.T) {
	idx := open(t)
	if fp, err := idx.Fingerprint(); err != nil || fp != "" {
		t.Fatalf("expected empty fingerprint before first rebuild, got %q, %v", fp, err)
	}
	if err := idx.SetFingerprint("abc123"); err != nil {
		t.Fatalf("SetFingerprint: %v", err)
	}
	fp, err := idx.Fingerprint()
	if err != nil || fp != "abc123" {
		t.Fatalf("Fingerprint = %q, %v, want abc123", fp, err)
	}
}
