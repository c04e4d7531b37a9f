package repo

import (
	"context"
	"testing"

	"github.com/steveyegge/tak/internal/task"
)

func TestInitThenOpenIsCoherent(t *testing.T) {
	root := t.TempDir()
	h, err := Init(root)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	h.Close()

	h2, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h2.Close()

	all, err := h2.Files.ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty repo, got %d tasks", len(all))
	}
}

func TestOpenFailsOutsideRepo(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatal("expected NotInRepo error outside a tak repository")
	}
}

func TestReconcileRebuildsOnExternalFileChange(t *testing.T) {
	root := t.TempDir()
	h, err := Init(root)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer h.Close()

	tk, err := h.Files.Create("0000000000000001", task.Task{
		Title: "added outside the handle", Kind: task.KindTask, Status: task.StatusPending,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_ = tk

	// Nothing has told the index about this new file yet; reopening must
	// detect the fingerprint mismatch and rebuild.
	h.Close()
	h2, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h2.Close()

	ids, err := h2.Index.List(context.Background(), task.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 1 || ids[0] != "0000000000000001" {
		t.Fatalf("expected rebuild to pick up externally-written task, got %v", ids)
	}
}

func TestDoctorReportsOK(t *testing.T) {
	root := t.TempDir()
	h, err := Init(root)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer h.Close()

	checks := h.Doctor()
	if len(checks) == 0 {
		t.Fatal("expected at least one doctor check")
	}
	for _, c := range checks {
		if c.Status == StatusFail {
			t.Fatalf("unexpected failing check on a fresh repo: %+v", c)
		}
	}
}
