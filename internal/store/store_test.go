package store

import (
	"testing"

	"github.com/steveyegge/tak/internal/task"
)

func TestCreateReadWrite(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	created, err := s.Create("0000000000000001", task.Task{
		Title: "  write the docs  ",
		Kind:  task.KindTask,
		Status: task.StatusPending,
		Tags:  []string{"b", "a", "a"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
	if got := created.Tags; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected normalized tags [a b], got %v", got)
	}

	read, err := s.Read("0000000000000001")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if read.Title != created.Title {
		t.Fatalf("Read title = %q, want %q", read.Title, created.Title)
	}

	read.Description = "updated"
	written, err := s.Write(read)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !written.UpdatedAt.After(created.UpdatedAt) && written.UpdatedAt != created.UpdatedAt {
		t.Fatalf("expected UpdatedAt to advance or stay equal, got %v vs %v", written.UpdatedAt, created.UpdatedAt)
	}

	again, err := s.Read("0000000000000001")
	if err != nil {
		t.Fatalf("Read after write: %v", err)
	}
	if again.Description != "updated" {
		t.Fatalf("Description = %q, want %q", again.Description, "updated")
	}
}

func TestReadMissing(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Read("000000000000dead"); err == nil {
		t.Fatal("expected error reading missing task")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Create("0000000000000001", task.Task{Title: "x", Kind: task.KindTask, Status: task.StatusPending}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Delete("0000000000000001"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("0000000000000001"); err != nil {
		t.Fatalf("Delete (again) should be idempotent, got: %v", err)
	}
	if _, err := s.Read("0000000000000001"); err == nil {
		t.Fatal("expected task to be gone after delete")
	}
}

func TestListAllOrdering(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, id := range []string{"0000000000000003", "0000000000000001", "0000000000000002"} {
		if _, err := s.Create(id, task.Task{Title: "t" + id, Kind: task.KindTask, Status: task.StatusPending}); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	all, err := s.ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}
	for i := 0; i < len(all)-1; i++ {
		if all[i].CreatedAt.After(all[i+1].CreatedAt) {
			t.Fatalf("expected non-decreasing CreatedAt order")
		}
	}
}

func TestFingerprintChangesOnWrite(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Create("0000000000000001", task.Task{Title: "x", Kind: task.KindTask, Status: task.StatusPending}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	fp1, err := s.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if _, err := s.Create("0000000000000002", task.Task{Title: "y", Kind: task.KindTask, Status: task.StatusPending}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	fp2, err := s.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if fp1 == fp2 {
		t.Fatal("expected fingerprint to change after adding a task")
	}
}

func TestResidentIDsToleratesLegacyNumericFilenames(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.WriteRawBytes("42", []byte(`{"id":"42","title":"legacy","kind":"task","status":"pending"}`)); err != nil {
		t.Fatalf("WriteRawBytes: %v", err)
	}
	resident, err := s.ResidentIDs()
	if err != nil {
		t.Fatalf("ResidentIDs: %v", err)
	}
	if len(resident) != 1 || resident[0] != "000000000000002a" {
		t.Fatalf("expected canonicalized legacy id, got %v", resident)
	}
}
