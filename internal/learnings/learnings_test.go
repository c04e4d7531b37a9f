package learnings

import (
	"testing"
	"time"
)

func TestRecordAndList(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)

	if _, err := s.Record("prefer backoff over hand-rolled retries", []string{"concurrency"}, "", t1); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := s.Record("claim.lock must be held across start", nil, "0000000000000001", t2); err != nil {
		t.Fatalf("Record: %v", err)
	}

	all, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 learnings, got %d", len(all))
	}
	if all[0].CreatedAt.After(all[1].CreatedAt) {
		t.Fatal("expected learnings ordered chronologically")
	}
}
