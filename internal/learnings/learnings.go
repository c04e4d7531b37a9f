// Package learnings implements the .tak/learnings/*.json sidecar (spec.md
// §6 repository layout; contract supplemented in SPEC_FULL.md since spec.md
// lists the directory but gives it no operation contract). It is a minimal
// append-only JSON-document store, one file per learning, write-once and
// immutable: no lifecycle, no index projection.
package learnings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/steveyegge/tak/internal/errs"
)

// Learning is a single recorded note: free-form text plus optional tags,
// captured at a point in time. It never changes after being written.
type Learning struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Tags      []string  `json:"tags,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the learnings directory handle.
type Store struct {
	dir string
}

// Open returns a Store rooted at .tak/learnings, creating it if absent.
func Open(takDir string) (*Store, error) {
	dir := filepath.Join(takDir, "learnings")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.IOError, err, "create learnings directory").WithPath(dir)
	}
	return &Store{dir: dir}, nil
}

// Record writes a new learning under a timestamp-ordered id and returns it.
// Ids are not allocated through internal/ids: learnings are an append-only
// log, not part of the task graph, so simple monotonic timestamps suffice.
func (s *Store) Record(text string, tags []string, taskID string, now time.Time) (Learning, error) {
	l := Learning{
		ID:        now.UTC().Format("20060102T150405.000000000Z"),
		Text:      strings.TrimSpace(text),
		Tags:      tags,
		TaskID:    taskID,
		CreatedAt: now.UTC(),
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return Learning{}, errs.Wrap(errs.Internal, err, "marshal learning")
	}
	path := filepath.Join(s.dir, l.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Learning{}, errs.Wrap(errs.IOError, err, "write learning").WithPath(path)
	}
	return l, nil
}

// List returns every recorded learning, ordered by id (which sorts
// chronologically by construction).
func (s *Store) List() ([]Learning, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errs.Wrap(errs.IOError, err, "read learnings directory").WithPath(s.dir)
	}
	var out []Learning
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, errs.Wrap(errs.IOError, err, "read learning %s", e.Name())
		}
		var l Learning
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, errs.Wrap(errs.CorruptJSON, err, "parse learning %s", e.Name())
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
