// Package store implements tak's file store (spec.md §4.2): one JSON
// document per task under .tak/tasks/<canonical_id>.json, written through a
// temp-file-rename pattern so each write is atomic even under concurrent
// readers (spec.md §5's "Task files" row).
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/tak/internal/errs"
	"github.com/steveyegge/tak/internal/ids"
	"github.com/steveyegge/tak/internal/task"
)

// Store is the file-backed source of truth for tasks.
type Store struct {
	dir string // .tak/tasks
}

// Open returns a Store rooted at .tak/tasks under takDir, creating the
// directory if absent.
func Open(takDir string) (*Store, error) {
	dir := filepath.Join(takDir, "tasks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.IOError, err, "create tasks directory").WithPath(dir)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// legacyPathFor supports tolerating a legacy numeric filename when the
// canonical one is absent (spec.md §4.2 read contract).
func (s *Store) legacyPathFor(id string) (string, bool) {
	v, err := ids.Parse(id)
	if err != nil {
		return "", false
	}
	legacy := filepath.Join(s.dir, strconv.FormatUint(v, 10)+".json")
	if _, err := os.Stat(legacy); err == nil {
		return legacy, true
	}
	return "", false
}

// ResidentIDs lists every canonical id currently present as a task file,
// tolerating legacy numeric filenames by canonicalizing them in-memory
// (it does not rewrite them; that is migrate's job per spec.md §4.1).
func (s *Store) ResidentIDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errs.Wrap(errs.IOError, err, "read tasks directory").WithPath(s.dir)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ".json")
		if v, err := ids.Parse(stem); err == nil {
			out = append(out, ids.Canonical(v))
		}
	}
	return out, nil
}

// Create allocates no id itself (the caller, typically the lifecycle engine
// under the id allocator's lock, supplies one); Create writes the document
// and returns the normalized task.
func (s *Store) Create(id string, t task.Task) (task.Task, error) {
	t.ID = id
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Normalize()
	if err := s.writeFile(id, t); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

// Read loads and parses a task by canonical id, tolerating a legacy numeric
// filename when the canonical one is absent.
func (s *Store) Read(id string) (task.Task, error) {
	path := s.pathFor(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return task.Task{}, errs.Wrap(errs.IOError, err, "read task").WithPath(path)
		}
		legacyPath, ok := s.legacyPathFor(id)
		if !ok {
			return task.Task{}, errs.New(errs.NotFound, "task %s not found", id)
		}
		data, err = os.ReadFile(legacyPath)
		if err != nil {
			return task.Task{}, errs.Wrap(errs.IOError, err, "read legacy task").WithPath(legacyPath)
		}
	}
	var t task.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return task.Task{}, errs.Wrap(errs.CorruptJSON, err, "parse task %s", id).WithPath(path)
	}
	t.Normalize()
	return t, nil
}

// RawBytes returns the exact on-disk bytes for a task file, used by the
// lifecycle engine's rollback envelope (spec.md §4.5.2) to restore prior
// bytes verbatim if an index upsert fails after a file write.
func (s *Store) RawBytes(id string) ([]byte, error) {
	return os.ReadFile(s.pathFor(id))
}

// WriteRawBytes restores prior bytes verbatim (rollback path) or is used by
// tests; it bypasses normalization deliberately.
func (s *Store) WriteRawBytes(id string, data []byte) error {
	return atomicWrite(s.pathFor(id), data)
}

// Write overwrites an existing task file, refreshing UpdatedAt and
// renormalizing depends_on/tags (invariant 2).
func (s *Store) Write(t task.Task) (task.Task, error) {
	t.UpdatedAt = time.Now().UTC()
	t.Normalize()
	if err := s.writeFile(t.ID, t); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

func (s *Store) writeFile(id string, t task.Task) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return errs.Wrap(errs.Internal, err, "marshal task %s", id)
	}
	return atomicWrite(s.pathFor(id), data)
}

// atomicWrite implements the temp-file-rename pattern spec.md §5 calls for:
// write to a sibling temp file, fsync, then rename into place.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errs.Wrap(errs.IOError, err, "create temp file").WithPath(dir)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errs.Wrap(errs.IOError, err, "write temp file").WithPath(tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errs.Wrap(errs.IOError, err, "sync temp file").WithPath(tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(errs.IOError, err, "close temp file").WithPath(tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errs.Wrap(errs.IOError, err, "rename into place").WithPath(path)
	}
	return nil
}

// Delete removes the task file (and tolerates it already being absent).
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.pathFor(id)); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.IOError, err, "delete task").WithPath(s.pathFor(id))
	}
	return nil
}

// ListAll returns every task, ordered by (created_at, id) per spec.md §4.2.
func (s *Store) ListAll() ([]task.Task, error) {
	resident, err := s.ResidentIDs()
	if err != nil {
		return nil, err
	}
	out := make([]task.Task, 0, len(resident))
	for _, id := range resident {
		t, err := s.Read(id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return ids.Less(out[i].ID, out[j].ID)
	})
	return out, nil
}

// Fingerprint is a deterministic digest over {filename, size, mtime_nanos}
// for all task files (spec.md §4.2), computed without reading file contents
// so it stays cheap even for large repositories. Stat calls run concurrently
// via errgroup since they are independent and I/O-bound.
func (s *Store) Fingerprint() (string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", errs.Wrap(errs.IOError, err, "read tasks directory").WithPath(s.dir)
	}

	type statLine struct {
		name  string
		size  int64
		mtime int64
	}
	lines := make([]statLine, len(entries))

	g := new(errgroup.Group)
	g.SetLimit(16)
	for i, e := range entries {
		i, e := i, e
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			lines[i] = statLine{name: ""}
			continue
		}
		g.Go(func() error {
			info, err := e.Info()
			if err != nil {
				return err
			}
			lines[i] = statLine{name: e.Name(), size: info.Size(), mtime: info.ModTime().UnixNano()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", errs.Wrap(errs.IOError, err, "stat task files")
	}

	filtered := lines[:0]
	for _, l := range lines {
		if l.name != "" {
			filtered = append(filtered, l)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].name < filtered[j].name })

	h := sha256.New()
	for _, l := range filtered {
		fmt.Fprintf(h, "%s|%d|%d\n", l.name, l.size, l.mtime)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
