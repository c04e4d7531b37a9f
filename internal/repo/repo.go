// Package repo implements tak's repo façade (spec.md §4.4): discovering the
// repository root, opening the file store and derived index, detecting
// staleness, and exposing one coherent handle to the lifecycle engine,
// coordination runtime and CLI frontend.
package repo

import (
	"context"
	"os"
	"path/filepath"

	"github.com/steveyegge/tak/internal/config"
	"github.com/steveyegge/tak/internal/errs"
	"github.com/steveyegge/tak/internal/index"
	"github.com/steveyegge/tak/internal/learnings"
	"github.com/steveyegge/tak/internal/store"
	"github.com/steveyegge/tak/internal/task"
)

// DirName is the repository metadata directory, analogous to .git.
const DirName = ".tak"

// Handle is the coherent view of an open repository: files, index, root path
// and the learnings sidecar store. Every operation in internal/lifecycle and
// internal/coord takes a *Handle rather than touching global state (spec.md
// §8's "no global mutable state" property).
type Handle struct {
	Root    string // repository root (parent of .tak)
	TakDir  string // .tak directory
	Files   *store.Store
	Index   *index.Index
	Learn   *learnings.Store
}

// Find walks up from startingPath looking for a .tak directory, returning
// the repository root (the directory containing .tak). Fails with NotInRepo
// if none is found before reaching the filesystem root.
func Find(startingPath string) (string, error) {
	dir, err := filepath.Abs(startingPath)
	if err != nil {
		return "", errs.Wrap(errs.IOError, err, "resolve starting path")
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, DirName)); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errs.New(errs.NotInRepo, "no %s directory found above %s", DirName, startingPath)
		}
		dir = parent
	}
}

// Open implements spec.md §4.4's five-step open sequence: find root, open
// store+index, detect schema/staleness, rebuild if needed, return the handle.
func Open(startingPath string) (*Handle, error) {
	root, err := Find(startingPath)
	if err != nil {
		return nil, err
	}
	return openAt(root)
}

func openAt(root string) (*Handle, error) {
	takDir := filepath.Join(root, DirName)

	fileStore, err := store.Open(takDir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Join(takDir, "runtime"), 0o755); err != nil {
		return nil, errs.Wrap(errs.IOError, err, "create runtime directory").WithPath(takDir)
	}
	idx, err := index.Open(filepath.Join(takDir, "index.db"))
	if err != nil {
		return nil, err
	}

	learn, err := learnings.Open(takDir)
	if err != nil {
		idx.Close()
		return nil, err
	}

	h := &Handle{Root: root, TakDir: takDir, Files: fileStore, Index: idx, Learn: learn}

	if err := h.reconcileIndex(context.Background()); err != nil {
		idx.Close()
		return nil, err
	}
	return h, nil
}

// reconcileIndex compares the store's current fingerprint against the one
// recorded in the index; on mismatch it performs a full two-pass rebuild and
// persists the new digest (spec.md §4.4 step 4).
func (h *Handle) reconcileIndex(ctx context.Context) error {
	currentFP, err := h.Files.Fingerprint()
	if err != nil {
		return err
	}
	storedFP, err := h.Index.Fingerprint()
	if err != nil {
		return err
	}
	if currentFP == storedFP && storedFP != "" {
		return nil
	}
	return h.Rebuild(ctx)
}

// Rebuild performs (or forces) a full two-pass index rebuild from the file
// store and persists the resulting fingerprint, per spec.md §4.3/§4.4.
func (h *Handle) Rebuild(ctx context.Context) error {
	tasks, err := h.Files.ListAll()
	if err != nil {
		return err
	}
	if err := h.Index.Rebuild(ctx, tasks); err != nil {
		return err
	}
	fp, err := h.Files.Fingerprint()
	if err != nil {
		return err
	}
	return h.Index.SetFingerprint(fp)
}

// CommitUpsert writes a single task's new fingerprint after the index upsert
// that follows a lifecycle mutation (spec.md §4.4: "every subsequent mutation
// that the handle commits writes the new fingerprint after the upsert").
func (h *Handle) CommitUpsert(ctx context.Context, t task.Task) error {
	if err := h.Index.Upsert(ctx, t); err != nil {
		return err
	}
	fp, err := h.Files.Fingerprint()
	if err != nil {
		return err
	}
	return h.Index.SetFingerprint(fp)
}

// CommitDelete mirrors CommitUpsert for the delete path.
func (h *Handle) CommitDelete(ctx context.Context, id string) error {
	if err := h.Index.Delete(ctx, id); err != nil {
		return err
	}
	fp, err := h.Files.Fingerprint()
	if err != nil {
		return err
	}
	return h.Index.SetFingerprint(fp)
}

// Close releases the index handle. The file store and the learnings store
// hold no open resources to release.
func (h *Handle) Close() error {
	return h.Index.Close()
}

// Init scaffolds a fresh .tak directory (the "setup"/"init" command surface,
// SPEC_FULL.md Supplemented Features): directories, config.json, and an
// empty index, adapted to tak's per-task JSON layout.
func Init(root string) (*Handle, error) {
	takDir := filepath.Join(root, DirName)
	for _, sub := range []string{"tasks", "context", "history", "verification_results", "artifacts", "learnings", "migrations", "runtime"} {
		if err := os.MkdirAll(filepath.Join(takDir, sub), 0o755); err != nil {
			return nil, errs.Wrap(errs.IOError, err, "create %s", sub).WithPath(takDir)
		}
	}
	if err := config.Init(takDir); err != nil {
		return nil, err
	}
	h, err := openAt(root)
	if err != nil {
		return nil, err
	}
	if err := h.Rebuild(context.Background()); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}
