package ids

import (
	"path/filepath"

	"github.com/steveyegge/tak/internal/errs"
	"github.com/steveyegge/tak/internal/lockfile"
)

// Allocator serializes id allocation across processes via a persistent
// counter.lock file (spec.md §4.1, §5). The lock is held only around
// "compute max+1"; the caller is expected to write the new task file while
// still holding it, via WithNext.
type Allocator struct {
	lockPath string
}

// NewAllocator returns an Allocator rooted at tasksDir's sibling counter.lock.
func NewAllocator(takDir string) *Allocator {
	return &Allocator{lockPath: filepath.Join(takDir, "counter.lock")}
}

// ResidentIDsFunc returns the canonical ids currently resident on disk; the
// store supplies this so the allocator never needs filesystem knowledge.
type ResidentIDsFunc func() ([]string, error)

// WithNext acquires counter.lock, computes the next id from residentIDs, and
// invokes fn with it while still holding the lock so the caller's file write
// is serialized against concurrent allocators.
func (a *Allocator) WithNext(residentIDs ResidentIDsFunc, fn func(nextID string) error) error {
	lock, err := lockfile.Open(a.lockPath)
	if err != nil {
		return errs.Wrap(errs.IOError, err, "open counter lock").WithPath(a.lockPath)
	}
	defer lock.Release()

	if err := lock.TryAcquire(); err != nil {
		return errs.Wrap(errs.LockTimeout, err, "acquire counter lock")
	}

	existing, err := residentIDs()
	if err != nil {
		return err
	}
	next := Canonical(NextID(existing))
	return fn(next)
}
