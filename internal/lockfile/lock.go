// Package lockfile provides the exclusive advisory file locks tak uses to
// serialize cross-process access to counter.lock and claim.lock (spec.md
// §4.1, §4.5.3, §5). Locks are retained forever on disk; only the flock held
// on the open file descriptor is transient.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrLockBusy is returned when a non-blocking lock cannot be acquired
// because another process holds a conflicting lock.
var ErrLockBusy = errors.New("lock busy: held by another process")

// IsLocked reports whether err indicates the lock is held by another process.
func IsLocked(err error) bool {
	return errors.Is(err, ErrLockBusy) || errors.Is(err, errLockHeld)
}

// Info is written alongside a held lock so a later acquirer that fails to
// flock can tell a live holder from a crashed one (spec.md §4.1 "including
// recovery for crashed holders"), scoped to the two persistent locks tak
// actually takes.
type Info struct {
	PID        int       `json:"pid"`
	Host       string    `json:"host"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// NamedLock is an exclusive advisory lock backed by a retained file (e.g.
// .tak/counter.lock or .tak/claim.lock). The file is never deleted; only the
// flock state and the sidecar Info are transient.
type NamedLock struct {
	path string
	f    *os.File
}

// Open creates the lock file if absent and prepares it for locking. The file
// itself is retained forever per spec.md §6.
func Open(path string) (*NamedLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	return &NamedLock{path: path, f: f}, nil
}

// TryAcquire attempts a non-blocking exclusive lock, recovering from a stale
// lock left by a crashed holder: if flock fails, it inspects the Info sidecar
// and, if the recorded PID is no longer alive, retries once.
func (l *NamedLock) TryAcquire() error {
	if err := FlockExclusiveNonBlocking(l.f); err != nil {
		if !IsLocked(err) {
			return err
		}
		if l.recoverIfAbandoned() {
			if err := FlockExclusiveNonBlocking(l.f); err != nil {
				return err
			}
		} else {
			return ErrLockBusy
		}
	}
	return l.writeInfo()
}

// recoverIfAbandoned returns true if the lock's sidecar Info names a PID that
// is no longer running, meaning the holder crashed without releasing.
func (l *NamedLock) recoverIfAbandoned() bool {
	info, err := readInfo(l.path + ".info")
	if err != nil {
		return false
	}
	return !isProcessRunning(info.PID)
}

func (l *NamedLock) writeInfo() error {
	info := Info{PID: os.Getpid(), AcquiredAt: time.Now()}
	if host, err := os.Hostname(); err == nil {
		info.Host = host
	}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(l.path+".info", data, 0o644)
}

func readInfo(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ReadInfo reads the .info sidecar for the lock at lockPath, for diagnostic
// callers (doctor) that want to report on a lock without acquiring it.
func ReadInfo(lockPath string) (*Info, error) {
	return readInfo(lockPath + ".info")
}

// IsProcessRunning exposes the platform-specific liveness check for
// diagnostic callers (doctor).
func IsProcessRunning(pid int) bool {
	return isProcessRunning(pid)
}

// Release unlocks and closes the underlying file descriptor. The lock file
// and its .info sidecar remain on disk for the next acquirer.
func (l *NamedLock) Release() error {
	_ = FlockUnlock(l.f)
	return l.f.Close()
}

// ProbeLocked reports whether path is held under an exclusive flock by some
// process right now. It opens the file independently of any NamedLock and
// attempts a transient shared lock: if even a shared lock cannot be
// acquired, an exclusive holder is live at this instant, regardless of what
// the .info sidecar claims (doctor uses this to catch a sidecar that is
// stale or absent while the flock itself is still held).
func ProbeLocked(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if err := FlockSharedNonBlock(f); err != nil {
		if IsLocked(err) {
			return true, nil
		}
		return false, err
	}
	_ = FlockUnlock(f)
	return false, nil
}
