//go:build unix || linux || darwin

package lockfile

import (
	"syscall"
)

// isProcessRunning backs TryAcquire's crash recovery: a kill(pid, 0) probe
// sends no signal, it only reports whether pid is addressable.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false // 0 or negative would target a process group, not one pid
	}
	return syscall.Kill(pid, 0) == nil
}
