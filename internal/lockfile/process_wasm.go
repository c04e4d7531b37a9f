//go:build js && wasm

package lockfile

// isProcessRunning always reports false in WASM: there is no multi-process
// crash-recovery scenario to recover from in a single-process environment.
func isProcessRunning(pid int) bool {
	return false
}
