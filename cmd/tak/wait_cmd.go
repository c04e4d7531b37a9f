package main

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/steveyegge/tak/internal/errs"
)

var waitTimeoutSeconds int

// waitCmd blocks until something coordination-relevant changes: a task file
// is written (a dependency or assignment may have changed), or the
// coordination database is written (a reservation released, a message
// arrived, a mesh member joined/left). It is the CLI's answer to "poll until
// my blocker clears" (spec.md §5's "wait" capability, paired with blockers
// and reservations) without requiring a busy-loop of `tak list --available`.
var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "block until a task or coordination-state change occurs, or a timeout elapses",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			fatal(errs.Wrap(errs.Internal, err, "create filesystem watcher"))
		}
		defer watcher.Close()

		tasksDir := filepath.Join(h.TakDir, "tasks")
		runtimeDir := filepath.Join(h.TakDir, "runtime")
		for _, dir := range []string{tasksDir, runtimeDir} {
			if err := watcher.Add(dir); err != nil {
				fatal(errs.Wrap(errs.Internal, err, "watch directory").WithPath(dir))
			}
		}

		timeout := time.Duration(waitTimeoutSeconds) * time.Second
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					outputJSON(map[string]string{"status": "watcher_closed"})
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					outputJSON(map[string]string{"status": "changed", "path": ev.Name})
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					outputJSON(map[string]string{"status": "watcher_closed"})
					return
				}
				fatal(errs.Wrap(errs.Internal, err, "watch error"))
			case <-timer.C:
				outputJSON(map[string]string{"status": "timeout"})
				return
			}
		}
	},
}

func init() {
	waitCmd.Flags().IntVar(&waitTimeoutSeconds, "timeout", 30, "seconds to wait before giving up")
}
