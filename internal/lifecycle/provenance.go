package lifecycle

import "github.com/steveyegge/tak/internal/task"

// GitProvenance is the external git-provenance collaborator's contract with
// the core (spec.md §1 lists git-provenance capture as deliberately out of
// scope; spec.md §4.5.2 still requires the lifecycle engine to invoke it at
// start/finish). The core only defines and calls this interface; it does not
// implement branch/commit capture itself, and the default NoopProvenance
// leaves Task.Git untouched, matching "external collaborators do not hold
// locks" (spec.md §5) and interact only through the handle.
type GitProvenance interface {
	// OnStart is invoked the first time a task transitions to in_progress. It
	// may populate Branch/StartCommit.
	OnStart(t *task.Task)
	// OnFinish is invoked when a task transitions to done. It may populate
	// EndCommit/Commits/PR.
	OnFinish(t *task.Task)
}

// NoopProvenance is the default GitProvenance: it observes tasks but never
// mutates them, so Engine works correctly with no external collaborator
// wired in.
type NoopProvenance struct{}

func (NoopProvenance) OnStart(*task.Task)  {}
func (NoopProvenance) OnFinish(*task.Task) {}
