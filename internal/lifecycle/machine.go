package lifecycle

import "github.com/steveyegge/tak/internal/task"

// operation identifies which lifecycle verb is requesting a transition. The
// same (from, to) pair is not always valid for every verb — in_progress ->
// pending is valid for handoff but not for reopen — so transitions are keyed
// by operation rather than by (from, to) alone.
type operation string

const (
	opStart   operation = "start"
	opFinish  operation = "finish"
	opCancel  operation = "cancel"
	opHandoff operation = "handoff"
	opReopen  operation = "reopen"
)

// transitions enumerates every allowed (from -> to) pair per operation, per
// spec.md §4.5.1. Any pair absent for the given operation is rejected with
// InvalidTransition.
var transitions = map[operation]map[task.Status]task.Status{
	opStart: {
		task.StatusPending: task.StatusInProgress,
	},
	opFinish: {
		task.StatusInProgress: task.StatusDone,
	},
	opCancel: {
		task.StatusPending:    task.StatusCancelled,
		task.StatusInProgress: task.StatusCancelled,
	},
	opHandoff: {
		task.StatusInProgress: task.StatusPending,
	},
	opReopen: {
		task.StatusDone:      task.StatusPending,
		task.StatusCancelled: task.StatusPending,
	},
}

// canTransition reports whether from -> to is allowed for the given operation.
func canTransition(op operation, from, to task.Status) bool {
	return transitions[op][from] == to
}
