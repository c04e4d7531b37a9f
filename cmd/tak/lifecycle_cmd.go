package main

import (
	"github.com/spf13/cobra"

	"github.com/steveyegge/tak/internal/task"
)

var (
	startAssignee string

	cancelReason string

	handoffSummary string

	claimTag      string
	claimKind     string
	claimPriority string
)

var startCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "move a task to in_progress",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		eng := newEngine(h)
		id := resolveID(h, args[0])

		assignee := startAssignee
		if assignee == "" {
			assignee, _ = resolveAgent()
		}
		res, err := eng.Start(cmd.Context(), id, assignee)
		if err != nil {
			fatal(err)
		}
		outputJSON(res)
	},
}

var finishCmd = &cobra.Command{
	Use:   "finish <id>",
	Short: "move a task to done",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		eng := newEngine(h)
		id := resolveID(h, args[0])

		res, err := eng.Finish(cmd.Context(), id)
		if err != nil {
			fatal(err)
		}
		outputJSON(res)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "move a task to cancelled",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		eng := newEngine(h)
		id := resolveID(h, args[0])

		res, err := eng.Cancel(cmd.Context(), id, cancelReason)
		if err != nil {
			fatal(err)
		}
		outputJSON(res)
	},
}

var handoffCmd = &cobra.Command{
	Use:   "handoff <id>",
	Short: "release a task back to pending with a handoff summary",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		eng := newEngine(h)
		rt := openCoord(h)
		defer rt.Close()
		id := resolveID(h, args[0])

		res, err := eng.Handoff(cmd.Context(), id, handoffSummary)
		if err != nil {
			fatal(err)
		}

		agent, _ := resolveAgent()
		_ = rt.MarkAvoided(agent, id, now())

		outputJSON(res)
	},
}

var reopenCmd = &cobra.Command{
	Use:   "reopen <id>",
	Short: "move a done/cancelled task back to pending",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		eng := newEngine(h)
		id := resolveID(h, args[0])

		res, err := eng.Reopen(cmd.Context(), id)
		if err != nil {
			fatal(err)
		}
		outputJSON(res)
	},
}

var unassignCmd = &cobra.Command{
	Use:   "unassign <id>",
	Short: "clear a task's assignee without changing status",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		eng := newEngine(h)
		id := resolveID(h, args[0])

		res, err := eng.Unassign(cmd.Context(), id)
		if err != nil {
			fatal(err)
		}
		outputJSON(res)
	},
}

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "atomically claim the best available task",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		eng := newEngine(h)
		agent, _ := resolveAgent()

		f := task.Filter{Tag: claimTag, Kind: task.Kind(claimKind), Priority: task.Priority(claimPriority)}
		res, err := eng.Claim(cmd.Context(), agent, f)
		if err != nil {
			fatal(err)
		}
		outputJSON(res)
	},
}

func init() {
	startCmd.Flags().StringVar(&startAssignee, "assignee", "", "assignee (defaults to resolved agent identity)")
	cancelCmd.Flags().StringVar(&cancelReason, "reason", "", "cancellation reason")
	handoffCmd.Flags().StringVar(&handoffSummary, "summary", "", "handoff summary for the next agent")
	claimCmd.Flags().StringVar(&claimTag, "tag", "", "only claim tasks with this tag")
	claimCmd.Flags().StringVar(&claimKind, "kind", "", "only claim tasks of this kind")
	claimCmd.Flags().StringVar(&claimPriority, "priority", "", "only claim tasks at this priority")
}
