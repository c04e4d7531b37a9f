package main

import (
	"github.com/spf13/cobra"

	"github.com/steveyegge/tak/internal/task"
)

var (
	dependType   string
	dependReason string
)

var dependCmd = &cobra.Command{
	Use:   "depend <id> <target...>",
	Short: "add dependency edges from id onto one or more targets",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		eng := newEngine(h)
		id := resolveID(h, args[0])

		targets := make([]string, 0, len(args)-1)
		for _, a := range args[1:] {
			targets = append(targets, resolveID(h, a))
		}

		depType := task.DepHard
		if dependType == string(task.DepSoft) {
			depType = task.DepSoft
		}

		res, err := eng.Depend(cmd.Context(), id, targets, depType, dependReason)
		if err != nil {
			fatal(err)
		}
		outputJSON(res)
	},
}

var undependCmd = &cobra.Command{
	Use:   "undepend <id> <target...>",
	Short: "remove dependency edges from id onto one or more targets",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		eng := newEngine(h)
		id := resolveID(h, args[0])

		targets := make([]string, 0, len(args)-1)
		for _, a := range args[1:] {
			targets = append(targets, resolveID(h, a))
		}

		res, err := eng.Undepend(cmd.Context(), id, targets)
		if err != nil {
			fatal(err)
		}
		outputJSON(res)
	},
}

var reparentCmd = &cobra.Command{
	Use:   "reparent <id> <new-parent>",
	Short: "move a task under a new parent",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		eng := newEngine(h)
		id := resolveID(h, args[0])
		newParent := resolveID(h, args[1])

		res, err := eng.Reparent(cmd.Context(), id, newParent)
		if err != nil {
			fatal(err)
		}
		outputJSON(res)
	},
}

var orphanCmd = &cobra.Command{
	Use:   "orphan <id>",
	Short: "clear a task's parent edge",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		eng := newEngine(h)
		id := resolveID(h, args[0])

		res, err := eng.Orphan(cmd.Context(), id)
		if err != nil {
			fatal(err)
		}
		outputJSON(res)
	},
}

func init() {
	dependCmd.Flags().StringVar(&dependType, "type", string(task.DepHard), "dependency type (hard|soft)")
	dependCmd.Flags().StringVar(&dependReason, "reason", "", "reason for the edge")
}
