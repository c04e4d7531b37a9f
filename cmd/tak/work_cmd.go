package main

import (
	"github.com/spf13/cobra"

	"github.com/steveyegge/tak/internal/coord"
)

var (
	workTag           string
	workLimit         int
	workVerifyMode    string
	workClaimStrategy string
	workPause         bool
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "advance this agent's stateless work loop by one reconciliation step",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		eng := newEngine(h)
		rt := openCoord(h)
		defer rt.Close()

		agent, _ := resolveAgent()
		opts := coord.WorkOptions{
			Tag:           workTag,
			VerifyMode:    coord.VerifyMode(orDefault(workVerifyMode, string(coord.VerifyIsolated))),
			ClaimStrategy: coord.ClaimStrategy(orDefault(workClaimStrategy, string(coord.StrategyPriorityThenAge))),
		}
		if cmd.Flags().Changed("limit") {
			opts.Limit = &workLimit
		}

		resp, err := rt.Work(cmd.Context(), eng, agent, opts, now())
		if err != nil {
			fatal(err)
		}
		outputJSON(resp)
	},
}

var workStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "show this agent's work-loop state without mutating it",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		eng := newEngine(h)
		rt := openCoord(h)
		defer rt.Close()

		agent, _ := resolveAgent()
		resp, err := rt.Status(eng, agent)
		if err != nil {
			fatal(err)
		}
		outputJSON(resp)
	},
}

var workStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "deactivate this agent's work loop and release its reservations",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		rt := openCoord(h)
		defer rt.Close()

		agent, _ := resolveAgent()
		if err := rt.Stop(agent, now()); err != nil {
			fatal(err)
		}
		outputJSON(map[string]string{"agent": agent, "status": "stopped"})
	},
}

var workDoneCmd = &cobra.Command{
	Use:   "done",
	Short: "finish the current task and release reservations",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		eng := newEngine(h)
		rt := openCoord(h)
		defer rt.Close()

		agent, _ := resolveAgent()
		resp, err := rt.Done(cmd.Context(), eng, agent, workPause, now())
		if err != nil {
			fatal(err)
		}
		outputJSON(resp)
	},
}

func init() {
	workCmd.Flags().StringVar(&workTag, "tag", "", "restrict claims to tasks carrying this tag")
	workCmd.Flags().IntVar(&workLimit, "limit", 0, "stop claiming new work after this many tasks")
	workCmd.Flags().StringVar(&workVerifyMode, "verify-mode", string(coord.VerifyIsolated), "verify mode (isolated|local)")
	workCmd.Flags().StringVar(&workClaimStrategy, "claim-strategy", string(coord.StrategyPriorityThenAge), "claim strategy (priority_then_age|epic_closeout)")

	workDoneCmd.Flags().BoolVar(&workPause, "pause", false, "deactivate the work loop after finishing, instead of continuing")

	workCmd.AddCommand(workStatusCmd, workStopCmd, workDoneCmd)
}
