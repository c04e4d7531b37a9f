package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tak/internal/coord"
)

var (
	meshJoinName string
	meshJoinMeta []string

	meshSendTo      string
	meshSendReplyTo int64

	meshInboxAck bool

	meshReservePaths     []string
	meshReserveReason    string
	meshReserveTTLMinute int
	meshReleasePaths     []string

	meshListAll bool

	meshCleanupHorizonMinutes int
)

var meshCmd = &cobra.Command{
	Use:   "mesh",
	Short: "agent presence, messaging, and path reservations",
}

var meshJoinCmd = &cobra.Command{
	Use:   "join",
	Short: "join the mesh under a name (or a generated one)",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		rt := openCoord(h)
		defer rt.Close()

		name := meshJoinName
		if name == "" {
			name, _ = resolveAgent()
		}
		cwd, _ := os.Getwd()
		host, _ := os.Hostname()
		rec, err := rt.Join(coord.JoinInput{
			Name:     name,
			CWD:      cwd,
			PID:      os.Getpid(),
			Host:     host,
			Metadata: parseFields(meshJoinMeta),
		}, now())
		if err != nil {
			fatal(err)
		}
		outputJSON(rec)
	},
}

var meshLeaveCmd = &cobra.Command{
	Use:   "leave",
	Short: "leave the mesh",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		rt := openCoord(h)
		defer rt.Close()

		agent, _ := resolveAgent()
		if err := rt.Leave(agent, now()); err != nil {
			fatal(err)
		}
		outputJSON(map[string]string{"left": agent})
	},
}

var meshListCmd = &cobra.Command{
	Use:   "list",
	Short: "list mesh presence records",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		rt := openCoord(h)
		defer rt.Close()

		agents, err := rt.ListAgents(!meshListAll)
		if err != nil {
			fatal(err)
		}
		outputJSON(agents)
	},
}

var meshHeartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "refresh this agent's mesh presence",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		rt := openCoord(h)
		defer rt.Close()

		agent, _ := resolveAgent()
		if err := rt.Heartbeat(agent, now()); err != nil {
			fatal(err)
		}
		outputJSON(map[string]string{"agent": agent, "status": "ok"})
	},
}

var meshSendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "send a message to another agent",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		rt := openCoord(h)
		defer rt.Close()

		agent, _ := resolveAgent()
		var replyTo *int64
		if cmd.Flags().Changed("reply-to") {
			replyTo = &meshSendReplyTo
		}
		id, err := rt.Send(agent, meshSendTo, args[0], replyTo, now())
		if err != nil {
			fatal(err)
		}
		outputJSON(map[string]int64{"id": id})
	},
}

var meshBroadcastCmd = &cobra.Command{
	Use:   "broadcast <text>",
	Short: "send a message to every currently active agent",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		rt := openCoord(h)
		defer rt.Close()

		agent, _ := resolveAgent()
		agents, err := rt.ListAgents(true)
		if err != nil {
			fatal(err)
		}
		var ids []int64
		for _, a := range agents {
			if a.Name == agent {
				continue
			}
			id, err := rt.Send(agent, a.Name, args[0], nil, now())
			if err != nil {
				fatal(err)
			}
			ids = append(ids, id)
		}
		outputJSON(map[string]any{"sent": ids})
	},
}

var meshInboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "show this agent's unread messages",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		rt := openCoord(h)
		defer rt.Close()

		agent, _ := resolveAgent()
		msgs, err := rt.Inbox(agent, meshInboxAck, now())
		if err != nil {
			fatal(err)
		}
		outputJSON(msgs)
	},
}

var meshReserveCmd = &cobra.Command{
	Use:   "reserve",
	Short: "declare exclusive intent to edit one or more paths",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		rt := openCoord(h)
		defer rt.Close()

		agent, _ := resolveAgent()
		var ttl *time.Duration
		if cmd.Flags().Changed("ttl-minutes") {
			d := time.Duration(meshReserveTTLMinute) * time.Minute
			ttl = &d
		}
		if err := rt.Reserve(agent, meshReservePaths, meshReserveReason, ttl, now()); err != nil {
			fatal(err)
		}
		outputJSON(map[string]any{"agent": agent, "paths": meshReservePaths})
	},
}

var meshReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "release one or all of this agent's path reservations",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		rt := openCoord(h)
		defer rt.Close()

		agent, _ := resolveAgent()
		var paths []string
		if cmd.Flags().Changed("path") {
			paths = meshReleasePaths
		}
		if err := rt.Release(agent, paths); err != nil {
			fatal(err)
		}
		outputJSON(map[string]string{"agent": agent})
	},
}

var meshBlockersCmd = &cobra.Command{
	Use:   "blockers <path>",
	Short: "show foreign reservations that would conflict with path",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		rt := openCoord(h)
		defer rt.Close()

		agent, _ := resolveAgent()
		blockers, err := rt.Blockers(agent, args[0], now())
		if err != nil {
			fatal(err)
		}
		outputJSON(blockers)
	},
}

var meshFeedCmd = &cobra.Command{
	Use:   "feed",
	Short: "show open blackboard notes and unread messages for this agent",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		rt := openCoord(h)
		defer rt.Close()

		agent, _ := resolveAgent()
		msgs, err := rt.Inbox(agent, false, now())
		if err != nil {
			fatal(err)
		}
		notes, err := rt.List(true)
		if err != nil {
			fatal(err)
		}
		outputJSON(map[string]any{"messages": msgs, "notes": notes})
	},
}

var meshCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "deactivate agents that have not heartbeat within the stale horizon",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		rt := openCoord(h)
		defer rt.Close()

		horizon := coord.StaleHorizon
		if cmd.Flags().Changed("horizon-minutes") {
			horizon = time.Duration(meshCleanupHorizonMinutes) * time.Minute
		}
		swept, err := rt.Cleanup(now(), horizon)
		if err != nil {
			fatal(err)
		}
		outputJSON(map[string]any{"swept": swept})
	},
}

func init() {
	meshJoinCmd.Flags().StringVar(&meshJoinName, "name", "", "requested agent name (default: resolved agent identity)")
	meshJoinCmd.Flags().StringSliceVar(&meshJoinMeta, "meta", nil, "presence metadata as key=value (repeatable)")

	meshListCmd.Flags().BoolVar(&meshListAll, "all", false, "include inactive agents")

	meshSendCmd.Flags().StringVar(&meshSendTo, "to", "", "recipient agent name")
	_ = meshSendCmd.MarkFlagRequired("to")
	meshSendCmd.Flags().Int64Var(&meshSendReplyTo, "reply-to", 0, "message id this reply is threaded under")

	meshInboxCmd.Flags().BoolVar(&meshInboxAck, "ack", false, "mark returned messages read and acked")

	meshReserveCmd.Flags().StringSliceVar(&meshReservePaths, "path", nil, "path(s) to reserve (repeatable)")
	_ = meshReserveCmd.MarkFlagRequired("path")
	meshReserveCmd.Flags().StringVar(&meshReserveReason, "reason", "", "reservation reason")
	meshReserveCmd.Flags().IntVar(&meshReserveTTLMinute, "ttl-minutes", 0, "reservation expiry in minutes from now (default: never)")

	meshReleaseCmd.Flags().StringSliceVar(&meshReleasePaths, "path", nil, "path(s) to release (default: all)")

	meshCleanupCmd.Flags().IntVar(&meshCleanupHorizonMinutes, "horizon-minutes", 10, "stale horizon in minutes")

	meshCmd.AddCommand(
		meshJoinCmd, meshLeaveCmd, meshListCmd, meshHeartbeatCmd, meshSendCmd, meshBroadcastCmd,
		meshInboxCmd, meshReserveCmd, meshReleaseCmd, meshBlockersCmd, meshFeedCmd, meshCleanupCmd,
	)
}
