package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tak/internal/coord"
	"github.com/steveyegge/tak/internal/errs"
)

var (
	notePostTemplate  string
	notePostFields    []string
	notePostBody      string
	notePostTaskIDs   []string
	notePostTags      []string
	notePostSinceNote int64
	notePostNoChange  bool

	noteListAll bool

	noteCloseReason string
)

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "durable blackboard notes, free-text or templated",
}

var notePostCmd = &cobra.Command{
	Use:   "post",
	Short: "post a blackboard note",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		rt := openCoord(h)
		defer rt.Close()

		agent, _ := resolveAgent()
		fields := parseFields(notePostFields)

		in := coord.PostInput{
			Author:        agent,
			Template:      notePostTemplate,
			Fields:        fields,
			Body:          notePostBody,
			Tags:          notePostTags,
			TaskIDs:       notePostTaskIDs,
			NoChangeSince: notePostNoChange,
		}
		if cmd.Flags().Changed("since-note") {
			in.SinceNote = &notePostSinceNote
		}
		for i, id := range in.TaskIDs {
			in.TaskIDs[i] = resolveID(h, id)
		}

		taskExists := func(id string) bool {
			_, err := h.Files.Read(id)
			return err == nil
		}

		n, err := rt.Post(in, taskExists, now())
		if err != nil {
			fatal(err)
		}
		outputJSON(n)
	},
}

var noteListCmd = &cobra.Command{
	Use:   "list",
	Short: "list blackboard notes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		rt := openCoord(h)
		defer rt.Close()

		notes, err := rt.List(!noteListAll)
		if err != nil {
			fatal(err)
		}
		outputJSON(notes)
	},
}

var noteShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "show a single blackboard note",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		rt := openCoord(h)
		defer rt.Close()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fatalf(errs.InvalidArgument, "note id must be numeric: %v", err)
		}
		n, err := rt.Show(id)
		if err != nil {
			fatal(err)
		}
		outputJSON(n)
	},
}

var noteCloseCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "close a blackboard note",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		rt := openCoord(h)
		defer rt.Close()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fatalf(errs.InvalidArgument, "note id must be numeric: %v", err)
		}
		agent, _ := resolveAgent()
		if err := rt.Close(id, agent, noteCloseReason, now()); err != nil {
			fatal(err)
		}
		outputJSON(map[string]int64{"closed": id})
	},
}

var noteReopenCmd = &cobra.Command{
	Use:   "reopen <id>",
	Short: "reopen a closed blackboard note",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		rt := openCoord(h)
		defer rt.Close()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fatalf(errs.InvalidArgument, "note id must be numeric: %v", err)
		}
		if err := rt.Reopen(id, now()); err != nil {
			fatal(err)
		}
		outputJSON(map[string]int64{"reopened": id})
	},
}

// parseFields turns repeated "key=value" flag values into a map.
func parseFields(raw []string) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for _, kv := range raw {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}

func init() {
	notePostCmd.Flags().StringVar(&notePostTemplate, "template", "", "template name (blocker|handoff|status)")
	notePostCmd.Flags().StringSliceVar(&notePostFields, "field", nil, "template field as key=value (repeatable)")
	notePostCmd.Flags().StringVar(&notePostBody, "body", "", "free-text note body")
	notePostCmd.Flags().StringSliceVar(&notePostTaskIDs, "task", nil, "task this note refers to (repeatable)")
	notePostCmd.Flags().StringSliceVar(&notePostTags, "tag", nil, "note tag (repeatable)")
	notePostCmd.Flags().Int64Var(&notePostSinceNote, "since-note", 0, "prior note id this one deltas against")
	notePostCmd.Flags().BoolVar(&notePostNoChange, "no-change-since", false, "mark that nothing changed since --since-note")

	noteListCmd.Flags().BoolVar(&noteListAll, "all", false, "include closed notes")

	noteCloseCmd.Flags().StringVar(&noteCloseReason, "reason", "", "close reason")

	noteCmd.AddCommand(notePostCmd, noteListCmd, noteShowCmd, noteCloseCmd, noteReopenCmd)
}
