package main

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tak/internal/coord"
	"github.com/steveyegge/tak/internal/errs"
)

var (
	contextBody string
	contextClear bool

	verifyScope []string
	verifyMode  string
)

var contextCmd = &cobra.Command{
	Use:   "context <id>",
	Short: "read, set, or clear a task's working-context sidecar",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		id := resolveID(h, args[0])
		path := filepath.Join(h.TakDir, "context", id+".md")

		switch {
		case contextClear:
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				fatal(errs.Wrap(errs.IOError, err, "clear context").WithPath(path))
			}
			outputJSON(map[string]string{"cleared": id})
		case cmd.Flags().Changed("set"):
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				fatal(errs.Wrap(errs.IOError, err, "create context directory").WithPath(path))
			}
			if err := os.WriteFile(path, []byte(contextBody), 0o644); err != nil {
				fatal(errs.Wrap(errs.IOError, err, "write context").WithPath(path))
			}
			outputJSON(map[string]string{"id": id, "context": contextBody})
		default:
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					outputJSON(map[string]string{"id": id, "context": ""})
					return
				}
				fatal(errs.Wrap(errs.IOError, err, "read context").WithPath(path))
			}
			outputJSON(map[string]string{"id": id, "context": string(data)})
		}
	},
}

// historyEvent mirrors the private record internal/lifecycle writes into
// .tak/history/<id>.jsonl, so log can decode it without that package
// exporting its internal type.
type historyEvent struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Detail    string `json:"detail,omitempty"`
}

var logCmd = &cobra.Command{
	Use:   "log <id>",
	Short: "show a task's best-effort history sidecar",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		id := resolveID(h, args[0])
		path := filepath.Join(h.TakDir, "history", id+".jsonl")

		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				outputJSON([]historyEvent{})
				return
			}
			fatal(errs.Wrap(errs.IOError, err, "read history").WithPath(path))
		}
		defer f.Close()

		var events []historyEvent
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			var e historyEvent
			if err := json.Unmarshal(sc.Bytes(), &e); err == nil {
				events = append(events, e)
			}
		}
		outputJSON(events)
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <id>",
	Short: "run a task's verification commands, gated by reservation scope",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		rt := openCoord(h)
		defer rt.Close()

		id := resolveID(h, args[0])
		t, err := h.Files.Read(id)
		if err != nil {
			fatal(err)
		}

		mode := coord.VerifyIsolated
		if verifyMode == string(coord.VerifyLocal) {
			mode = coord.VerifyLocal
		}

		agent, _ := resolveAgent()
		result, err := rt.Verify(cmd.Context(), agent, t, verifyScope, mode, now())
		if err != nil {
			fatal(err)
		}
		outputJSON(result)
	},
}

func init() {
	contextCmd.Flags().StringVar(&contextBody, "set", "", "set the context body")
	contextCmd.Flags().BoolVar(&contextClear, "clear", false, "clear the context sidecar")

	verifyCmd.Flags().StringSliceVar(&verifyScope, "scope", nil, "paths this verification run touches (isolated mode)")
	verifyCmd.Flags().StringVar(&verifyMode, "mode", string(coord.VerifyIsolated), "verify mode (isolated|local)")
}
