// Command tak is the CLI frontend over internal/repo, internal/lifecycle,
// internal/coord and internal/learnings (spec.md §6). It is a thin,
// short-lived process per spec.md §5: no daemon, no background goroutines
// outside a single command's lifetime.
package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/steveyegge/tak/internal/coord"
	"github.com/steveyegge/tak/internal/errs"
	"github.com/steveyegge/tak/internal/ids"
	"github.com/steveyegge/tak/internal/lifecycle"
	"github.com/steveyegge/tak/internal/repo"
)

var (
	agentFlag string
	v         = viper.New()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// cobra's own usage/error printing is silenced on rootCmd, so every
		// failure (flag parsing included) is reported here: typed errs.Error
		// values get the structured envelope, everything else a generic
		// Internal record.
		fatal(err)
	}
}

var rootCmd = &cobra.Command{
	Use:           "tak",
	Short:         "git-native, multi-agent task manager",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&agentFlag, "agent", "", "agent identity for lifecycle/coordination ops (overrides agent_name/TAK_AGENT_NAME)")

	v.SetEnvPrefix("TAK")
	v.AutomaticEnv()
	_ = v.BindEnv("agent_name", "TAK_AGENT_NAME")
	_ = v.BindPFlag("agent_name", rootCmd.PersistentFlags().Lookup("agent"))

	rootCmd.AddCommand(
		initCmd, doctorCmd, reindexCmd, migrateIDsCmd, setupCmd,
		createCmd, showCmd, editCmd, deleteCmd, listCmd, treeCmd,
		startCmd, finishCmd, cancelCmd, handoffCmd, reopenCmd, unassignCmd, claimCmd,
		dependCmd, undependCmd, reparentCmd, orphanCmd,
		contextCmd, logCmd, verifyCmd,
		meshCmd, noteCmd, workCmd, waitCmd,
	)
}

// resolveAgent implements spec.md §4.6.4 step 1's identity precedence:
// explicit (--agent) > environment (TAK_AGENT_NAME/agent_name) > generated.
// A generated identity is reported back with ephemeral=true so callers know
// it won't be stable across invocations.
func resolveAgent() (name string, ephemeral bool) {
	if agentFlag != "" {
		return agentFlag, false
	}
	if configured := v.GetString("agent_name"); configured != "" {
		return configured, false
	}
	return "agent-" + uuid.NewString()[:8], true
}

func openHandle() *repo.Handle {
	h, err := repo.Open(".")
	if err != nil {
		fatal(err)
	}
	return h
}

func openCoord(h *repo.Handle) *coord.Runtime {
	rt, err := coord.Open(h.TakDir)
	if err != nil {
		fatal(err)
	}
	return rt
}

func newEngine(h *repo.Handle) *lifecycle.Engine {
	return lifecycle.New(h, nil)
}

// resolveID resolves a user-supplied id/prefix argument to a canonical id
// against the store's resident set, per spec.md §4.1.
func resolveID(h *repo.Handle, arg string) string {
	resident, err := h.Files.ResidentIDs()
	if err != nil {
		fatal(err)
	}
	id, err := ids.ResolvePrefix(arg, resident)
	if err != nil {
		fatal(err)
	}
	return id
}

func fatalf(code errs.Code, format string, args ...any) {
	fatal(errs.New(code, format, args...))
}

func now() time.Time { return time.Now() }
