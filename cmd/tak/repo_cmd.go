package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tak/internal/errs"
	"github.com/steveyegge/tak/internal/ids"
	"github.com/steveyegge/tak/internal/repo"
)

var migrateApply bool

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "scaffold a fresh .tak/ repository",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}
		h, err := repo.Init(root)
		if err != nil {
			fatal(err)
		}
		defer h.Close()
		outputJSON(map[string]string{"root": h.Root, "tak_dir": h.TakDir})
	},
}

// setupCmd is init's companion for a repo whose .tak/ directory already
// exists but whose agent identity has not been established yet: it resolves
// and reports the identity resolveAgent would use, so a caller can persist
// it into TAK_AGENT_NAME before starting work (spec.md §6).
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "scaffold .tak/ if missing and report the resolved agent identity",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h, err := repo.Open(".")
		if err != nil {
			h, err = repo.Init(".")
			if err != nil {
				fatal(err)
			}
		}
		defer h.Close()

		agent, ephemeral := resolveAgent()
		outputJSON(map[string]any{
			"root": h.Root, "tak_dir": h.TakDir,
			"agent_name": agent, "ephemeral": ephemeral,
		})
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "run repository health checks",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		outputJSON(h.Doctor())
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "force a full rebuild of the derived index from task files",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		if err := h.Rebuild(cmd.Context()); err != nil {
			fatal(err)
		}
		outputJSON(map[string]string{"status": "rebuilt"})
	},
}

// migrationEntry records one legacy-decimal-to-canonical-hex rename
// (spec.md §4.1's migration note: "that is migrate's job").
type migrationEntry struct {
	From string `json:"from"`
	To   string `json:"to"`
}

var migrateIDsCmd = &cobra.Command{
	Use:   "migrate-ids",
	Short: "rewrite legacy decimal-named task files to canonical hex ids",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()

		tasksDir := filepath.Join(h.TakDir, "tasks")
		entries, err := os.ReadDir(tasksDir)
		if err != nil {
			fatal(errs.Wrap(errs.IOError, err, "read tasks directory").WithPath(tasksDir))
		}

		var plan []migrationEntry
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			base := strings.TrimSuffix(e.Name(), ".json")
			if isLegacyDecimal(base) {
				v, err := strconv.ParseUint(base, 10, 64)
				if err != nil {
					continue
				}
				plan = append(plan, migrationEntry{From: e.Name(), To: ids.Canonical(v) + ".json"})
			}
		}
		sort.Slice(plan, func(i, j int) bool { return plan[i].From < plan[j].From })

		if !migrateApply {
			outputJSON(map[string]any{"dry_run": true, "planned": plan})
			return
		}

		for _, m := range plan {
			if err := os.Rename(filepath.Join(tasksDir, m.From), filepath.Join(tasksDir, m.To)); err != nil {
				fatal(errs.Wrap(errs.IOError, err, "rename %s to %s", m.From, m.To))
			}
		}
		if len(plan) > 0 {
			if err := writeMigrationRecord(h.TakDir, plan); err != nil {
				fatal(err)
			}
		}
		if err := h.Rebuild(cmd.Context()); err != nil {
			fatal(err)
		}
		outputJSON(map[string]any{"dry_run": false, "applied": plan})
	},
}

func isLegacyDecimal(base string) bool {
	if base == "" || len(base) == ids.CanonicalLen {
		return false
	}
	for _, c := range base {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func writeMigrationRecord(takDir string, plan []migrationEntry) error {
	dir := filepath.Join(takDir, "migrations")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.IOError, err, "create migrations directory").WithPath(dir)
	}
	path := filepath.Join(dir, "task-id-map-"+strconv.FormatInt(time.Now().Unix(), 10)+".json")
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return errs.Wrap(errs.Internal, err, "marshal migration record")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errs.Wrap(errs.IOError, err, "write migration record").WithPath(path)
	}
	return nil
}

func init() {
	migrateIDsCmd.Flags().BoolVar(&migrateApply, "apply", false, "apply the migration instead of only reporting the plan")
	migrateIDsCmd.Flags().Bool("dry-run", true, "report the migration plan without applying it (default)")
}
