package coord

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/steveyegge/tak/internal/errs"
	"github.com/steveyegge/tak/internal/task"
)

// VerifyBlockDiagnostic describes one scope/foreign-reservation overlap that
// blocked an isolated-mode verify (spec.md §4.6.5).
type VerifyBlockDiagnostic struct {
	Owner     string
	ScopePath string
	HeldPath  string
	Reason    string
	AgeSec    int64
}

// CommandResult is one verification command's outcome.
type CommandResult struct {
	Command  string
	Passed   bool
	Output   string
	Duration time.Duration
}

// VerifyResult is the outcome of a Verify call.
type VerifyResult struct {
	Allowed  bool
	Blocked  []VerifyBlockDiagnostic
	Guidance string
	Commands []CommandResult
	Passed   bool
}

// Verify implements spec.md §4.6.5: in local mode, the task's contract
// verification commands always run. In isolated mode, the engine first
// derives the agent's scope V (from its own reservations, or explicit
// scopePaths) and compares it against every foreign reservation F before
// running anything.
func (r *Runtime) Verify(ctx context.Context, agent string, t task.Task, scopePaths []string, verifyMode VerifyMode, now time.Time) (VerifyResult, error) {
	if verifyMode != VerifyIsolated {
		return r.runCommands(ctx, t)
	}

	scope := scopePaths
	if len(scope) == 0 {
		owned, err := r.reservationsOf(agent)
		if err != nil {
			return VerifyResult{}, err
		}
		for _, res := range owned {
			scope = append(scope, res.Path)
		}
	}
	normalizedScope := make([]string, 0, len(scope))
	for _, p := range scope {
		np, err := NormalizePath(p)
		if err != nil {
			return VerifyResult{}, err
		}
		normalizedScope = append(normalizedScope, np)
	}

	foreign, err := r.Blockers(agent, "", now)
	if err != nil {
		return VerifyResult{}, err
	}

	if len(normalizedScope) == 0 {
		if len(foreign) == 0 {
			return r.runCommands(ctx, t)
		}
		return VerifyResult{
			Allowed:  false,
			Guidance: "no reservation scope is held; reserve the paths this change touches, or switch verify_mode to local",
		}, nil
	}

	var blocked []VerifyBlockDiagnostic
	for _, sp := range normalizedScope {
		for _, f := range foreign {
			if pathsConflict(sp, f.Path) {
				blocked = append(blocked, VerifyBlockDiagnostic{
					Owner: f.Agent, ScopePath: sp, HeldPath: f.Path, Reason: f.Reason, AgeSec: f.AgeSeconds(now),
				})
			}
		}
	}
	if len(blocked) > 0 {
		return VerifyResult{Allowed: false, Blocked: blocked}, nil
	}

	return r.runCommands(ctx, t)
}

// runCommands executes each of the task's contract verification commands in
// turn via bash -c, stopping at the first failure (spec.md §4.6.5's
// "runs the task's contract verification commands").
func (r *Runtime) runCommands(ctx context.Context, t task.Task) (VerifyResult, error) {
	result := VerifyResult{Allowed: true, Passed: true}
	if t.Contract == nil || len(t.Contract.Verification) == 0 {
		return result, nil
	}
	for _, cmdStr := range t.Contract.Verification {
		start := time.Now()
		cmd := exec.CommandContext(ctx, "bash", "-c", cmdStr)
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out
		runErr := cmd.Run()
		cr := CommandResult{
			Command:  cmdStr,
			Passed:   runErr == nil,
			Output:   strings.TrimSpace(out.String()),
			Duration: time.Since(start),
		}
		result.Commands = append(result.Commands, cr)
		if runErr != nil {
			result.Passed = false
			break
		}
	}
	if !result.Passed {
		return result, errs.New(errs.InvalidArgument, "verification failed: %s", verificationFailureSummary(result))
	}
	return result, nil
}

func verificationFailureSummary(r VerifyResult) string {
	for _, c := range r.Commands {
		if !c.Passed {
			return fmt.Sprintf("%q", c.Command)
		}
	}
	return "unknown command"
}
