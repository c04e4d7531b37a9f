package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/steveyegge/tak/internal/lockfile"
)

// CheckStatus is the outcome of a single doctor check.
type CheckStatus string

const (
	StatusOK   CheckStatus = "ok"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// DoctorCheck is one diagnostic result: a name/status/detail triple.
type DoctorCheck struct {
	Check  string      `json:"check"`
	Status CheckStatus `json:"status"`
	Detail string      `json:"detail,omitempty"`
}

// Doctor runs a battery of repository health checks: fingerprint/index
// coherence, orphaned sidecar files, and dangling lock files held by dead
// PIDs (SPEC_FULL.md Supplemented Features).
func (h *Handle) Doctor() []DoctorCheck {
	var checks []DoctorCheck
	checks = append(checks, h.checkIndexCoherence())
	checks = append(checks, h.checkOrphanedSidecars()...)
	checks = append(checks, h.checkLocks()...)
	return checks
}

func (h *Handle) checkIndexCoherence() DoctorCheck {
	currentFP, err := h.Files.Fingerprint()
	if err != nil {
		return DoctorCheck{Check: "index_coherence", Status: StatusFail, Detail: err.Error()}
	}
	storedFP, err := h.Index.Fingerprint()
	if err != nil {
		return DoctorCheck{Check: "index_coherence", Status: StatusFail, Detail: err.Error()}
	}
	if currentFP != storedFP {
		return DoctorCheck{Check: "index_coherence", Status: StatusWarn, Detail: "index fingerprint is stale; next open will rebuild"}
	}
	return DoctorCheck{Check: "index_coherence", Status: StatusOK}
}

// checkOrphanedSidecars reports context/history/verification_results files
// that no longer have a corresponding task (they are harmless but worth
// surfacing; tak never deletes them automatically outside task delete).
func (h *Handle) checkOrphanedSidecars() []DoctorCheck {
	resident, err := h.Files.ResidentIDs()
	if err != nil {
		return []DoctorCheck{{Check: "orphaned_sidecars", Status: StatusFail, Detail: err.Error()}}
	}
	known := make(map[string]bool, len(resident))
	for _, id := range resident {
		known[id] = true
	}

	var orphans []string
	for _, sub := range []string{"context", "history", "verification_results"} {
		dir := filepath.Join(h.TakDir, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			stem := strings.TrimSuffix(strings.TrimSuffix(e.Name(), ".md"), ".jsonl")
			stem = strings.TrimSuffix(stem, ".json")
			if !known[stem] {
				orphans = append(orphans, filepath.Join(sub, e.Name()))
			}
		}
	}
	if len(orphans) == 0 {
		return []DoctorCheck{{Check: "orphaned_sidecars", Status: StatusOK}}
	}
	return []DoctorCheck{{Check: "orphaned_sidecars", Status: StatusWarn, Detail: fmt.Sprintf("%d orphaned sidecar file(s): %s", len(orphans), strings.Join(orphans, ", "))}}
}

// checkLocks inspects counter.lock and claim.lock. It combines two signals:
// a live flock probe (independent of any sidecar, so it catches a stale or
// missing .info file while the lock is still genuinely held) and the .info
// sidecar's recorded PID (so a free flock with a dead recorded PID is still
// flagged as reclaimable).
func (h *Handle) checkLocks() []DoctorCheck {
	var out []DoctorCheck
	for _, name := range []string{"counter.lock", "claim.lock"} {
		path := filepath.Join(h.TakDir, name)
		if _, err := os.Stat(path); err != nil {
			out = append(out, DoctorCheck{Check: "lock:" + name, Status: StatusOK, Detail: "not present"})
			continue
		}

		held, probeErr := lockfile.ProbeLocked(path)
		live := probeErr == nil && held

		info, err := lockfile.ReadInfo(path)
		if err != nil {
			if live {
				out = append(out, DoctorCheck{Check: "lock:" + name, Status: StatusOK, Detail: "present, currently held, no info sidecar"})
			} else {
				out = append(out, DoctorCheck{Check: "lock:" + name, Status: StatusOK, Detail: "present, no info sidecar"})
			}
			continue
		}

		switch {
		case live:
			out = append(out, DoctorCheck{Check: "lock:" + name, Status: StatusWarn,
				Detail: fmt.Sprintf("held by live pid %d since %s", info.PID, info.AcquiredAt.Format("2006-01-02T15:04:05Z07:00"))})
		case lockfile.IsProcessRunning(info.PID):
			out = append(out, DoctorCheck{Check: "lock:" + name, Status: StatusOK,
				Detail: fmt.Sprintf("recorded pid %d is running; lock is currently free", info.PID)})
		default:
			out = append(out, DoctorCheck{Check: "lock:" + name, Status: StatusWarn,
				Detail: fmt.Sprintf("recorded pid %d is no longer running; next acquirer will reclaim it", info.PID)})
		}
	}
	return out
}
