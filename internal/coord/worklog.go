package coord

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/steveyegge/tak/internal/lifecycle"
	"github.com/steveyegge/tak/internal/task"
)

// WorkEvent is the single response event a work-loop call returns (spec.md §4.6.4).
type WorkEvent string

const (
	EventContinued    WorkEvent = "continued"
	EventAttached     WorkEvent = "attached"
	EventClaimed      WorkEvent = "claimed"
	EventNoWork       WorkEvent = "no_work"
	EventLimitReached WorkEvent = "limit_reached"
	EventStatus       WorkEvent = "status"
)

// VerifyMode and ClaimStrategy enumerate the per-agent work-loop settings.
type VerifyMode string

const (
	VerifyIsolated VerifyMode = "isolated"
	VerifyLocal    VerifyMode = "local"
)

type ClaimStrategy string

const (
	StrategyPriorityThenAge ClaimStrategy = "priority_then_age"
	StrategyEpicCloseout    ClaimStrategy = "epic_closeout"
)

type CueMode string

const (
	CueEditor CueMode = "editor"
	CueAuto   CueMode = "auto"
)

// antiThrashWindow bounds how long the work loop refuses to reclaim the task
// it just handed off or was blocked on, absent a concrete "the blocker
// cleared" signal (spec.md §4.6.4's anti-thrash rule also triggers on a
// dependency flipping done/cancelled or a reservation releasing; those are
// already naturally observed because the next Available() query simply won't
// return the task anymore once truly unblocked — the timeout only covers the
// degenerate case where nothing changed but enough time passed to retry).
const antiThrashWindow = 30 * time.Second

// WorkState is the per-agent persisted work-loop state (spec.md §4.6.4).
type WorkState struct {
	Agent         string
	Active        bool
	CurrentTaskID string
	Tag           string
	Remaining     *int
	Processed     int
	VerifyMode    VerifyMode
	ClaimStrategy ClaimStrategy
	CueMode       CueMode
	AvoidTaskID   string
	AvoidSince    time.Time
	StartedAt     time.Time
	UpdatedAt     time.Time
}

// WorkResponse is returned by every work-loop call.
type WorkResponse struct {
	Event           WorkEvent
	Task            *task.Task
	State           WorkState
	LifecycleAction string // set by Done: finished | detached_without_finish | no_current_task
}

func (r *Runtime) loadWorkState(agent string) (WorkState, error) {
	var s WorkState
	s.Agent = agent
	var currentTask, tag, verifyMode, strategy, cueMode, avoidTask, avoidSince, startedAt, updatedAt sql.NullString
	var remaining sql.NullInt64
	var active int
	err := r.db.QueryRow(`
		SELECT active, current_task, tag, remaining, processed, verify_mode, claim_strategy, cue_mode, last_task, avoid_since, started_at, updated_at
		FROM work_state WHERE agent = ?`, agent).Scan(
		&active, &currentTask, &tag, &remaining, &s.Processed, &verifyMode, &strategy, &cueMode, &avoidTask, &avoidSince, &startedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return WorkState{Agent: agent, VerifyMode: VerifyLocal, ClaimStrategy: StrategyPriorityThenAge, CueMode: CueAuto}, nil
	}
	if err != nil {
		return WorkState{}, err
	}
	s.Active = active != 0
	s.CurrentTaskID = currentTask.String
	s.Tag = tag.String
	s.VerifyMode = VerifyMode(verifyMode.String)
	s.ClaimStrategy = ClaimStrategy(strategy.String)
	s.CueMode = CueMode(cueMode.String)
	s.AvoidTaskID = avoidTask.String
	if remaining.Valid {
		v := int(remaining.Int64)
		s.Remaining = &v
	}
	if startedAt.Valid {
		s.StartedAt, _ = parseTime(startedAt.String)
	}
	if updatedAt.Valid {
		s.UpdatedAt, _ = parseTime(updatedAt.String)
	}
	if avoidSince.Valid {
		s.AvoidSince, _ = parseTime(avoidSince.String)
	}
	return s, nil
}

func (r *Runtime) saveWorkState(s WorkState, now time.Time) error {
	var remaining any
	if s.Remaining != nil {
		remaining = *s.Remaining
	}
	startedAt := s.StartedAt
	if startedAt.IsZero() {
		startedAt = now
	}
	var avoidSince any
	if !s.AvoidSince.IsZero() {
		avoidSince = fmtTime(s.AvoidSince)
	}
	_, err := r.db.Exec(`
		INSERT INTO work_state(agent, active, current_task, tag, remaining, processed, verify_mode, claim_strategy, cue_mode, last_task, avoid_since, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent) DO UPDATE SET
			active = excluded.active, current_task = excluded.current_task, tag = excluded.tag,
			remaining = excluded.remaining, processed = excluded.processed, verify_mode = excluded.verify_mode,
			claim_strategy = excluded.claim_strategy, cue_mode = excluded.cue_mode, last_task = excluded.last_task,
			avoid_since = excluded.avoid_since, updated_at = excluded.updated_at`,
		s.Agent, boolToInt(s.Active), nullableString(s.CurrentTaskID), nullableString(s.Tag), remaining, s.Processed,
		string(s.VerifyMode), string(s.ClaimStrategy), string(s.CueMode), nullableString(s.AvoidTaskID), avoidSince,
		fmtTime(startedAt), fmtTime(now))
	return err
}

// WorkOptions configures a Work() call; zero values mean "use the persisted
// setting or the default."
type WorkOptions struct {
	Tag           string
	Limit         *int
	VerifyMode    VerifyMode
	ClaimStrategy ClaimStrategy
}

// Work implements spec.md §4.6.4's reconciliation algorithm: a single
// synchronous call that examines saved state against task ownership truth
// and returns one response event. It is not a background thread; the engine
// it is given is the same lifecycle.Engine the caller otherwise uses.
func (r *Runtime) Work(ctx context.Context, eng *lifecycle.Engine, agent string, opts WorkOptions, now time.Time) (WorkResponse, error) {
	state, err := r.loadWorkState(agent)
	if err != nil {
		return WorkResponse{}, err
	}
	if opts.Tag != "" {
		state.Tag = opts.Tag
	}
	if opts.Limit != nil {
		state.Remaining = opts.Limit
	}
	if opts.VerifyMode != "" {
		state.VerifyMode = opts.VerifyMode
	}
	if opts.ClaimStrategy != "" {
		state.ClaimStrategy = opts.ClaimStrategy
	}
	state.Active = true

	// Step 2: still owns current_task_id and it is still in_progress.
	if state.CurrentTaskID != "" {
		t, err := eng.Handle.Files.Read(state.CurrentTaskID)
		if err == nil && t.Assignee == agent && t.Status == task.StatusInProgress {
			state.UpdatedAt = now
			if err := r.saveWorkState(state, now); err != nil {
				return WorkResponse{}, err
			}
			return WorkResponse{Event: EventContinued, Task: &t, State: state}, nil
		}
		state.CurrentTaskID = ""
	}

	// Step 3: exactly one owned in-progress task -> attach.
	owned, err := eng.Handle.Index.List(ctx, task.Filter{Assignee: agent, Status: task.StatusInProgress})
	if err != nil {
		return WorkResponse{}, err
	}
	if len(owned) == 1 {
		t, err := eng.Handle.Files.Read(owned[0])
		if err != nil {
			return WorkResponse{}, err
		}
		state.CurrentTaskID = t.ID
		state.UpdatedAt = now
		if err := r.saveWorkState(state, now); err != nil {
			return WorkResponse{}, err
		}
		return WorkResponse{Event: EventAttached, Task: &t, State: state}, nil
	}

	// Step 4: limit exhausted.
	if state.Remaining != nil && *state.Remaining == 0 {
		state.Active = false
		state.UpdatedAt = now
		if err := r.saveWorkState(state, now); err != nil {
			return WorkResponse{}, err
		}
		return WorkResponse{Event: EventLimitReached, State: state}, nil
	}

	// Step 5: attempt a claim, honoring the anti-thrash avoidance window.
	filter := task.Filter{Tag: state.Tag}
	candidates, err := eng.Handle.Index.Available(ctx, filter)
	if err != nil {
		return WorkResponse{}, err
	}
	if state.AvoidTaskID != "" && now.Sub(state.AvoidSince) < antiThrashWindow {
		filtered := candidates[:0]
		for _, id := range candidates {
			if id != state.AvoidTaskID {
				filtered = append(filtered, id)
			}
		}
		candidates = filtered
	} else {
		state.AvoidTaskID = ""
	}

	if len(candidates) == 0 {
		state.Active = false
		state.UpdatedAt = now
		if err := r.saveWorkState(state, now); err != nil {
			return WorkResponse{}, err
		}
		return WorkResponse{Event: EventNoWork, State: state}, nil
	}

	result, err := eng.Claim(ctx, agent, filter)
	if err != nil {
		if errors.Is(err, lifecycle.ErrNoWork) {
			state.Active = false
			state.UpdatedAt = now
			if serr := r.saveWorkState(state, now); serr != nil {
				return WorkResponse{}, serr
			}
			return WorkResponse{Event: EventNoWork, State: state}, nil
		}
		return WorkResponse{}, err
	}

	state.CurrentTaskID = result.Task.ID
	if state.Remaining != nil {
		n := *state.Remaining - 1
		state.Remaining = &n
	}
	state.Processed++
	state.UpdatedAt = now
	if err := r.saveWorkState(state, now); err != nil {
		return WorkResponse{}, err
	}
	return WorkResponse{Event: EventClaimed, Task: &result.Task, State: state}, nil
}

// Status returns the current state without mutating counters or claiming
// (spec.md §4.6.4's "work status").
func (r *Runtime) Status(eng *lifecycle.Engine, agent string) (WorkResponse, error) {
	state, err := r.loadWorkState(agent)
	if err != nil {
		return WorkResponse{}, err
	}
	if state.CurrentTaskID == "" {
		return WorkResponse{Event: EventStatus, State: state}, nil
	}
	t, err := eng.Handle.Files.Read(state.CurrentTaskID)
	if err != nil {
		return WorkResponse{Event: EventStatus, State: state}, nil
	}
	return WorkResponse{Event: EventStatus, Task: &t, State: state}, nil
}

// Stop deactivates the loop and releases every reservation the agent holds
// (spec.md §4.6.4's "work stop").
func (r *Runtime) Stop(agent string, now time.Time) error {
	state, err := r.loadWorkState(agent)
	if err != nil {
		return err
	}
	state.Active = false
	if err := r.saveWorkState(state, now); err != nil {
		return err
	}
	return r.Release(agent, nil)
}

// Done finishes the agent's current owned in-progress task through the
// standard finish path, releases reservations, and reports which lifecycle
// action actually happened (spec.md §4.6.4's "work done").
func (r *Runtime) Done(ctx context.Context, eng *lifecycle.Engine, agent string, pause bool, now time.Time) (WorkResponse, error) {
	state, err := r.loadWorkState(agent)
	if err != nil {
		return WorkResponse{}, err
	}

	action := "no_current_task"
	var finished *task.Task
	if state.CurrentTaskID != "" {
		t, err := eng.Handle.Files.Read(state.CurrentTaskID)
		if err == nil && t.Assignee == agent && t.Status == task.StatusInProgress {
			result, err := eng.Finish(ctx, state.CurrentTaskID)
			if err != nil {
				return WorkResponse{}, err
			}
			finished = &result.Task
			action = "finished"
		} else {
			action = "detached_without_finish"
		}
	}

	if err := r.Release(agent, nil); err != nil {
		return WorkResponse{}, err
	}

	state.CurrentTaskID = ""
	state.Active = !pause
	state.UpdatedAt = now
	if err := r.saveWorkState(state, now); err != nil {
		return WorkResponse{}, err
	}
	return WorkResponse{Event: EventStatus, Task: finished, State: state, LifecycleAction: action}, nil
}

// MarkAvoided records that agent just handed off or was blocked on taskID,
// so the next Work() call's anti-thrash window excludes it (spec.md §4.6.4).
func (r *Runtime) MarkAvoided(agent, taskID string, now time.Time) error {
	state, err := r.loadWorkState(agent)
	if err != nil {
		return err
	}
	state.AvoidTaskID = taskID
	state.AvoidSince = now
	return r.saveWorkState(state, now)
}
