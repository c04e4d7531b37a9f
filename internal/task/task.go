// Package task defines tak's central data model: the Task document and the
// sub-records that hang off it. Tasks are serialized verbatim to JSON files
// by internal/store and mirrored into internal/index; this package owns
// normalization and validation so both layers agree on canonical shape.
package task

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind is the task's category.
type Kind string

const (
	KindEpic    Kind = "epic"
	KindFeature Kind = "feature"
	KindTask    Kind = "task"
	KindBug     Kind = "bug"
	KindMeta    Kind = "meta"
	KindIdea    Kind = "idea"
)

func (k Kind) Valid() bool {
	switch k {
	case KindEpic, KindFeature, KindTask, KindBug, KindMeta, KindIdea:
		return true
	}
	return false
}

// Status is the task's lifecycle state. "Blocked" is derived, never stored.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// Satisfied reports whether a dependency target in this status no longer blocks its dependent.
func (s Status) Satisfied() bool {
	return s == StatusDone || s == StatusCancelled
}

// DepType distinguishes hard (blocking) from soft (informational) dependencies.
// Both participate in blocking uniformly per spec; soft is metadata only (see GLOSSARY).
type DepType string

const (
	DepHard DepType = "hard"
	DepSoft DepType = "soft"
)

func (d DepType) Valid() bool {
	return d == DepHard || d == DepSoft
}

// Priority, Estimate and Risk are planning sub-fields.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank returns an ascending sort rank; lower sorts first. Unknown/empty priority
// ranks lowest per spec §4.3 ("absence as the lowest").
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow, "":
		return true
	}
	return false
}

type Estimate string

const (
	EstimateXS Estimate = "xs"
	EstimateS  Estimate = "s"
	EstimateM  Estimate = "m"
	EstimateL  Estimate = "l"
	EstimateXL Estimate = "xl"
)

func (e Estimate) Valid() bool {
	switch e {
	case EstimateXS, EstimateS, EstimateM, EstimateL, EstimateXL, "":
		return true
	}
	return false
}

type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

func (r Risk) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, "":
		return true
	}
	return false
}

// Dependency is an edge record inside Task.DependsOn.
type Dependency struct {
	ID      string  `json:"id"`
	DepType DepType `json:"dep_type"`
	Reason  string  `json:"reason,omitempty"`
}

// Planning is the optional planning sub-record; omitted entirely when empty.
type Planning struct {
	Priority       Priority `json:"priority,omitempty"`
	Estimate       Estimate `json:"estimate,omitempty"`
	Risk           Risk     `json:"risk,omitempty"`
	RequiredSkills []string `json:"required_skills,omitempty"`
}

func (p *Planning) isEmpty() bool {
	return p == nil || (p.Priority == "" && p.Estimate == "" && p.Risk == "" && len(p.RequiredSkills) == 0)
}

// Contract is the optional contract sub-record.
type Contract struct {
	Objective          string   `json:"objective,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	Verification       []string `json:"verification,omitempty"`
	Constraints        []string `json:"constraints,omitempty"`
}

func (c *Contract) isEmpty() bool {
	return c == nil || (c.Objective == "" && len(c.AcceptanceCriteria) == 0 &&
		len(c.Verification) == 0 && len(c.Constraints) == 0)
}

// Execution is the optional execution sub-record.
type Execution struct {
	AttemptCount   int    `json:"attempt_count"`
	LastError      string `json:"last_error,omitempty"`
	HandoffSummary string `json:"handoff_summary,omitempty"`
	BlockedReason  string `json:"blocked_reason,omitempty"`
}

func (e *Execution) isEmpty() bool {
	return e == nil || (e.AttemptCount == 0 && e.LastError == "" && e.HandoffSummary == "" && e.BlockedReason == "")
}

// PullRequest describes a PR captured by the git-provenance collaborator (external, §6).
type PullRequest struct {
	URL    string `json:"url,omitempty"`
	Number int    `json:"number,omitempty"`
	State  string `json:"state,omitempty"`
}

// Git is the optional git-provenance sub-record. tak's core never populates this
// itself; it is written by the external git-provenance collaborator through
// the lifecycle engine's GitProvenance OnStart/OnFinish hooks, which the engine
// invokes at the start/finish contract points.
type Git struct {
	Branch      string       `json:"branch,omitempty"`
	StartCommit string       `json:"start_commit,omitempty"`
	EndCommit   string       `json:"end_commit,omitempty"`
	Commits     []string     `json:"commits,omitempty"`
	PR          *PullRequest `json:"pr,omitempty"`
}

func (g *Git) isEmpty() bool {
	return g == nil || (g.Branch == "" && g.StartCommit == "" && g.EndCommit == "" && len(g.Commits) == 0 && g.PR == nil)
}

// Task is the central entity: a durable JSON document under .tak/tasks/<id>.json.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Kind        Kind   `json:"kind"`
	Status      Status `json:"status"`

	Parent     string       `json:"parent,omitempty"`
	DependsOn  []Dependency `json:"depends_on,omitempty"`
	Tags       []string     `json:"tags,omitempty"`
	Assignee   string       `json:"assignee,omitempty"`

	Planning  *Planning  `json:"planning,omitempty"`
	Contract  *Contract  `json:"contract,omitempty"`
	Execution *Execution `json:"execution,omitempty"`
	Git       *Git       `json:"git,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Extensions preserves unrecognized JSON fields verbatim across read/write
	// cycles (invariant 8). Populated by UnmarshalJSON, merged back in MarshalJSON.
	Extensions map[string]json.RawMessage `json:"-"`
}

// knownFields lists every JSON key Task itself understands; anything else in a
// task document round-trips through Extensions untouched.
var knownFields = map[string]bool{
	"id": true, "title": true, "description": true, "kind": true, "status": true,
	"parent": true, "depends_on": true, "tags": true, "assignee": true,
	"planning": true, "contract": true, "execution": true, "git": true,
	"created_at": true, "updated_at": true,
}

// taskAlias avoids infinite recursion through Task's custom (Un)MarshalJSON.
type taskAlias Task

// MarshalJSON emits the known fields plus any preserved extension keys merged in.
func (t Task) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(taskAlias(t))
	if err != nil {
		return nil, err
	}
	if len(t.Extensions) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range t.Extensions {
		if _, known := knownFields[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes known fields and stashes everything else into Extensions.
func (t *Task) UnmarshalJSON(data []byte) error {
	var alias taskAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*t = Task(alias)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ext := make(map[string]json.RawMessage)
	for k, v := range raw {
		if !knownFields[k] {
			ext[k] = v
		}
	}
	if len(ext) > 0 {
		t.Extensions = ext
	}
	return nil
}

// Normalize applies invariant 2: depends_on and tags are trimmed, deduped and
// sorted deterministically. It also drops empty sub-records per the "omitted
// when empty" rule. Idempotent: Normalize(Normalize(t)) == Normalize(t).
func (t *Task) Normalize() {
	t.DependsOn = normalizeDeps(t.DependsOn)
	t.Tags = normalizeStrings(t.Tags)
	if t.Planning != nil {
		t.Planning.RequiredSkills = normalizeStrings(t.Planning.RequiredSkills)
		if t.Planning.isEmpty() {
			t.Planning = nil
		}
	}
	if t.Contract.isEmpty() {
		t.Contract = nil
	}
	if t.Execution.isEmpty() {
		t.Execution = nil
	}
	if t.Git.isEmpty() {
		t.Git = nil
	}
}

func normalizeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func normalizeDeps(in []Dependency) []Dependency {
	if len(in) == 0 {
		return nil
	}
	byID := make(map[string]Dependency, len(in))
	order := make([]string, 0, len(in))
	for _, d := range in {
		id := strings.TrimSpace(strings.ToLower(d.ID))
		if id == "" {
			continue
		}
		d.ID = id
		d.Reason = strings.TrimSpace(d.Reason)
		if d.DepType == "" {
			d.DepType = DepHard
		}
		if _, exists := byID[id]; !exists {
			order = append(order, id)
		}
		byID[id] = d // last write wins, matches "updates metadata on existing edges"
	}
	sort.Strings(order)
	out := make([]Dependency, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Validate checks field-level invariants that do not require store/index access
// (existence of parent/dep targets and cycle-freedom are checked by the
// lifecycle engine, which has graph visibility this package does not).
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less")
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("invalid kind: %q", t.Kind)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("invalid status: %q", t.Status)
	}
	if t.Parent != "" && strings.EqualFold(t.Parent, t.ID) {
		return fmt.Errorf("task cannot be its own parent")
	}
	for _, d := range t.DependsOn {
		if strings.EqualFold(d.ID, t.ID) {
			return fmt.Errorf("task cannot depend on itself")
		}
		if !d.DepType.Valid() {
			return fmt.Errorf("invalid dependency type: %q", d.DepType)
		}
	}
	if t.Planning != nil {
		if !t.Planning.Priority.Valid() {
			return fmt.Errorf("invalid priority: %q", t.Planning.Priority)
		}
		if !t.Planning.Estimate.Valid() {
			return fmt.Errorf("invalid estimate: %q", t.Planning.Estimate)
		}
		if !t.Planning.Risk.Valid() {
			return fmt.Errorf("invalid risk: %q", t.Planning.Risk)
		}
	}
	return nil
}

// HasTag reports whether the task carries the given tag (normalized comparison).
func (t *Task) HasTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	for _, tt := range t.Tags {
		if tt == tag {
			return true
		}
	}
	return false
}

// DependsOnID reports whether id appears among the task's dependency targets.
func (t *Task) DependsOnID(id string) bool {
	for _, d := range t.DependsOn {
		if d.ID == id {
			return true
		}
	}
	return false
}
