package coord

import (
	"database/sql"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/steveyegge/tak/internal/errs"
)

// Template names accepted by Post (spec.md §4.6.3).
const (
	TemplateBlocker = "blocker"
	TemplateHandoff = "handoff"
	TemplateStatus  = "status"
)

// templateFields lists the key/value field set each template enforces, and
// which of those are required.
var templateFields = map[string][]string{
	TemplateBlocker: {"summary", "status", "scope", "owner", "verification", "blocker", "next", "requested_action"},
	TemplateHandoff: {"summary", "status", "scope", "owner", "verification", "blocker", "next"},
	TemplateStatus:  {"summary", "status", "scope", "owner", "verification", "blocker", "next"},
}

var requiredTemplateFields = map[string]bool{
	"summary": true, "status": true,
}

// Note is a durable blackboard entry (spec.md §3.1's Blackboard note).
type Note struct {
	ID            int64
	Author        string
	Template      string
	Fields        map[string]string // nil for free-text notes
	Body          string
	Tags          []string
	TaskIDs       []string
	SinceNote     *int64
	NoChangeSince bool
	Closed        bool
	CloseReason   string
	ClosedBy      string
	ClosedAt      *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Warnings      []string
}

// sensitivePattern is a coarse heuristic for secrets accidentally pasted into
// a note body (API keys, bearer tokens, private key headers); it only ever
// produces a non-blocking warning, never a rejection (spec.md §4.6.3).
var sensitivePattern = regexp.MustCompile(`(?i)(api[_-]?key|secret|password|bearer\s+[a-z0-9._-]{10,}|-----BEGIN [A-Z ]*PRIVATE KEY-----)`)

// PostInput is the input to Post: either Body (free text) or Template +
// Fields (a templated note).
type PostInput struct {
	Author        string
	Template      string // "" for free text
	Fields        map[string]string
	Body          string // used verbatim for free text; ignored for templated notes
	Tags          []string
	TaskIDs       []string
	SinceNote     *int64
	NoChangeSince bool
}

// Post implements spec.md §4.6.3's post: free text or templated, with delta
// metadata and sensitive-value detection, both producing non-blocking
// warnings rather than rejections except for the stated hard failures
// (missing referenced task, no_change_since without since_note).
func (r *Runtime) Post(in PostInput, taskExists func(id string) bool, now time.Time) (Note, error) {
	if in.NoChangeSince && in.SinceNote == nil {
		return Note{}, errs.New(errs.InvalidArgument, "no_change_since requires since_note")
	}
	for _, id := range in.TaskIDs {
		if taskExists != nil && !taskExists(id) {
			return Note{}, errs.New(errs.NotFound, "note references task %s which does not exist", id)
		}
	}

	var warnings []string
	body := in.Body
	if in.Template != "" {
		fields, ok := templateFields[in.Template]
		if !ok {
			return Note{}, errs.New(errs.InvalidArgument, "unknown template %q", in.Template)
		}
		for _, f := range fields {
			v, present := in.Fields[f]
			if !present || strings.TrimSpace(v) == "" || isPlaceholder(v) {
				if requiredTemplateFields[f] || f == "requested_action" && in.Template == TemplateBlocker {
					warnings = append(warnings, "missing or placeholder field: "+f)
				}
			}
		}
		body = renderTemplate(in.Template, in.Fields)
	}

	if sensitivePattern.MatchString(body) {
		warnings = append(warnings, "note body may contain a sensitive value (key/password/token pattern detected)")
	}

	fieldsJSON, err := json.Marshal(in.Fields)
	if err != nil {
		return Note{}, errs.Wrap(errs.Internal, err, "marshal note fields")
	}
	tagsJSON, err := json.Marshal(normalizeStrings(in.Tags))
	if err != nil {
		return Note{}, errs.Wrap(errs.Internal, err, "marshal note tags")
	}
	taskIDsJSON, err := json.Marshal(in.TaskIDs)
	if err != nil {
		return Note{}, errs.Wrap(errs.Internal, err, "marshal note task ids")
	}

	res, err := r.db.Exec(`
		INSERT INTO notes(author, template, body, fields, tags, task_ids, since_note, no_change_since, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Author, nullableString(in.Template), body, nullableString(string(fieldsJSON)),
		nullableString(string(tagsJSON)), nullableString(string(taskIDsJSON)),
		in.SinceNote, boolToInt(in.NoChangeSince), fmtTime(now), fmtTime(now))
	if err != nil {
		return Note{}, errs.Wrap(errs.Internal, err, "insert note")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Note{}, errs.Wrap(errs.Internal, err, "get note id")
	}

	return Note{
		ID: id, Author: in.Author, Template: in.Template, Fields: in.Fields, Body: body,
		Tags: normalizeStrings(in.Tags), TaskIDs: in.TaskIDs, SinceNote: in.SinceNote, NoChangeSince: in.NoChangeSince,
		CreatedAt: now, UpdatedAt: now, Warnings: warnings,
	}, nil
}

func normalizeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func isPlaceholder(v string) bool {
	v = strings.ToUpper(strings.TrimSpace(v))
	return v == "TODO" || v == "TBD" || v == "N/A" || v == "NONE"
}

func renderTemplate(template string, fields map[string]string) string {
	var b strings.Builder
	b.WriteString("[" + template + "]\n")
	for _, key := range templateFields[template] {
		if v, ok := fields[key]; ok {
			b.WriteString(key + ": " + v + "\n")
		}
	}
	return b.String()
}

const noteColumns = `id, author, template, body, fields, tags, task_ids, since_note, no_change_since, closed, close_reason, closed_by, closed_at, created_at, updated_at`

// List returns notes, optionally restricted to open (non-closed) ones.
func (r *Runtime) List(openOnly bool) ([]Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes`
	if openOnly {
		query += ` WHERE closed = 0`
	}
	query += ` ORDER BY id ASC`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "query notes")
	}
	defer rows.Close()
	return scanNotes(rows)
}

// Show returns a single note by id.
func (r *Runtime) Show(id int64) (Note, error) {
	rows, err := r.db.Query(`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	if err != nil {
		return Note{}, errs.Wrap(errs.Internal, err, "query note %d", id)
	}
	defer rows.Close()
	notes, err := scanNotes(rows)
	if err != nil {
		return Note{}, err
	}
	if len(notes) == 0 {
		return Note{}, errs.New(errs.NotFound, "note %d not found", id)
	}
	return notes[0], nil
}

// Close marks a note closed with an optional reason, recording the closing
// agent (spec.md §3.1's closed_by/closed_at); closed notes remain queryable
// (spec.md §4.6.3).
func (r *Runtime) Close(id int64, closedBy, reason string, now time.Time) error {
	res, err := r.db.Exec(`
		UPDATE notes SET closed = 1, close_reason = ?, closed_by = ?, closed_at = ?, updated_at = ? WHERE id = ?`,
		reason, nullableString(closedBy), fmtTime(now), fmtTime(now), id)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "close note %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.New(errs.NotFound, "note %d not found", id)
	}
	return nil
}

// Reopen clears a note's closed flag and closed_by/closed_at.
func (r *Runtime) Reopen(id int64, now time.Time) error {
	res, err := r.db.Exec(`
		UPDATE notes SET closed = 0, close_reason = NULL, closed_by = NULL, closed_at = NULL, updated_at = ? WHERE id = ?`,
		fmtTime(now), id)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "reopen note %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.New(errs.NotFound, "note %d not found", id)
	}
	return nil
}

func scanNotes(rows *sql.Rows) ([]Note, error) {
	var out []Note
	for rows.Next() {
		var n Note
		var template, fieldsJSON, tagsJSON, taskIDsJSON, closeReason, closedBy, closedAt, createdAt, updatedAt sql.NullString
		var sinceNote sql.NullInt64
		var noChangeSince, closed int
		if err := rows.Scan(&n.ID, &n.Author, &template, &n.Body, &fieldsJSON, &tagsJSON, &taskIDsJSON, &sinceNote,
			&noChangeSince, &closed, &closeReason, &closedBy, &closedAt, &createdAt, &updatedAt); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "scan note row")
		}
		n.Template = template.String
		n.CloseReason = closeReason.String
		n.ClosedBy = closedBy.String
		n.Closed = closed != 0
		n.NoChangeSince = noChangeSince != 0
		if sinceNote.Valid {
			n.SinceNote = &sinceNote.Int64
		}
		if fieldsJSON.Valid && fieldsJSON.String != "" {
			var fields map[string]string
			if err := json.Unmarshal([]byte(fieldsJSON.String), &fields); err == nil {
				n.Fields = fields
			}
		}
		if tagsJSON.Valid && tagsJSON.String != "" {
			var tags []string
			if err := json.Unmarshal([]byte(tagsJSON.String), &tags); err == nil {
				n.Tags = tags
			}
		}
		if taskIDsJSON.Valid && taskIDsJSON.String != "" {
			var ids []string
			if err := json.Unmarshal([]byte(taskIDsJSON.String), &ids); err == nil {
				n.TaskIDs = ids
			}
		}
		if closedAt.Valid && closedAt.String != "" {
			t, err := parseTime(closedAt.String)
			if err == nil {
				n.ClosedAt = &t
			}
		}
		n.CreatedAt, _ = parseTime(createdAt.String)
		n.UpdatedAt, _ = parseTime(updatedAt.String)
		out = append(out, n)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
