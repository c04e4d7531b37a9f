package coord

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/tak/internal/errs"
)

// Agent status values (spec.md §3.1's Agent presence record "status" field).
const (
	AgentActive   = "active"
	AgentInactive = "inactive"
)

// AgentRecord is a mesh presence row (spec.md §3.1's Agent presence record).
type AgentRecord struct {
	Name      string
	SessionID string
	CWD       string
	PID       int
	Host      string
	Status    string
	Metadata  map[string]string
	StartedAt time.Time
	UpdatedAt time.Time
}

// JoinInput is the input to Join: everything the caller knows about its own
// process that spec.md §3.1's presence record wants to carry.
type JoinInput struct {
	Name      string
	SessionID string
	CWD       string
	PID       int
	Host      string
	Metadata  map[string]string
}

// Join implements spec.md §4.6.1's join(name?): if name is supplied and an
// active record already exists under it for a different session, the join
// is rejected; otherwise the record is created or refreshed. An empty name
// generates a stable random one (a short uuid-derived tag, since tak has no
// naming dictionary of its own).
func (r *Runtime) Join(in JoinInput, now time.Time) (AgentRecord, error) {
	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	name := in.Name
	if name == "" {
		name = "agent-" + uuid.NewString()[:8]
	}

	metaJSON, err := json.Marshal(in.Metadata)
	if err != nil {
		return AgentRecord{}, errs.Wrap(errs.Internal, err, "marshal agent metadata")
	}

	var existingSession, status, startedAtRaw string
	err = r.db.QueryRow(`SELECT session_id, status, started_at FROM agents WHERE name = ?`, name).
		Scan(&existingSession, &status, &startedAtRaw)

	switch {
	case err == sql.ErrNoRows:
		if _, err := r.db.Exec(`
			INSERT INTO agents(name, session_id, cwd, pid, host, status, metadata, started_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			name, sessionID, nullableString(in.CWD), nullablePID(in.PID), nullableString(in.Host),
			AgentActive, nullableString(string(metaJSON)), fmtTime(now), fmtTime(now)); err != nil {
			return AgentRecord{}, errs.Wrap(errs.Internal, err, "register agent %s", name)
		}
		return AgentRecord{
			Name: name, SessionID: sessionID, CWD: in.CWD, PID: in.PID, Host: in.Host,
			Status: AgentActive, Metadata: in.Metadata, StartedAt: now, UpdatedAt: now,
		}, nil

	case err != nil:
		return AgentRecord{}, errs.Wrap(errs.Internal, err, "look up agent %s", name)

	case status == AgentActive && existingSession != sessionID:
		return AgentRecord{}, errs.New(errs.InvalidArgument, "agent name %q is already active under another session", name)

	default:
		if _, err := r.db.Exec(`
			UPDATE agents SET session_id = ?, cwd = ?, pid = ?, host = ?, status = ?, metadata = ?, updated_at = ?
			WHERE name = ?`,
			sessionID, nullableString(in.CWD), nullablePID(in.PID), nullableString(in.Host),
			AgentActive, nullableString(string(metaJSON)), fmtTime(now), name); err != nil {
			return AgentRecord{}, errs.Wrap(errs.Internal, err, "refresh agent %s", name)
		}
		startedAt, _ := parseTime(startedAtRaw)
		return AgentRecord{
			Name: name, SessionID: sessionID, CWD: in.CWD, PID: in.PID, Host: in.Host,
			Status: AgentActive, Metadata: in.Metadata, StartedAt: startedAt, UpdatedAt: now,
		}, nil
	}
}

// Leave marks name's record inactive (spec.md §4.6.1).
func (r *Runtime) Leave(name string, now time.Time) error {
	_, err := r.db.Exec(`UPDATE agents SET status = ?, updated_at = ? WHERE name = ?`, AgentInactive, fmtTime(now), name)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "mark agent %s inactive", name)
	}
	return nil
}

// Heartbeat refreshes updated_at for an active agent.
func (r *Runtime) Heartbeat(name string, now time.Time) error {
	res, err := r.db.Exec(`UPDATE agents SET updated_at = ? WHERE name = ? AND status = ?`, fmtTime(now), name, AgentActive)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "heartbeat agent %s", name)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.New(errs.NotFound, "agent %s is not active", name)
	}
	return nil
}

// StaleHorizon is the default staleness window cleanup uses: an agent whose
// last heartbeat is older than this is considered gone. Spec.md §4.6.1
// leaves the horizon unspecified ("a staleness horizon"); 10 minutes matches
// the grain of a short-lived CLI invocation cadence described in spec.md §5
// rather than a long-running daemon's heartbeat interval.
const StaleHorizon = 10 * time.Minute

// ListAgents implements spec.md §6's mesh list: every presence record,
// optionally restricted to currently active ones.
func (r *Runtime) ListAgents(activeOnly bool) ([]AgentRecord, error) {
	query := `SELECT name, session_id, cwd, pid, host, status, metadata, started_at, updated_at FROM agents`
	if activeOnly {
		query += ` WHERE status = '` + AgentActive + `'`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "query agents")
	}
	defer rows.Close()

	var out []AgentRecord
	for rows.Next() {
		var rec AgentRecord
		var cwd, host, metaJSON sql.NullString
		var pid sql.NullInt64
		var startedAt, updatedAt string
		if err := rows.Scan(&rec.Name, &rec.SessionID, &cwd, &pid, &host, &rec.Status, &metaJSON, &startedAt, &updatedAt); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "scan agent row")
		}
		rec.CWD = cwd.String
		rec.Host = host.String
		if pid.Valid {
			rec.PID = int(pid.Int64)
		}
		if metaJSON.Valid && metaJSON.String != "" {
			var meta map[string]string
			if err := json.Unmarshal([]byte(metaJSON.String), &meta); err == nil {
				rec.Metadata = meta
			}
		}
		rec.StartedAt, _ = parseTime(startedAt)
		rec.UpdatedAt, _ = parseTime(updatedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Cleanup marks every active agent whose last update predates now-horizon as
// inactive, returning the names swept (spec.md §4.6.1 "cleanup --stale").
func (r *Runtime) Cleanup(now time.Time, horizon time.Duration) ([]string, error) {
	cutoff := fmtTime(now.Add(-horizon))
	rows, err := r.db.Query(`SELECT name FROM agents WHERE status = ? AND updated_at < ?`, AgentActive, cutoff)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "query stale agents")
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, errs.Wrap(errs.Internal, err, "scan stale agent")
		}
		names = append(names, n)
	}
	rows.Close()

	if _, err := r.db.Exec(`UPDATE agents SET status = ? WHERE status = ? AND updated_at < ?`, AgentInactive, AgentActive, cutoff); err != nil {
		return nil, errs.Wrap(errs.Internal, err, "sweep stale agents")
	}
	return names, nil
}

// isAgentActive reports whether agent is absent (never joined, treated as
// active so reservations made outside the mesh still conflict normally) or
// present with status = active. A present-but-inactive agent (one that
// called leave, or was swept by Cleanup) no longer counts as a live
// reservation holder (spec.md §4.6.2 "held by a different active agent").
func (r *Runtime) isAgentActive(agent string) (bool, error) {
	return agentActive(r.db, agent)
}

func isAgentActiveTx(tx *sql.Tx, agent string) (bool, error) {
	return agentActive(tx, agent)
}

type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}

func agentActive(q queryRower, agent string) (bool, error) {
	var status string
	err := q.QueryRow(`SELECT status FROM agents WHERE name = ?`, agent).Scan(&status)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, errs.Wrap(errs.Internal, err, "look up agent %s status", agent)
	}
	return status == AgentActive, nil
}

// Message is a mesh inbox entry.
type Message struct {
	ID      int64
	From    string
	To      string
	Text    string
	ReplyTo *int64
	SentAt  time.Time
	ReadAt  *time.Time
	AckedAt *time.Time
}

// Send appends a message to to's inbox (spec.md §4.6.1).
func (r *Runtime) Send(from, to, text string, replyTo *int64, now time.Time) (int64, error) {
	res, err := r.db.Exec(`INSERT INTO messages(from_name, to_name, text, reply_to, created_at) VALUES (?, ?, ?, ?, ?)`,
		from, to, text, replyTo, fmtTime(now))
	if err != nil {
		return 0, errs.Wrap(errs.Internal, err, "send message from %s to %s", from, to)
	}
	return res.LastInsertId()
}

// Inbox returns to's open (unread) messages, optionally acking them
// atomically (spec.md §4.6.1: "when ack is requested, mark read_at and
// acked_at atomically").
func (r *Runtime) Inbox(to string, ack bool, now time.Time) ([]Message, error) {
	rows, err := r.db.Query(`
		SELECT id, from_name, to_name, text, reply_to, created_at, read_at, acked_at
		FROM messages WHERE to_name = ? AND read_at IS NULL ORDER BY id ASC`, to)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "query inbox for %s", to)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var replyTo sql.NullInt64
		var createdAt string
		var readAt, ackedAt sql.NullString
		if err := rows.Scan(&m.ID, &m.From, &m.To, &m.Text, &replyTo, &createdAt, &readAt, &ackedAt); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "scan inbox row")
		}
		if replyTo.Valid {
			m.ReplyTo = &replyTo.Int64
		}
		m.SentAt, _ = parseTime(createdAt)
		out = append(out, m)
	}

	if ack && len(out) > 0 {
		tx, err := r.db.Begin()
		if err != nil {
			return nil, errs.Wrap(errs.Internal, err, "begin ack transaction")
		}
		for _, m := range out {
			if _, err := tx.Exec(`UPDATE messages SET read_at = ?, acked_at = ? WHERE id = ?`, fmtTime(now), fmtTime(now), m.ID); err != nil {
				tx.Rollback()
				return nil, errs.Wrap(errs.Internal, err, "ack message %d", m.ID)
			}
		}
		if err := tx.Commit(); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "commit ack transaction")
		}
	}
	return out, nil
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	return time.Parse(time.RFC3339Nano, s)
}

func nullablePID(pid int) any {
	if pid == 0 {
		return nil
	}
	return pid
}
