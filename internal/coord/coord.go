// Package coord implements tak's coordination runtime (spec.md §4.6): mesh
// presence, path reservations, a blackboard, and a stateless work-loop
// reconciler. All of it is runtime-only — never the source of truth for
// task state — and lives in its own sqlite database,
// .tak/runtime/coordination.db, opened the same way internal/index opens
// its database (WAL, single-writer, short transactions per spec.md §5).
package coord

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/steveyegge/tak/internal/errs"
)

// Runtime wraps the coordination database.
type Runtime struct {
	db *sql.DB
}

// Open opens (creating if absent) .tak/runtime/coordination.db and ensures
// its schema exists.
func Open(takDir string) (*Runtime, error) {
	runtimeDir := filepath.Join(takDir, "runtime")
	if err := os.MkdirAll(runtimeDir, 0o755); err != nil {
		return nil, errs.Wrap(errs.IOError, err, "create runtime directory").WithPath(runtimeDir)
	}
	path := filepath.Join(runtimeDir, "coordination.db")
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, errs.Wrap(errs.IOError, err, "open coordination database").WithPath(path)
	}
	db.SetMaxOpenConns(1)

	r := &Runtime{db: db}
	if err := r.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the underlying database handle.
func (r *Runtime) Close() error { return r.db.Close() }

const schemaDDL = `
CREATE TABLE IF NOT EXISTS agents (
	name       TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	cwd        TEXT,
	pid        INTEGER,
	host       TEXT,
	status     TEXT NOT NULL DEFAULT 'active',
	metadata   TEXT,
	started_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	from_name  TEXT NOT NULL,
	to_name    TEXT NOT NULL,
	text       TEXT NOT NULL,
	reply_to   INTEGER,
	created_at TEXT NOT NULL,
	read_at    TEXT,
	acked_at   TEXT
);
CREATE INDEX IF NOT EXISTS idx_messages_to ON messages(to_name);

CREATE TABLE IF NOT EXISTS reservations (
	agent      TEXT NOT NULL,
	path       TEXT NOT NULL,
	reason     TEXT,
	created_at TEXT NOT NULL,
	expires_at TEXT,
	PRIMARY KEY (agent, path)
);

CREATE TABLE IF NOT EXISTS notes (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	author           TEXT NOT NULL,
	template         TEXT,
	body             TEXT NOT NULL,
	fields           TEXT,
	tags             TEXT,
	task_ids         TEXT,
	since_note       INTEGER,
	no_change_since  INTEGER NOT NULL DEFAULT 0,
	closed           INTEGER NOT NULL DEFAULT 0,
	close_reason     TEXT,
	closed_by        TEXT,
	closed_at        TEXT,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS work_state (
	agent          TEXT PRIMARY KEY,
	active         INTEGER NOT NULL DEFAULT 0,
	current_task   TEXT,
	tag            TEXT,
	remaining      INTEGER,
	processed      INTEGER NOT NULL DEFAULT 0,
	verify_mode    TEXT NOT NULL DEFAULT 'local',
	claim_strategy TEXT NOT NULL DEFAULT 'priority_then_age',
	cue_mode       TEXT NOT NULL DEFAULT 'auto',
	last_event     TEXT,
	last_task      TEXT,
	avoid_since    TEXT,
	started_at     TEXT,
	updated_at     TEXT NOT NULL
);
`

func (r *Runtime) ensureSchema() error {
	_, err := r.db.Exec(schemaDDL)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "create coordination schema")
	}
	return nil
}
