// Package index implements tak's derived index (spec.md §4.3): a relational
// mirror of tasks, dependencies, tags and skills, kept in a single
// modernc.org/sqlite database file. Grounded on a cgo-free sqlite usage example
// submodule (examples/library-usage), which is the retrieved corpus's only
// concrete use of a pure-Go, cgo-free sqlite driver; the main go.mod's
// ncruces/go-sqlite3 dependency was not itself retrievable in this pack.
//
// The index is strictly a projection of the task files: every read goes
// through here for speed, but internal/repo is responsible for deciding
// when it is stale and must be rebuilt from internal/store.
package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/steveyegge/tak/internal/errs"
	"github.com/steveyegge/tak/internal/task"
)

// SchemaVersion is bumped whenever the logical schema changes shape; repo.Open
// compares it against the stored marker and drops+recreates on mismatch.
const SchemaVersion = 1

// Index wraps the derived sqlite database.
type Index struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite file at path, in WAL mode with a
// single-writer busy timeout, and ensures the schema exists.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, errs.Wrap(errs.IOError, err, "open index database").WithPath(path)
	}
	db.SetMaxOpenConns(1) // single-writer-at-a-time per spec.md §5

	idx := &Index{db: db}
	if err := idx.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error { return idx.db.Close() }

const schemaDDL = `
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	kind        TEXT NOT NULL,
	parent_id   TEXT,
	priority_rank INTEGER NOT NULL,
	estimate    TEXT,
	assignee    TEXT,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES tasks(id)
);

CREATE TABLE IF NOT EXISTS dependencies (
	from_id TEXT NOT NULL,
	to_id   TEXT NOT NULL,
	dep_type TEXT NOT NULL,
	reason  TEXT,
	PRIMARY KEY (from_id, to_id),
	FOREIGN KEY (from_id) REFERENCES tasks(id),
	FOREIGN KEY (to_id) REFERENCES tasks(id)
);

CREATE TABLE IF NOT EXISTS tags (
	task_id TEXT NOT NULL,
	tag     TEXT NOT NULL,
	PRIMARY KEY (task_id, tag),
	FOREIGN KEY (task_id) REFERENCES tasks(id)
);

CREATE TABLE IF NOT EXISTS skills (
	task_id TEXT NOT NULL,
	skill   TEXT NOT NULL,
	PRIMARY KEY (task_id, skill),
	FOREIGN KEY (task_id) REFERENCES tasks(id)
);

CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id);
CREATE INDEX IF NOT EXISTS idx_deps_to ON dependencies(to_id);
CREATE INDEX IF NOT EXISTS idx_deps_from ON dependencies(from_id);
`

func (idx *Index) ensureSchema() error {
	existing, err := idx.schemaMarker()
	if err == nil && existing != "" && existing != fmt.Sprintf("%d", SchemaVersion) {
		if _, err := idx.db.Exec(`DROP TABLE IF EXISTS tasks; DROP TABLE IF EXISTS dependencies; DROP TABLE IF EXISTS tags; DROP TABLE IF EXISTS skills; DROP TABLE IF EXISTS metadata;`); err != nil {
			return errs.Wrap(errs.MigrationRequired, err, "drop stale schema")
		}
	}
	if _, err := idx.db.Exec(schemaDDL); err != nil {
		return errs.Wrap(errs.Internal, err, "create schema")
	}
	return idx.setMetadata("schema_version", fmt.Sprintf("%d", SchemaVersion))
}

func (idx *Index) schemaMarker() (string, error) {
	var v string
	err := idx.db.QueryRow(`SELECT value FROM metadata WHERE key = 'schema_version'`).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		// metadata table may not exist yet on a brand new file.
		return "", err
	}
	return v, nil
}

func (idx *Index) setMetadata(key, value string) error {
	_, err := idx.db.Exec(`INSERT INTO metadata(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "set metadata %s", key)
	}
	return nil
}

// Fingerprint returns the last fingerprint digest persisted via
// SetFingerprint, or "" if the index has never been rebuilt.
func (idx *Index) Fingerprint() (string, error) {
	v, err := idx.getMetadata("fingerprint")
	if err != nil {
		return "", errs.Wrap(errs.Internal, err, "read fingerprint")
	}
	return v, nil
}

// SetFingerprint persists the store digest after a successful rebuild or upsert.
func (idx *Index) SetFingerprint(digest string) error {
	return idx.setMetadata("fingerprint", digest)
}

func (idx *Index) getMetadata(key string) (string, error) {
	var v string
	err := idx.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

// Rebuild performs the transactional two-pass rebuild described in spec.md
// §4.3: pass one inserts every task row with parent_id = NULL, pass two wires
// parent_id and edges, tolerating any file creation order (including forward
// references).
func (idx *Index) Rebuild(ctx context.Context, tasks []task.Task) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "begin rebuild transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies; DELETE FROM tags; DELETE FROM skills; DELETE FROM tasks;`); err != nil {
		return errs.Wrap(errs.Internal, err, "clear index")
	}

	for _, t := range tasks {
		if err := insertTaskScalar(ctx, tx, t); err != nil {
			return err
		}
	}
	for _, t := range tasks {
		if err := updateTaskRelations(ctx, tx, t); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.Internal, err, "commit rebuild")
	}
	return nil
}

// Upsert replaces a single task's row and relations transactionally (spec.md
// §4.3's "Upsert (single task)").
func (idx *Index) Upsert(ctx context.Context, t task.Task) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "begin upsert transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE from_id = ?`, t.ID); err != nil {
		return errs.Wrap(errs.Internal, err, "clear dependencies")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE task_id = ?`, t.ID); err != nil {
		return errs.Wrap(errs.Internal, err, "clear tags")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM skills WHERE task_id = ?`, t.ID); err != nil {
		return errs.Wrap(errs.Internal, err, "clear skills")
	}

	if err := insertTaskScalar(ctx, tx, t); err != nil {
		return err
	}
	if err := updateTaskRelations(ctx, tx, t); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.Internal, err, "commit upsert")
	}
	return nil
}

// Delete removes a task row and everything that references it (used only
// after the lifecycle engine has already validated cascade/no-children rules;
// the index itself enforces nothing about cascade policy).
func (idx *Index) Delete(ctx context.Context, id string) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "begin delete transaction")
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM dependencies WHERE from_id = ? OR to_id = ?`,
		`DELETE FROM tags WHERE task_id = ?`,
		`DELETE FROM skills WHERE task_id = ?`,
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s, id, id); err != nil {
			return errs.Wrap(errs.Internal, err, "delete relations for %s", id)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET parent_id = NULL WHERE parent_id = ?`, id); err != nil {
		return errs.Wrap(errs.Internal, err, "detach children of %s", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return errs.Wrap(errs.Internal, err, "delete task row %s", id)
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.Internal, err, "commit delete")
	}
	return nil
}

func insertTaskScalar(ctx context.Context, tx *sql.Tx, t task.Task) error {
	var priorityRank int
	var estimate, assignee string
	if t.Planning != nil {
		priorityRank = t.Planning.Priority.Rank()
		estimate = string(t.Planning.Estimate)
	} else {
		priorityRank = 4 // absence sorts last, per spec.md §4.3
	}
	assignee = t.Assignee

	_, err := tx.ExecContext(ctx, `
		INSERT INTO tasks(id, status, kind, parent_id, priority_rank, estimate, assignee, created_at, updated_at)
		VALUES (?, ?, ?, NULL, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id = NULL,
			status = excluded.status, kind = excluded.kind, priority_rank = excluded.priority_rank,
			estimate = excluded.estimate, assignee = excluded.assignee,
			created_at = excluded.created_at, updated_at = excluded.updated_at`,
		t.ID, string(t.Status), string(t.Kind), priorityRank, estimate, assignee,
		t.CreatedAt.Format(timeLayout), t.UpdatedAt.Format(timeLayout))
	if err != nil {
		return errs.Wrap(errs.Internal, err, "insert task scalar %s", t.ID)
	}
	return nil
}

func updateTaskRelations(ctx context.Context, tx *sql.Tx, t task.Task) error {
	if t.Parent != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET parent_id = ? WHERE id = ?`, t.Parent, t.ID); err != nil {
			return errs.Wrap(errs.Internal, err, "set parent for %s", t.ID)
		}
	}
	for _, d := range t.DependsOn {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dependencies(from_id, to_id, dep_type, reason) VALUES (?, ?, ?, ?)
			ON CONFLICT(from_id, to_id) DO UPDATE SET dep_type = excluded.dep_type, reason = excluded.reason`,
			t.ID, d.ID, string(d.DepType), d.Reason); err != nil {
			return errs.Wrap(errs.Internal, err, "insert dependency %s->%s", t.ID, d.ID)
		}
	}
	for _, tag := range t.Tags {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tags(task_id, tag) VALUES (?, ?)`, t.ID, tag); err != nil {
			return errs.Wrap(errs.Internal, err, "insert tag %s for %s", tag, t.ID)
		}
	}
	if t.Planning != nil {
		for _, skill := range t.Planning.RequiredSkills {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO skills(task_id, skill) VALUES (?, ?)`, t.ID, skill); err != nil {
				return errs.Wrap(errs.Internal, err, "insert skill %s for %s", skill, t.ID)
			}
		}
	}
	return nil
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"
