package coord

import (
	"database/sql"
	"strings"
	"time"

	"github.com/steveyegge/tak/internal/errs"
)

// Reservation is one agent's declared intent to edit a path.
type Reservation struct {
	Agent     string
	Path      string
	Reason    string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// AgeSeconds is the reservation's age relative to now, used in conflict
// diagnostics (spec.md §4.6.2).
func (res Reservation) AgeSeconds(now time.Time) int64 {
	return int64(now.Sub(res.CreatedAt).Seconds())
}

// Expired reports whether res carries an expires_at that now has passed.
func (res Reservation) Expired(now time.Time) bool {
	return res.ExpiresAt != nil && now.After(*res.ExpiresAt)
}

// NormalizePath implements spec.md §4.6.2's path normalization: strip a
// leading "./", collapse ".." segments, and forbid absolute paths outside
// the repo root (represented here simply as forbidding any path that
// resolves outside the root via leading "..").
func NormalizePath(p string) (string, error) {
	p = strings.TrimPrefix(p, "./")
	p = strings.Trim(p, "/")
	if p == "" {
		return "", errs.New(errs.InvalidArgument, "empty reservation path")
	}
	parts := strings.Split(p, "/")
	var out []string
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(out) == 0 {
				return "", errs.New(errs.InvalidArgument, "reservation path %q escapes the repository root", p)
			}
			out = out[:len(out)-1]
		default:
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return "", errs.New(errs.InvalidArgument, "reservation path %q resolves to the repository root", p)
	}
	return strings.Join(out, "/"), nil
}

// pathsConflict reports whether a and b conflict: equal, or one is a prefix
// of the other at a segment boundary (spec.md §4.6.2).
func pathsConflict(a, b string) bool {
	if a == b {
		return true
	}
	shorter, longer := a, b
	if len(a) > len(b) {
		shorter, longer = b, a
	}
	return strings.HasPrefix(longer, shorter+"/")
}

// Reserve implements spec.md §4.6.2's reserve(agent, paths, reason?): each
// path is validated, and the whole operation fails with ReservationConflict
// if any path conflicts with an existing reservation held by a different
// active agent. ttl, if non-nil, sets expires_at = now + ttl on every
// reservation created or refreshed by this call.
func (r *Runtime) Reserve(agent string, paths []string, reason string, ttl *time.Duration, now time.Time) error {
	normalized := make([]string, 0, len(paths))
	for _, p := range paths {
		np, err := NormalizePath(p)
		if err != nil {
			return err
		}
		normalized = append(normalized, np)
	}

	// Conflict check and insert share one transaction: with the single-writer
	// connection pool (spec.md §5), holding the transaction across both steps
	// is what actually makes the check-then-insert atomic across agents.
	tx, err := r.db.Begin()
	if err != nil {
		return errs.Wrap(errs.Internal, err, "begin reserve transaction")
	}
	defer tx.Rollback()

	all, err := allReservationsTx(tx)
	if err != nil {
		return err
	}
	for _, np := range normalized {
		for _, existing := range all {
			if existing.Agent == agent {
				continue
			}
			if existing.Expired(now) {
				continue
			}
			if !pathsConflict(np, existing.Path) {
				continue
			}
			active, err := isAgentActiveTx(tx, existing.Agent)
			if err != nil {
				return err
			}
			if !active {
				continue
			}
			return errs.New(errs.ReservationConflict, "path %q conflicts with %s's reservation on %q (age %ds)",
				np, existing.Agent, existing.Path, existing.AgeSeconds(now))
		}
	}

	var expiresAt any
	if ttl != nil {
		expiresAt = fmtTime(now.Add(*ttl))
	}
	for _, np := range normalized {
		if _, err := tx.Exec(`
			INSERT INTO reservations(agent, path, reason, created_at, expires_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(agent, path) DO UPDATE SET reason = excluded.reason, created_at = excluded.created_at, expires_at = excluded.expires_at`,
			agent, np, reason, fmtTime(now), expiresAt); err != nil {
			return errs.Wrap(errs.Internal, err, "insert reservation %s for %s", np, agent)
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.Internal, err, "commit reservations")
	}
	return nil
}

// Release implements spec.md §4.6.2's release(agent, paths | all). A nil
// paths slice releases every reservation the agent holds.
func (r *Runtime) Release(agent string, paths []string) error {
	if len(paths) == 0 {
		_, err := r.db.Exec(`DELETE FROM reservations WHERE agent = ?`, agent)
		if err != nil {
			return errs.Wrap(errs.Internal, err, "release all reservations for %s", agent)
		}
		return nil
	}
	for _, p := range paths {
		np, err := NormalizePath(p)
		if err != nil {
			return err
		}
		if _, err := r.db.Exec(`DELETE FROM reservations WHERE agent = ? AND path = ?`, agent, np); err != nil {
			return errs.Wrap(errs.Internal, err, "release reservation %s for %s", np, agent)
		}
	}
	return nil
}

// Blockers implements spec.md §4.6.2's blockers(path?): active foreign
// reservations, optionally filtered to ones conflicting with path. A
// reservation whose owner is no longer an active mesh agent, or that has
// expired, is never a blocker.
func (r *Runtime) Blockers(excludeAgent, path string, now time.Time) ([]Reservation, error) {
	all, err := r.allReservations()
	if err != nil {
		return nil, err
	}
	var np string
	if path != "" {
		np, err = NormalizePath(path)
		if err != nil {
			return nil, err
		}
	}
	var out []Reservation
	for _, res := range all {
		if res.Agent == excludeAgent {
			continue
		}
		if res.Expired(now) {
			continue
		}
		if np != "" && !pathsConflict(np, res.Path) {
			continue
		}
		active, err := r.isAgentActive(res.Agent)
		if err != nil {
			return nil, err
		}
		if !active {
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

func (r *Runtime) allReservations() ([]Reservation, error) {
	return scanReservations(r.db.Query(`SELECT agent, path, reason, created_at, expires_at FROM reservations`))
}

func allReservationsTx(tx *sql.Tx) ([]Reservation, error) {
	return scanReservations(tx.Query(`SELECT agent, path, reason, created_at, expires_at FROM reservations`))
}

func scanReservations(rows *sql.Rows, queryErr error) ([]Reservation, error) {
	if queryErr != nil {
		return nil, errs.Wrap(errs.Internal, queryErr, "query reservations")
	}
	defer rows.Close()
	var out []Reservation
	for rows.Next() {
		var res Reservation
		var reason, createdAt string
		var expiresAt sql.NullString
		if err := rows.Scan(&res.Agent, &res.Path, &reason, &createdAt, &expiresAt); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "scan reservation row")
		}
		res.Reason = reason
		res.CreatedAt, _ = parseTime(createdAt)
		if expiresAt.Valid && expiresAt.String != "" {
			t, err := parseTime(expiresAt.String)
			if err == nil {
				res.ExpiresAt = &t
			}
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// reservationsOf returns the paths agent currently holds (used by the verify
// gating and work-loop release logic).
func (r *Runtime) reservationsOf(agent string) ([]Reservation, error) {
	all, err := r.allReservations()
	if err != nil {
		return nil, err
	}
	var out []Reservation
	for _, res := range all {
		if res.Agent == agent {
			out = append(out, res)
		}
	}
	return out, nil
}
