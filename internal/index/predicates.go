package index

import (
	"context"
	"database/sql"
	"strings"

	"github.com/steveyegge/tak/internal/errs"
	"github.com/steveyegge/tak/internal/task"
)

// WouldParentCycle reports whether setting child's parent to proposedParent
// would create a cycle: true if child is transitively an ancestor of
// proposedParent, or they are equal (spec.md §4.3).
func (idx *Index) WouldParentCycle(ctx context.Context, child, proposedParent string) (bool, error) {
	if child == proposedParent {
		return true, nil
	}
	ancestors, err := idx.ancestorChain(ctx, proposedParent)
	if err != nil {
		return false, err
	}
	for _, a := range ancestors {
		if a == child {
			return true, nil
		}
	}
	return false, nil
}

func (idx *Index) ancestorChain(ctx context.Context, id string) ([]string, error) {
	var chain []string
	seen := map[string]bool{}
	cur := id
	for {
		if seen[cur] {
			break // already-corrupt cycle in stored data; stop rather than loop forever
		}
		seen[cur] = true
		var parent sql.NullString
		err := idx.db.QueryRowContext(ctx, `SELECT parent_id FROM tasks WHERE id = ?`, cur).Scan(&parent)
		if err == sql.ErrNoRows {
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.Internal, err, "walk ancestor chain")
		}
		if !parent.Valid || parent.String == "" {
			break
		}
		chain = append(chain, parent.String)
		cur = parent.String
	}
	return chain, nil
}

// WouldDepCycle reports whether adding a dependency edge from->to would
// create a cycle: true if to is transitively dependent on from, or they are
// equal (spec.md §4.3).
func (idx *Index) WouldDepCycle(ctx context.Context, from, to string) (bool, error) {
	if from == to {
		return true, nil
	}
	reachable, err := idx.dependencyClosure(ctx, to)
	if err != nil {
		return false, err
	}
	return reachable[from], nil
}

// dependencyClosure returns the set of task ids transitively depended on by id
// (i.e. everything id's dependency edges reach, following from_id -> to_id).
func (idx *Index) dependencyClosure(ctx context.Context, id string) (map[string]bool, error) {
	visited := map[string]bool{}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		rows, err := idx.db.QueryContext(ctx, `SELECT to_id FROM dependencies WHERE from_id = ?`, cur)
		if err != nil {
			return nil, errs.Wrap(errs.Internal, err, "query dependency closure")
		}
		var next []string
		for rows.Next() {
			var toID string
			if err := rows.Scan(&toID); err != nil {
				rows.Close()
				return nil, errs.Wrap(errs.Internal, err, "scan dependency closure row")
			}
			next = append(next, toID)
		}
		rows.Close()
		for _, n := range next {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	return visited, nil
}

// IsBlocked reports whether any dependency target is not done and not
// cancelled (spec.md §4.3).
func (idx *Index) IsBlocked(ctx context.Context, id string) (bool, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT t.status FROM dependencies d
		JOIN tasks t ON t.id = d.to_id
		WHERE d.from_id = ?`, id)
	if err != nil {
		return false, errs.Wrap(errs.Internal, err, "query blocking dependencies for %s", id)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return false, errs.Wrap(errs.Internal, err, "scan blocking status for %s", id)
		}
		if status != string(task.StatusDone) && status != string(task.StatusCancelled) {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Available returns candidate task ids per spec.md §4.3: pending, unassigned,
// not kind=idea, not derived-blocked, ordered by (priority rank asc,
// created_at asc, id asc), with optional tag/assignee/kind/priority filters.
func (idx *Index) Available(ctx context.Context, f task.Filter) ([]string, error) {
	var b strings.Builder
	b.WriteString(`
		SELECT t.id FROM tasks t
		WHERE t.status = ? AND (t.assignee IS NULL OR t.assignee = '') AND t.kind != ?
		  AND NOT EXISTS (
		      SELECT 1 FROM dependencies d JOIN tasks dt ON dt.id = d.to_id
		      WHERE d.from_id = t.id AND dt.status NOT IN (?, ?)
		  )`)
	args := []any{string(task.StatusPending), string(task.KindIdea), string(task.StatusDone), string(task.StatusCancelled)}

	if f.Kind != "" {
		b.WriteString(" AND t.kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Priority != "" {
		b.WriteString(" AND t.priority_rank = ?")
		args = append(args, f.Priority.Rank())
	}
	if f.Assignee != "" {
		b.WriteString(" AND t.assignee = ?")
		args = append(args, f.Assignee)
	}
	if f.Tag != "" {
		b.WriteString(" AND EXISTS (SELECT 1 FROM tags g WHERE g.task_id = t.id AND g.tag = ?)")
		args = append(args, f.Tag)
	}
	b.WriteString(" ORDER BY t.priority_rank ASC, t.created_at ASC, t.id ASC")

	rows, err := idx.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "query available tasks")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "scan available row")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// List applies a general Filter (status/kind/tag/assignee/priority/parent)
// without the availability-specific exclusions, ordered by (created_at, id).
func (idx *Index) List(ctx context.Context, f task.Filter) ([]string, error) {
	var b strings.Builder
	b.WriteString(`SELECT t.id FROM tasks t WHERE 1 = 1`)
	var args []any

	if f.Status != "" {
		b.WriteString(" AND t.status = ?")
		args = append(args, string(f.Status))
	}
	if f.Kind != "" {
		b.WriteString(" AND t.kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Assignee != "" {
		b.WriteString(" AND t.assignee = ?")
		args = append(args, f.Assignee)
	}
	if f.Priority != "" {
		b.WriteString(" AND t.priority_rank = ?")
		args = append(args, f.Priority.Rank())
	}
	if f.ParentID != "" {
		b.WriteString(" AND t.parent_id = ?")
		args = append(args, f.ParentID)
	}
	if f.HasParent != nil {
		if *f.HasParent {
			b.WriteString(" AND t.parent_id IS NOT NULL AND t.parent_id != ''")
		} else {
			b.WriteString(" AND (t.parent_id IS NULL OR t.parent_id = '')")
		}
	}
	if f.Tag != "" {
		b.WriteString(" AND EXISTS (SELECT 1 FROM tags g WHERE g.task_id = t.id AND g.tag = ?)")
		args = append(args, f.Tag)
	}
	b.WriteString(" ORDER BY t.created_at ASC, t.id ASC")

	rows, err := idx.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "query tasks")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "scan list row")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Children returns the direct child ids of a parent, ordered by (created_at, id).
func (idx *Index) Children(ctx context.Context, parentID string) ([]string, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT id FROM tasks WHERE parent_id = ? ORDER BY created_at ASC, id ASC`, parentID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "query children of %s", parentID)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "scan children row")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Dependents returns ids of tasks that declare a dependency on id (the
// incoming edge set "has_dependents" checks use before a non-cascade delete).
func (idx *Index) Dependents(ctx context.Context, id string) ([]string, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT from_id FROM dependencies WHERE to_id = ?`, id)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "query dependents of %s", id)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var fromID string
		if err := rows.Scan(&fromID); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "scan dependents row")
		}
		out = append(out, fromID)
	}
	return out, rows.Err()
}
