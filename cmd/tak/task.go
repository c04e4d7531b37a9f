package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tak/internal/repo"
	"github.com/steveyegge/tak/internal/task"
)

var (
	createParent      string
	createKind        string
	createDescription string
	createTags        []string
	createAssignee    string
	createDependsOn   []string
	createPriority    string

	editTitle       string
	editDescription string
	editKind        string
	editTags        []string
	editAssignee    string
	editPriority    string

	deleteCascade bool

	listStatus   string
	listKind     string
	listTag      string
	listAssignee string
	listPriority string
	listAvailable bool
	listBlocked   bool
	listChildrenOf string
)

var createCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "create a new task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		eng := newEngine(h)

		draft := task.Draft{
			Title:       args[0],
			Description: createDescription,
			Kind:        task.Kind(orDefault(createKind, string(task.KindTask))),
			Parent:      createParent,
			Tags:        createTags,
			Assignee:    createAssignee,
		}
		if createPriority != "" {
			draft.Planning = &task.Planning{Priority: task.Priority(createPriority)}
		}
		for _, dep := range createDependsOn {
			draft.DependsOn = append(draft.DependsOn, task.Dependency{ID: resolveID(h, dep), DepType: task.DepHard})
		}

		res, err := eng.Create(cmd.Context(), draft)
		if err != nil {
			fatal(err)
		}
		outputJSON(res)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "show a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		id := resolveID(h, args[0])
		t, err := h.Files.Read(id)
		if err != nil {
			fatal(err)
		}
		outputJSON(t)
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "edit a task's fields",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		eng := newEngine(h)
		id := resolveID(h, args[0])

		var p task.Patch
		if cmd.Flags().Changed("title") {
			p.Title = &editTitle
		}
		if cmd.Flags().Changed("description") {
			p.Description = &editDescription
		}
		if cmd.Flags().Changed("kind") {
			k := task.Kind(editKind)
			p.Kind = &k
		}
		if cmd.Flags().Changed("tag") {
			p.Tags = &editTags
		}
		if cmd.Flags().Changed("assignee") {
			p.Assignee = &editAssignee
		}
		if cmd.Flags().Changed("priority") {
			p.Planning = &task.Planning{Priority: task.Priority(editPriority)}
		}

		res, err := eng.Edit(cmd.Context(), id, p)
		if err != nil {
			fatal(err)
		}
		outputJSON(res)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "delete a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		eng := newEngine(h)
		id := resolveID(h, args[0])

		if err := eng.Delete(cmd.Context(), id, deleteCascade); err != nil {
			fatal(err)
		}
		outputJSON(map[string]string{"deleted": id})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list tasks matching a filter",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()

		f := task.Filter{
			Status:   task.Status(listStatus),
			Kind:     task.Kind(listKind),
			Tag:      listTag,
			Assignee: listAssignee,
			Priority: task.Priority(listPriority),
		}
		if listChildrenOf != "" {
			f.ParentID = resolveID(h, listChildrenOf)
		}

		ctx := cmd.Context()
		var ids []string
		var err error
		switch {
		case listAvailable:
			ids, err = h.Index.Available(ctx, f)
		case listChildrenOf != "":
			ids, err = h.Index.Children(ctx, f.ParentID)
		default:
			ids, err = h.Index.List(ctx, f)
		}
		if err != nil {
			fatal(err)
		}

		tasks := loadTasks(h, ids)
		if listBlocked {
			tasks = filterBlocked(ctx, h, tasks)
		}
		outputJSON(tasks)
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree [root-id]",
	Short: "show the parent/child tree rooted at a task, or the whole forest",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := openHandle()
		defer h.Close()
		ctx := cmd.Context()

		var roots []string
		if len(args) == 1 {
			roots = []string{resolveID(h, args[0])}
		} else {
			all, err := h.Index.List(ctx, task.Filter{HasParent: boolPtr(false)})
			if err != nil {
				fatal(err)
			}
			roots = all
		}

		var nodes []treeNode
		for _, id := range roots {
			n, err := buildTreeNode(ctx, h, id)
			if err != nil {
				fatal(err)
			}
			nodes = append(nodes, n)
		}
		outputJSON(nodes)
	},
}

// treeNode is the CLI-only recursive rendering of the parent/child forest
// (spec.md §4.2's parent/child edges; "idea" kind's inclusion in tree views
// is left to the caller, not filtered here).
type treeNode struct {
	Task     task.Task  `json:"task"`
	Children []treeNode `json:"children,omitempty"`
}

func buildTreeNode(ctx context.Context, h *repo.Handle, id string) (treeNode, error) {
	t, err := h.Files.Read(id)
	if err != nil {
		return treeNode{}, err
	}
	childIDs, err := h.Index.Children(ctx, id)
	if err != nil {
		return treeNode{}, err
	}
	n := treeNode{Task: t}
	for _, cid := range childIDs {
		child, err := buildTreeNode(ctx, h, cid)
		if err != nil {
			return treeNode{}, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

func loadTasks(h *repo.Handle, ids []string) []task.Task {
	out := make([]task.Task, 0, len(ids))
	for _, id := range ids {
		t, err := h.Files.Read(id)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

func filterBlocked(ctx context.Context, h *repo.Handle, in []task.Task) []task.Task {
	out := make([]task.Task, 0, len(in))
	for _, t := range in {
		blocked, err := h.Index.IsBlocked(ctx, t.ID)
		if err == nil && blocked {
			out = append(out, t)
		}
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func boolPtr(b bool) *bool { return &b }

func init() {
	createCmd.Flags().StringVar(&createParent, "parent", "", "parent task id")
	createCmd.Flags().StringVar(&createKind, "kind", string(task.KindTask), "task kind (epic|feature|task|bug|meta|idea)")
	createCmd.Flags().StringVar(&createDescription, "description", "", "task description")
	createCmd.Flags().StringSliceVar(&createTags, "tag", nil, "tags (repeatable)")
	createCmd.Flags().StringVar(&createAssignee, "assignee", "", "initial assignee")
	createCmd.Flags().StringSliceVar(&createDependsOn, "depends-on", nil, "hard dependency ids (repeatable)")
	createCmd.Flags().StringVar(&createPriority, "priority", "", "priority (critical|high|medium|low)")

	editCmd.Flags().StringVar(&editTitle, "title", "", "new title")
	editCmd.Flags().StringVar(&editDescription, "description", "", "new description")
	editCmd.Flags().StringVar(&editKind, "kind", "", "new kind")
	editCmd.Flags().StringSliceVar(&editTags, "tag", nil, "replace tags")
	editCmd.Flags().StringVar(&editAssignee, "assignee", "", "new assignee")
	editCmd.Flags().StringVar(&editPriority, "priority", "", "new priority")

	deleteCmd.Flags().BoolVar(&deleteCascade, "cascade", false, "delete even with children or dependents: orphan the children and drop incoming dependency edges")

	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	listCmd.Flags().StringVar(&listKind, "kind", "", "filter by kind")
	listCmd.Flags().StringVar(&listTag, "tag", "", "filter by tag")
	listCmd.Flags().StringVar(&listAssignee, "assignee", "", "filter by assignee")
	listCmd.Flags().StringVar(&listPriority, "priority", "", "filter by priority")
	listCmd.Flags().BoolVar(&listAvailable, "available", false, "only unblocked, unclaimed tasks")
	listCmd.Flags().BoolVar(&listBlocked, "blocked", false, "only currently blocked tasks")
	listCmd.Flags().StringVar(&listChildrenOf, "children-of", "", "only direct children of this task id")
}

