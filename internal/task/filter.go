package task

// Filter narrows list/available queries. Zero values mean "no constraint."
type Filter struct {
	Status     Status
	Kind       Kind
	Tag        string
	Assignee   string
	Priority   Priority
	ParentID   string
	HasParent  *bool
}

// Draft is the input to Create: everything a caller may set on a new task.
type Draft struct {
	Title       string
	Description string
	Kind        Kind
	Parent      string
	DependsOn   []Dependency
	Tags        []string
	Assignee    string
	Planning    *Planning
	Contract    *Contract
}

// Patch is a sparse set of field updates for Edit. Nil pointers mean "leave
// unchanged"; non-nil pointers (including ones pointing at zero values)
// overwrite the field.
type Patch struct {
	Title       *string
	Description *string
	Kind        *Kind
	Tags        *[]string
	Assignee    *string
	Planning    *Planning
	Contract    *Contract
}

// Apply mutates t in place according to the patch.
func (p *Patch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Kind != nil {
		t.Kind = *p.Kind
	}
	if p.Tags != nil {
		t.Tags = *p.Tags
	}
	if p.Assignee != nil {
		t.Assignee = *p.Assignee
	}
	if p.Planning != nil {
		t.Planning = p.Planning
	}
	if p.Contract != nil {
		t.Contract = p.Contract
	}
}
