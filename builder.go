package graflow

import "fmt"

// Builder is a fluent API for assembling a WorkflowDefinition, grounded on
// the teacher's builder.go remapped onto TaskDefinition.
type Builder struct {
	def     *WorkflowDefinition
	lastID  string
	err     error
	seen    map[string]bool
}

// NewBuilder starts a Builder for a workflow with the given name/version
// and strategy.
func NewBuilder(name string, version int, strategy StrategyType) *Builder {
	return &Builder{
		def: &WorkflowDefinition{
			Name:         name,
			Version:      version,
			StrategyType: strategy,
		},
		seen: make(map[string]bool),
	}
}

// Describe sets the definition's description.
func (b *Builder) Describe(description string) *Builder {
	b.def.Description = description
	return b
}

// Task appends a task with the next ExecutionOrder, applying any
// StepOption modifiers.
func (b *Builder) Task(id, taskType string, opts ...StepOption) *Builder {
	if b.err != nil {
		return b
	}
	if b.seen[id] {
		b.err = fmt.Errorf("duplicate task id %q", id)
		return b
	}
	b.seen[id] = true

	td := &TaskDefinition{
		ID:             id,
		Name:           id,
		Type:           taskType,
		ExecutionOrder: len(b.def.Tasks),
		ExecutionMode:  ExecutionModeLocal,
		Configuration:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(td)
	}
	b.def.Tasks = append(b.def.Tasks, td)
	b.lastID = id
	return b
}

// OnSuccess wires the last-added task's NextTaskOnSuccess.
func (b *Builder) OnSuccess(targetID string) *Builder {
	return b.wire(func(td *TaskDefinition) { td.NextTaskOnSuccess = targetID })
}

// OnFailure wires the last-added task's NextTaskOnFailure.
func (b *Builder) OnFailure(targetID string) *Builder {
	return b.wire(func(td *TaskDefinition) { td.NextTaskOnFailure = targetID })
}

func (b *Builder) wire(fn func(*TaskDefinition)) *Builder {
	if b.err != nil || b.lastID == "" {
		return b
	}
	fn(b.def.TaskByID(b.lastID))
	return b
}

// Build checks that every nextTaskOnSuccess/nextTaskOnFailure target exists
// and that the nextTaskOnSuccess edges form no cycle (nextTaskOnFailure edges
// are not cycle-checked), and returns the assembled definition.
func (b *Builder) Build() (*WorkflowDefinition, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return b.def, nil
}

func (b *Builder) validate() error {
	for _, t := range b.def.Tasks {
		if t.NextTaskOnSuccess != "" && b.def.TaskByID(t.NextTaskOnSuccess) == nil {
			return &ValidationError{Message: fmt.Sprintf("task %s: nextTaskOnSuccess %q does not exist", t.ID, t.NextTaskOnSuccess)}
		}
		if t.NextTaskOnFailure != "" && b.def.TaskByID(t.NextTaskOnFailure) == nil {
			return &ValidationError{Message: fmt.Sprintf("task %s: nextTaskOnFailure %q does not exist", t.ID, t.NextTaskOnFailure)}
		}
	}
	return b.detectCycles()
}

// detectCycles walks nextTaskOnSuccess edges (the only edges that can loop
// a sequential/conditional run back on itself) via iterative DFS with a
// visiting/visited color set.
func (b *Builder) detectCycles() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(b.def.Tasks))

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case gray:
			return &ValidationError{Message: "cycle detected at task " + id}
		case black:
			return nil
		}
		color[id] = gray
		if t := b.def.TaskByID(id); t != nil && t.NextTaskOnSuccess != "" {
			if err := visit(t.NextTaskOnSuccess); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}

	for _, t := range b.def.Tasks {
		if color[t.ID] == white {
			if err := visit(t.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
