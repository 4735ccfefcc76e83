package graflow

import "testing"

func TestWorkflowStatusIsTerminal(t *testing.T) {
	terminal := []WorkflowStatus{WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	nonTerminal := []WorkflowStatus{WorkflowStatusCreated, WorkflowStatusRunning, WorkflowStatusPaused, WorkflowStatusAwaitingUserReview}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestTaskStatusIsTerminal(t *testing.T) {
	terminal := []TaskStatus{TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped, TaskStatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	nonTerminal := []TaskStatus{TaskStatusPending, TaskStatusRunning, TaskStatusAwaitingRetry}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestWorkflowDefinitionOrderedTasks(t *testing.T) {
	def := &WorkflowDefinition{
		Tasks: []*TaskDefinition{
			{ID: "c", ExecutionOrder: 2},
			{ID: "a", ExecutionOrder: 0},
			{ID: "b", ExecutionOrder: 1},
		},
	}
	ordered := def.OrderedTasks()
	got := []string{ordered[0].ID, ordered[1].ID, ordered[2].ID}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("OrderedTasks() = %v, want %v", got, want)
		}
	}
	// original Tasks slice order is untouched
	if def.Tasks[0].ID != "c" {
		t.Error("OrderedTasks must not mutate def.Tasks in place")
	}
}

func TestWorkflowDefinitionTaskByIDAndIndex(t *testing.T) {
	def := &WorkflowDefinition{
		Tasks: []*TaskDefinition{
			{ID: "a", ExecutionOrder: 0},
			{ID: "b", ExecutionOrder: 1},
		},
	}
	if def.TaskByID("missing") != nil {
		t.Error("TaskByID(missing) should return nil")
	}
	if def.TaskByID("b").ID != "b" {
		t.Error("TaskByID(b) should return task b")
	}
	if idx := def.TaskIndex("b"); idx != 1 {
		t.Errorf("TaskIndex(b) = %d, want 1", idx)
	}
	if idx := def.TaskIndex("missing"); idx != -1 {
		t.Errorf("TaskIndex(missing) = %d, want -1", idx)
	}
}

func TestUserReviewPointIsOpen(t *testing.T) {
	rp := &UserReviewPoint{}
	if !rp.IsOpen() {
		t.Error("a freshly created review point should be open")
	}
	now := rp.CreatedAt
	rp.ReviewedAt = &now
	if rp.IsOpen() {
		t.Error("a reviewed review point should not be open")
	}
}
