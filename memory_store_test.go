package graflow

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreWorkflowDefinitionCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	def := &WorkflowDefinition{
		Name:         "order-flow",
		Version:      1,
		StrategyType: StrategySequential,
		Tasks: []*TaskDefinition{
			{ID: "a", Configuration: map[string]string{"k": "v"}},
		},
	}
	if err := s.SaveWorkflowDefinition(ctx, def); err != nil {
		t.Fatalf("SaveWorkflowDefinition: %v", err)
	}
	if def.ID == "" {
		t.Fatal("SaveWorkflowDefinition should assign an id")
	}

	got, err := s.GetWorkflowDefinition(ctx, def.ID)
	if err != nil {
		t.Fatalf("GetWorkflowDefinition: %v", err)
	}
	if got.Name != "order-flow" || len(got.Tasks) != 1 {
		t.Fatalf("unexpected definition: %+v", got)
	}
	// mutating the returned copy must not affect the stored definition
	got.Tasks[0].Configuration["k"] = "mutated"
	reGot, _ := s.GetWorkflowDefinition(ctx, def.ID)
	if reGot.Tasks[0].Configuration["k"] != "v" {
		t.Error("GetWorkflowDefinition must return an isolated copy")
	}

	byNV, err := s.GetWorkflowDefinitionByNameVersion(ctx, "order-flow", 1)
	if err != nil || byNV.ID != def.ID {
		t.Fatalf("GetWorkflowDefinitionByNameVersion: got %+v, err %v", byNV, err)
	}

	list, err := s.ListWorkflowDefinitions(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListWorkflowDefinitions: got %d items, err %v", len(list), err)
	}

	if err := s.DeleteWorkflowDefinition(ctx, def.ID); err != nil {
		t.Fatalf("DeleteWorkflowDefinition: %v", err)
	}
	if _, err := s.GetWorkflowDefinition(ctx, def.ID); err == nil {
		t.Fatal("expected NotFoundError after delete")
	}
}

func TestMemoryStoreWorkflowExecutionCorrelationIDUnique(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	we1 := &WorkflowExecution{CorrelationID: "order-1", Status: WorkflowStatusCreated}
	if err := s.CreateWorkflowExecution(ctx, we1); err != nil {
		t.Fatalf("first create: %v", err)
	}
	we2 := &WorkflowExecution{CorrelationID: "order-1", Status: WorkflowStatusCreated}
	if err := s.CreateWorkflowExecution(ctx, we2); err == nil {
		t.Fatal("expected a validation error for a duplicate correlationId")
	}

	byCorr, err := s.GetWorkflowExecutionByCorrelationID(ctx, "order-1")
	if err != nil || byCorr.ID != we1.ID {
		t.Fatalf("GetWorkflowExecutionByCorrelationID: got %+v, err %v", byCorr, err)
	}
}

func TestMemoryStoreDeleteCascadesToTasksAndReviews(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	we := &WorkflowExecution{CorrelationID: "c1", Status: WorkflowStatusCompleted}
	now := time.Now().UTC()
	we.CompletedAt = &now
	if err := s.CreateWorkflowExecution(ctx, we); err != nil {
		t.Fatalf("CreateWorkflowExecution: %v", err)
	}

	te := &TaskExecution{WorkflowExecutionID: we.ID, Status: TaskStatusCompleted}
	if err := s.CreateTaskExecution(ctx, te); err != nil {
		t.Fatalf("CreateTaskExecution: %v", err)
	}
	rp := &UserReviewPoint{WorkflowExecutionID: we.ID, TaskExecutionID: te.ID}
	if err := s.CreateReviewPoint(ctx, rp); err != nil {
		t.Fatalf("CreateReviewPoint: %v", err)
	}

	if err := s.DeleteWorkflowExecution(ctx, we.ID); err != nil {
		t.Fatalf("DeleteWorkflowExecution: %v", err)
	}
	if _, err := s.GetTaskExecution(ctx, te.ID); err == nil {
		t.Error("expected the task execution to be cascade-deleted")
	}
	if _, err := s.GetReviewPoint(ctx, rp.ID); err == nil {
		t.Error("expected the review point to be cascade-deleted")
	}
}

func TestMemoryStoreDeleteRequiresTerminalState(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	we := &WorkflowExecution{CorrelationID: "c2", Status: WorkflowStatusRunning}
	if err := s.CreateWorkflowExecution(ctx, we); err != nil {
		t.Fatalf("CreateWorkflowExecution: %v", err)
	}
	if err := s.DeleteWorkflowExecution(ctx, we.ID); err == nil {
		t.Fatal("expected a StateError deleting a non-terminal workflow execution")
	}
}

func TestMemoryStoreTasksToRetry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	we := &WorkflowExecution{CorrelationID: "c3", Status: WorkflowStatusRunning}
	if err := s.CreateWorkflowExecution(ctx, we); err != nil {
		t.Fatalf("CreateWorkflowExecution: %v", err)
	}

	now := time.Now().UTC()
	past := now.Add(-1 * time.Minute)
	future := now.Add(1 * time.Hour)

	due := &TaskExecution{WorkflowExecutionID: we.ID, Status: TaskStatusAwaitingRetry, NextRetryAt: &past}
	notDue := &TaskExecution{WorkflowExecutionID: we.ID, Status: TaskStatusAwaitingRetry, NextRetryAt: &future}
	_ = s.CreateTaskExecution(ctx, due)
	_ = s.CreateTaskExecution(ctx, notDue)

	list, err := s.TasksToRetry(ctx, now)
	if err != nil {
		t.Fatalf("TasksToRetry: %v", err)
	}
	if len(list) != 1 || list[0].ID != due.ID {
		t.Fatalf("TasksToRetry returned %d items, want exactly the due one", len(list))
	}
}

func TestMemoryStorePendingReviewPoints(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	open := &UserReviewPoint{WorkflowExecutionID: "wf1", TaskExecutionID: "t1"}
	_ = s.CreateReviewPoint(ctx, open)

	decided := &UserReviewPoint{WorkflowExecutionID: "wf2", TaskExecutionID: "t2"}
	_ = s.CreateReviewPoint(ctx, decided)
	now := time.Now().UTC()
	decided.ReviewedAt = &now
	decided.Decision = ReviewDecisionApprove
	_ = s.UpdateReviewPoint(ctx, decided)

	pending, err := s.PendingReviewPoints(ctx)
	if err != nil {
		t.Fatalf("PendingReviewPoints: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != open.ID {
		t.Fatalf("expected only the open review point, got %d", len(pending))
	}
}
