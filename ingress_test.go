package graflow

import (
	"context"
	"testing"
)

// newIngressTestHarness wires the same stack as newEngineTestHarness but
// also hands back a Publisher so QUEUED tasks actually reach the dispatch
// queue, plus the ResultIngress under test.
func newIngressTestHarness(t *testing.T, registry *Registry) (*ResultIngress, *Engine, *WorkflowService, *TaskService, *MemoryStore, *ChannelQueue, *WorkerPool) {
	t.Helper()
	store := NewMemoryStore()
	bus := NewInProcessEventBus()
	if registry == nil {
		registry = NewRegistry()
	}
	queue := NewChannelQueue(8)
	workflows := NewWorkflowService(store, MemoryTxManager{}, bus, nil)
	tasks := NewTaskService(store, MemoryTxManager{}, registry, bus, DefaultRetryPolicy(), nil)
	reviews := NewReviewService(store, MemoryTxManager{}, tasks, bus, nil)

	strategies := NewStrategyRegistry()
	strategies.Register(StrategySequential, NewSequentialStrategy(tasks, workflows, reviews, queue))
	pool := NewWorkerPool(2)
	engine := NewEngine(store, workflows, tasks, strategies, reviews, pool, bus, nil)
	ingress := NewResultIngress(queue, tasks, workflows, engine, nil)
	return ingress, engine, workflows, tasks, store, queue, pool
}

func TestResultIngressCompletesQueuedTaskAndResumes(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	registry.Register(&echoExecutor{taskType: "notify", outputs: map[string]string{"notified": "true"}})
	ingress, engine, workflows, _, store, queue, pool := newIngressTestHarness(t, registry)

	def := &WorkflowDefinition{
		Name:         "ingress-flow",
		StrategyType: StrategySequential,
		Tasks: []*TaskDefinition{
			{ID: "charge", Type: "charge", ExecutionOrder: 0, ExecutionMode: ExecutionModeQueued, RetryLimit: 0, Configuration: map[string]string{}},
			{ID: "notify", Type: "notify", ExecutionOrder: 1, ExecutionMode: ExecutionModeLocal, Configuration: map[string]string{}},
		},
	}
	we := startWorkflow(t, store, workflows, def)

	engine.ExecuteWorkflow(ctx, we.ID)
	pool.Wait()

	got, _ := workflows.GetByID(ctx, we.ID)
	if got.Status != WorkflowStatusRunning {
		t.Fatalf("Status after dispatching the queued task = %s, want RUNNING", got.Status)
	}

	var dispatched DispatchMessage
	select {
	case dispatched = <-queue.Dispatched():
	default:
		t.Fatal("expected the QUEUED task to have been published to the dispatch queue")
	}

	ingress.handle(ctx, ResultMessage{TaskExecutionID: dispatched.TaskExecutionID, Outputs: map[string]string{"charged": "true"}})
	pool.Wait()

	got, _ = workflows.GetByID(ctx, we.ID)
	if got.Status != WorkflowStatusCompleted {
		t.Fatalf("Status after ingress result = %s, want COMPLETED", got.Status)
	}
	if got.Variables["notified"] != "true" {
		t.Errorf("expected the workflow to advance past charge to notify, Variables = %v", got.Variables)
	}

	executions, err := store.ListTaskExecutionsByWorkflow(ctx, we.ID)
	if err != nil {
		t.Fatalf("ListTaskExecutionsByWorkflow: %v", err)
	}
	chargeCount := 0
	for _, te := range executions {
		if te.TaskDefinitionID == "charge" {
			chargeCount++
		}
	}
	if chargeCount != 1 {
		t.Errorf("found %d TaskExecution rows for charge, want exactly 1 (resume must not re-dispatch an already-completed queued task)", chargeCount)
	}
}

func TestResultIngressFailsQueuedTaskWithErrorMessage(t *testing.T) {
	ctx := context.Background()
	ingress, engine, workflows, _, store, queue, pool := newIngressTestHarness(t, nil)

	def := &WorkflowDefinition{
		Name:         "ingress-fail-flow",
		StrategyType: StrategySequential,
		Tasks: []*TaskDefinition{
			{ID: "charge", Type: "charge", ExecutionOrder: 0, ExecutionMode: ExecutionModeQueued, RetryLimit: 0, Configuration: map[string]string{}},
		},
	}
	we := startWorkflow(t, store, workflows, def)

	engine.ExecuteWorkflow(ctx, we.ID)
	pool.Wait()

	dispatched := <-queue.Dispatched()
	ingress.handle(ctx, ResultMessage{TaskExecutionID: dispatched.TaskExecutionID, ErrorMessage: "downstream rejected the charge"})
	pool.Wait()

	got, _ := workflows.GetByID(ctx, we.ID)
	if got.Status != WorkflowStatusFailed {
		t.Fatalf("Status after ingress error = %s, want FAILED", got.Status)
	}
}

func TestResultIngressDropsUnknownTaskExecutionID(t *testing.T) {
	ctx := context.Background()
	ingress, engine, _, _, store, _, _ := newIngressTestHarness(t, nil)
	_ = store

	// Must not panic or error out loud; handle logs and returns.
	ingress.handle(ctx, ResultMessage{TaskExecutionID: "does-not-exist", Outputs: map[string]string{}})
	_ = engine
}

func TestResultIngressDropsResultForTerminalWorkflow(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	ingress, engine, workflows, tasks, store, _, pool := newIngressTestHarness(t, registry)
	_ = engine
	_ = pool

	def := &WorkflowDefinition{
		Name:         "already-done-flow",
		StrategyType: StrategySequential,
		Tasks:        []*TaskDefinition{{ID: "charge", Type: "charge", ExecutionOrder: 0, ExecutionMode: ExecutionModeQueued, Configuration: map[string]string{}}},
	}
	we := startWorkflow(t, store, workflows, def)
	if err := workflows.UpdateStatus(ctx, we, WorkflowStatusRunning); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	te, err := tasks.Create(ctx, we, def.Tasks[0], nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := tasks.Execute(ctx, te.ID, def.Tasks[0], NewExecutionContext(nil)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := workflows.UpdateStatus(ctx, we, WorkflowStatusCancelled); err != nil {
		t.Fatalf("UpdateStatus(CANCELLED): %v", err)
	}

	ingress.handle(ctx, ResultMessage{TaskExecutionID: te.ID, Outputs: map[string]string{"charged": "true"}})

	gotTask, err := store.GetTaskExecution(ctx, te.ID)
	if err != nil {
		t.Fatalf("GetTaskExecution: %v", err)
	}
	if gotTask.Status == TaskStatusCompleted {
		t.Error("a result for a cancelled workflow must be discarded, not applied")
	}
}
