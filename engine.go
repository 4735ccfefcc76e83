package graflow

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Engine is the single entry point for driving workflow execution. Every
// operation launches asynchronously on the bounded worker pool (§5); the
// caller observes the outcome through the Store or the EventBus, not
// through a return value.
type Engine struct {
	definitions *definitionLookup
	workflows   *WorkflowService
	tasks       *TaskService
	strategies  *StrategyRegistry
	pool        *WorkerPool
	bus         EventBus
	log         *slog.Logger
}

// definitionLookup is the narrow slice of Store the Engine needs to
// resolve a WorkflowDefinition for a WorkflowExecution; kept separate from
// Store so the Engine's dependency surface stays explicit.
type definitionLookup struct {
	store Store
}

func (d *definitionLookup) get(ctx context.Context, id string) (*WorkflowDefinition, error) {
	return d.store.GetWorkflowDefinition(ctx, id)
}

// NewEngine wires an Engine and binds it back into reviews so
// ReviewService.SubmitReview can re-enter execution. store is used only to
// resolve WorkflowDefinition by id.
func NewEngine(store Store, workflows *WorkflowService, tasks *TaskService, strategies *StrategyRegistry, reviews *ReviewService, pool *WorkerPool, bus EventBus, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		definitions: &definitionLookup{store: store},
		workflows:   workflows,
		tasks:       tasks,
		strategies:  strategies,
		pool:        pool,
		bus:         bus,
		log:         log,
	}
	if reviews != nil {
		reviews.bindEngine(e)
	}
	return e
}

// ExecuteWorkflow loads the workflow; if its status is not CREATED or
// RUNNING, it's a no-op (per original_source/WorkflowEngineTest.java's
// re-entrancy expectation). Otherwise it transitions CREATED->RUNNING,
// resolves a strategy, and drives it asynchronously.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowExecutionID string) {
	e.pool.Submit(func() {
		e.driveExecuteWorkflow(ctx, workflowExecutionID)
	})
}

func (e *Engine) driveExecuteWorkflow(ctx context.Context, workflowExecutionID string) {
	wf, err := e.workflows.GetByID(ctx, workflowExecutionID)
	if err != nil {
		e.log.Error("engine: load workflow failed", "workflowExecutionId", workflowExecutionID, "error", err)
		return
	}
	if wf.Status != WorkflowStatusCreated && wf.Status != WorkflowStatusRunning {
		return
	}

	if wf.Status == WorkflowStatusCreated {
		if err := e.workflows.UpdateStatus(ctx, wf, WorkflowStatusRunning); err != nil {
			e.log.Error("engine: transition to running failed", "workflowExecutionId", wf.ID, "error", err)
			return
		}
	}

	def, err := e.definitions.get(ctx, wf.WorkflowDefinitionID)
	if err != nil {
		e.fail(ctx, wf, err)
		return
	}

	strategy, terr := e.resolveStrategy(def.StrategyType)
	if terr != nil {
		e.fail(ctx, wf, terr)
		return
	}

	status, err := strategy.Execute(ctx, wf, def)
	if err != nil {
		e.fail(ctx, wf, err)
		return
	}
	e.applyOutcome(ctx, wf, status)
}

// RestartTask resets the task (PENDING, cleared timestamps/outputs/error,
// retryCount=0), points wf.CurrentTaskIndex at it, then re-drives
// ExecuteWorkflow.
func (e *Engine) RestartTask(ctx context.Context, workflowExecutionID, taskExecutionID string) {
	e.pool.Submit(func() {
		wf, err := e.workflows.GetByID(ctx, workflowExecutionID)
		if err != nil {
			e.log.Error("engine: restartTask load workflow failed", "error", err)
			return
		}
		te, err := e.tasks.store.GetTaskExecution(ctx, taskExecutionID)
		if err != nil {
			e.fail(ctx, wf, err)
			return
		}
		def, err := e.definitions.get(ctx, wf.WorkflowDefinitionID)
		if err != nil {
			e.fail(ctx, wf, err)
			return
		}
		if _, err := e.tasks.Reset(ctx, taskExecutionID); err != nil {
			e.fail(ctx, wf, err)
			return
		}
		if idx := def.TaskIndex(te.TaskDefinitionID); idx >= 0 {
			wf.CurrentTaskIndex = idx
		}
		if err := e.workflows.SaveProgress(ctx, wf); err != nil {
			e.fail(ctx, wf, err)
			return
		}
		e.driveExecuteWorkflow(ctx, workflowExecutionID)
	})
}

// ExecuteTaskSubset transitions the workflow to RUNNING and calls
// strategy.ExecuteSubset for ids.
func (e *Engine) ExecuteTaskSubset(ctx context.Context, workflowExecutionID string, ids []string) {
	e.pool.Submit(func() {
		wf, err := e.workflows.GetByID(ctx, workflowExecutionID)
		if err != nil {
			e.log.Error("engine: executeTaskSubset load workflow failed", "error", err)
			return
		}
		if wf.Status != WorkflowStatusRunning {
			if err := e.workflows.UpdateStatus(ctx, wf, WorkflowStatusRunning); err != nil {
				e.fail(ctx, wf, err)
				return
			}
		}
		def, err := e.definitions.get(ctx, wf.WorkflowDefinitionID)
		if err != nil {
			e.fail(ctx, wf, err)
			return
		}
		strategy, terr := e.resolveStrategy(def.StrategyType)
		if terr != nil {
			e.fail(ctx, wf, terr)
			return
		}
		status, err := strategy.ExecuteSubset(ctx, wf, def, ids)
		if err != nil {
			e.fail(ctx, wf, err)
			return
		}
		e.applyOutcome(ctx, wf, status)
	})
}

func (e *Engine) resolveStrategy(t StrategyType) (Strategy, *ConfigurationError) {
	if s, ok := e.strategies.Lookup(t); ok {
		return s, nil
	}
	e.log.Warn("engine: strategy not registered, falling back to sequential", "strategyType", t)
	if s, ok := e.strategies.Lookup(StrategySequential); ok {
		return s, nil
	}
	return nil, &ConfigurationError{Message: "no execution strategy available, not even sequential"}
}

func (e *Engine) applyOutcome(ctx context.Context, wf *WorkflowExecution, status WorkflowStatus) {
	if status == wf.Status {
		return
	}
	if err := e.workflows.UpdateStatus(ctx, wf, status); err != nil {
		e.log.Error("engine: updateStatus failed", "workflowExecutionId", wf.ID, "status", status, "error", err)
	}
}

func (e *Engine) fail(ctx context.Context, wf *WorkflowExecution, cause error) {
	wf.ErrorMessage = cause.Error()
	if err := e.workflows.SaveProgress(ctx, wf); err != nil {
		e.log.Error("engine: saveProgress during fail failed", "error", err)
	}
	if err := e.workflows.UpdateStatus(ctx, wf, WorkflowStatusFailed); err != nil {
		e.log.Error("engine: updateStatus to failed failed", "error", err)
	}
	if e.bus != nil {
		e.bus.Publish(Event{
			Workflow:             WorkflowEventFailed,
			CorrelationID:        wf.CorrelationID,
			WorkflowExecutionID:  wf.ID,
			Attributes:           map[string]string{"error": cause.Error()},
		})
	}
}

// taskDefinition resolves the TaskDefinition backing te within wf's
// definition — used by ReviewService's REJECT path.
func (e *Engine) taskDefinition(ctx context.Context, wf *WorkflowExecution, te *TaskExecution) (*TaskDefinition, error) {
	def, err := e.definitions.get(ctx, wf.WorkflowDefinitionID)
	if err != nil {
		return nil, err
	}
	td := def.TaskByID(te.TaskDefinitionID)
	if td == nil {
		return nil, &NotFoundError{Kind: "TaskDefinition", ID: te.TaskDefinitionID}
	}
	return td, nil
}

// newID is a small helper kept here for call sites that need a fresh id
// without reaching for uuid directly.
func newID() string { return uuid.New().String() }
