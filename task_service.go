package graflow

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// TaskService owns the per-task state machine: PENDING -> RUNNING ->
// {COMPLETED, FAILED, AWAITING_RETRY}; AWAITING_RETRY -> RUNNING;
// PENDING -> SKIPPED; any non-terminal -> CANCELLED on workflow cancel.
type TaskService struct {
	store    Store
	tx       TxManager
	registry *Registry
	bus      EventBus
	retry    RetryPolicy
	log      *slog.Logger
}

func NewTaskService(store Store, tx TxManager, registry *Registry, bus EventBus, retry RetryPolicy, log *slog.Logger) *TaskService {
	if log == nil {
		log = slog.Default()
	}
	return &TaskService{store: store, tx: tx, registry: registry, bus: bus, retry: retry, log: log}
}

// Create persists a new PENDING TaskExecution for def within wf and fires
// TaskCreated. wf must be RUNNING.
func (s *TaskService) Create(ctx context.Context, wf *WorkflowExecution, def *TaskDefinition, inputs map[string]string) (*TaskExecution, error) {
	if wf.Status != WorkflowStatusRunning {
		return nil, &StateError{Message: "cannot create task execution while workflow is " + string(wf.Status)}
	}
	te := &TaskExecution{
		WorkflowExecutionID: wf.ID,
		TaskDefinitionID:    def.ID,
		Status:              TaskStatusPending,
		ExecutionMode:       def.ExecutionMode,
		Inputs:              inputs,
		Outputs:             make(map[string]string),
	}
	var err error
	err = s.tx.WithTx(ctx, ReadCommitted, func(ctx context.Context) error {
		return s.store.CreateTaskExecution(ctx, te)
	})
	if err != nil {
		return nil, err
	}
	s.publishTask(TaskEventCreated, wf, te)
	return te, nil
}

// Execute transitions a PENDING or AWAITING_RETRY task to RUNNING. When
// def.ExecutionMode is LOCAL, the registered executor runs synchronously
// and the result is immediately fed through Complete/Fail. When QUEUED,
// dispatch is the caller's responsibility (via Publisher) and Execute only
// performs the RUNNING transition.
func (s *TaskService) Execute(ctx context.Context, taskID string, def *TaskDefinition, ec *ExecutionContext) (*TaskExecution, error) {
	te, err := s.store.GetTaskExecution(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if te.Status != TaskStatusPending && te.Status != TaskStatusAwaitingRetry {
		return nil, &StateError{Message: "cannot execute task in status " + string(te.Status)}
	}

	now := time.Now().UTC()
	te.Status = TaskStatusRunning
	te.StartedAt = &now
	if err := s.persist(ctx, te); err != nil {
		return nil, err
	}
	s.publishTask(TaskEventStarted, nil, te)

	if def.ExecutionMode == ExecutionModeQueued {
		return te, nil
	}

	executor, ok := s.registry.Lookup(def.Type)
	if !ok {
		return nil, &NotFoundError{Kind: "TaskExecutor", ID: def.Type}
	}

	var execCtx context.Context = ctx
	var cancel context.CancelFunc
	if def.TimeoutSeconds > 0 {
		execCtx, cancel = context.WithTimeout(ctx, time.Duration(def.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	outputs, execErr := executor.Execute(execCtx, def, ec)
	if execErr != nil {
		return s.Fail(ctx, taskID, def, execErr)
	}
	return s.Complete(ctx, taskID, outputs)
}

// Complete transitions a RUNNING task to COMPLETED, merging outputs.
func (s *TaskService) Complete(ctx context.Context, taskID string, outputs map[string]string) (*TaskExecution, error) {
	te, err := s.store.GetTaskExecution(ctx, taskID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	te.Status = TaskStatusCompleted
	te.CompletedAt = &now
	if te.Outputs == nil {
		te.Outputs = make(map[string]string)
	}
	for k, v := range outputs {
		te.Outputs[k] = v
	}
	if err := s.persist(ctx, te); err != nil {
		return nil, err
	}
	s.publishTask(TaskEventCompleted, nil, te)
	return te, nil
}

// Fail transitions a RUNNING task per the retry budget: AWAITING_RETRY
// while retryCount < retryLimit, else terminal FAILED. A ValidationError
// or ConfigurationError (bare or wrapped in an ExecutorError) is always
// terminal regardless of remaining retry budget, per spec.md §7.
// Calling Fail on a task already FAILED is a no-op (see DESIGN.md, Open
// Question 1).
func (s *TaskService) Fail(ctx context.Context, taskID string, def *TaskDefinition, cause error) (*TaskExecution, error) {
	te, err := s.store.GetTaskExecution(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if te.Status.IsTerminal() {
		return te, nil
	}

	te.ErrorMessage = cause.Error()

	var valErr *ValidationError
	var cfgErr *ConfigurationError
	terminal := errors.As(cause, &valErr) || errors.As(cause, &cfgErr)
	if !terminal && te.RetryCount < def.RetryLimit {
		delay := s.retry.NextDelay(te.RetryCount)
		next := time.Now().UTC().Add(delay)
		te.Status = TaskStatusAwaitingRetry
		te.RetryCount++
		te.NextRetryAt = &next
		if err := s.persist(ctx, te); err != nil {
			return nil, err
		}
		s.publishTask(TaskEventRetryScheduled, nil, te)
		return te, nil
	}

	now := time.Now().UTC()
	te.Status = TaskStatusFailed
	te.CompletedAt = &now
	if err := s.persist(ctx, te); err != nil {
		return nil, err
	}
	s.publishTask(TaskEventFailed, nil, te)
	return te, nil
}

// Skip transitions a PENDING task directly to SKIPPED.
func (s *TaskService) Skip(ctx context.Context, taskID string) (*TaskExecution, error) {
	te, err := s.store.GetTaskExecution(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if te.Status != TaskStatusPending {
		return nil, &StateError{Message: "cannot skip task in status " + string(te.Status)}
	}
	now := time.Now().UTC()
	te.Status = TaskStatusSkipped
	te.CompletedAt = &now
	if err := s.persist(ctx, te); err != nil {
		return nil, err
	}
	s.publishTask(TaskEventSkipped, nil, te)
	return te, nil
}

// Cancel transitions any non-terminal task to CANCELLED, used when the
// owning workflow is cancelled.
func (s *TaskService) Cancel(ctx context.Context, taskID string) (*TaskExecution, error) {
	te, err := s.store.GetTaskExecution(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if te.Status.IsTerminal() {
		return te, nil
	}
	now := time.Now().UTC()
	te.Status = TaskStatusCancelled
	te.CompletedAt = &now
	if err := s.persist(ctx, te); err != nil {
		return nil, err
	}
	return te, nil
}

// Reset restores a task to PENDING, clearing timestamps, outputs, error,
// and retryCount — used by Engine.RestartTask and review RESTART decisions.
func (s *TaskService) Reset(ctx context.Context, taskID string) (*TaskExecution, error) {
	te, err := s.store.GetTaskExecution(ctx, taskID)
	if err != nil {
		return nil, err
	}
	te.Status = TaskStatusPending
	te.StartedAt = nil
	te.CompletedAt = nil
	te.ErrorMessage = ""
	te.RetryCount = 0
	te.NextRetryAt = nil
	te.Outputs = make(map[string]string)
	if err := s.persist(ctx, te); err != nil {
		return nil, err
	}
	return te, nil
}

// TasksToRetry returns tasks due for retry at or before now.
func (s *TaskService) TasksToRetry(ctx context.Context, now time.Time) ([]*TaskExecution, error) {
	return s.store.TasksToRetry(ctx, now)
}

func (s *TaskService) persist(ctx context.Context, te *TaskExecution) error {
	return s.tx.WithTx(ctx, ReadCommitted, func(ctx context.Context) error {
		return s.store.UpdateTaskExecution(ctx, te)
	})
}

func (s *TaskService) publishTask(t TaskEventType, wf *WorkflowExecution, te *TaskExecution) {
	if s.bus == nil {
		return
	}
	corr := ""
	if wf != nil {
		corr = wf.CorrelationID
	}
	s.bus.Publish(Event{
		Task:                 t,
		CorrelationID:        corr,
		WorkflowExecutionID:  te.WorkflowExecutionID,
		TaskExecutionID:      te.ID,
	})
}
