package graflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// WorkflowService owns the workflow state machine and the query surface
// over WorkflowExecution.
type WorkflowService struct {
	store Store
	tx    TxManager
	bus   EventBus
	log   *slog.Logger
}

func NewWorkflowService(store Store, tx TxManager, bus EventBus, log *slog.Logger) *WorkflowService {
	if log == nil {
		log = slog.Default()
	}
	return &WorkflowService{store: store, tx: tx, bus: bus, log: log}
}

// Start persists a new CREATED WorkflowExecution for def. correlationID is
// used verbatim if non-empty, else generated.
func (s *WorkflowService) Start(ctx context.Context, def *WorkflowDefinition, correlationID string, variables map[string]string) (*WorkflowExecution, error) {
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	we := &WorkflowExecution{
		WorkflowDefinitionID: def.ID,
		CorrelationID:        correlationID,
		Status:               WorkflowStatusCreated,
		CurrentTaskIndex:     0,
		Variables:            variables,
	}
	if we.Variables == nil {
		we.Variables = make(map[string]string)
	}
	err := s.tx.WithTx(ctx, ReadCommitted, func(ctx context.Context) error {
		return s.store.CreateWorkflowExecution(ctx, we)
	})
	if err != nil {
		return nil, err
	}
	s.publish(WorkflowEventCreated, we)
	return we, nil
}

// legalTransitions enumerates every status this service will write via
// UpdateStatus, keyed by the current status.
var legalTransitions = map[WorkflowStatus]map[WorkflowStatus]bool{
	WorkflowStatusCreated: {
		WorkflowStatusRunning: true,
	},
	WorkflowStatusRunning: {
		WorkflowStatusCompleted:          true,
		WorkflowStatusFailed:             true,
		WorkflowStatusCancelled:          true,
		WorkflowStatusPaused:             true,
		WorkflowStatusAwaitingUserReview: true,
		WorkflowStatusRunning:            true,
	},
	WorkflowStatusPaused: {
		WorkflowStatusRunning:   true,
		WorkflowStatusCancelled: true,
	},
	WorkflowStatusAwaitingUserReview: {
		WorkflowStatusRunning:   true,
		WorkflowStatusCancelled: true,
	},
	WorkflowStatusFailed: {
		WorkflowStatusRunning: true, // retry
	},
}

// UpdateStatus moves we to status, enforcing the state diagram in
// spec.md §4.6. Sets CompletedAt iff status is terminal and publishes
// StatusChanged.
func (s *WorkflowService) UpdateStatus(ctx context.Context, we *WorkflowExecution, status WorkflowStatus) error {
	if we.Status.IsTerminal() && !legalTransitions[we.Status][status] {
		return &StateError{Message: "workflow " + we.ID + " is terminal (" + string(we.Status) + "), cannot transition to " + string(status)}
	}
	if we.Status != status && !legalTransitions[we.Status][status] {
		return &StateError{Message: "illegal transition " + string(we.Status) + " -> " + string(status)}
	}

	now := time.Now().UTC()
	if we.Status == WorkflowStatusCreated && status == WorkflowStatusRunning && we.StartedAt == nil {
		we.StartedAt = &now
	}
	we.Status = status
	if status.IsTerminal() {
		we.CompletedAt = &now
	}
	if err := s.tx.WithTx(ctx, ReadCommitted, func(ctx context.Context) error {
		return s.store.UpdateWorkflowExecution(ctx, we)
	}); err != nil {
		return err
	}
	s.publish(WorkflowEventStatusChanged, we)
	return nil
}

// Pause moves a RUNNING workflow to PAUSED.
func (s *WorkflowService) Pause(ctx context.Context, id string) (*WorkflowExecution, error) {
	we, err := s.store.GetWorkflowExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if we.Status != WorkflowStatusRunning {
		return nil, &StateError{Message: "cannot pause workflow in status " + string(we.Status)}
	}
	if err := s.UpdateStatus(ctx, we, WorkflowStatusPaused); err != nil {
		return nil, err
	}
	s.publish(WorkflowEventPaused, we)
	return we, nil
}

// Cancel immediately moves a non-terminal workflow to CANCELLED.
// In-flight local tasks are allowed to finish but their post-run
// persistence must detect the cancelled parent and discard the result
// (see TaskService/Engine dispatch paths).
func (s *WorkflowService) Cancel(ctx context.Context, id string) (*WorkflowExecution, error) {
	we, err := s.store.GetWorkflowExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if we.Status.IsTerminal() {
		return nil, &StateError{Message: "cannot cancel workflow in status " + string(we.Status)}
	}
	we.Status = WorkflowStatusCancelled
	now := time.Now().UTC()
	we.CompletedAt = &now
	if err := s.tx.WithTx(ctx, ReadCommitted, func(ctx context.Context) error {
		if err := s.store.UpdateWorkflowExecution(ctx, we); err != nil {
			return err
		}
		tasks, err := s.store.ListTaskExecutionsByWorkflow(ctx, we.ID)
		if err != nil {
			return err
		}
		for _, te := range tasks {
			if te.Status.IsTerminal() {
				continue
			}
			te.Status = TaskStatusCancelled
			te.CompletedAt = &now
			if err := s.store.UpdateTaskExecution(ctx, te); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	s.publish(WorkflowEventCancelled, we)
	return we, nil
}

// Resume moves a PAUSED workflow back to RUNNING. The caller (Engine) is
// responsible for re-driving execution afterward.
func (s *WorkflowService) Resume(ctx context.Context, id string) (*WorkflowExecution, error) {
	we, err := s.store.GetWorkflowExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if we.Status != WorkflowStatusPaused {
		return nil, &StateError{Message: "cannot resume workflow in status " + string(we.Status)}
	}
	if err := s.UpdateStatus(ctx, we, WorkflowStatusRunning); err != nil {
		return nil, err
	}
	s.publish(WorkflowEventResumed, we)
	return we, nil
}

// RetryExecution moves a FAILED or PAUSED workflow back to RUNNING, incrementing
// retryCount. The caller (Engine) re-drives execution from
// currentTaskIndex afterward.
func (s *WorkflowService) RetryExecution(ctx context.Context, id string) (*WorkflowExecution, error) {
	we, err := s.store.GetWorkflowExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if we.Status != WorkflowStatusFailed && we.Status != WorkflowStatusPaused {
		return nil, &StateError{Message: "cannot retry workflow in status " + string(we.Status)}
	}
	we.RetryCount++
	if err := s.UpdateStatus(ctx, we, WorkflowStatusRunning); err != nil {
		return nil, err
	}
	s.publish(WorkflowEventRetry, we)
	return we, nil
}

// RetryExecutionSubset moves a FAILED or PAUSED workflow back to RUNNING
// for a partial re-execution of taskIDs. Per DESIGN.md Open Question 5,
// this does not reset the chosen tasks' retryCount — callers driving the
// actual re-execution do that only if they independently choose to.
func (s *WorkflowService) RetryExecutionSubset(ctx context.Context, id string) (*WorkflowExecution, error) {
	return s.RetryExecution(ctx, id)
}

// Delete removes we and cascades to its tasks and review points. Requires
// terminal state.
func (s *WorkflowService) Delete(ctx context.Context, id string) error {
	return s.tx.WithTx(ctx, ReadCommitted, func(ctx context.Context) error {
		return s.store.DeleteWorkflowExecution(ctx, id)
	})
}

// SaveProgress persists Variables/CurrentTaskIndex/RetryCount/ErrorMessage
// mutations made by a Strategy mid-drive, without touching Status.
func (s *WorkflowService) SaveProgress(ctx context.Context, we *WorkflowExecution) error {
	return s.tx.WithTx(ctx, ReadCommitted, func(ctx context.Context) error {
		current, err := s.store.GetWorkflowExecution(ctx, we.ID)
		if err != nil {
			return err
		}
		we.Status = current.Status
		we.CompletedAt = current.CompletedAt
		return s.store.UpdateWorkflowExecution(ctx, we)
	})
}

func (s *WorkflowService) GetByID(ctx context.Context, id string) (*WorkflowExecution, error) {
	return s.store.GetWorkflowExecution(ctx, id)
}

func (s *WorkflowService) GetByCorrelationID(ctx context.Context, correlationID string) (*WorkflowExecution, error) {
	return s.store.GetWorkflowExecutionByCorrelationID(ctx, correlationID)
}

func (s *WorkflowService) ListByStatus(ctx context.Context, status WorkflowStatus) ([]*WorkflowExecution, error) {
	return s.store.ListWorkflowExecutionsByStatus(ctx, status)
}

func (s *WorkflowService) FindCompletedOlderThan(ctx context.Context, before time.Time) ([]*WorkflowExecution, error) {
	return s.store.FindCompletedOlderThan(ctx, before)
}

func (s *WorkflowService) FindPausedOlderThan(ctx context.Context, before time.Time) ([]*WorkflowExecution, error) {
	return s.store.FindPausedOlderThan(ctx, before)
}

func (s *WorkflowService) FindActiveByDefinitionName(ctx context.Context, name string) ([]*WorkflowExecution, error) {
	return s.store.FindActiveByDefinitionName(ctx, name)
}

func (s *WorkflowService) publish(t WorkflowEventType, we *WorkflowExecution) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(Event{
		Workflow:             t,
		CorrelationID:        we.CorrelationID,
		WorkflowExecutionID:  we.ID,
	})
}
