package graflow

import (
	"context"
	"time"
)

// Store is the persistence contract. Every concrete backend (in-memory,
// SQLite, Postgres) satisfies this interface; services depend on it, never
// on a concrete backend.
type Store interface {
	SaveWorkflowDefinition(ctx context.Context, def *WorkflowDefinition) error
	GetWorkflowDefinition(ctx context.Context, id string) (*WorkflowDefinition, error)
	GetWorkflowDefinitionByNameVersion(ctx context.Context, name string, version int) (*WorkflowDefinition, error)
	ListWorkflowDefinitions(ctx context.Context) ([]*WorkflowDefinition, error)
	DeleteWorkflowDefinition(ctx context.Context, id string) error

	CreateWorkflowExecution(ctx context.Context, we *WorkflowExecution) error
	GetWorkflowExecution(ctx context.Context, id string) (*WorkflowExecution, error)
	GetWorkflowExecutionByCorrelationID(ctx context.Context, correlationID string) (*WorkflowExecution, error)
	ListWorkflowExecutionsByStatus(ctx context.Context, status WorkflowStatus) ([]*WorkflowExecution, error)
	FindCompletedOlderThan(ctx context.Context, before time.Time) ([]*WorkflowExecution, error)
	FindPausedOlderThan(ctx context.Context, before time.Time) ([]*WorkflowExecution, error)
	FindActiveByDefinitionName(ctx context.Context, name string) ([]*WorkflowExecution, error)
	UpdateWorkflowExecution(ctx context.Context, we *WorkflowExecution) error
	DeleteWorkflowExecution(ctx context.Context, id string) error

	CreateTaskExecution(ctx context.Context, te *TaskExecution) error
	GetTaskExecution(ctx context.Context, id string) (*TaskExecution, error)
	ListTaskExecutionsByWorkflow(ctx context.Context, workflowExecutionID string) ([]*TaskExecution, error)
	UpdateTaskExecution(ctx context.Context, te *TaskExecution) error
	TasksToRetry(ctx context.Context, now time.Time) ([]*TaskExecution, error)

	CreateReviewPoint(ctx context.Context, rp *UserReviewPoint) error
	GetReviewPoint(ctx context.Context, id string) (*UserReviewPoint, error)
	UpdateReviewPoint(ctx context.Context, rp *UserReviewPoint) error
	PendingReviewPoints(ctx context.Context) ([]*UserReviewPoint, error)
}
