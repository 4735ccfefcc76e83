package graflow

import "time"

// WorkflowStatus is the lifecycle status of a WorkflowExecution.
type WorkflowStatus string

const (
	WorkflowStatusCreated             WorkflowStatus = "CREATED"
	WorkflowStatusRunning             WorkflowStatus = "RUNNING"
	WorkflowStatusPaused              WorkflowStatus = "PAUSED"
	WorkflowStatusAwaitingUserReview  WorkflowStatus = "AWAITING_USER_REVIEW"
	WorkflowStatusCompleted           WorkflowStatus = "COMPLETED"
	WorkflowStatusFailed              WorkflowStatus = "FAILED"
	WorkflowStatusCancelled           WorkflowStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition out of s is legal.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled:
		return true
	default:
		return false
	}
}

// TaskStatus is the lifecycle status of a TaskExecution.
type TaskStatus string

const (
	TaskStatusPending      TaskStatus = "PENDING"
	TaskStatusRunning      TaskStatus = "RUNNING"
	TaskStatusCompleted    TaskStatus = "COMPLETED"
	TaskStatusFailed       TaskStatus = "FAILED"
	TaskStatusSkipped      TaskStatus = "SKIPPED"
	TaskStatusCancelled    TaskStatus = "CANCELLED"
	TaskStatusAwaitingRetry TaskStatus = "AWAITING_RETRY"
)

// IsTerminal reports whether no further transition out of s is legal.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// StrategyType selects the execution strategy for a WorkflowDefinition.
type StrategyType string

const (
	StrategySequential  StrategyType = "SEQUENTIAL"
	StrategyParallel    StrategyType = "PARALLEL"
	StrategyConditional StrategyType = "CONDITIONAL"
)

// ExecutionMode controls whether a task runs on a local executor or is
// dispatched to the task-dispatch queue for an external worker.
type ExecutionMode string

const (
	ExecutionModeLocal  ExecutionMode = "LOCAL"
	ExecutionModeQueued ExecutionMode = "QUEUED"
)

// ReviewDecision is the outcome a reviewer records against a UserReviewPoint.
type ReviewDecision string

const (
	ReviewDecisionApprove ReviewDecision = "APPROVE"
	ReviewDecisionReject  ReviewDecision = "REJECT"
	ReviewDecisionRestart ReviewDecision = "RESTART"
)

// WorkflowDefinition is a named, versioned template: an ordered set of
// TaskDefinition plus the strategy driving them. Immutable after creation;
// edits create a new version.
type WorkflowDefinition struct {
	ID          string
	Name        string
	Description string
	Version     int
	StrategyType StrategyType
	Tasks       []*TaskDefinition
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskByID returns the TaskDefinition with the given id, or nil.
func (d *WorkflowDefinition) TaskByID(id string) *TaskDefinition {
	for _, t := range d.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// TaskIndex returns the position of id within d.Tasks in ExecutionOrder,
// or -1 if absent.
func (d *WorkflowDefinition) TaskIndex(id string) int {
	for i, t := range d.OrderedTasks() {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// OrderedTasks returns Tasks sorted by ExecutionOrder. Callers that only
// read should prefer this over Tasks directly once a definition may have
// been assembled out of order (e.g. one decoded from a request body).
func (d *WorkflowDefinition) OrderedTasks() []*TaskDefinition {
	out := make([]*TaskDefinition, len(d.Tasks))
	copy(out, d.Tasks)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].ExecutionOrder > out[j].ExecutionOrder; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// TaskDefinition describes one task within a WorkflowDefinition.
type TaskDefinition struct {
	ID                    string
	WorkflowDefinitionID  string
	Name                  string
	Type                  string
	ExecutionOrder        int
	RetryLimit            int
	TimeoutSeconds        int
	ExecutionMode         ExecutionMode
	RequireUserReview     bool
	ConditionalExpression string
	NextTaskOnSuccess     string
	NextTaskOnFailure     string
	Configuration         map[string]string
}

// WorkflowExecution is one run of a WorkflowDefinition.
type WorkflowExecution struct {
	ID                   string
	WorkflowDefinitionID string
	CorrelationID        string
	Status               WorkflowStatus
	StartedAt            *time.Time
	CompletedAt          *time.Time
	CurrentTaskIndex     int
	RetryCount           int
	ErrorMessage         string
	Variables            map[string]string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// TaskExecution is one run of one TaskDefinition inside a WorkflowExecution.
type TaskExecution struct {
	ID                   string
	WorkflowExecutionID  string
	TaskDefinitionID     string
	Status               TaskStatus
	StartedAt            *time.Time
	CompletedAt          *time.Time
	ExecutionMode        ExecutionMode
	RetryCount           int
	NextRetryAt          *time.Time
	ErrorMessage         string
	Inputs               map[string]string
	Outputs              map[string]string
	CreatedAt            time.Time
}

// UserReviewPoint ties a TaskExecution to a pending (or resolved) human
// decision.
type UserReviewPoint struct {
	ID                  string
	WorkflowExecutionID string
	TaskExecutionID     string
	CreatedAt           time.Time
	ReviewedAt          *time.Time
	Reviewer            string
	Comment             string
	Decision            ReviewDecision
}

// IsOpen reports whether the review point is still awaiting a decision.
func (r *UserReviewPoint) IsOpen() bool {
	return r.ReviewedAt == nil
}
