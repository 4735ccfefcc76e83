package api

import "github.com/graflow/graflow"

// startWorkflowRequest is the request body for POST /api/workflow-executions.
type startWorkflowRequest struct {
	WorkflowDefinitionID string            `json:"workflowDefinitionId"`
	CorrelationID        string            `json:"correlationId,omitempty"`
	Variables            map[string]string `json:"variables,omitempty"`
}

// retrySubsetRequest is the request body for
// POST /api/workflow-executions/{id}/retry-subset.
type retrySubsetRequest struct {
	TaskExecutionIDs []string `json:"taskExecutionIds"`
}

// reviewDecisionRequest is the request body for
// POST /api/review-points/{id}/decision.
type reviewDecisionRequest struct {
	Decision graflow.ReviewDecision `json:"decision"`
	Reviewer string                 `json:"reviewer"`
	Comment  string                 `json:"comment,omitempty"`
}

// saveDefinitionRequest is the request body for POST /api/workflow-definitions.
type saveDefinitionRequest struct {
	Name         string                    `json:"name"`
	Description  string                    `json:"description,omitempty"`
	Version      int                       `json:"version"`
	StrategyType graflow.StrategyType      `json:"strategyType"`
	Tasks        []*graflow.TaskDefinition `json:"tasks"`
}
