package graflow

import (
	"context"
	"sync"
)

// Strategy drives task ordering for one workflow execution. Implementations
// are Sequential, Parallel, Conditional; the Engine resolves one by
// WorkflowDefinition.StrategyType via StrategyRegistry.
type Strategy interface {
	// Execute drives tasks[wf.CurrentTaskIndex:] until a terminal workflow
	// status is reached or a suspension condition fires.
	Execute(ctx context.Context, wf *WorkflowExecution, def *WorkflowDefinition) (WorkflowStatus, error)
	// ExecuteSubset drives only the named task definitions, preserving
	// their ExecutionOrder, ignoring RequireUserReview (DESIGN.md Open
	// Question 2). An empty ids list completes immediately.
	ExecuteSubset(ctx context.Context, wf *WorkflowExecution, def *WorkflowDefinition, ids []string) (WorkflowStatus, error)
}

// StrategyRegistry maps a StrategyType to its driver.
type StrategyRegistry struct {
	mu         sync.RWMutex
	strategies map[StrategyType]Strategy
}

func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{strategies: make(map[StrategyType]Strategy)}
}

func (r *StrategyRegistry) Register(t StrategyType, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[t] = s
}

func (r *StrategyRegistry) Lookup(t StrategyType) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[t]
	return s, ok
}
