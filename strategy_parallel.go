package graflow

import (
	"context"
	"sync"
)

// ParallelStrategy creates and dispatches every task execution concurrently
// through a bounded worker pool, awaiting all; each branch creates its own
// execution when its pool job starts, not all of them up front. No
// branching: nextTaskOnSuccess/nextTaskOnFailure are ignored. Per
// DESIGN.md Open Question 4, TimeoutSeconds is applied per task.
type ParallelStrategy struct {
	strategyBase
	pool *WorkerPool
}

func NewParallelStrategy(tasks *TaskService, workflows *WorkflowService, reviews *ReviewService, pool *WorkerPool, publisher Publisher) *ParallelStrategy {
	return &ParallelStrategy{strategyBase{tasks: tasks, workflows: workflows, reviews: reviews, publisher: publisher}, pool}
}

func (s *ParallelStrategy) Execute(ctx context.Context, wf *WorkflowExecution, def *WorkflowDefinition) (WorkflowStatus, error) {
	ordered := def.OrderedTasks()
	if wf.CurrentTaskIndex > 0 && wf.CurrentTaskIndex >= len(ordered) {
		return WorkflowStatusCompleted, nil
	}
	pending := ordered[wf.CurrentTaskIndex:]
	if len(pending) == 0 {
		return WorkflowStatusCompleted, nil
	}
	return s.run(ctx, wf, pending)
}

func (s *ParallelStrategy) ExecuteSubset(ctx context.Context, wf *WorkflowExecution, def *WorkflowDefinition, ids []string) (WorkflowStatus, error) {
	if len(ids) == 0 {
		return WorkflowStatusCompleted, nil
	}
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	var subset []*TaskDefinition
	for _, t := range def.OrderedTasks() {
		if idSet[t.ID] {
			subset = append(subset, t)
		}
	}
	return s.run(ctx, wf, subset)
}

func (s *ParallelStrategy) run(ctx context.Context, wf *WorkflowExecution, defs []*TaskDefinition) (WorkflowStatus, error) {
	ec := NewExecutionContext(wf.Variables)

	type branchResult struct {
		status TaskStatus
		task   *TaskExecution
		err    error
	}
	results := make([]branchResult, len(defs))

	var wg sync.WaitGroup
	for i, task := range defs {
		i, task := i, task
		wg.Add(1)
		s.pool.Submit(func() {
			defer wg.Done()
			var outcome dispatchOutcome
			var resumed bool
			if te, ok, rerr := s.resumeIfAlreadyResolved(ctx, wf.ID, task.ID); rerr != nil {
				results[i] = branchResult{err: rerr}
				return
			} else if ok {
				// A sibling branch already ran this one to completion on an
				// earlier, partial redrive (one branch awaiting retry or
				// queued while the others finished): reuse its outcome
				// instead of creating and re-running a duplicate.
				outcome = dispatchOutcome{status: te.Status, task: te}
				resumed = true
			}
			if !resumed {
				var err error
				outcome, err = s.dispatch(ctx, wf, task, ec, false)
				if err != nil {
					results[i] = branchResult{err: err}
					return
				}
			}
			results[i] = branchResult{status: outcome.status, task: outcome.task}
		})
	}
	wg.Wait()

	anyFailed := false
	anyUnresolved := false
	for _, r := range results {
		if r.err != nil {
			return "", r.err
		}
		if r.task != nil {
			ec.Merge(r.task.Outputs)
		}
		switch r.status {
		case TaskStatusFailed:
			anyFailed = true
		case TaskStatusAwaitingRetry, TaskStatusRunning, TaskStatusPending:
			// AWAITING_RETRY waits on the retry scheduler; RUNNING is a
			// QUEUED task still waiting on ResultIngress; PENDING does not
			// come back from run's dispatch (it passes requireReview=false
			// for Execute and ExecuteSubset alike) and counts as unresolved.
			anyUnresolved = true
		}
	}

	wf.Variables = ec.Snapshot()
	if err := s.workflows.SaveProgress(ctx, wf); err != nil {
		return "", err
	}

	switch {
	case anyFailed:
		return WorkflowStatusFailed, nil
	case anyUnresolved:
		return WorkflowStatusRunning, nil
	default:
		return WorkflowStatusCompleted, nil
	}
}
