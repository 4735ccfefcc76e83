package graflow

import "context"

// SequentialStrategy drives tasks[wf.CurrentTaskIndex:] strictly in
// ExecutionOrder, honoring nextTaskOnSuccess/nextTaskOnFailure branching.
type SequentialStrategy struct {
	strategyBase
}

func NewSequentialStrategy(tasks *TaskService, workflows *WorkflowService, reviews *ReviewService, publisher Publisher) *SequentialStrategy {
	return &SequentialStrategy{strategyBase{tasks: tasks, workflows: workflows, reviews: reviews, publisher: publisher}}
}

func (s *SequentialStrategy) Execute(ctx context.Context, wf *WorkflowExecution, def *WorkflowDefinition) (WorkflowStatus, error) {
	ordered := def.OrderedTasks()
	if len(ordered) == 0 {
		return WorkflowStatusCompleted, nil
	}

	ec := NewExecutionContext(wf.Variables)
	idx := wf.CurrentTaskIndex
	checkResume := true

	for idx < len(ordered) {
		task := ordered[idx]
		wf.CurrentTaskIndex = idx

		var outcome dispatchOutcome
		var resumed bool
		if checkResume {
			if te, ok, err := s.resumeIfAlreadyResolved(ctx, wf.ID, task.ID); err != nil {
				return "", err
			} else if ok {
				outcome = dispatchOutcome{status: te.Status, task: te}
				resumed = true
			}
		}
		checkResume = false
		if !resumed {
			var err error
			outcome, err = s.dispatch(ctx, wf, task, ec, true)
			if err != nil {
				return "", err
			}
		}

		switch outcome.status {
		case TaskStatusPending:
			// requireUserReview suspension.
			if err := s.workflows.SaveProgress(ctx, wf); err != nil {
				return "", err
			}
			return WorkflowStatusAwaitingUserReview, nil

		case TaskStatusCompleted:
			ec.Merge(outcome.task.Outputs)
			wf.Variables = ec.Snapshot()
			next := idx + 1
			if task.NextTaskOnSuccess != "" {
				if j := def.TaskIndex(task.NextTaskOnSuccess); j >= 0 {
					next = j
				}
			}
			idx = next
			wf.CurrentTaskIndex = idx
			if err := s.workflows.SaveProgress(ctx, wf); err != nil {
				return "", err
			}

		case TaskStatusSkipped:
			idx++
			wf.CurrentTaskIndex = idx
			if err := s.workflows.SaveProgress(ctx, wf); err != nil {
				return "", err
			}

		case TaskStatusFailed:
			wf.ErrorMessage = outcome.task.ErrorMessage
			if task.NextTaskOnFailure != "" {
				if j := def.TaskIndex(task.NextTaskOnFailure); j >= 0 {
					idx = j
					wf.CurrentTaskIndex = idx
					if err := s.workflows.SaveProgress(ctx, wf); err != nil {
						return "", err
					}
					continue
				}
			}
			if err := s.workflows.SaveProgress(ctx, wf); err != nil {
				return "", err
			}
			return WorkflowStatusFailed, nil

		case TaskStatusAwaitingRetry:
			if err := s.workflows.SaveProgress(ctx, wf); err != nil {
				return "", err
			}
			return WorkflowStatusRunning, nil

		default:
			if err := s.workflows.SaveProgress(ctx, wf); err != nil {
				return "", err
			}
			return WorkflowStatusRunning, nil
		}
	}

	return WorkflowStatusCompleted, nil
}

func (s *SequentialStrategy) ExecuteSubset(ctx context.Context, wf *WorkflowExecution, def *WorkflowDefinition, ids []string) (WorkflowStatus, error) {
	return executeTaskSubset(ctx, s.strategyBase, wf, def, ids)
}

// executeTaskSubset is shared by Sequential and Conditional: both drive a
// subset the same way (RequireUserReview ignored, per DESIGN.md Open
// Question 2), differing only in how they drive the full task list.
func executeTaskSubset(ctx context.Context, b strategyBase, wf *WorkflowExecution, def *WorkflowDefinition, ids []string) (WorkflowStatus, error) {
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

	ec := NewExecutionContext(wf.Variables)
	for _, task := range subset {
		outcome, err := b.dispatch(ctx, wf, task, ec, false)
		if err != nil {
			return "", err
		}
		switch outcome.status {
		case TaskStatusCompleted, TaskStatusSkipped:
			ec.Merge(outcome.task.Outputs)
			wf.Variables = ec.Snapshot()
			if err := b.workflows.SaveProgress(ctx, wf); err != nil {
				return "", err
			}
		case TaskStatusFailed:
			wf.ErrorMessage = outcome.task.ErrorMessage
			if err := b.workflows.SaveProgress(ctx, wf); err != nil {
				return "", err
			}
			return WorkflowStatusFailed, nil
		case TaskStatusAwaitingRetry:
			if err := b.workflows.SaveProgress(ctx, wf); err != nil {
				return "", err
			}
			return WorkflowStatusRunning, nil
		}
	}
	return WorkflowStatusCompleted, nil
}
