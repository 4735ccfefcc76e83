package graflow

import "context"

// ConditionalStrategy evaluates def.ConditionalExpression per task: true
// drives the task as Sequential would, false skips it and advances.
// Branching via nextTaskOnSuccess/nextTaskOnFailure is honored.
type ConditionalStrategy struct {
	strategyBase
	eval *ConditionEvaluator
}

func NewConditionalStrategy(tasks *TaskService, workflows *WorkflowService, reviews *ReviewService, eval *ConditionEvaluator, publisher Publisher) *ConditionalStrategy {
	return &ConditionalStrategy{strategyBase{tasks: tasks, workflows: workflows, reviews: reviews, publisher: publisher}, eval}
}

func (s *ConditionalStrategy) Execute(ctx context.Context, wf *WorkflowExecution, def *WorkflowDefinition) (WorkflowStatus, error) {
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
		resumeThisIter := checkResume
		checkResume = false

		if task.ConditionalExpression != "" {
			truth, err := s.eval.Eval(task.ConditionalExpression, ec)
			if err != nil {
				wf.ErrorMessage = err.Error()
				if saveErr := s.workflows.SaveProgress(ctx, wf); saveErr != nil {
					return "", saveErr
				}
				return WorkflowStatusFailed, nil
			}
			if !truth {
				te, err := s.tasks.Create(ctx, wf, task, ec.SubstituteMap(task.Configuration))
				if err != nil {
					return "", err
				}
				if _, err := s.tasks.Skip(ctx, te.ID); err != nil {
					return "", err
				}
				idx++
				wf.CurrentTaskIndex = idx
				if err := s.workflows.SaveProgress(ctx, wf); err != nil {
					return "", err
				}
				continue
			}
		}

		var outcome dispatchOutcome
		var resumed bool
		if resumeThisIter {
			if te, ok, err := s.resumeIfAlreadyResolved(ctx, wf.ID, task.ID); err != nil {
				return "", err
			} else if ok {
				outcome = dispatchOutcome{status: te.Status, task: te}
				resumed = true
			}
		}
		if !resumed {
			var err error
			outcome, err = s.dispatch(ctx, wf, task, ec, true)
			if err != nil {
				return "", err
			}
		}

		switch outcome.status {
		case TaskStatusPending:
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

func (s *ConditionalStrategy) ExecuteSubset(ctx context.Context, wf *WorkflowExecution, def *WorkflowDefinition, ids []string) (WorkflowStatus, error) {
	return executeTaskSubset(ctx, s.strategyBase, wf, def, ids)
}
