package graflow

import (
	"context"
	"log/slog"
)

// strategyBase holds the services every concrete Strategy drives through.
// Composition, not inheritance, per spec.md §9. publisher is optional: a
// nil publisher means every task definition must run ExecutionModeLocal,
// since nothing is there to hand a QUEUED task's dispatch message to the
// task-dispatch queue.
type strategyBase struct {
	tasks     *TaskService
	workflows *WorkflowService
	reviews   *ReviewService
	publisher Publisher
	log       *slog.Logger
}

// dispatchOutcome is what driving one task definition to a terminal-or-
// suspending point produced.
type dispatchOutcome struct {
	status TaskStatus
	task   *TaskExecution
}

// dispatch creates (or reuses a PENDING one already on record) a TaskExecution for
// def and runs it to its next rest point. requireReview gates whether a
// RequireUserReview definition suspends into AWAITING_USER_REVIEW instead
// of executing.
func (b strategyBase) dispatch(ctx context.Context, wf *WorkflowExecution, def *TaskDefinition, ec *ExecutionContext, requireReview bool) (dispatchOutcome, error) {
	inputs := ec.SubstituteMap(def.Configuration)
	for k, v := range wf.Variables {
		if _, ok := inputs[k]; !ok {
			inputs[k] = v
		}
	}

	te, err := b.resumeOrCreate(ctx, wf, def, inputs)
	if err != nil {
		return dispatchOutcome{}, err
	}

	if requireReview && def.RequireUserReview {
		if err := b.reviews.CreateReviewPoint(ctx, wf, te); err != nil {
			return dispatchOutcome{}, err
		}
		return dispatchOutcome{status: TaskStatusPending, task: te}, nil
	}

	te, err = b.tasks.Execute(ctx, te.ID, def, ec)
	if err != nil {
		return dispatchOutcome{}, err
	}

	if te.Status == TaskStatusRunning && def.ExecutionMode == ExecutionModeQueued {
		b.publishDispatch(ctx, def, te)
	}

	return dispatchOutcome{status: te.Status, task: te}, nil
}

// resumeOrCreate returns the PENDING TaskExecution already on record for
// def within wf, if the retry scheduler or RestartTask reset one back to
// PENDING ahead of this dispatch; otherwise it creates a fresh one. Without
// this, every re-drive of a suspended strategy would mint a brand new
// TaskExecution and lose the retryCount/history of the one the scheduler
// just reset, which violates the single-execution-record contract that the
// retry-to-success scenario depends on.
func (b strategyBase) resumeOrCreate(ctx context.Context, wf *WorkflowExecution, def *TaskDefinition, inputs map[string]string) (*TaskExecution, error) {
	existing, err := b.tasks.store.ListTaskExecutionsByWorkflow(ctx, wf.ID)
	if err != nil {
		return nil, err
	}
	for _, te := range existing {
		if te.TaskDefinitionID == def.ID && te.Status == TaskStatusPending {
			te.Inputs = inputs
			if err := b.tasks.store.UpdateTaskExecution(ctx, te); err != nil {
				return nil, err
			}
			return te, nil
		}
	}
	return b.tasks.Create(ctx, wf, def, inputs)
}

// resumeIfAlreadyResolved looks for a TaskExecution that was already driven
// to a terminal or still-queued state by something other than this Execute
// call's own dispatch loop: a review decision (ReviewService.SubmitReview)
// or an async queued-task result (ResultIngress.handle) both mutate an
// existing TaskExecution out of band and then redrive the workflow at the
// same CurrentTaskIndex. Without this check the loop's first iteration
// would call dispatch() again for that same task definition and, since the
// resolved row is no longer PENDING, resumeOrCreate would mint and re-run a
// second TaskExecution for work that already has an answer. ok is false
// when there is nothing to resume (a PENDING row is left for dispatch's own
// resumeOrCreate to pick up, which is the retry-scheduler-reset case).
func (b strategyBase) resumeIfAlreadyResolved(ctx context.Context, workflowExecutionID, taskDefinitionID string) (*TaskExecution, bool, error) {
	existing, err := b.tasks.store.ListTaskExecutionsByWorkflow(ctx, workflowExecutionID)
	if err != nil {
		return nil, false, err
	}
	for _, te := range existing {
		if te.TaskDefinitionID == taskDefinitionID && te.Status != TaskStatusPending {
			return te, true, nil
		}
	}
	return nil, false, nil
}

// publishDispatch hands a QUEUED task's dispatch message to the
// task-dispatch queue. A failure here is logged, not returned: the task
// stays RUNNING and nothing re-publishes it (the retry scheduler only picks
// up AWAITING_RETRY tasks).
func (b strategyBase) publishDispatch(ctx context.Context, def *TaskDefinition, te *TaskExecution) {
	if b.publisher == nil {
		return
	}
	msg := DispatchMessage{
		TaskExecutionID: te.ID,
		TaskType:        def.Type,
		Inputs:          te.Inputs,
		Configuration:   def.Configuration,
	}
	if err := b.publisher.PublishTask(ctx, msg); err != nil {
		log := b.log
		if log == nil {
			log = slog.Default()
		}
		log.Error("strategy: publish task dispatch failed", "taskExecutionId", te.ID, "error", err)
	}
}
