package graflow

import (
	"context"
	"errors"
	"log/slog"
)

// ResultIngress consumes result messages off the task-result queue and
// completes/fails the corresponding TaskExecution, re-entering the Engine
// when the owning workflow is still RUNNING. Unknown ids are logged and
// dropped, tolerating stale replay.
type ResultIngress struct {
	consumer  Consumer
	tasks     *TaskService
	workflows *WorkflowService
	engine    *Engine
	log       *slog.Logger

	stop chan struct{}
	done chan struct{}
}

func NewResultIngress(consumer Consumer, tasks *TaskService, workflows *WorkflowService, engine *Engine, log *slog.Logger) *ResultIngress {
	if log == nil {
		log = slog.Default()
	}
	return &ResultIngress{
		consumer:  consumer,
		tasks:     tasks,
		workflows: workflows,
		engine:    engine,
		log:       log,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the consume loop on its own goroutine until ctx is done or
// Stop is called.
func (i *ResultIngress) Start(ctx context.Context) {
	go func() {
		defer close(i.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-i.stop:
				return
			default:
			}
			msg, err := i.consumer.Receive(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				var te *TransportError
				if errors.As(err, &te) {
					i.log.Warn("resultIngress: malformed message dropped", "error", err)
					continue
				}
				i.log.Error("resultIngress: receive failed", "error", err)
				continue
			}
			i.handle(ctx, msg)
		}
	}()
}

func (i *ResultIngress) Stop() {
	close(i.stop)
	<-i.done
}

func (i *ResultIngress) handle(ctx context.Context, msg ResultMessage) {
	te, err := i.tasks.store.GetTaskExecution(ctx, msg.TaskExecutionID)
	if err != nil {
		i.log.Warn("resultIngress: unknown task execution id, dropping", "taskExecutionId", msg.TaskExecutionID)
		return
	}

	wf, err := i.workflows.GetByID(ctx, te.WorkflowExecutionID)
	if err != nil {
		i.log.Warn("resultIngress: unknown workflow execution, dropping", "workflowExecutionId", te.WorkflowExecutionID)
		return
	}
	if wf.Status.IsTerminal() {
		// Cancelled/terminal parent: discard, no outputs merged, no event.
		return
	}

	if msg.ErrorMessage != "" {
		def, derr := i.engine.taskDefinition(ctx, wf, te)
		if derr != nil {
			i.log.Warn("resultIngress: task definition missing, dropping", "taskExecutionId", te.ID)
			return
		}
		if _, err := i.tasks.Fail(ctx, te.ID, def, errors.New(msg.ErrorMessage)); err != nil {
			i.log.Error("resultIngress: fail failed", "error", err)
			return
		}
	} else {
		if _, err := i.tasks.Complete(ctx, te.ID, msg.Outputs); err != nil {
			i.log.Error("resultIngress: complete failed", "error", err)
			return
		}
	}

	if wf.Status == WorkflowStatusRunning {
		i.engine.ExecuteWorkflow(ctx, wf.ID)
	}
}
