package graflow

import (
	"context"
	"log/slog"
	"time"
)

// ReviewService creates review points, processes decisions, and re-enters
// the Engine to continue the owning workflow.
type ReviewService struct {
	store  Store
	tx     TxManager
	tasks  *TaskService
	bus    EventBus
	log    *slog.Logger
	engine *Engine
}

func NewReviewService(store Store, tx TxManager, tasks *TaskService, bus EventBus, log *slog.Logger) *ReviewService {
	if log == nil {
		log = slog.Default()
	}
	return &ReviewService{store: store, tx: tx, tasks: tasks, bus: bus, log: log}
}

// bindEngine wires the Engine back-reference once constructed; Engine and
// ReviewService are mutually dependent, so the Engine is injected after
// both are built (see engine.go's NewEngine).
func (s *ReviewService) bindEngine(e *Engine) { s.engine = e }

// CreateReviewPoint transitions the owning workflow to
// AWAITING_USER_REVIEW, appends a UserReviewPoint, and publishes
// UserReviewRequested.
func (s *ReviewService) CreateReviewPoint(ctx context.Context, wf *WorkflowExecution, te *TaskExecution) error {
	rp := &UserReviewPoint{
		WorkflowExecutionID: wf.ID,
		TaskExecutionID:     te.ID,
	}
	if err := s.tx.WithTx(ctx, ReadCommitted, func(ctx context.Context) error {
		return s.store.CreateReviewPoint(ctx, rp)
	}); err != nil {
		return err
	}
	if err := s.engine.workflows.UpdateStatus(ctx, wf, WorkflowStatusAwaitingUserReview); err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.Publish(Event{
			Review:               UserReviewEventRequested,
			CorrelationID:        wf.CorrelationID,
			WorkflowExecutionID:  wf.ID,
			TaskExecutionID:      te.ID,
			ReviewPointID:        rp.ID,
		})
	}
	return nil
}

// SubmitReview applies decision to the review point identified by
// reviewPointID and re-enters the Engine.
func (s *ReviewService) SubmitReview(ctx context.Context, reviewPointID string, decision ReviewDecision, reviewer, comment string) (*UserReviewPoint, error) {
	rp, err := s.store.GetReviewPoint(ctx, reviewPointID)
	if err != nil {
		return nil, err
	}
	if !rp.IsOpen() {
		return nil, &StateError{Message: "review point " + reviewPointID + " already decided"}
	}

	now := time.Now().UTC()
	rp.ReviewedAt = &now
	rp.Reviewer = reviewer
	rp.Comment = comment
	rp.Decision = decision
	if err := s.tx.WithTx(ctx, ReadCommitted, func(ctx context.Context) error {
		return s.store.UpdateReviewPoint(ctx, rp)
	}); err != nil {
		return nil, err
	}

	wf, err := s.store.GetWorkflowExecution(ctx, rp.WorkflowExecutionID)
	if err != nil {
		return nil, err
	}

	switch decision {
	case ReviewDecisionApprove:
		te, err := s.store.GetTaskExecution(ctx, rp.TaskExecutionID)
		if err != nil {
			return nil, err
		}
		if _, err := s.tasks.Complete(ctx, te.ID, te.Outputs); err != nil {
			return nil, err
		}
		if err := s.engine.workflows.UpdateStatus(ctx, wf, WorkflowStatusRunning); err != nil {
			return nil, err
		}
		s.engine.ExecuteWorkflow(ctx, wf.ID)

	case ReviewDecisionReject:
		te, err := s.store.GetTaskExecution(ctx, rp.TaskExecutionID)
		if err != nil {
			return nil, err
		}
		def, err := s.engine.taskDefinition(ctx, wf, te)
		if err != nil {
			return nil, err
		}
		if _, err := s.tasks.Fail(ctx, te.ID, def, &ExecutorError{Cause: rejectionError(reviewer)}); err != nil {
			return nil, err
		}
		if err := s.engine.workflows.UpdateStatus(ctx, wf, WorkflowStatusRunning); err != nil {
			return nil, err
		}
		s.engine.ExecuteWorkflow(ctx, wf.ID)

	case ReviewDecisionRestart:
		if err := s.engine.workflows.UpdateStatus(ctx, wf, WorkflowStatusRunning); err != nil {
			return nil, err
		}
		s.engine.RestartTask(ctx, wf.ID, rp.TaskExecutionID)
	}

	if s.bus != nil {
		s.bus.Publish(Event{
			Review:               UserReviewEventDecided,
			CorrelationID:        wf.CorrelationID,
			WorkflowExecutionID:  wf.ID,
			ReviewPointID:        rp.ID,
		})
	}
	return rp, nil
}

// PendingReviews returns every open review point across every workflow
// currently AWAITING_USER_REVIEW.
func (s *ReviewService) PendingReviews(ctx context.Context) ([]*UserReviewPoint, error) {
	points, err := s.store.PendingReviewPoints(ctx)
	if err != nil {
		return nil, err
	}
	var out []*UserReviewPoint
	for _, rp := range points {
		wf, err := s.store.GetWorkflowExecution(ctx, rp.WorkflowExecutionID)
		if err != nil {
			return nil, err
		}
		if wf.Status == WorkflowStatusAwaitingUserReview {
			out = append(out, rp)
		}
	}
	return out, nil
}

type rejectionErr string

func (e rejectionErr) Error() string { return string(e) }

func rejectionError(reviewer string) error {
	return rejectionErr("Rejected by user: " + reviewer)
}
