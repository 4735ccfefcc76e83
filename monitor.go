package graflow

import "context"

// SummaryStats is an aggregate count across all workflow executions,
// grounded on the teacher's monitor.go.
type SummaryStats struct {
	Total     int
	Completed int
	Failed    int
	Running   int
	Paused    int
	Cancelled int
}

// Monitor answers the operational queries ops tooling needs: aggregate
// counts and the active-workflow list.
type Monitor struct {
	workflows *WorkflowService
	store     Store
}

func NewMonitor(workflows *WorkflowService, store Store) *Monitor {
	return &Monitor{workflows: workflows, store: store}
}

// Stats computes SummaryStats by listing each status bucket through
// WorkflowService.ListByStatus; every Store backend goes through this same
// path.
func (m *Monitor) Stats(ctx context.Context) (SummaryStats, error) {
	var stats SummaryStats
	buckets := []struct {
		status WorkflowStatus
		target *int
	}{
		{WorkflowStatusCompleted, &stats.Completed},
		{WorkflowStatusFailed, &stats.Failed},
		{WorkflowStatusRunning, &stats.Running},
		{WorkflowStatusPaused, &stats.Paused},
		{WorkflowStatusCancelled, &stats.Cancelled},
	}
	for _, b := range buckets {
		list, err := m.workflows.ListByStatus(ctx, b.status)
		if err != nil {
			return SummaryStats{}, err
		}
		*b.target = len(list)
		stats.Total += len(list)
	}
	created, err := m.workflows.ListByStatus(ctx, WorkflowStatusCreated)
	if err != nil {
		return SummaryStats{}, err
	}
	reviewing, err := m.workflows.ListByStatus(ctx, WorkflowStatusAwaitingUserReview)
	if err != nil {
		return SummaryStats{}, err
	}
	stats.Total += len(created) + len(reviewing)
	return stats, nil
}

// ActiveWorkflow summarizes one non-terminal workflow execution for
// listing purposes.
type ActiveWorkflow struct {
	ID               string
	WorkflowID       string
	Status           WorkflowStatus
	CurrentTaskIndex int
}

// Active lists every non-terminal workflow execution.
func (m *Monitor) Active(ctx context.Context) ([]ActiveWorkflow, error) {
	var out []ActiveWorkflow
	for _, status := range []WorkflowStatus{
		WorkflowStatusCreated,
		WorkflowStatusRunning,
		WorkflowStatusPaused,
		WorkflowStatusAwaitingUserReview,
	} {
		list, err := m.workflows.ListByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		for _, we := range list {
			out = append(out, ActiveWorkflow{
				ID:               we.ID,
				WorkflowID:       we.WorkflowDefinitionID,
				Status:           we.Status,
				CurrentTaskIndex: we.CurrentTaskIndex,
			})
		}
	}
	return out, nil
}
