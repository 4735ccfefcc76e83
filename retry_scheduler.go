package graflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RetryScheduler runs the recurring retry tick plus a separate periodic
// sweep (stuck-workflow logging, terminal-workflow retention purge).
// Grounded on the teacher's Worker ticker loop for the tick, and on
// rendis-opcode's cron-driven Scheduler for the sweep.
type RetryScheduler struct {
	tasks     *TaskService
	workflows *WorkflowService
	engine    *Engine

	tickInterval     time.Duration
	pausedThreshold  time.Duration
	retentionPeriod  time.Duration

	log *slog.Logger

	cron *cron.Cron

	mu              sync.Mutex
	consecutiveFail map[string]int

	stop   chan struct{}
	ticker *time.Ticker
	done   chan struct{}
}

// NewRetryScheduler builds a scheduler ticking every tickInterval; a
// tickInterval <= 0 falls back to 30s.
func NewRetryScheduler(tasks *TaskService, workflows *WorkflowService, engine *Engine, tickInterval, pausedThreshold, retentionPeriod time.Duration, log *slog.Logger) *RetryScheduler {
	if log == nil {
		log = slog.Default()
	}
	if tickInterval <= 0 {
		tickInterval = 30 * time.Second
	}
	return &RetryScheduler{
		tasks:           tasks,
		workflows:       workflows,
		engine:          engine,
		tickInterval:    tickInterval,
		pausedThreshold: pausedThreshold,
		retentionPeriod: retentionPeriod,
		log:             log,
		cron:            cron.New(),
		consecutiveFail: make(map[string]int),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// Start launches the tick loop and registers the daily sweep job.
func (s *RetryScheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("@daily", func() { s.sweep(ctx) }); err != nil {
		return err
	}
	s.cron.Start()

	s.ticker = time.NewTicker(s.tickInterval)
	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-s.ticker.C:
				s.tick(ctx)
			}
		}
	}()
	return nil
}

// Stop halts both the tick loop and the cron sweep, waiting for the
// current tick (if any) to finish.
func (s *RetryScheduler) Stop() {
	close(s.stop)
	if s.ticker != nil {
		s.ticker.Stop()
	}
	<-s.done
	s.cron.Stop()
}

func (s *RetryScheduler) tick(ctx context.Context) {
	now := time.Now().UTC()
	due, err := s.tasks.TasksToRetry(ctx, now)
	if err != nil {
		s.log.Error("retryScheduler: tasksToRetry failed", "error", err)
		return
	}

	for _, te := range due {
		if err := s.driveOne(ctx, te); err != nil {
			s.log.Error("retryScheduler: drive task failed", "taskExecutionId", te.ID, "error", err)
			s.mu.Lock()
			s.consecutiveFail[te.ID]++
			failures := s.consecutiveFail[te.ID]
			s.mu.Unlock()
			if failures >= 3 {
				s.log.Warn("retryScheduler: task failed 3 ticks in a row, forcing workflow-level recovery", "taskExecutionId", te.ID)
				s.engine.ExecuteWorkflow(ctx, te.WorkflowExecutionID)
				s.mu.Lock()
				delete(s.consecutiveFail, te.ID)
				s.mu.Unlock()
			}
			continue
		}
		s.mu.Lock()
		delete(s.consecutiveFail, te.ID)
		s.mu.Unlock()
	}
}

func (s *RetryScheduler) driveOne(ctx context.Context, te *TaskExecution) error {
	wf, err := s.workflows.GetByID(ctx, te.WorkflowExecutionID)
	if err != nil {
		return err
	}

	te.Status = TaskStatusPending
	te.StartedAt = nil
	te.CompletedAt = nil
	if err := s.tasks.persist(ctx, te); err != nil {
		return err
	}

	if wf.Status.IsTerminal() {
		return nil
	}
	s.engine.ExecuteWorkflow(ctx, wf.ID)
	return nil
}

func (s *RetryScheduler) sweep(ctx context.Context) {
	if s.pausedThreshold > 0 {
		threshold := time.Now().UTC().Add(-s.pausedThreshold)
		paused, err := s.workflows.FindPausedOlderThan(ctx, threshold)
		if err != nil {
			s.log.Error("retryScheduler: findPausedOlderThan failed", "error", err)
		} else {
			for _, wf := range paused {
				s.log.Warn("retryScheduler: workflow paused/awaiting review beyond threshold", "workflowExecutionId", wf.ID, "status", wf.Status)
			}
		}
		reviewing, err := s.workflows.ListByStatus(ctx, WorkflowStatusAwaitingUserReview)
		if err != nil {
			s.log.Error("retryScheduler: list awaiting-review workflows failed", "error", err)
		} else {
			for _, wf := range reviewing {
				if wf.StartedAt != nil && wf.StartedAt.Before(threshold) {
					s.log.Warn("retryScheduler: workflow paused/awaiting review beyond threshold", "workflowExecutionId", wf.ID, "status", wf.Status)
				}
			}
		}
	}

	if s.retentionPeriod > 0 {
		cutoff := time.Now().UTC().Add(-s.retentionPeriod)
		old, err := s.workflows.FindCompletedOlderThan(ctx, cutoff)
		if err != nil {
			s.log.Error("retryScheduler: findCompletedOlderThan failed", "error", err)
			return
		}
		for _, wf := range old {
			if err := s.workflows.Delete(ctx, wf.ID); err != nil {
				s.log.Error("retryScheduler: purge failed", "workflowExecutionId", wf.ID, "error", err)
			}
		}
	}
}
