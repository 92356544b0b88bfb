package worker

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/storyreel/api/internal/service"
	"github.com/storyreel/api/pkg/logger"
)

// TaskTypeSweep is the asynq task type for one reconciliation cycle.
const TaskTypeSweep = "reconcile:sweep"

// SweepWorker runs reconciliation cycles off the asynq queue. The scheduler
// enqueues one task per interval; a missed or crashed cycle is simply
// superseded by the next.
type SweepWorker struct {
	sweeper *service.Sweeper
}

// NewSweepWorker creates a new sweep worker
func NewSweepWorker(sweeper *service.Sweeper) *SweepWorker {
	return &SweepWorker{sweeper: sweeper}
}

// ProcessTask handles one reconcile:sweep task
func (w *SweepWorker) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	stats, err := w.sweeper.RunCycle(ctx)
	if err != nil {
		logger.Errorf("Sweep cycle aborted: %v", err)
		return err
	}
	if stats.Recovered+stats.Failed+stats.TimedOut > 0 {
		logger.Infof("Sweep repaired %d jobs (%d recovered, %d failed, %d timed out)",
			stats.Recovered+stats.Failed+stats.TimedOut, stats.Recovered, stats.Failed, stats.TimedOut)
	}
	return nil
}

// NewSweepTask builds the periodic sweep task.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSweep, nil)
}
