package service

import (
	"context"
	"time"

	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/registry"
	"github.com/storyreel/api/pkg/logger"
)

// CycleStats summarizes one reconciliation pass.
type CycleStats struct {
	Scanned       int
	Recovered     int
	Failed        int
	TimedOut      int
	Skipped       int
	EntityRetries int
}

// Sweeper detects jobs stuck in processing past an age threshold and
// attempts webhook-independent recovery: first a cheap artifact-existence
// probe against the processor's deterministic output location, then a
// direct status poll, and finally a timeout backstop. Every result is
// routed through the same idempotent applier a webhook would reach, so a
// sweep racing an in-flight webhook is safe without locking the registry.
type Sweeper struct {
	jobs    registry.JobStore
	clients map[model.ProcessorFamily]client.ProcessorClient
	prober  client.ArtifactProber
	applier *Applier

	staleThreshold time.Duration
	abandonAfter   time.Duration

	now func() time.Time
}

// NewSweeper creates a sweeper. staleThreshold is the age past which a
// processing job is examined at all; abandonAfter is the backstop past
// which an unresolvable job is failed as timed out.
func NewSweeper(jobs registry.JobStore, clients map[model.ProcessorFamily]client.ProcessorClient, prober client.ArtifactProber, applier *Applier, staleThreshold, abandonAfter time.Duration) *Sweeper {
	return &Sweeper{
		jobs:           jobs,
		clients:        clients,
		prober:         prober,
		applier:        applier,
		staleThreshold: staleThreshold,
		abandonAfter:   abandonAfter,
		now:            time.Now,
	}
}

// RunCycle executes one reconciliation pass. A crash mid-cycle is harmless;
// every mutation goes through the applier and the next cycle starts from
// the registry's current state.
func (s *Sweeper) RunCycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats

	jobs, err := s.jobs.ListProcessing(ctx)
	if err != nil {
		return stats, err
	}

	now := s.now()
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		stats.Scanned++
		if job.Age(now) < s.staleThreshold {
			stats.Skipped++
			continue
		}

		switch s.reconcile(ctx, job, now) {
		case model.OutcomeCompleted:
			stats.Recovered++
		case model.OutcomeFailed:
			if job.Age(now) >= s.abandonAfter {
				stats.TimedOut++
			} else {
				stats.Failed++
			}
		default:
			stats.Skipped++
		}
	}

	stats.EntityRetries = s.retryEntityWrites(ctx)

	logger.Infof("Sweep cycle: scanned=%d recovered=%d failed=%d timed_out=%d skipped=%d entity_retries=%d",
		stats.Scanned, stats.Recovered, stats.Failed, stats.TimedOut, stats.Skipped, stats.EntityRetries)
	return stats, nil
}

// retryEntityWrites replays completed jobs whose entity update failed on
// first application. The applier's terminal-replay path performs the write
// without re-running the completion transition.
func (s *Sweeper) retryEntityWrites(ctx context.Context) int {
	jobs, err := s.jobs.ListPendingEntityWrites(ctx)
	if err != nil {
		logger.Warnf("Sweep: failed to scan pending entity writes: %v", err)
		return 0
	}

	retried := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			return retried
		}
		if _, err := s.applier.Apply(ctx, job, &model.CompletionEvent{
			Outcome:     model.OutcomeCompleted,
			OutputURL:   job.OutputURL,
			SourceJobID: job.ID,
		}); err != nil {
			logger.Warnf("Sweep: entity write retry for job %s failed: %v", job.ID, err)
			continue
		}
		retried++
	}
	return retried
}

// reconcile attempts recovery of one stale job and reports which outcome, if
// any, was applied.
func (s *Sweeper) reconcile(ctx context.Context, job *model.Job, now time.Time) model.Outcome {
	// Cheapest first: does the deterministic artifact already exist?
	if job.ExternalTaskID != "" {
		if proc, ok := s.clients[job.Processor()]; ok {
			artifactURL := proc.ArtifactURL(job.ExternalTaskID)
			if artifactURL != "" {
				exists, err := s.prober.Exists(ctx, artifactURL)
				if err != nil {
					logger.Warnf("Sweep: artifact probe for job %s failed: %v", job.ID, err)
				} else if exists {
					logger.Infof("Sweep: job %s artifact found at %s, recovering", job.ID, artifactURL)
					return s.apply(ctx, job, &model.CompletionEvent{
						Outcome:     model.OutcomeCompleted,
						OutputURL:   artifactURL,
						SourceJobID: job.ID,
					})
				}
			}

			// No artifact; ask the processor directly.
			status, err := proc.GetTaskStatus(ctx, job.ExternalTaskID)
			if err != nil {
				logger.Warnf("Sweep: status poll for job %s failed: %v", job.ID, err)
			} else {
				switch {
				case status.Completed():
					outputURL := status.OutputURL
					if outputURL == "" {
						outputURL = artifactURL
					}
					return s.apply(ctx, job, &model.CompletionEvent{
						Outcome:     model.OutcomeCompleted,
						OutputURL:   outputURL,
						SourceJobID: job.ID,
					})
				case status.Failed():
					msg := status.Error
					if msg == "" {
						msg = "processor reported task " + status.Status
					}
					return s.apply(ctx, job, &model.CompletionEvent{
						Outcome:      model.OutcomeFailed,
						ErrorMessage: msg,
						SourceJobID:  job.ID,
					})
				default:
					// Still queued or running; leave it for this cycle.
					return model.OutcomeIndeterminate
				}
			}
		}
	}

	// Neither probe nor poll resolved the job. Past the long threshold this
	// is the backstop against silently lost work.
	if job.Age(now) >= s.abandonAfter {
		logger.Warnf("Sweep: job %s unresolvable after %s, timing out", job.ID, job.Age(now))
		return s.apply(ctx, job, &model.CompletionEvent{
			Outcome:      model.OutcomeFailed,
			ErrorMessage: "timed out waiting for processor completion",
			SourceJobID:  job.ID,
		})
	}
	return model.OutcomeIndeterminate
}

func (s *Sweeper) apply(ctx context.Context, job *model.Job, event *model.CompletionEvent) model.Outcome {
	if _, err := s.applier.Apply(ctx, job, event); err != nil {
		logger.Errorf("Sweep: failed to apply %s event to job %s: %v", event.Outcome, job.ID, err)
		return model.OutcomeIndeterminate
	}
	return event.Outcome
}
