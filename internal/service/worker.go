package service

import (
	"context"
	"sync"
	"time"

	"smelt/internal/domain"
	"smelt/internal/infrastructure/logger"
	"smelt/internal/port"
)

// claimPollInterval is how long an idle worker waits before polling the
// queue again.
const claimPollInterval = 500 * time.Millisecond

// WorkerPool runs the transcode pipeline over claimed jobs. Each worker
// goroutine is one worker slot: at most `slots` jobs are running at any
// moment, regardless of how many requests the HTTP layer serves.
type WorkerPool struct {
	store      port.JobStore
	pipeline   *Pipeline
	bus        *EventBus
	cancels    *CancelRegistry
	slots      int
	jobTimeout time.Duration
	wg         sync.WaitGroup
}

func NewWorkerPool(store port.JobStore, pipeline *Pipeline, bus *EventBus, cancels *CancelRegistry, slots int, jobTimeout time.Duration) *WorkerPool {
	return &WorkerPool{
		store:      store,
		pipeline:   pipeline,
		bus:        bus,
		cancels:    cancels,
		slots:      slots,
		jobTimeout: jobTimeout,
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	// Jobs left running by a previous process would hold their slot
	// forever; requeue them before claiming anything.
	if err := wp.store.ResetStalled(); err != nil {
		logger.Error.Printf("failed to reset stalled jobs: %v", err)
	}

	for i := range wp.slots {
		wp.wg.Add(1)
		go wp.runWorker(ctx, i)
	}
	logger.Info.Printf("started %d worker slots", wp.slots)
}

// Wait blocks until all workers have exited after their context is done.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) runWorker(ctx context.Context, id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			logger.Info.Printf("worker %d shutting down", id)
			return
		default:
		}

		job, err := wp.store.Claim()
		if err != nil {
			logger.Error.Printf("worker %d: claim failed: %v", id, err)
			sleepCtx(ctx, 2*time.Second)
			continue
		}
		if job == nil {
			sleepCtx(ctx, claimPollInterval)
			continue
		}

		logger.Info.Printf("worker %d: job %s running (kind=%s codec=%s attempt=%d)",
			id, job.ID, job.Kind, job.Profile.Codec, job.Attempts)
		wp.process(ctx, job)
	}
}

func (wp *WorkerPool) process(ctx context.Context, job *domain.Job) {
	jobCtx, cancel := context.WithTimeout(ctx, wp.jobTimeout)
	defer cancel()

	wp.cancels.Register(job.ID, cancel)
	defer wp.cancels.Unregister(job.ID)

	wp.bus.Publish(job.ID, Event{Status: string(domain.JobStatusRunning)})

	artifact, err := wp.pipeline.Run(jobCtx, job)
	if err != nil {
		failure := domain.AsFailure(err)
		if markErr := wp.store.MarkFailed(job.ID, failure.Kind, failure.Detail); markErr != nil {
			logger.Error.Printf("job %s: record failure: %v", job.ID, markErr)
		}
		wp.bus.Publish(job.ID, Event{
			Status:  string(domain.JobStatusFailed),
			Kind:    string(failure.Kind),
			Message: failure.Detail,
		})
		logger.Error.Printf("job %s failed: %s", job.ID, logger.Sanitize(failure.Error()))
		return
	}

	if err := wp.store.MarkSucceeded(job.ID, *artifact); err != nil {
		logger.Error.Printf("job %s: record success: %v", job.ID, err)
		return
	}
	wp.bus.Publish(job.ID, Event{Status: string(domain.JobStatusSucceeded)})
	logger.Info.Printf("job %s succeeded: %s %dx%d", job.ID, artifact.ContentType, artifact.Width, artifact.Height)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
