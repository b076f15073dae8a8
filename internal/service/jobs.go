package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sethvargo/go-retry"

	"smelt/internal/domain"
	"smelt/internal/infrastructure/logger"
	"smelt/internal/port"
)

// errCancelPending marks a cancel request that found its job running but not
// yet registered in the cancel registry.
var errCancelPending = errors.New("cancel signal not yet deliverable")

// Jobs is the submission-side service: it owns job creation, reads, cancel
// requests and retention cleanup. Processing itself belongs to the worker
// pool.
type Jobs struct {
	store         port.JobStore
	bus           *EventBus
	cancels       *CancelRegistry
	queueCapacity int
	retention     time.Duration
	uploadDir     string
}

func NewJobs(store port.JobStore, bus *EventBus, cancels *CancelRegistry, queueCapacity int, retention time.Duration, dataDir string) *Jobs {
	return &Jobs{
		store:         store,
		bus:           bus,
		cancels:       cancels,
		queueCapacity: queueCapacity,
		retention:     retention,
		uploadDir:     filepath.Join(dataDir, "uploads"),
	}
}

// Submit takes ownership of the uploaded temp file, moving it into the
// upload directory and enqueueing a job for it. The temp file is removed on
// every error path.
func (s *Jobs) Submit(originalName string, upload *os.File, size int64, kind domain.MediaKind, profile domain.Profile) (*domain.Job, error) {
	// The backlog count and the insert are separate operations, so
	// concurrent submits can overshoot the capacity by a few jobs: the
	// bound is a soft admission limit, not a hard invariant.
	backlog, err := s.store.CountBacklog()
	if err != nil {
		_ = os.Remove(upload.Name())
		return nil, fmt.Errorf("count backlog: %w", err)
	}
	if backlog >= s.queueCapacity {
		_ = os.Remove(upload.Name())
		return nil, domain.NewFailure(domain.FailureQueueFull,
			"queue holds %d jobs, capacity is %d", backlog, s.queueCapacity)
	}

	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		_ = os.Remove(upload.Name())
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	job := domain.NewJob(originalName, "", size, kind, profile)
	inputPath := filepath.Join(s.uploadDir, job.ID+filepath.Ext(originalName))
	if err := moveFile(upload.Name(), inputPath); err != nil {
		_ = os.Remove(upload.Name())
		return nil, fmt.Errorf("store upload: %w", err)
	}
	job.InputPath = inputPath

	if err := s.store.Create(job); err != nil {
		_ = os.Remove(inputPath)
		return nil, fmt.Errorf("create job: %w", err)
	}

	logger.Info.Printf("job %s queued: name=%s size=%s kind=%s codec=%s",
		job.ID, logger.Sanitize(originalName), humanize.IBytes(uint64(size)), job.Kind, job.Profile.Codec)
	return job, nil
}

func (s *Jobs) Get(id string) (*domain.Job, error) {
	return s.store.Get(id)
}

// Cancel requests cancellation. Terminal jobs are a no-op; queued jobs fail
// immediately with kind Cancelled; running jobs are signalled and reach
// failed/Cancelled once the pipeline observes the signal.
func (s *Jobs) Cancel(id string) (*domain.Job, error) {
	job, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}

	claimed, err := s.store.CancelQueued(id)
	if err != nil {
		return nil, err
	}
	if claimed {
		s.bus.Publish(id, Event{Status: string(domain.JobStatusFailed), Kind: string(domain.FailureCancelled)})
		logger.Info.Printf("job %s cancelled while queued", id)
		return s.store.Get(id)
	}

	if s.cancels.Cancel(id) {
		logger.Info.Printf("job %s cancel signalled while running", id)
		return s.store.Get(id)
	}

	// A worker that has just claimed the job registers its cancel func a
	// moment later; retry the lookup before treating the cancel as lost.
	backoff := retry.WithMaxRetries(5, retry.NewConstant(50*time.Millisecond))
	retryErr := retry.Do(context.Background(), backoff, func(context.Context) error {
		cur, getErr := s.store.Get(id)
		if getErr != nil {
			return getErr
		}
		if cur.Status.Terminal() {
			return nil
		}
		if s.cancels.Cancel(id) {
			logger.Info.Printf("job %s cancel signalled while running", id)
			return nil
		}
		return retry.RetryableError(errCancelPending)
	})
	if retryErr != nil {
		logger.Warn.Printf("job %s: %v", id, retryErr)
	}
	return s.store.Get(id)
}

// Cleanup purges terminal jobs past the retention window together with their
// input and artifact files. The row goes first so concurrent readers see
// NotFound rather than a job pointing at deleted files.
func (s *Jobs) Cleanup() error {
	expired, err := s.store.ListExpired(s.retention)
	if err != nil {
		return err
	}

	for _, job := range expired {
		if err := s.store.Delete(job.ID); err != nil {
			logger.Error.Printf("purge %s: delete row: %v", job.ID, err)
			continue
		}
		if job.InputPath != "" {
			_ = os.Remove(job.InputPath)
		}
		if job.Artifact != nil && job.Artifact.Path != "" {
			_ = os.Remove(job.Artifact.Path)
		}
		logger.Info.Printf("job %s purged after retention window", job.ID)
	}
	return nil
}

// moveFile renames src to dst, falling back to copy+remove when the rename
// crosses filesystems (temp dir on tmpfs, data dir on a volume).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
