package port

import (
	"time"

	"smelt/internal/domain"
)

// JobStore owns job rows from creation to purge. Implementations must keep
// per-job transitions atomic and monotonic: a guarded update that observes a
// job outside the expected source status leaves it untouched.
type JobStore interface {
	Create(job *domain.Job) error
	Get(id string) (*domain.Job, error)

	// CountBacklog returns the number of queued jobs.
	CountBacklog() (int, error)

	// Claim atomically moves the oldest queued job to running and returns
	// it. Returns (nil, nil) when the queue is empty.
	Claim() (*domain.Job, error)

	// MarkSucceeded records the artifact on a running job.
	MarkSucceeded(id string, artifact domain.Artifact) error

	// MarkFailed moves a queued or running job to failed with the given
	// classification.
	MarkFailed(id string, kind domain.FailureKind, detail string) error

	// CancelQueued fails a job with kind Cancelled only if it is still
	// queued, reporting whether the job was claimed by this call.
	CancelQueued(id string) (bool, error)

	// ResetStalled re-queues jobs left running by a previous process.
	ResetStalled() error

	// ListExpired returns terminal jobs whose completion is older than ttl.
	ListExpired(ttl time.Duration) ([]*domain.Job, error)

	// Delete removes the job row. Subsequent reads return ErrNotFound.
	Delete(id string) error

	Close() error
}
