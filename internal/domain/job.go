package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether a status ends the job lifecycle.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// ValidTransition enforces the monotonic job state machine:
// queued -> running -> {succeeded, failed}, plus the direct
// queued -> failed edge taken when a queued job is cancelled.
func ValidTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusQueued:
		return to == JobStatusRunning || to == JobStatusFailed
	case JobStatusRunning:
		return to == JobStatusSucceeded || to == JobStatusFailed
	default:
		return false
	}
}

// Artifact is the produced output of a succeeded job. Immutable once written.
type Artifact struct {
	Path        string  `json:"-"`
	ContentType string  `json:"content_type"`
	Size        int64   `json:"size"`
	Width       int     `json:"width,omitempty"`
	Height      int     `json:"height,omitempty"`
	Duration    float64 `json:"duration,omitempty"`
}

// Job tracks a single transcode request from submission to terminal state.
type Job struct {
	ID           string
	OriginalName string
	InputPath    string
	InputSize    int64
	Kind         MediaKind
	Profile      Profile
	Status       JobStatus
	FailureKind  FailureKind
	ErrorMessage string
	Artifact     *Artifact
	Attempts     int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    sql.NullTime
	CompletedAt  sql.NullTime
}

func NewJob(originalName, inputPath string, inputSize int64, kind MediaKind, profile Profile) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:           uuid.NewString(),
		OriginalName: originalName,
		InputPath:    inputPath,
		InputSize:    inputSize,
		Kind:         kind,
		Profile:      profile,
		Status:       JobStatusQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
