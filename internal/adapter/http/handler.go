package http

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"smelt/internal/adapter/http/validation"
	"smelt/internal/domain"
	"smelt/internal/infrastructure/logger"
)

// multipartMemoryBytes caps the in-memory portion of multipart parsing;
// larger parts spill to temp files.
const multipartMemoryBytes = 32 << 20

// JobService is the slice of the job service the HTTP layer needs.
type JobService interface {
	Submit(originalName string, upload *os.File, size int64, kind domain.MediaKind, profile domain.Profile) (*domain.Job, error)
	Get(id string) (*domain.Job, error)
	Cancel(id string) (*domain.Job, error)
}

type Handlers struct {
	jobs           JobService
	maxUploadBytes int64
}

func NewHandlers(jobs JobService, maxUploadBytes int64) *Handlers {
	return &Handlers{
		jobs:           jobs,
		maxUploadBytes: maxUploadBytes,
	}
}

type errorBody struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

type jobResponse struct {
	JobID          string           `json:"job_id"`
	Status         string           `json:"status"`
	Kind           string           `json:"kind"`
	OriginalName   string           `json:"original_name"`
	InputSize      int64            `json:"input_size"`
	Profile        domain.Profile   `json:"profile"`
	Error          *errorBody       `json:"error,omitempty"`
	Artifact       *domain.Artifact `json:"artifact,omitempty"`
	SavingsPercent *float64         `json:"savings_percent,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
}

func toJobResponse(job *domain.Job) jobResponse {
	resp := jobResponse{
		JobID:        job.ID,
		Status:       string(job.Status),
		Kind:         string(job.Kind),
		OriginalName: job.OriginalName,
		InputSize:    job.InputSize,
		Profile:      job.Profile,
		Artifact:     job.Artifact,
		CreatedAt:    job.CreatedAt,
	}
	if job.Status == domain.JobStatusFailed {
		resp.Error = &errorBody{Kind: string(job.FailureKind), Detail: job.ErrorMessage}
	}
	if job.Status == domain.JobStatusSucceeded && job.Artifact != nil && job.InputSize > 0 {
		s := math.Round((1-float64(job.Artifact.Size)/float64(job.InputSize))*1000) / 10
		resp.SavingsPercent = &s
	}
	if job.StartedAt.Valid {
		t := job.StartedAt.Time
		resp.StartedAt = &t
	}
	if job.CompletedAt.Valid {
		t := job.CompletedAt.Time
		resp.CompletedAt = &t
	}
	return resp
}

// Submit accepts a media payload plus profile parameters and enqueues a job.
// Malformed and oversized input is rejected here, before any job exists.
func (h *Handlers) Submit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

		if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
			if isBodyTooLarge(err) {
				writeFailure(w, domain.NewFailure(domain.FailurePayloadTooLarge,
					"payload exceeds the configured cap"))
				return
			}
			writeError(w, http.StatusBadRequest, "invalid_request", "malformed multipart body")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "missing file field")
			return
		}
		defer file.Close() //nolint:errcheck

		profile, err := profileFromForm(r)
		if err != nil {
			writeFailure(w, domain.AsFailure(err))
			return
		}

		tmp, err := os.CreateTemp("", "smelt-upload-*")
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "failed to buffer upload")
			return
		}
		defer tmp.Close() //nolint:errcheck

		size, err := io.Copy(tmp, file)
		if err != nil {
			_ = os.Remove(tmp.Name())
			if isBodyTooLarge(err) {
				writeFailure(w, domain.NewFailure(domain.FailurePayloadTooLarge,
					"payload exceeds the configured cap"))
				return
			}
			writeError(w, http.StatusInternalServerError, "internal", "failed to buffer upload")
			return
		}

		name := validation.SanitizeFilename(header.Filename)
		kind, ok := detectKind(name, tmp)
		if !ok {
			_ = os.Remove(tmp.Name())
			writeFailure(w, domain.NewFailure(domain.FailureUnsupportedFormat,
				"cannot classify %q as image, audio or video", name))
			return
		}
		if !profile.CompatibleWith(kind) {
			_ = os.Remove(tmp.Name())
			writeFailure(w, domain.NewFailure(domain.FailureUnsupportedFormat,
				"codec %q cannot be produced from %s input", string(profile.Codec), kind))
			return
		}

		job, err := h.jobs.Submit(name, tmp, size, kind, profile)
		if err != nil {
			var failure *domain.Failure
			if errors.As(err, &failure) {
				writeFailure(w, failure)
				return
			}
			logger.Error.Printf("submit %s: %v", logger.Sanitize(name), err)
			writeError(w, http.StatusInternalServerError, "internal", "submission failed")
			return
		}

		writeJSON(w, http.StatusAccepted, toJobResponse(job))
	}
}

func (h *Handlers) Status() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.jobs.Get(r.PathValue("id"))
		if err != nil {
			writeNotFoundOrInternal(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toJobResponse(job))
	}
}

// Result serves the artifact of a succeeded job. Non-terminal jobs answer
// 409 so pollers can tell "not yet" from "never"; failed jobs answer with
// their recorded failure kind and detail.
func (h *Handlers) Result() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.jobs.Get(r.PathValue("id"))
		if err != nil {
			writeNotFoundOrInternal(w, err)
			return
		}

		switch job.Status {
		case domain.JobStatusQueued, domain.JobStatusRunning:
			writeJSON(w, http.StatusConflict, map[string]string{
				"status": string(job.Status),
				"detail": "job has not finished",
			})
		case domain.JobStatusFailed:
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"status": string(job.Status),
				"error":  errorBody{Kind: string(job.FailureKind), Detail: job.ErrorMessage},
			})
		case domain.JobStatusSucceeded:
			if job.Artifact == nil || job.Artifact.Path == "" {
				writeError(w, http.StatusInternalServerError, "internal", "artifact missing")
				return
			}
			w.Header().Set("Content-Type", job.Artifact.ContentType)
			w.Header().Set("Content-Disposition",
				validation.ContentDisposition(artifactFilename(job), false))
			http.ServeFile(w, r, job.Artifact.Path)
		}
	}
}

func (h *Handlers) Cancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.jobs.Cancel(r.PathValue("id"))
		if err != nil {
			writeNotFoundOrInternal(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, toJobResponse(job))
	}
}

func (h *Handlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func profileFromForm(r *http.Request) (domain.Profile, error) {
	profile := domain.Profile{
		Codec:        domain.Codec(r.FormValue("codec")),
		Preset:       domain.Preset(r.FormValue("preset")),
		AudioBitrate: r.FormValue("audio_bitrate"),
	}
	for _, f := range []struct {
		field string
		dst   *int
	}{
		{"quality", &profile.Quality},
		{"scale", &profile.ScalePercent},
		{"max_width", &profile.MaxWidth},
		{"max_height", &profile.MaxHeight},
	} {
		raw := r.FormValue(f.field)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return profile, domain.NewFailure(domain.FailureUnsupportedFormat,
				"field %q is not a number", f.field)
		}
		*f.dst = n
	}
	if err := profile.Normalize(); err != nil {
		return profile, err
	}
	return profile, nil
}

// detectKind classifies the upload by filename and, failing that, by
// sniffing the leading bytes of the buffered file.
func detectKind(name string, tmp *os.File) (domain.MediaKind, bool) {
	head := make([]byte, 512)
	n, _ := tmp.ReadAt(head, 0)
	return domain.DetectMediaKind(name, head[:n])
}

func artifactFilename(job *domain.Job) string {
	name := job.OriginalName
	return strings.TrimSuffix(name, filepath.Ext(name)) + job.Profile.Codec.Ext()
}

func isBodyTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, kind, detail string) {
	writeJSON(w, status, map[string]any{"error": errorBody{Kind: kind, Detail: detail}})
}

// writeFailure maps submit-time failure kinds onto HTTP status codes.
func writeFailure(w http.ResponseWriter, f *domain.Failure) {
	status := http.StatusInternalServerError
	switch f.Kind {
	case domain.FailurePayloadTooLarge:
		status = http.StatusRequestEntityTooLarge
	case domain.FailureQueueFull:
		status = http.StatusTooManyRequests
	case domain.FailureUnsupportedFormat:
		status = http.StatusUnsupportedMediaType
	case domain.FailureCorruptInput:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]any{"error": errorBody{Kind: string(f.Kind), Detail: f.Detail}})
}

func writeNotFoundOrInternal(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no such job")
		return
	}
	logger.Error.Printf("job lookup: %v", err)
	writeError(w, http.StatusInternalServerError, "internal", "lookup failed")
}
