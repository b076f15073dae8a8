package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smelt/internal/domain"
	"smelt/internal/service"
)

func TestEvents_TerminalSnapshotClosesStream(t *testing.T) {
	job := queuedJob(t)
	job.Status = domain.JobStatusSucceeded
	jobs := &fakeJobService{
		getFn: func(string) (*domain.Job, error) { return job, nil },
	}
	server := newTestServer(jobs, 1<<20)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID+"/events", nil))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "event: status")
	assert.Contains(t, body, `"status":"succeeded"`)
	// Exactly one event: the terminal snapshot ends the stream.
	assert.Equal(t, 1, strings.Count(body, "event: status"))
}

func TestEvents_UnknownJob(t *testing.T) {
	jobs := &fakeJobService{
		getFn: func(string) (*domain.Job, error) { return nil, domain.ErrNotFound },
	}
	server := newTestServer(jobs, 1<<20)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/missing/events", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvents_TransitionDuringSnapshotNotLost(t *testing.T) {
	job := queuedJob(t)
	job.Status = domain.JobStatusRunning
	bus := service.NewEventBus()
	jobs := &fakeJobService{
		getFn: func(string) (*domain.Job, error) {
			// The job reaches terminal while the snapshot is being read.
			bus.Publish(job.ID, service.Event{Status: string(domain.JobStatusSucceeded)})
			return job, nil
		},
	}
	server := NewServer(jobs, bus, 1<<20)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID+"/events", nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		server.ServeHTTP(rec, req)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after terminal transition")
	}

	body := rec.Body.String()
	assert.Contains(t, body, `"status":"running"`)
	assert.Contains(t, body, `"status":"succeeded"`)
}

func TestEvents_StreamsUntilTerminal(t *testing.T) {
	job := queuedJob(t)
	jobs := &fakeJobService{
		getFn: func(string) (*domain.Job, error) { return job, nil },
	}
	bus := service.NewEventBus()
	server := NewServer(jobs, bus, 1<<20)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID+"/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		server.ServeHTTP(rec, req)
	}()

	// Give the handler time to subscribe, then walk the job to terminal.
	time.Sleep(50 * time.Millisecond)
	bus.Publish(job.ID, service.Event{Status: string(domain.JobStatusRunning)})
	bus.Publish(job.ID, service.Event{Status: string(domain.JobStatusSucceeded)})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not close after terminal event")
	}

	body := rec.Body.String()
	require.Contains(t, body, `"status":"queued"`)
	assert.Contains(t, body, `"status":"running"`)
	assert.Contains(t, body, `"status":"succeeded"`)
	assert.Equal(t, 3, strings.Count(body, "event: status"))
}
