package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"smelt/internal/domain"
	"smelt/internal/service"
)

// keepAliveInterval keeps idle SSE connections open through proxies.
const keepAliveInterval = 15 * time.Second

// SSEHandler streams job status transitions as server-sent events with JSON
// payloads, so clients can follow a job without polling.
type SSEHandler struct {
	bus  *service.EventBus
	jobs JobService
}

func NewSSEHandler(bus *service.EventBus, jobs JobService) *SSEHandler {
	return &SSEHandler{
		bus:  bus,
		jobs: jobs,
	}
}

func sseWrite(w http.ResponseWriter, event service.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func sseKeepAlive(w http.ResponseWriter) {
	_, _ = fmt.Fprint(w, ": keep-alive\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func eventFromJob(job *domain.Job) service.Event {
	return service.Event{
		Status:  string(job.Status),
		Kind:    string(job.FailureKind),
		Message: job.ErrorMessage,
	}
}

func (h *SSEHandler) Events() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		// Subscribe before reading the snapshot: a transition published
		// between the two is buffered on the channel instead of lost.
		ch := h.bus.Subscribe(id)
		defer h.bus.Unsubscribe(id, ch)

		job, err := h.jobs.Get(id)
		if err != nil {
			writeNotFoundOrInternal(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		sseWrite(w, eventFromJob(job))
		if job.Status.Terminal() {
			return
		}

		ctx := r.Context()
		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-keepAlive.C:
				sseKeepAlive(w)
			case event, ok := <-ch:
				if !ok {
					return
				}
				sseWrite(w, event)
				if domain.JobStatus(event.Status).Terminal() {
					return
				}
			}
		}
	}
}
