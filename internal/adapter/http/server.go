package http

import (
	"net/http"

	"smelt/internal/adapter/http/middleware"
	"smelt/internal/service"
)

// Server is the HTTP surface: submit, status, result, cancel, event stream.
type Server struct {
	mux        *http.ServeMux
	handlers   *Handlers
	sseHandler *SSEHandler
}

func NewServer(jobs JobService, bus *service.EventBus, maxUploadBytes int64) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		handlers:   NewHandlers(jobs, maxUploadBytes),
		sseHandler: NewSSEHandler(bus, jobs),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /jobs", s.handlers.Submit())
	s.mux.HandleFunc("GET /jobs/{id}", s.handlers.Status())
	s.mux.HandleFunc("GET /jobs/{id}/result", s.handlers.Result())
	s.mux.HandleFunc("GET /jobs/{id}/events", s.sseHandler.Events())
	s.mux.HandleFunc("DELETE /jobs/{id}", s.handlers.Cancel())
	s.mux.HandleFunc("GET /healthz", s.handlers.Health())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	middleware.SecurityHeaders(s.mux).ServeHTTP(w, r)
}
