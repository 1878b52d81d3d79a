package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/modelforge/images"
	"github.com/projecteru2/modelforge/peer"
	"github.com/projecteru2/modelforge/types"
	"github.com/projecteru2/modelforge/workflow"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	maxRequestBytes   = 1 << 20

	mediaPrefix = "/media_content/"
)

// Server exposes a workflow.Controller over HTTP.
type Server struct {
	ctrl *workflow.Controller
	mux  *http.ServeMux
}

// New builds the route table for ctrl.
func New(ctrl *workflow.Controller) *Server {
	s := &Server{ctrl: ctrl, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("POST /auftrag", s.handleSubmitPlan)
	s.mux.HandleFunc("POST /reconstruction", s.handleStartReconstruction)
	s.mux.HandleFunc("DELETE /{$}", s.handleReset)
	s.mux.HandleFunc("GET /resulting_content", s.handleContent)
	s.mux.HandleFunc("GET "+mediaPrefix+"{name}", s.handleNamedContent)
	s.mux.Handle("GET /ws_notification", s.notificationHandler())
	return s
}

// Handler returns the HTTP handler with access logging.
func (s *Server) Handler() http.Handler {
	return accessLog(s.mux)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	logger := log.WithFunc("server.Serve")
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Infof(ctx, "listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type planRequest struct {
	URL    string     `json:"url"`
	Rounds types.Plan `json:"rounds"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status(r.Context()))
}

func (s *Server) handleSubmitPlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "decode request: " + err.Error()})
		return
	}
	if err := s.ctrl.SubmitPlan(r.Context(), req.URL, req.Rounds); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.ctrl.Status(r.Context()))
}

func (s *Server) handleStartReconstruction(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.StartReconstruction(r.Context()); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.ctrl.Status(r.Context()))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Reset(r.Context()); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	content, err := s.ctrl.Content(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if content.Archive != nil && r.URL.Query().Get("format") != "json" {
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", `attachment; filename="model.zip"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(content.Archive)
		return
	}
	body := contentBody{Content: content}
	for _, name := range content.Images {
		body.Refs = append(body.Refs, mediaPrefix+url.PathEscape(name))
	}
	writeJSON(w, http.StatusOK, body)
}

// contentBody adds fetchable references next to the image names.
type contentBody struct {
	workflow.Content
	Refs []string `json:"refs,omitempty"`
}

func (s *Server) handleNamedContent(w http.ResponseWriter, r *http.Request) {
	data, err := s.ctrl.NamedContent(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type errorBody struct {
	Error string `json:"error"`
}

// statusOf maps controller errors to HTTP status codes.
func statusOf(err error) int {
	var pe *peer.Error
	switch {
	case errors.Is(err, workflow.ErrInvalidPhase):
		return http.StatusConflict
	case errors.Is(err, images.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInvalidPlan), errors.Is(err, peer.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.As(err, &pe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		log.WithFunc("server.writeError").Warnf(ctx, "request failed: %v", err)
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
