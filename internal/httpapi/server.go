// Package httpapi exposes the engine to hosts over HTTP.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/eca/internal/compiler"
	"github.com/roach88/eca/internal/index"
	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/store"
)

// maxBodyBytes bounds event payloads and model uploads.
const maxBodyBytes = 1 << 20

// Engine is the engine surface the server drives.
type Engine interface {
	Dispatch(ctx context.Context, hostEventID string, payload map[string]any) []ir.InvocationReport
	RebuildIndex(ctx context.Context) error
	Index() *index.Index
}

// Server serves the HTTP API.
type Server struct {
	engine   Engine
	models   store.ModelStore
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

type Option func(*Server)

// WithModelStore enables the /v1/models routes.
func WithModelStore(s store.ModelStore) Option {
	return func(srv *Server) { srv.models = s }
}

// WithGatherer serves /metrics from g.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(srv *Server) { srv.gatherer = g }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.logger = l }
}

// NewServer creates a server for engine.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.health)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/events/{event}", s.dispatch)
		r.Get("/index", s.getIndex)
		r.Post("/index/rebuild", s.rebuild)
		if s.models != nil {
			r.Get("/models", s.listModels)
			r.Post("/models", s.putModel)
			r.Get("/models/{id}", s.getModel)
			r.Put("/models/{id}/status", s.setStatus)
			r.Delete("/models/{id}", s.deleteModel)
		}
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": ir.EngineVersion})
}

// DispatchResponse is the body returned for a fired event.
type DispatchResponse struct {
	Event   string                `json:"event"`
	Reports []ir.InvocationReport `json:"reports"`
}

// dispatch fires the event named in the path. The request body, if any,
// is a JSON object used as the event payload.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	event := chi.URLParam(r, "event")
	payload, err := decodePayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}
	reports := s.engine.Dispatch(r.Context(), event, payload)
	writeJSON(w, http.StatusOK, DispatchResponse{Event: event, Reports: reports})
}

func decodePayload(r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, errors.New("payload must be a JSON object")
	}
	return payload, nil
}

// IndexResponse describes the current index snapshot.
type IndexResponse struct {
	Generation int64           `json:"generation"`
	Digest     string          `json:"digest"`
	Models     []string        `json:"models"`
	Entries    []ir.IndexEntry `json:"entries"`
}

func (s *Server) getIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Index().Current(r.Context())
	writeJSON(w, http.StatusOK, IndexResponse{
		Generation: snap.Generation,
		Digest:     snap.Digest(),
		Models:     snap.Models(),
		Entries:    snap.Entries(),
	})
}

func (s *Server) rebuild(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RebuildIndex(r.Context()); err != nil {
		s.logger.Error("index rebuild requested over http failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "rebuild_failed", err.Error())
		return
	}
	s.getIndex(w, r)
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	records, err := s.models.ListModels(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) getModel(w http.ResponseWriter, r *http.Request) {
	raw, err := s.models.GetModel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

// putModel stores a model given as JSON or YAML. The index is rebuilt
// lazily through the store's change notification.
func (s *Server) putModel(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_model", err.Error())
		return
	}
	name := "model.json"
	if ct := r.Header.Get("Content-Type"); ct == "application/yaml" || ct == "application/x-yaml" {
		name = "model.yaml"
	}
	models, err := compiler.ParseBytes(name, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_model", err.Error())
		return
	}
	if len(models) != 1 {
		writeError(w, http.StatusBadRequest, "invalid_model", "expected exactly one model")
		return
	}
	changed, err := s.models.PutModel(r.Context(), models[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_model", err.Error())
		return
	}
	status := http.StatusOK
	if changed {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"id": models[0].ID, "changed": changed})
}

func (s *Server) setStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status ir.Status `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_status", "body must be {\"status\": ...}")
		return
	}
	if body.Status != ir.StatusEnabled && body.Status != ir.StatusDisabled {
		writeError(w, http.StatusBadRequest, "invalid_status", "status must be enabled or disabled")
		return
	}
	if err := s.models.SetStatus(r.Context(), chi.URLParam(r, "id"), body.Status); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteModel(w http.ResponseWriter, r *http.Request) {
	if err := s.models.DeleteModel(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if store.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "store_error", err.Error())
}

// ErrorBody is the body of every non-2xx response.
type ErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body ErrorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}
