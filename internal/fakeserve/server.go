// Package fakeserve implements the serving process's REST surface in-process:
// health, management (register/list/unregister) and predictions. It backs dry
// runs and the stub command.
package fakeserve

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"servecheck/pkg/types"
)

// maxBodyBytes bounds prediction payloads.
const maxBodyBytes int64 = 64 << 20

// Options customize the stub's behavior.
type Options struct {
	// ServedName maps an archive URL to the name it is served under.
	// Defaults to the archive's base name without ".mar".
	ServedName func(archiveURL string) string
	// Predict answers one prediction. Defaults to 200 with a small JSON summary.
	Predict func(model string, body []byte) (int, []byte)
	// RegisterStatus and UnregisterStatus, when nonzero, force the management
	// API to answer those calls with the given status.
	RegisterStatus   int
	UnregisterStatus int
	Log              zerolog.Logger
}

// Prediction records one prediction request.
type Prediction struct {
	Model  string
	Bytes  int
	Status int
}

type model struct {
	url            string
	initialWorkers string
	batchSize      string
}

// Server holds the stub's registered models and request history.
type Server struct {
	opts Options

	mu          sync.Mutex
	models      map[string]model
	predictions []Prediction
}

// New constructs a Server.
func New(opts Options) *Server {
	if opts.ServedName == nil {
		opts.ServedName = DefaultServedName
	}
	if opts.Predict == nil {
		opts.Predict = defaultPredict
	}
	return &Server{opts: opts, models: map[string]model{}}
}

// DefaultServedName strips any directory and the ".mar" suffix.
func DefaultServedName(archiveURL string) string {
	base := archiveURL
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	return strings.TrimSuffix(base, ".mar")
}

func defaultPredict(model string, body []byte) (int, []byte) {
	b, _ := json.Marshal(map[string]any{"model": model, "bytes": len(body)})
	return http.StatusOK, b
}

// Reset drops every registration, as a restarted server would.
func (s *Server) Reset() {
	s.mu.Lock()
	s.models = map[string]model{}
	s.mu.Unlock()
	registeredModels.Set(0)
}

// Models lists registrations sorted by name.
func (s *Server) Models() []types.ModelEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ModelEntry, 0, len(s.models))
	for name, m := range s.models {
		out = append(out, types.ModelEntry{ModelName: name, ModelURL: m.url})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelName < out[j].ModelName })
	return out
}

// Predictions returns the recorded prediction requests in arrival order.
func (s *Server) Predictions() []Prediction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Prediction(nil), s.predictions...)
}

// InferenceHandler serves /ping and /predictions/{name}.
func (s *Server) InferenceHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(accessLog(s.opts.Log))
	r.Use(metricsMiddleware)
	r.Get("/ping", s.handlePing)
	r.Post("/predictions/{name}", s.handlePredict)
	return r
}

// ManagementHandler serves /models.
func (s *Server) ManagementHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(accessLog(s.opts.Log))
	r.Use(metricsMiddleware)
	r.Post("/models", s.handleRegister)
	r.Get("/models", s.handleList)
	r.Get("/models/", s.handleList)
	r.Delete("/models/{name}", s.handleUnregister)
	return r
}

// MetricsHandler exposes the process's Prometheus metrics.
func (s *Server) MetricsHandler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, types.StatusResponse{Status: "Healthy"})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.mu.Lock()
	_, ok := s.models[name]
	s.mu.Unlock()
	if !ok {
		s.record(name, 0, http.StatusNotFound)
		writeError(w, http.StatusNotFound, "ModelNotFoundException", fmt.Sprintf("Model not found: %s", name))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.record(name, 0, http.StatusRequestEntityTooLarge)
		writeError(w, http.StatusRequestEntityTooLarge, "BadRequestException", err.Error())
		return
	}
	status, out := s.opts.Predict(name, body)
	s.record(name, len(body), status)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(out)
}

func (s *Server) record(name string, n, status int) {
	s.mu.Lock()
	s.predictions = append(s.predictions, Prediction{Model: name, Bytes: n, Status: status})
	s.mu.Unlock()
	predictionsTotal.WithLabelValues(name, fmt.Sprint(status)).Inc()
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if st := s.opts.RegisterStatus; st != 0 {
		writeError(w, st, "InternalServerException", "registration rejected")
		return
	}
	q := r.URL.Query()
	u := q.Get("url")
	if u == "" {
		writeError(w, http.StatusBadRequest, "BadRequestException", "Parameter url is required.")
		return
	}
	name := q.Get("model_name")
	if name == "" {
		name = s.opts.ServedName(u)
	}
	s.mu.Lock()
	if _, exists := s.models[name]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "ConflictStatusException", fmt.Sprintf("Model version 1.0 is already registered for model %s", name))
		return
	}
	s.models[name] = model{url: u, initialWorkers: q.Get("initial_workers"), batchSize: q.Get("batch_size")}
	n := len(s.models)
	s.mu.Unlock()
	registeredModels.Set(float64(n))
	s.opts.Log.Debug().Str("model", name).Str("url", u).Msg("model registered")
	writeJSON(w, http.StatusOK, types.StatusResponse{Status: fmt.Sprintf("Model %q Version: 1.0 registered with %s initial workers", name, q.Get("initial_workers"))})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: s.Models()})
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if st := s.opts.UnregisterStatus; st != 0 {
		writeError(w, st, "InternalServerException", "unregistration rejected")
		return
	}
	s.mu.Lock()
	_, ok := s.models[name]
	delete(s.models, name)
	n := len(s.models)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "ModelNotFoundException", fmt.Sprintf("Model not found: %s", name))
		return
	}
	registeredModels.Set(float64(n))
	writeJSON(w, http.StatusOK, types.StatusResponse{Status: fmt.Sprintf("Model %q unregistered", name)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, typ, msg string) {
	writeJSON(w, status, types.ErrorResponse{Code: status, Type: typ, Message: msg})
}
