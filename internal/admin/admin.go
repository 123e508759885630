// Package admin serves the HTTP control surface of the Atlas server:
// liveness/readiness probes, Prometheus metrics, voice mode control, settings
// read/write, and debugging endpoints for the intent rules.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/atlasvoice/atlas/internal/app"
	"github.com/atlasvoice/atlas/internal/dispatch"
	"github.com/atlasvoice/atlas/internal/intent"
	"github.com/atlasvoice/atlas/internal/settings"
	"github.com/atlasvoice/atlas/internal/synth"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check should return nil when the
// dependency is healthy and must respect context cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Orchestrator is the subset of the session orchestrator driven by the admin
// API.
type Orchestrator interface {
	EnableVoiceMode(ctx context.Context) error
	DisableVoiceMode(ctx context.Context) error
	UpdateSettings(ctx context.Context, patch settings.Patch) error
	Speak(ctx context.Context, text string, pri synth.Priority) error
	Status(ctx context.Context) (app.Status, error)
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithLogger sets the logger. The default is slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithCheckers adds readiness checks evaluated on every /readyz request, in
// the order given.
func WithCheckers(checkers ...Checker) Option {
	return func(s *Server) {
		s.checkers = append(s.checkers, checkers...)
	}
}

// Server holds the handlers of the admin API. It is safe for concurrent use.
type Server struct {
	orch       Orchestrator
	dp         *dispatch.Dispatcher
	classifier *intent.Classifier
	store      settings.Store
	checkers   []Checker
	log        *slog.Logger
}

// New creates an admin [Server]. The classifier is used only by the intent
// debug endpoint and never dispatches.
func New(orch Orchestrator, dp *dispatch.Dispatcher, classifier *intent.Classifier, store settings.Store, opts ...Option) *Server {
	s := &Server{
		orch:       orch,
		dp:         dp,
		classifier: classifier,
		store:      store,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds all admin routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /readyz", s.readyz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/status", s.status)
	mux.HandleFunc("GET /api/capabilities", s.capabilities)
	mux.HandleFunc("POST /api/intent", s.classify)
	mux.HandleFunc("GET /api/settings", s.getSettings)
	mux.HandleFunc("PATCH /api/settings", s.patchSettings)
	mux.HandleFunc("POST /api/voice/enable", s.enableVoice)
	mux.HandleFunc("POST /api/voice/disable", s.disableVoice)
	mux.HandleFunc("POST /api/speak", s.speak)
}

// Handler returns a mux with all admin routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// healthResult is the JSON response body for the probe endpoints.
type healthResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResult{Status: "ok"})
}

// readyz returns 200 only when every registered [Checker] passes.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.checkers))
	allOK := true

	for _, c := range s.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := healthResult{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	st, err := s.orch.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// capability describes one registered handler kind for the capabilities
// listing.
type capability struct {
	Kind     string   `json:"kind"`
	Actions  []string `json:"actions,omitempty"`
	Examples []string `json:"examples,omitempty"`
}

// exampleUtterances gives one representative phrase per kind for the
// capabilities listing.
var exampleUtterances = map[intent.Kind][]string{
	intent.Calendar: {"schedule a meeting tomorrow at 3pm"},
	intent.Email:    {"send an email to Sam about the report"},
	intent.Reminder: {"remind me to water the plants at 6pm"},
	intent.Weather:  {"what's the weather in Berlin"},
	intent.News:     {"what's in the news today"},
	intent.Search:   {"search the web for the tallest building"},
}

func (s *Server) capabilities(w http.ResponseWriter, _ *http.Request) {
	// Action lists come from the rule set so the listing matches what the
	// classifier can actually produce.
	actionsByKind := make(map[intent.Kind][]string)
	for _, r := range intent.DefaultRules() {
		for _, a := range r.Actions {
			if !slices.Contains(actionsByKind[r.Kind], a) {
				actionsByKind[r.Kind] = append(actionsByKind[r.Kind], a)
			}
		}
	}

	kinds := s.dp.Kinds()
	caps := make([]capability, 0, len(kinds))
	for _, k := range kinds {
		caps = append(caps, capability{
			Kind:     string(k),
			Actions:  actionsByKind[k],
			Examples: exampleUtterances[k],
		})
	}
	writeJSON(w, http.StatusOK, caps)
}

// classifyRequest is the body of the intent debug endpoint.
type classifyRequest struct {
	Text string `json:"text"`
}

// classify runs the rule set over the given text and returns the classified
// intent without dispatching it. Debugging aid for rule authors.
func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("text is required"))
		return
	}
	writeJSON(w, http.StatusOK, s.classifier.Classify(req.Text))
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	vs, err := s.store.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

// patchSettings applies a partial settings update. Changes take effect at
// the next voice session start.
func (s *Server) patchSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if err := s.orch.UpdateSettings(r.Context(), patch); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	vs, err := s.store.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (s *Server) enableVoice(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.EnableVoiceMode(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	s.log.Info("admin: voice mode enabled", "remote", r.RemoteAddr)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) disableVoice(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.DisableVoiceMode(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	s.log.Info("admin: voice mode disabled", "remote", r.RemoteAddr)
	w.WriteHeader(http.StatusNoContent)
}

// speakRequest is the body of the speak endpoint.
type speakRequest struct {
	Text     string `json:"text"`
	Priority string `json:"priority"`
}

// speak enqueues an arbitrary utterance on the synthesis queue.
func (s *Server) speak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("text is required"))
		return
	}
	pri, err := parsePriority(req.Priority)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.orch.Speak(r.Context(), req.Text, pri); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// parsePriority maps the wire priority names onto synth priorities. Empty
// means normal.
func parsePriority(name string) (synth.Priority, error) {
	switch name {
	case "", "normal":
		return synth.PriorityNormal, nil
	case "low":
		return synth.PriorityLow, nil
	case "high":
		return synth.PriorityHigh, nil
	}
	return 0, fmt.Errorf("priority %q is invalid; valid values: low, normal, high", name)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

// errorResult is the JSON error body shared by all endpoints.
type errorResult struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResult{Error: err.Error()})
}
