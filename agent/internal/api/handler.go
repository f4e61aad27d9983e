package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/alerts"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/compute"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/history"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/orchestrator"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/remediation"
	"github.com/endomorphosis/ipfs-kit-py-sub023/pkg/types"
)

// UptimeWindow is the number of recent samples uptime is computed over.
const UptimeWindow = 20

// defaultLimit applies to history and event listings without ?limit=.
const defaultLimit = 50

// Source is the read and trigger surface the API needs from the
// orchestrator.
type Source interface {
	States() map[string]orchestrator.BackendState
	State(name string) (orchestrator.BackendState, bool)
	History(name string, limit int) []history.Sample
	Uptime(name string, window int) float64
	Events(limit int) []remediation.Event
	CheckBackend(ctx context.Context, name string) (orchestrator.BackendState, error)
}

// AlertSource lists firing and recently resolved alerts.
type AlertSource interface {
	Active() []alerts.Alert
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	src    Source
	alerts AlertSource
	mux    *http.ServeMux
}

// Option configures a Handler.
type Option func(*Handler)

// WithAlerts serves GET /api/v1/alerts from a. Without it the endpoint
// returns an empty list.
func WithAlerts(a AlertSource) Option {
	return func(h *Handler) { h.alerts = a }
}

// New creates a Handler wired to src and registers all routes.
func New(src Source, opts ...Option) http.Handler {
	h := &Handler{src: src, mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(h)
	}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/backends", h.listBackends)
	h.mux.HandleFunc("/api/v1/backends/", h.backend) // subtree: {name}[/history|/check]
	h.mux.HandleFunc("/api/v1/events", h.events)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health. The overall score is the share of known
// backends that are up, with degraded ones counting half.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	states := h.src.States()
	resp := HealthResponse{BackendCount: len(states)}

	for _, st := range states {
		switch {
		case st.Health == types.HealthHealthy:
			resp.HealthyCount++
		case st.Health == types.HealthDegraded:
			resp.DegradedCount++
		case st.Health.Failing():
			resp.FailingCount++
		default:
			resp.UnknownCount++
		}
	}

	known := resp.HealthyCount + resp.DegradedCount + resp.FailingCount
	if known == 0 {
		resp.State = string(types.HealthUnknown)
		jsonResp(w, http.StatusOK, resp)
		return
	}

	resp.OverallScore = (float64(resp.HealthyCount) + 0.5*float64(resp.DegradedCount)) / float64(known) * 100
	resp.State = string(compute.HealthFromScore(resp.OverallScore))
	jsonResp(w, http.StatusOK, resp)
}

// listBackends returns GET /api/v1/backends sorted by name.
func (h *Handler) listBackends(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.buildBackends())
}

// backend dispatches /api/v1/backends/{name}[/history|/check].
func (h *Handler) backend(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/backends/"), "/")
	if rest == "" {
		h.listBackends(w, r)
		return
	}

	name, action, _ := strings.Cut(rest, "/")
	switch action {
	case "":
		h.getBackend(w, r, name)
	case "history":
		h.history(w, r, name)
	case "check":
		h.check(w, r, name)
	default:
		jsonErr(w, http.StatusNotFound, "not found")
	}
}

// getBackend returns GET /api/v1/backends/{name}.
func (h *Handler) getBackend(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	st, ok := h.src.State(name)
	if !ok {
		jsonErr(w, http.StatusNotFound, "backend not found")
		return
	}
	jsonResp(w, http.StatusOK, h.toBackendResponse(st))
}

// history returns GET /api/v1/backends/{name}/history?limit=N.
func (h *Handler) history(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, ok := h.src.State(name); !ok {
		jsonErr(w, http.StatusNotFound, "backend not found")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, HistoryResponse{Backend: name, Samples: h.src.History(name, limit)})
}

// check runs POST /api/v1/backends/{name}/check synchronously.
func (h *Handler) check(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	st, err := h.src.CheckBackend(r.Context(), name)
	if errors.Is(err, orchestrator.ErrNotConfigured) {
		jsonErr(w, http.StatusNotFound, "backend not found")
		return
	}
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, h.toBackendResponse(st))
}

// events returns GET /api/v1/events?limit=N.
func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, h.src.Events(limit))
}

// listAlerts returns GET /api/v1/alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []alerts.Alert{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// snapshot returns GET /api/v1/snapshot.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildSnapshot(h.src))
}

// BuildSnapshot assembles the full snapshot served on /api/v1/snapshot and
// streamed by the WebSocket hub.
func BuildSnapshot(src Source) SnapshotResponse {
	h := &Handler{src: src}
	return SnapshotResponse{
		Backends:    h.buildBackends(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) buildBackends() []BackendResponse {
	states := h.src.States()
	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]BackendResponse, 0, len(names))
	for _, name := range names {
		out = append(out, h.toBackendResponse(states[name]))
	}
	return out
}

func (h *Handler) toBackendResponse(st orchestrator.BackendState) BackendResponse {
	uptime := h.src.Uptime(st.Identity.Name, UptimeWindow)
	return BackendResponse{
		BackendState: st,
		UptimePct:    uptime,
		Diagnostics:  computeDiagnostics(st, uptime),
	}
}

// parseLimit reads ?limit=; absent means defaultLimit.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return n, nil
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
