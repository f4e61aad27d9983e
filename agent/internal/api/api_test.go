package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/alerts"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/api"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/compute"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/config"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/orchestrator"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/probe"
	"github.com/endomorphosis/ipfs-kit-py-sub023/pkg/types"
)

// --- test helpers -----------------------------------------------------------

type probeFunc func(ctx context.Context) probe.Result

func (f probeFunc) Probe(ctx context.Context) probe.Result { return f(ctx) }

var (
	up = probeFunc(func(context.Context) probe.Result {
		return probe.Result{Reachable: true, Payload: map[string]any{"ID": "12D3KooW"}}
	})
	down = probeFunc(func(context.Context) probe.Result {
		return probe.Failed("", errors.New("connection refused"))
	})
	weakOverlay = probeFunc(func(context.Context) probe.Result {
		// 100 - 25 (discovery inactive) + 5 = 80
		return probe.Result{Reachable: true, Signals: &compute.Input{TotalPeers: 5, ConnectedPeers: 5, ContentCategories: 1}}
	})
)

// newOrchestrator registers the given probes and checks each once unless
// it is listed in unchecked.
func newOrchestrator(t *testing.T, probes map[string]probe.Probe, unchecked ...string) *orchestrator.Orchestrator {
	t.Helper()
	o := orchestrator.New()
	skip := map[string]bool{}
	for _, n := range unchecked {
		skip[n] = true
	}
	for name, p := range probes {
		if err := o.Register(orchestrator.Identity{Name: name, Kind: "http"}, p); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
		if !skip[name] {
			o.CheckOne(context.Background(), name)
		}
	}
	return o
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_Empty(t *testing.T) {
	h := api.New(orchestrator.New())
	rr := get(t, h, "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.State != "unknown" {
		t.Errorf("state: got %v, want unknown", resp.State)
	}
	if resp.BackendCount != 0 {
		t.Errorf("backend_count: got %v, want 0", resp.BackendCount)
	}
}

func TestHealth_AllHealthy(t *testing.T) {
	h := api.New(newOrchestrator(t, map[string]probe.Probe{"ipfs": up, "cluster": up}))
	var resp api.HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &resp)

	if resp.State != "healthy" || resp.OverallScore != 100 {
		t.Errorf("got state %q score %v, want healthy 100", resp.State, resp.OverallScore)
	}
	if resp.HealthyCount != 2 {
		t.Errorf("healthy_count: got %d, want 2", resp.HealthyCount)
	}
}

func TestHealth_Mixed(t *testing.T) {
	h := api.New(newOrchestrator(t, map[string]probe.Probe{
		"ipfs":   up,
		"libp2p": weakOverlay,
		"lotus":  down,
		"s3":     up,
		"new":    up,
	}, "new"))
	var resp api.HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &resp)

	if resp.HealthyCount != 2 || resp.DegradedCount != 1 || resp.FailingCount != 1 || resp.UnknownCount != 1 {
		t.Errorf("counts: %+v", resp)
	}
	// (2 + 0.5) / 4 = 62.5 -> unhealthy
	if resp.OverallScore != 62.5 {
		t.Errorf("overall_score: got %v, want 62.5", resp.OverallScore)
	}
	if resp.State != "unhealthy" {
		t.Errorf("state: got %v, want unhealthy", resp.State)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	h := api.New(orchestrator.New())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/health", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/backends -------------------------------------------------------

func TestListBackends_SortedWithFields(t *testing.T) {
	h := api.New(newOrchestrator(t, map[string]probe.Probe{"s3": up, "ipfs": up, "lotus": down}))
	rr := get(t, h, "/api/v1/backends")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}

	var resp []map[string]interface{}
	decode(t, rr, &resp)
	if len(resp) != 3 {
		t.Fatalf("got %d backends, want 3", len(resp))
	}
	first := resp[0]["identity"].(map[string]interface{})
	if first["name"] != "ipfs" {
		t.Errorf("first backend: got %v, want ipfs", first["name"])
	}
	if resp[0]["health"] != "healthy" || resp[0]["status"] != "running" {
		t.Errorf("ipfs: got %v/%v, want healthy/running", resp[0]["health"], resp[0]["status"])
	}
	if resp[1]["last_error"] == nil {
		t.Error("lotus: last_error missing")
	}
	if _, ok := resp[0]["diagnostics"]; !ok {
		t.Error("diagnostics missing")
	}
	rem := resp[1]["remediation"].(map[string]interface{})
	if _, ok := rem["restart_cooldown_remaining"]; !ok {
		t.Error("remediation.restart_cooldown_remaining missing")
	}
}

func TestListBackends_Empty(t *testing.T) {
	h := api.New(orchestrator.New())
	var resp []interface{}
	decode(t, get(t, h, "/api/v1/backends"), &resp)
	if len(resp) != 0 {
		t.Errorf("got %d items, want 0", len(resp))
	}
}

func TestGetBackend(t *testing.T) {
	h := api.New(newOrchestrator(t, map[string]probe.Probe{"ipfs": up}))

	rr := get(t, h, "/api/v1/backends/ipfs")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.BackendResponse
	decode(t, rr, &resp)
	if resp.Identity.Name != "ipfs" || resp.Health != types.HealthHealthy {
		t.Errorf("got %s %s, want ipfs healthy", resp.Identity.Name, resp.Health)
	}
	if resp.Info["ID"] != "12D3KooW" {
		t.Errorf("info.ID: got %v", resp.Info["ID"])
	}
	if resp.UptimePct != 100 {
		t.Errorf("uptime_pct: got %v, want 100", resp.UptimePct)
	}
	if len(resp.Diagnostics) != 1 || resp.Diagnostics[0].Key != "healthy" {
		t.Errorf("diagnostics: got %+v, want all clear", resp.Diagnostics)
	}
}

func TestGetBackend_NotFound(t *testing.T) {
	h := api.New(orchestrator.New())
	if rr := get(t, h, "/api/v1/backends/nope"); rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
	if rr := get(t, h, "/api/v1/backends/nope/bogus"); rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

// --- history / check / events -----------------------------------------------

func TestHistory(t *testing.T) {
	o := newOrchestrator(t, map[string]probe.Probe{"ipfs": up})
	o.CheckOne(context.Background(), "ipfs")
	o.CheckOne(context.Background(), "ipfs")
	h := api.New(o)

	var resp api.HistoryResponse
	decode(t, get(t, h, "/api/v1/backends/ipfs/history?limit=2"), &resp)
	if resp.Backend != "ipfs" || len(resp.Samples) != 2 {
		t.Errorf("got %s with %d samples, want ipfs with 2", resp.Backend, len(resp.Samples))
	}
	if !resp.Samples[0].Timestamp.After(resp.Samples[1].Timestamp) && !resp.Samples[0].Timestamp.Equal(resp.Samples[1].Timestamp) {
		t.Error("samples not newest first")
	}

	if rr := get(t, h, "/api/v1/backends/ipfs/history?limit=abc"); rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit status: got %d, want 400", rr.Code)
	}
	if rr := get(t, h, "/api/v1/backends/nope/history"); rr.Code != http.StatusNotFound {
		t.Errorf("unknown backend status: got %d, want 404", rr.Code)
	}
}

func TestHistory_NeverProbed(t *testing.T) {
	h := api.New(newOrchestrator(t, map[string]probe.Probe{"hf": up}, "hf"))
	var resp api.HistoryResponse
	decode(t, get(t, h, "/api/v1/backends/hf/history"), &resp)
	if resp.Samples == nil || len(resp.Samples) != 0 {
		t.Errorf("samples: got %v, want empty list", resp.Samples)
	}
}

func TestCheck(t *testing.T) {
	o := newOrchestrator(t, map[string]probe.Probe{"ipfs": up}, "ipfs")
	h := api.New(o)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/backends/ipfs/check", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.BackendResponse
	decode(t, rr, &resp)
	if resp.Health != types.HealthHealthy || resp.Checks != 1 {
		t.Errorf("got %s after %d checks, want healthy after 1", resp.Health, resp.Checks)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/backends/nope/check", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown backend status: got %d, want 404", rr.Code)
	}

	if rr := get(t, h, "/api/v1/backends/ipfs/check"); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET check status: got %d, want 405", rr.Code)
	}
}

func TestEvents_Empty(t *testing.T) {
	h := api.New(orchestrator.New())
	rr := get(t, h, "/api/v1/events")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp []interface{}
	decode(t, rr, &resp)
	if len(resp) != 0 {
		t.Errorf("got %d events, want 0", len(resp))
	}
}

func TestSnapshot(t *testing.T) {
	h := api.New(newOrchestrator(t, map[string]probe.Probe{"ipfs": up, "lotus": down}))
	var resp api.SnapshotResponse
	decode(t, get(t, h, "/api/v1/snapshot"), &resp)
	if len(resp.Backends) != 2 {
		t.Errorf("backends: got %d, want 2", len(resp.Backends))
	}
	if resp.GeneratedAt == "" {
		t.Error("generated_at missing")
	}
}

func TestAlerts(t *testing.T) {
	o := newOrchestrator(t, map[string]probe.Probe{"lotus": down})
	eng, err := alerts.New(config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "failing", Condition: "health == unhealthy", Severity: "critical"},
	}})
	if err != nil {
		t.Fatalf("alerts.New: %v", err)
	}
	eng.Evaluate(o.States(), nil)

	var resp []alerts.Alert
	decode(t, get(t, api.New(o, api.WithAlerts(eng)), "/api/v1/alerts"), &resp)
	if len(resp) != 1 || resp[0].Backend != "lotus" || resp[0].State != alerts.StateFiring {
		t.Errorf("alerts: got %+v, want one firing alert for lotus", resp)
	}
}

func TestAlerts_NotConfigured(t *testing.T) {
	rr := get(t, api.New(orchestrator.New()), "/api/v1/alerts")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp []interface{}
	decode(t, rr, &resp)
	if resp == nil || len(resp) != 0 {
		t.Errorf("got %v, want empty list", resp)
	}
}

func TestContentTypeJSON(t *testing.T) {
	h := api.New(orchestrator.New())
	for _, path := range []string{"/api/v1/health", "/api/v1/backends", "/api/v1/snapshot", "/api/v1/events"} {
		rr := get(t, h, path)
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s: Content-Type = %q, want application/json", path, ct)
		}
	}
}
