package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/config"
)

const identityJSON = `{"ID":"12D3KooWexample","AgentVersion":"kubo/0.29.0","Addresses":["/ip4/127.0.0.1/tcp/4001"]}`

func TestHTTPProbe_Identity(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(identityJSON))
	}))
	defer srv.Close()

	p, err := NewHTTP(config.Backend{Name: "ipfs", Kind: config.KindHTTP, Endpoint: srv.URL, Method: "post"})
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}

	res := p.Probe(context.Background())
	if res.Err != nil {
		t.Fatalf("res.Err = %v", res.Err)
	}
	if !res.Reachable {
		t.Error("Reachable = false, want true")
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if got := res.Payload["AgentVersion"]; got != "kubo/0.29.0" {
		t.Errorf("Payload[AgentVersion] = %v, want kubo/0.29.0", got)
	}
	if got := res.Metrics["status_code"]; got != 200 {
		t.Errorf("Metrics[status_code] = %v, want 200", got)
	}
	if _, ok := res.Metrics["latency_ms"]; !ok {
		t.Error("Metrics[latency_ms] missing")
	}
	if _, ok := res.Payload["tls"]; ok {
		t.Error("plain http endpoint must not carry tls payload")
	}
}

func TestHTTPProbe_PlainTextBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p, err := NewHTTP(config.Backend{Name: "s3", Kind: config.KindHTTP, Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}
	res := p.Probe(context.Background())
	if res.Err != nil || !res.Reachable {
		t.Fatalf("Probe() = reachable %v err %v, want reachable", res.Reachable, res.Err)
	}
	if len(res.Payload) != 0 {
		t.Errorf("Payload = %v, want empty", res.Payload)
	}
}

func TestHTTPProbe_Non2xxIsFailure(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusServiceUnavailable} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
		}))

		p, err := NewHTTP(config.Backend{Name: "cluster", Kind: config.KindHTTP, Endpoint: srv.URL})
		if err != nil {
			t.Fatalf("NewHTTP() error = %v", err)
		}
		res := p.Probe(context.Background())
		srv.Close()

		if res.Err == nil {
			t.Errorf("status %d: Err = nil, want error", code)
		}
		if res.Reachable {
			t.Errorf("status %d: Reachable = true, want false", code)
		}
	}
}

func TestHTTPProbe_RetriesTransientFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p, err := NewHTTP(config.Backend{Name: "hf", Kind: config.KindHTTP, Endpoint: srv.URL, Retries: 2})
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}
	res := p.Probe(context.Background())
	if res.Err != nil {
		t.Fatalf("res.Err = %v", res.Err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if got := res.Payload["body"]; got != "ok" {
		t.Errorf("Payload[body] = %v, want ok", got)
	}
}

func TestHTTPProbe_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := srv.URL
	srv.Close()

	p, err := NewHTTP(config.Backend{Name: "ipfs", Kind: config.KindHTTP, Endpoint: url})
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}
	res := p.Probe(context.Background())
	if res.Err == nil || res.Reachable {
		t.Errorf("Probe() = reachable %v err %v, want failure", res.Reachable, res.Err)
	}
}

func TestHTTPProbe_HonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	p, err := NewHTTP(config.Backend{Name: "slow", Kind: config.KindHTTP, Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := p.Probe(ctx)
	if res.Err == nil {
		t.Error("Err = nil, want deadline error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Probe took %v, want it bounded by the context", elapsed)
	}
}

func TestHTTPProbe_AuthHeaders(t *testing.T) {
	t.Setenv("TEST_PROBE_KEY", "k-123")
	t.Setenv("TEST_PROBE_TOKEN", "tok-456")

	tests := []struct {
		name   string
		auth   config.AuthConfig
		header string
		want   string
	}{
		{"apikey default header", config.AuthConfig{Mode: "apikey", KeyEnv: "TEST_PROBE_KEY"}, "X-API-Key", "k-123"},
		{"apikey custom header", config.AuthConfig{Mode: "apikey", Header: "X-Hub-Key", KeyEnv: "TEST_PROBE_KEY"}, "X-Hub-Key", "k-123"},
		{"bearer", config.AuthConfig{Mode: "bearer", TokenEnv: "TEST_PROBE_TOKEN"}, "Authorization", "Bearer tok-456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get(tt.header)
			}))
			defer srv.Close()

			p, err := NewHTTP(config.Backend{Name: "a", Kind: config.KindHTTP, Endpoint: srv.URL, Auth: tt.auth})
			if err != nil {
				t.Fatalf("NewHTTP() error = %v", err)
			}
			if res := p.Probe(context.Background()); res.Err != nil {
				t.Fatalf("res.Err = %v", res.Err)
			}
			if got != tt.want {
				t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestHTTPProbe_BasicAuth(t *testing.T) {
	t.Setenv("TEST_PROBE_PASS", "secret")

	var user, pass string
	var ok bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok = r.BasicAuth()
	}))
	defer srv.Close()

	p, err := NewHTTP(config.Backend{
		Name: "minio", Kind: config.KindHTTP, Endpoint: srv.URL,
		Auth: config.AuthConfig{Mode: "basic", Username: "admin", PasswordEnv: "TEST_PROBE_PASS"},
	})
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}
	p.Probe(context.Background())
	if !ok || user != "admin" || pass != "secret" {
		t.Errorf("BasicAuth() = %q, %q, %v; want admin, secret, true", user, pass, ok)
	}
}

func TestHTTPProbe_TLSCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	p, err := NewHTTP(config.Backend{
		Name: "s3", Kind: config.KindHTTP, Endpoint: srv.URL,
		TLS: config.TLSConfig{InsecureSkipVerify: true},
	})
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}
	res := p.Probe(context.Background())
	if res.Err != nil {
		t.Fatalf("res.Err = %v", res.Err)
	}
	if _, ok := res.Payload["tls"]; !ok {
		t.Error("Payload[tls] missing for https endpoint")
	}
	if res.Metrics["cert_days_left"] <= 0 {
		t.Errorf("Metrics[cert_days_left] = %v, want > 0", res.Metrics["cert_days_left"])
	}
	if res.Hint != "" {
		t.Errorf("Hint = %q, want none for a valid certificate", res.Hint)
	}
}

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name string
		in   string
		key  string
		want any
	}{
		{"object", `{"Version":"1.2"}`, "Version", "1.2"},
		{"text", "  kubo 0.29\n", "body", "kubo 0.29"},
		{"broken json", `{"Version":`, "body", `{"Version":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodePayload([]byte(tt.in))
			if got[tt.key] != tt.want {
				t.Errorf("decodePayload(%q)[%q] = %v, want %v", tt.in, tt.key, got[tt.key], tt.want)
			}
		})
	}
}
