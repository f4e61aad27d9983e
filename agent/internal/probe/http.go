package probe

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/config"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/security"
	"github.com/endomorphosis/ipfs-kit-py-sub023/pkg/types"
)

// HTTPProbe performs an identity call against an HTTP API: the storage
// daemon's /api/v0/id, the cluster coordinator's /id, an object store's
// health endpoint. Any 2xx answer counts as reachable.
type HTTPProbe struct {
	cfg    config.Backend
	client *retryablehttp.Client
	url    string
	method string
}

func newHTTPProbe(b config.Backend) (Probe, error) {
	return NewHTTP(b)
}

// NewHTTP returns an HTTPProbe for b.
func NewHTTP(b config.Backend) (*HTTPProbe, error) {
	client, err := buildRetryClient(b)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(b.Method)
	if method == "" {
		method = http.MethodGet
	}
	return &HTTPProbe{cfg: b, client: client, url: b.URL(), method: method}, nil
}

// Probe implements Probe.
func (p *HTTPProbe) Probe(ctx context.Context) Result {
	res := newResult(p.cfg.Name)
	start := time.Now()

	req, err := retryablehttp.NewRequestWithContext(ctx, p.method, p.url, nil)
	if err != nil {
		res.Err = fmt.Errorf("build request: %w", err)
		return res
	}

	resp, err := p.client.Do(req)
	observeLatency(&res, start)
	if err != nil {
		res.Err = fmt.Errorf("%s %s: %w", p.method, p.url, err)
		return res
	}
	defer resp.Body.Close()

	body, err := readBody(resp.Body)
	if err != nil {
		res.Err = fmt.Errorf("read body: %w", err)
		return res
	}
	res.Metrics["status_code"] = float64(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		return res
	}

	res.Reachable = true
	res.Payload = decodePayload(body)

	if cs := security.Check(ctx, p.url, p.cfg.Auth.Mode, p.cfg.TLS.InsecureSkipVerify); cs != nil {
		res.Payload["tls"] = cs.Map()
		if cs.Status != security.CertUnreachable {
			res.Metrics["cert_days_left"] = float64(cs.DaysLeft)
		}
		if cs.Expired() {
			res.Hint = types.HealthDegraded
		}
	}
	return res
}
