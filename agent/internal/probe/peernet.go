package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/compute"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/config"
)

// Metric families exposed by the peer-network overlay.
const (
	metricHostActive      = "peernet_host_active"
	metricDiscoveryActive = "peernet_discovery_active"
	metricPeersKnown      = "peernet_peers_known"
	metricPeersConnected  = "peernet_peers_connected"
	metricContentItems    = "peernet_content_items"
)

// Content categories carried in the "category" label of peernet_content_items.
const (
	categoryPinned   = "pinned"
	categoryFiles    = "files"
	categoryVectors  = "vectors"
	categoryEntities = "entities"
)

// PeerNetProbe scrapes the overlay's Prometheus text exposition and reduces
// it to scoring signals. The orchestrator classifies the backend from the
// resulting score rather than from reachability alone.
type PeerNetProbe struct {
	cfg    config.Backend
	client *http.Client
	url    string
}

func newPeerNetProbe(b config.Backend) (Probe, error) {
	return NewPeerNet(b)
}

// NewPeerNet returns a PeerNetProbe for b.
func NewPeerNet(b config.Backend) (*PeerNetProbe, error) {
	client, err := buildHTTPClient(b)
	if err != nil {
		return nil, err
	}
	return &PeerNetProbe{cfg: b, client: client, url: b.URL()}, nil
}

// Probe implements Probe.
func (p *PeerNetProbe) Probe(ctx context.Context) Result {
	res := newResult(p.cfg.Name)

	start := time.Now()
	mfs, err := fetchMetrics(ctx, p.client, p.url)
	observeLatency(&res, start)
	if err != nil {
		res.Err = fmt.Errorf("scrape %s: %w", p.url, err)
		return res
	}

	obs := observe(mfs)
	in := compute.FromObservation(obs)

	res.Reachable = true
	res.Signals = &in
	res.Metrics["peers_known"] = float64(obs.TotalPeers)
	res.Metrics["peers_connected"] = float64(obs.ConnectedPeers)
	res.Metrics["content_categories"] = float64(in.ContentCategories)
	res.Payload["host_active"] = obs.HostActive
	res.Payload["discovery_active"] = obs.DiscoveryActive
	res.Payload["content"] = map[string]int{
		categoryPinned:   obs.Content.Pinned,
		categoryFiles:    obs.Content.Files,
		categoryVectors:  obs.Content.Vectors,
		categoryEntities: obs.Content.Entities,
	}
	issues := make([]string, 0, len(in.Issues))
	for _, is := range in.Issues {
		issues = append(issues, string(is))
	}
	res.Payload["issues"] = issues
	return res
}

// observe reads the overlay metric families into an Observation. Missing
// families read as zero, so an overlay that exports nothing scores as
// inactive.
func observe(mfs map[string]*dto.MetricFamily) compute.Observation {
	content := sumByLabel(mfs[metricContentItems], "category")
	return compute.Observation{
		HostActive:      sumFamily(mfs[metricHostActive]) > 0,
		DiscoveryActive: sumFamily(mfs[metricDiscoveryActive]) > 0,
		TotalPeers:      int(sumFamily(mfs[metricPeersKnown])),
		ConnectedPeers:  int(sumFamily(mfs[metricPeersConnected])),
		Content: compute.ContentCounts{
			Pinned:   int(content[categoryPinned]),
			Files:    int(content[categoryFiles]),
			Vectors:  int(content[categoryVectors]),
			Entities: int(content[categoryEntities]),
		},
	}
}
