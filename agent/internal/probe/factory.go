package probe

import (
	"fmt"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/config"
)

// constructor builds the probe for one backend kind.
type constructor func(config.Backend) (Probe, error)

// constructors is consulted once per backend at registration time; after
// that the orchestrator only sees the Probe interface.
var constructors = map[string]constructor{
	config.KindHTTP:    newHTTPProbe,
	config.KindJSONRPC: newRPCProbe,
	config.KindCLI:     newCLIProbe,
	config.KindProcess: newProcessProbe,
	config.KindPeerNet: newPeerNetProbe,
}

// New returns the Probe for the given backend configuration.
func New(b config.Backend) (Probe, error) {
	build, ok := constructors[b.Kind]
	if !ok {
		return nil, fmt.Errorf("probe: unsupported kind %q", b.Kind)
	}
	p, err := build(b)
	if err != nil {
		return nil, fmt.Errorf("probe %q: %w", b.Name, err)
	}
	return p, nil
}
