package probe

import (
	"testing"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/config"
)

func TestNew_AllKinds(t *testing.T) {
	tests := []struct {
		b    config.Backend
		want any
	}{
		{config.Backend{Name: "ipfs", Kind: config.KindHTTP, Port: 5001}, &HTTPProbe{}},
		{config.Backend{Name: "lotus", Kind: config.KindJSONRPC, Port: 1234, RPCMethod: "Filecoin.Version"}, &RPCProbe{}},
		{config.Backend{Name: "lassie", Kind: config.KindCLI, Binary: "lassie"}, &CLIProbe{}},
		{config.Backend{Name: "follow", Kind: config.KindProcess, Binary: "ipfs-cluster-follow"}, &ProcessProbe{}},
		{config.Backend{Name: "libp2p", Kind: config.KindPeerNet, Port: 9464}, &PeerNetProbe{}},
	}
	for _, tt := range tests {
		t.Run(tt.b.Kind, func(t *testing.T) {
			p, err := New(tt.b)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			switch tt.want.(type) {
			case *HTTPProbe:
				_, ok := p.(*HTTPProbe)
				if !ok {
					t.Errorf("New() = %T, want *HTTPProbe", p)
				}
			case *RPCProbe:
				if _, ok := p.(*RPCProbe); !ok {
					t.Errorf("New() = %T, want *RPCProbe", p)
				}
			case *CLIProbe:
				if _, ok := p.(*CLIProbe); !ok {
					t.Errorf("New() = %T, want *CLIProbe", p)
				}
			case *ProcessProbe:
				if _, ok := p.(Restarter); !ok {
					t.Errorf("New() = %T, want a Restarter", p)
				}
			case *PeerNetProbe:
				if _, ok := p.(*PeerNetProbe); !ok {
					t.Errorf("New() = %T, want *PeerNetProbe", p)
				}
			}
		})
	}
}

func TestNew_UnknownKind(t *testing.T) {
	if _, err := New(config.Backend{Name: "x", Kind: "smtp"}); err == nil {
		t.Error("New() error = nil, want unsupported kind")
	}
}

func TestNew_MTLSMissingCert(t *testing.T) {
	_, err := New(config.Backend{
		Name: "secure", Kind: config.KindHTTP, Endpoint: "https://localhost:5001",
		Auth: config.AuthConfig{Mode: "mtls", CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"},
	})
	if err == nil {
		t.Error("New() error = nil, want cert load error")
	}
}
