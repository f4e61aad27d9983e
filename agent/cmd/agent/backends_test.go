package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/config"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/orchestrator"
)

func httpBackend(name, endpoint string) config.Backend {
	return config.Backend{Name: name, Kind: config.KindHTTP, Endpoint: endpoint}
}

func TestBackendSet_Apply(t *testing.T) {
	o := orchestrator.New()
	s := newBackendSet(o)

	s.apply([]config.Backend{
		httpBackend("ipfs", "http://127.0.0.1:5001/api/v0/id"),
		httpBackend("cluster", "http://127.0.0.1:9094/id"),
	})
	assert.Equal(t, []string{"cluster", "ipfs"}, o.Registry().Names())

	s.apply([]config.Backend{
		httpBackend("ipfs", "http://10.0.0.2:5001/api/v0/id"),
		httpBackend("s3", "http://127.0.0.1:9000/minio/health/live"),
	})
	assert.Equal(t, []string{"ipfs", "s3"}, o.Registry().Names())

	st, ok := o.State("ipfs")
	require.True(t, ok)
	assert.Equal(t, "http://10.0.0.2:5001/api/v0/id", st.Identity.Endpoint)
}

func TestBackendSet_SkipsUnbuildable(t *testing.T) {
	o := orchestrator.New()
	s := newBackendSet(o)

	s.apply([]config.Backend{
		{Name: "bogus", Kind: "ftp"},
		httpBackend("ipfs", "http://127.0.0.1:5001/api/v0/id"),
	})
	assert.Equal(t, []string{"ipfs"}, o.Registry().Names())
}

func TestBackendSet_RemediationWired(t *testing.T) {
	o := orchestrator.New()
	s := newBackendSet(o)

	b := httpBackend("lotus", "http://127.0.0.1:1234/rpc/v0")
	b.Remediation.Command = []string{"systemctl", "restart", "lotus"}
	s.apply([]config.Backend{b, httpBackend("ipfs", "http://127.0.0.1:5001/api/v0/id")})

	st, _ := o.State("lotus")
	assert.True(t, st.Remediation.Enabled)
	st, _ = o.State("ipfs")
	assert.False(t, st.Remediation.Enabled)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, names([]config.Backend{{Name: "a"}, {Name: "b"}}))
	assert.Empty(t, names(nil))
}

func TestBackendSet_OnRemove(t *testing.T) {
	o := orchestrator.New()
	s := newBackendSet(o)
	var removed []string
	s.onRemove = func(name string) { removed = append(removed, name) }

	s.apply([]config.Backend{httpBackend("ipfs", "http://127.0.0.1:5001/api/v0/id")})
	s.apply(nil)

	assert.Equal(t, []string{"ipfs"}, removed)
	assert.Zero(t, o.Registry().Len())
}
