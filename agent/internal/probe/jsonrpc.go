package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/config"
)

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RPCProbe calls one JSON-RPC 2.0 method on a storage node (for example
// Filecoin.Version) and treats an "error" member as a failed probe.
type RPCProbe struct {
	cfg    config.Backend
	client *retryablehttp.Client
	url    string
	body   []byte
}

func newRPCProbe(b config.Backend) (Probe, error) {
	return NewRPC(b)
}

// NewRPC returns an RPCProbe for b.
func NewRPC(b config.Backend) (*RPCProbe, error) {
	client, err := buildRetryClient(b)
	if err != nil {
		return nil, err
	}

	params := b.RPCParams
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: b.RPCMethod, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode rpc request: %w", err)
	}
	return &RPCProbe{cfg: b, client: client, url: b.URL(), body: body}, nil
}

// Probe implements Probe.
func (p *RPCProbe) Probe(ctx context.Context) Result {
	res := newResult(p.cfg.Name)
	start := time.Now()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(p.body))
	if err != nil {
		res.Err = fmt.Errorf("build request: %w", err)
		return res
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	observeLatency(&res, start)
	if err != nil {
		res.Err = fmt.Errorf("rpc %s: %w", p.cfg.RPCMethod, err)
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Err = fmt.Errorf("rpc %s: unexpected status %d", p.cfg.RPCMethod, resp.StatusCode)
		return res
	}

	body, err := readBody(resp.Body)
	if err != nil {
		res.Err = fmt.Errorf("read body: %w", err)
		return res
	}

	var rr rpcResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		res.Err = fmt.Errorf("rpc %s: decode response: %w", p.cfg.RPCMethod, err)
		return res
	}
	if rr.Error != nil {
		res.Err = fmt.Errorf("rpc %s: %w", p.cfg.RPCMethod, rr.Error)
		return res
	}

	res.Reachable = true
	res.Payload["method"] = p.cfg.RPCMethod
	var result any
	if len(rr.Result) > 0 {
		if err := json.Unmarshal(rr.Result, &result); err != nil {
			res.Err = fmt.Errorf("rpc %s: decode result: %w", p.cfg.RPCMethod, err)
			res.Reachable = false
			return res
		}
	}
	res.Payload["result"] = result
	return res
}
