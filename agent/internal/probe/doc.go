// Package probe implements one health probe per backend kind. Every probe
// returns a Result; failures are carried in Result.Err and never panic or
// escape as a second return value.
//
// Implemented kinds: http (http.go), jsonrpc (jsonrpc.go), cli (cli.go),
// process (process.go), peernet (peernet.go). Factory: New(config.Backend)
// returns the probe for the backend's kind.
//
// HTTP-based probes share the authRoundTripper and retrying client built in
// base.go, so mTLS, API key, bearer and basic auth work the same for all of
// them.
package probe
