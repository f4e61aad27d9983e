// Package api implements the agent's HTTP status API.
//
// New(src, opts...) returns an http.Handler that serves:
//
//	GET  /api/v1/health                   overall score, state, per-health counts
//	GET  /api/v1/backends                 every backend ([]BackendResponse)
//	GET  /api/v1/backends/{name}          one backend; 404 if unknown
//	GET  /api/v1/backends/{name}/history  recent samples, newest first (?limit=)
//	POST /api/v1/backends/{name}/check    run a check now and return the result
//	GET  /api/v1/events                   remediation events, newest first (?limit=)
//	GET  /api/v1/snapshot                 all backends plus generated_at
//	GET  /api/v1/alerts                   firing and recently resolved alerts
//
// All endpoints respond with Content-Type: application/json and return 405
// for unsupported methods. JSON types are defined in types.go. No external
// HTTP framework is used.
package api
