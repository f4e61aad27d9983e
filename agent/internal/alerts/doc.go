// Package alerts evaluates rules against published backend states and
// notifies webhooks when a rule fires or resolves.
//
// A rule condition has the form "field operator value". Supported fields:
//
//	health                == | !=   healthy, degraded, unhealthy, stopped, error
//	status                == | !=   running, stopped, error
//	score                 numeric   composite network score, absent if not scored
//	latency_ms            numeric
//	uptime_pct            numeric   over the same window as the status API
//	cert_days_left        numeric   absent for non-TLS backends
//	consecutive_failures  numeric   failing checks in a row
//
// Numeric fields accept < <= > >= == !=. A condition on an absent field never
// fires. Backends that have not been checked yet are skipped.
//
// Webhook types: slack, teams, http (the alert as JSON).
package alerts
