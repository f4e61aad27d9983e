// Package types defines the health vocabulary shared by every agent package:
// the Health classification of a backend and the coarser Status of its
// process. Both are plain strings so they serialize unchanged into JSON,
// Redis and Prometheus labels.
package types
