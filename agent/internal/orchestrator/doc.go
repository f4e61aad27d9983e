// Package orchestrator probes every registered backend, classifies the
// result, drives remediation and publishes one BackendState per backend.
//
// Checks for different backends run concurrently and never affect each
// other. Checks for one backend are serialized by a one-slot semaphore, and
// each published state is an immutable value swapped in atomically, so
// readers never see a partially updated record.
package orchestrator
