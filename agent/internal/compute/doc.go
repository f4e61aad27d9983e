// Package compute reduces the multi-dimensional health of a network-quality
// backend (the peer-to-peer overlay) to one composite score.
//
// score.go provides the pure Score(Input) function: base 100, fixed
// deductions for discovery, peer count and connectivity, a capped bonus per
// populated content category, fixed penalties per issue tag, then a clamp to
// [0, 100]. It is a weighted deduction rather than an average so that one
// failing signal dominates the result.
//
// observe.go provides FromObservation, which turns the raw counters a probe
// reads into an Input and derives the issue tags.
//
// Health thresholds: Healthy ≥85, Degraded 70–84, Unhealthy <70. The score
// is only used for classification; remediation never reads it directly.
package compute
