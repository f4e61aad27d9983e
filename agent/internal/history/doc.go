// Package history keeps a bounded, in-memory ring buffer of MetricsSamples
// per backend. It is the agent's only time series: the API serves it
// newest-first and the optional Redis sink mirrors every appended sample.
//
// Each backend gets its own fixed-capacity ring (default 100). Appending to
// a full ring evicts the oldest sample. Samples are copied on append so a
// stored sample can never change after it is written.
package history
